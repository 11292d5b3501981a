package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

// introFluff strips opener boilerplate the reasoning models like to emit.
var introFluff = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(okay|ok|sure|certainly|of course|great question)[,!.]?\s+`),
	regexp.MustCompile(`(?i)^let me [^.\n]*[.:]\s*`),
	regexp.MustCompile(`(?i)^(here is|here's) (a |an |the )?(summary|overview|answer|breakdown)[^.\n]*[.:]\s*`),
	regexp.MustCompile(`(?i)^as of my (knowledge|last) [^.\n]*[.,]\s*`),
	regexp.MustCompile(`(?i)^(i'd|i would) be (happy|glad) to [^.\n]*[.:]\s*`),
	regexp.MustCompile(`(?i)^(in summary|to summarize)[,:]\s*`),
}

// outroFluff strips trailing confidence-grading and invitation sections.
var outroFluff = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\n+(confidence( level| grade)?|certainty)\s*[:\-][^\n]*$`),
	regexp.MustCompile(`(?i)\n+(let me know|feel free to ask|i hope (this|that) helps)[^\n]*$`),
	regexp.MustCompile(`(?i)\n+(is there anything else|do you (want|need) [^\n]*\?)\s*$`),
	regexp.MustCompile(`(?i)\n+overall[,]? (i('m| am)? |my )?(confident|assessment)[^\n]*$`),
}

// signaturePattern matches any existing variant of the closing signature.
var signaturePattern = regexp.MustCompile(`(?m)^\s*🔥\s*~\s*nyan\b[^\n]*$`)

// fluffSkipModes keep their structured bodies untouched but still get the
// signature.
var fluffSkipModes = map[models.Mode]bool{
	models.ModePsiEMA:     true,
	models.ModeSeedMetric: true,
	models.ModeCodeAudit:  true,
	models.ModeDesign:     true,
}

// ApplyPersonality runs the final no-LLM normalization: fluff stripping,
// optional chemistry header, and exactly one trailing signature.
func ApplyPersonality(answer string, mode models.Mode, compoundHeader string, ts time.Time) string {
	out := strings.TrimSpace(answer)

	if !fluffSkipModes[mode] {
		for _, p := range introFluff {
			out = p.ReplaceAllString(out, "")
		}
		// Stripping the last line can expose another fluff line above it.
		for {
			before := out
			for _, p := range outroFluff {
				out = strings.TrimRight(p.ReplaceAllString(out, ""), " \t\n")
			}
			if out == before {
				break
			}
		}
		out = strings.TrimSpace(out)
	}

	// Any model-emitted signature variants go; ours goes last, once.
	out = strings.TrimSpace(signaturePattern.ReplaceAllString(out, ""))

	if compoundHeader != "" {
		out = strings.TrimSpace(compoundHeader) + "\n\n" + out
	}

	return out + "\n\n" + Signature(ts)
}

// Signature renders the canonical closing line.
func Signature(ts time.Time) string {
	return fmt.Sprintf("🔥 ~nyan [%s]", ts.UTC().Format("2006-01-02T15:04:05Z"))
}
