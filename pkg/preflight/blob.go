package preflight

import (
	"regexp"
	"strings"
)

// blobCharLimit and blobSentenceLimit bound what still classifies as a
// normal query; anything beyond is a blob and gets summarized for routing.
const (
	blobCharLimit     = 500
	blobSentenceLimit = 10
)

var sentenceSplitPattern = regexp.MustCompile(`[.!?]+\s+|[.!?]+$|\n+`)

// classificationQuery reduces a blob to its first three and last two
// sentences for mode decisions. Short queries pass through unchanged.
func classificationQuery(query string) (string, bool) {
	sentences := splitSentences(query)
	if len(query) <= blobCharLimit && len(sentences) < blobSentenceLimit {
		return query, false
	}

	picked := make([]string, 0, 5)
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			picked = append(picked, s)
		}
	}
	for i := 0; i < len(sentences) && i < 3; i++ {
		add(sentences[i])
	}
	start := len(sentences) - 2
	if start < 0 {
		start = 0
	}
	for _, s := range sentences[start:] {
		add(s)
	}
	return strings.Join(picked, " "), true
}

func splitSentences(text string) []string {
	parts := sentenceSplitPattern.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
