package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

// maxCompoundParts caps how many sub-queries a compound query splits into.
const maxCompoundParts = 3

var (
	// conjunctionSplit separates clauses joined by additive conjunctions.
	conjunctionSplit = regexp.MustCompile(`(?i)[,;]?\s+\b(?:and also|also|additionally|plus|as well as)\b[,:]?\s+`)
	// questionBoundary finds a question end followed by the start of the next
	// one. The capital (or ticker sigil) belongs to the next part, so splits
	// cut just before the final matched byte.
	questionBoundary = regexp.MustCompile(`\?\s+[A-Z$]`)

	compoundTickerPattern = regexp.MustCompile(`\$[A-Z]{1,10}\b|\b[A-Z]{2,10}\b`)
)

// splitQuestions cuts a string at each question boundary, keeping the "?"
// with the preceding part and the opening capital with the following one.
func splitQuestions(s string) []string {
	locs := questionBoundary.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return []string{s}
	}
	var parts []string
	start := 0
	for _, loc := range locs {
		parts = append(parts, s[start:loc[0]+1])
		start = loc[1] - 1
	}
	return append(parts, s[start:])
}

// SplitCompound breaks a compound query into at most three independently
// answerable parts. A query splits only when each resulting part still
// carries enough substance to stand alone; otherwise the original query is
// returned as the single part.
func SplitCompound(query string) []string {
	return splitCompound(query, 0)
}

func splitCompound(query string, photoCount int) []string {
	parts := splitOnce(query, IsCompoundWithImage(query, photoCount))
	if len(parts) > maxCompoundParts {
		// Fold the overflow back into the last part rather than dropping it.
		head := parts[:maxCompoundParts-1]
		tail := strings.Join(parts[maxCompoundParts-1:], " ")
		parts = append(append([]string{}, head...), tail)
	}
	return parts
}

func splitOnce(query string, allowTickerFragment bool) []string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return []string{query}
	}

	candidates := splitQuestions(trimmed)
	if len(candidates) == 1 {
		candidates = conjunctionSplit.Split(trimmed, -1)
	}
	if len(candidates) == 1 {
		return []string{trimmed}
	}

	var parts []string
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if len(strings.Fields(c)) < 3 {
			// A bare ticker trailing a chart question still routes on its own;
			// any other short fragment abandons the split.
			if !(allowTickerFragment && compoundTickerPattern.MatchString(c)) {
				return []string{trimmed}
			}
		}
		if !strings.HasSuffix(c, "?") && strings.Contains(trimmed, c+"?") {
			c += "?"
		}
		parts = append(parts, c)
	}
	return parts
}

// IsCompoundWithImage reports whether the query mixes an explicit ticker
// question with image analysis, which also forces a split: the image part
// runs first, the ticker part second.
func IsCompoundWithImage(query string, photoCount int) bool {
	return photoCount > 0 && compoundTickerPattern.MatchString(query) &&
		strings.Contains(strings.ToLower(query), "chart")
}

// RunCompound executes each part sequentially through the full pipeline and
// merges the results: numbered sections, the worst badge across parts, and
// the mean audit confidence.
func (p *Pipeline) RunCompound(ctx context.Context, in models.PipelineInput) (*models.PipelineResult, error) {
	parts := splitCompound(in.Query, len(in.Photos))
	if len(parts) == 1 {
		return p.Run(ctx, in)
	}

	var (
		sections   []string
		badge      = models.BadgeVerified
		confidence int
		audited    int
		merged     *models.PipelineResult
	)
	for i, part := range parts {
		sub := in
		sub.Query = part
		if i > 0 {
			// Attachments belong to the first part only.
			sub.Photos = nil
			sub.Documents = nil
		}
		result, err := p.Run(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("compound part %d: %w", i+1, err)
		}
		sections = append(sections, fmt.Sprintf("## %d. %s\n\n%s", i+1, part, stripSignature(result.Answer)))
		badge = models.WorstBadge(badge, result.Badge)
		if result.AuditResult != nil {
			confidence += result.AuditResult.Confidence
			audited++
		}
		if merged == nil {
			merged = result
		} else {
			merged.DidSearch = merged.DidSearch || result.DidSearch
			merged.RetryCount += result.RetryCount
			merged.PassCount += result.PassCount
			merged.TokensIn += result.TokensIn
			merged.TokensOut += result.TokensOut
			// The last part's package represents the compound run.
			merged.DataPackageID = result.DataPackageID
			merged.DataPackageSummary = result.DataPackageSummary
		}
	}

	merged.Answer = strings.Join(sections, "\n\n") + "\n\n" + Signature(time.Now())
	merged.Badge = badge
	merged.Success = badge != models.BadgeUnavailable
	if audited > 0 {
		merged.AuditResult = &models.AuditResult{
			Verdict:    verdictForBadge(badge),
			Confidence: confidence / audited,
		}
	}
	return merged, nil
}

func verdictForBadge(b models.Badge) models.AuditVerdict {
	switch b {
	case models.BadgeVerified:
		return models.VerdictAccepted
	case models.BadgeCorrected:
		return models.VerdictFixable
	case models.BadgeUnavailable:
		return models.VerdictAPIFailure
	default:
		return models.VerdictRejected
	}
}

// stripSignature removes the per-part closing signature so the merged
// answer carries exactly one.
func stripSignature(answer string) string {
	return strings.TrimSpace(signaturePattern.ReplaceAllString(answer, ""))
}
