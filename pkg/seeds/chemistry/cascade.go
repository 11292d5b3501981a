package chemistry

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SearchFunc is the search collaborator used by the cascade. It returns
// empty text when nothing was found.
type SearchFunc func(ctx context.Context, query string) (text string, err error)

// Cascade runs the tiered compound-identification flow.
type Cascade struct {
	Search    SearchFunc
	Wikipedia SearchFunc
}

// Identify resolves a vision-detected formula and name hypothesis into a
// compound. Tiers: settled table, search arbitration on conflict, then the
// discovery cascade. Returns nil when every tier misses.
func (c *Cascade) Identify(ctx context.Context, formula, visionName string) (*Compound, error) {
	formula = normalizeFormula(formula)

	// Stage 0: settled science.
	if settled, ok := SettledLookup(formula); ok {
		if visionName != "" && !sameName(visionName, settled.Name) {
			// Stage 0.5: vision disagrees with the table; let search arbitrate.
			arbitrated, err := c.arbitrate(ctx, formula, visionName, settled)
			if err == nil && arbitrated != nil {
				return c.enrich(ctx, arbitrated), nil
			}
		}
		return c.enrich(ctx, settled), nil
	}

	// Stage 1: discovery cascade.
	found, err := c.discover(ctx, formula, visionName)
	if err != nil || found == nil {
		return nil, err
	}
	return c.enrich(ctx, found), nil
}

// arbitrate runs one search over the conflicting names; whichever name the
// result text mentions wins, the settled table on a tie.
func (c *Cascade) arbitrate(ctx context.Context, formula, visionName string, settled *Compound) (*Compound, error) {
	if c.Search == nil {
		return settled, nil
	}
	text, err := c.Search(ctx, fmt.Sprintf("%s chemical compound name", formula))
	if err != nil || text == "" {
		return settled, err
	}
	lower := strings.ToLower(text)
	visionHit := strings.Contains(lower, strings.ToLower(visionName))
	// The settled name only counts where it is not part of the vision name
	// ("water" inside "heavy water" is no independent evidence).
	remainder := strings.ReplaceAll(lower, strings.ToLower(visionName), "")
	settledHit := strings.Contains(remainder, strings.ToLower(settled.Name))
	if visionHit && !settledHit {
		return &Compound{
			Formula:    formula,
			Name:       visionName,
			Confidence: 0.8,
			Source:     "arbitration",
		}, nil
	}
	return settled, nil
}

// discover walks the four discovery tiers: exact formula query, alternate
// phrasing, structure keywords, then fuzzy ±1 H/C variants.
func (c *Cascade) discover(ctx context.Context, formula, visionName string) (*Compound, error) {
	if c.Search == nil {
		return nil, nil
	}

	queries := []struct {
		query      string
		confidence float64
		source     string
	}{
		{fmt.Sprintf("%s compound name", formula), 0.9, "exact"},
		{fmt.Sprintf("what chemical has formula %s", formula), 0.8, "alternate"},
	}
	if visionName != "" {
		queries = append(queries, struct {
			query      string
			confidence float64
			source     string
		}{fmt.Sprintf("%s molecular structure %s", visionName, formula), 0.75, "structure"})
	}

	for _, q := range queries {
		text, err := c.Search(ctx, q.query)
		if err != nil {
			continue
		}
		if name := extractCompoundName(text); name != "" {
			return &Compound{Formula: formula, Name: name, Confidence: q.confidence, Source: q.source}, nil
		}
	}

	// Fuzzy tier: the vision OCR may be off by one hydrogen or carbon.
	for _, variant := range fuzzyVariants(formula) {
		if settled, ok := SettledLookup(variant); ok {
			settled.Confidence = 0.7
			settled.Source = "fuzzy"
			return settled, nil
		}
		text, err := c.Search(ctx, fmt.Sprintf("%s compound name", variant))
		if err != nil {
			continue
		}
		if name := extractCompoundName(text); name != "" {
			return &Compound{Formula: variant, Name: name, Confidence: 0.65, Source: "fuzzy"}, nil
		}
	}
	return nil, nil
}

// enrich attaches a Wikipedia extract when the collaborator is wired.
func (c *Cascade) enrich(ctx context.Context, compound *Compound) *Compound {
	if c.Wikipedia == nil || compound == nil {
		return compound
	}
	extract, err := c.Wikipedia(ctx, compound.Name)
	if err == nil && extract != "" {
		compound.Extract = extract
	}
	return compound
}

var namePattern = regexp.MustCompile(`(?i)\b(?:is|called|known as|name[d]? )\s*([a-z][a-z -]{2,40}?)(?:[.,;]|$)`)

// extractCompoundName pulls a candidate name out of search text.
func extractCompoundName(text string) string {
	if text == "" {
		return ""
	}
	m := namePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[1])
	if genericNames[strings.ToLower(name)] {
		return ""
	}
	return name
}

var elementCountPattern = regexp.MustCompile(`([HC])(\d*)`)

// fuzzyVariants generates formulas with one hydrogen or carbon added or
// removed.
func fuzzyVariants(formula string) []string {
	var out []string
	matches := elementCountPattern.FindAllStringSubmatchIndex(formula, -1)
	for _, idx := range matches {
		count := 1
		if idx[4] >= 0 && idx[4] < idx[5] {
			count, _ = strconv.Atoi(formula[idx[4]:idx[5]])
		}
		for _, delta := range []int{1, -1} {
			next := count + delta
			if next < 1 {
				continue
			}
			var repl string
			if next == 1 {
				repl = formula[idx[2]:idx[3]]
			} else {
				repl = formula[idx[2]:idx[3]] + strconv.Itoa(next)
			}
			out = append(out, formula[:idx[0]]+repl+formula[idx[1]:])
		}
	}
	return out
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
