// Package seedmetric implements the housing-affordability seed: the
// φ-recursive affordability equation, regime thresholds, the closed city
// list, search-query emission, and parsers for search snippets and
// structured LLM replies.
package seedmetric

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// StandardArea is the dwelling size (sqm) used to convert price-per-sqm
	// into a purchase price.
	StandardArea = 60.0

	// Regime thresholds in years of income.
	FatalismYears = 25.0
	OptimismYears = 10.0
)

// ErrParseFailure is returned when neither price nor income can be
// extracted from a payload.
var ErrParseFailure = errors.New("seed-metric parse failure")

// Regime is the affordability verdict.
type Regime string

const (
	RegimeFatalism     Regime = "FATALISM"
	RegimePhiBreathing Regime = "PHI-BREATHING"
	RegimeOptimism     Regime = "OPTIMISM"
)

// Years is the raw affordability measure: years of gross income to buy a
// standard dwelling.
func Years(pricePerSqm, annualIncome float64) float64 {
	if annualIncome <= 0 {
		return math.Inf(1)
	}
	return pricePerSqm * StandardArea / annualIncome
}

// Sigma is the stress term of the affordability equation, the years measure
// normalized by the fatalism threshold.
func Sigma(years float64) float64 {
	return years / FatalismYears
}

// Affordability solves A = 1 + 1/A + σ for the positive root:
// A = ((1+σ) + sqrt((1+σ)² + 4)) / 2.
func Affordability(sigma float64) float64 {
	b := 1 + sigma
	return (b + math.Sqrt(b*b+4)) / 2
}

// RegimeFor maps the years measure onto the three regimes.
func RegimeFor(years float64) Regime {
	switch {
	case years > FatalismYears:
		return RegimeFatalism
	case years >= OptimismYears:
		return RegimePhiBreathing
	default:
		return RegimeOptimism
	}
}

// CityMetrics is one city's parsed affordability inputs and derived values.
type CityMetrics struct {
	City         string  `json:"city"`
	PricePerSqm  float64 `json:"pricePerSqm"`
	AnnualIncome float64 `json:"annualIncome"`
	Years        float64 `json:"years"`
	A            float64 `json:"a"`
	Regime       Regime  `json:"regime"`
}

// Compute derives the affordability values for parsed inputs.
func Compute(city string, pricePerSqm, annualIncome float64) CityMetrics {
	years := Years(pricePerSqm, annualIncome)
	return CityMetrics{
		City:         city,
		PricePerSqm:  pricePerSqm,
		AnnualIncome: annualIncome,
		Years:        years,
		A:            Affordability(Sigma(years)),
		Regime:       RegimeFor(years),
	}
}

var landIncomePattern = regexp.MustCompile(`(?i)LAND\s*:\s*([\d,.]+)\s+INCOME\s*:\s*([\d,.]+)`)

// ParseLandIncome extracts price and income from a structured reply of the
// form "LAND:N INCOME:N".
func ParseLandIncome(text string) (price, income float64, err error) {
	m := landIncomePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: no LAND/INCOME pair in %q", ErrParseFailure, truncate(text, 80))
	}
	price, err1 := parseNumber(m[1])
	income, err2 := parseNumber(m[2])
	if err1 != nil || err2 != nil || price <= 0 || income <= 0 {
		return 0, 0, fmt.Errorf("%w: unparseable LAND/INCOME values", ErrParseFailure)
	}
	return price, income, nil
}

var snippetNumberPattern = regexp.MustCompile(`[\d][\d,.]*[\d]|[\d]`)

// ParseSnippetNumber pulls the largest plausible monetary figure out of a
// free-text search snippet. Returns ErrParseFailure when nothing numeric
// survives.
func ParseSnippetNumber(snippet string) (float64, error) {
	best := 0.0
	for _, raw := range snippetNumberPattern.FindAllString(snippet, -1) {
		v, err := parseNumber(raw)
		if err != nil {
			continue
		}
		// Years and percentages are noise in price/income snippets.
		if v < 100 {
			continue
		}
		if v > best {
			best = v
		}
	}
	if best == 0 {
		return 0, fmt.Errorf("%w: no usable figure in snippet", ErrParseFailure)
	}
	return best, nil
}

func parseNumber(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	return strconv.ParseFloat(cleaned, 64)
}

// QueriesForCity emits the four search queries for one city; decade may be
// empty for current-only lookups.
func QueriesForCity(city, decade string) []string {
	queries := []string{
		fmt.Sprintf("%s average property price per square meter", city),
		fmt.Sprintf("%s average annual household income", city),
	}
	if decade != "" {
		queries = append(queries,
			fmt.Sprintf("%s property price per square meter %s", city, decade),
			fmt.Sprintf("%s average annual income %s", city, decade),
		)
	} else {
		queries = append(queries,
			fmt.Sprintf("%s historical property price per square meter", city),
			fmt.Sprintf("%s historical average income", city),
		)
	}
	return queries
}

// RenderTable produces the mandated Markdown affordability table.
func RenderTable(metrics []CityMetrics) string {
	var sb strings.Builder
	sb.WriteString("| City | Price/sqm | Annual income | Years | A | Regime |\n")
	sb.WriteString("|------|-----------|---------------|-------|---|--------|\n")
	for _, m := range metrics {
		years := "∞"
		if !math.IsInf(m.Years, 1) {
			years = fmt.Sprintf("%.1f", m.Years)
		}
		fmt.Fprintf(&sb, "| %s | %.0f | %.0f | %s | %.3f | %s |\n",
			titleCase(m.City), m.PricePerSqm, m.AnnualIncome, years, m.A, m.Regime)
	}
	return sb.String()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) <= 2 {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
