// Package chemistry implements the compound-identification cascade used on
// image pre-analysis results: a settled-science table lookup, a search
// arbitration step, a multi-tier discovery cascade, and the scholastic
// domain gate that keeps non-chemistry content out of the pipeline.
package chemistry

import "strings"

// Compound is one identified chemical.
type Compound struct {
	Formula    string  `json:"formula"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Extract    string  `json:"extract,omitempty"`
}

// settledTable is the canonical-formula lookup: 18 compounds whose
// identification is settled science and needs no discovery.
var settledTable = map[string]string{
	"H2O":      "water",
	"CO2":      "carbon dioxide",
	"O2":       "oxygen",
	"N2":       "nitrogen",
	"NaCl":     "sodium chloride",
	"H2SO4":    "sulfuric acid",
	"HCl":      "hydrochloric acid",
	"NH3":      "ammonia",
	"CH4":      "methane",
	"C2H5OH":   "ethanol",
	"C6H12O6":  "glucose",
	"CaCO3":    "calcium carbonate",
	"NaOH":     "sodium hydroxide",
	"HNO3":     "nitric acid",
	"C6H6":     "benzene",
	"CH3COOH":  "acetic acid",
	"C3H8":     "propane",
	"C12H22O11": "sucrose",
}

// SettledLookup resolves a formula against the settled table. Stage 0 of
// the cascade; a hit is authoritative at confidence 1.0.
func SettledLookup(formula string) (*Compound, bool) {
	name, ok := settledTable[normalizeFormula(formula)]
	if !ok {
		return nil, false
	}
	return &Compound{
		Formula:    normalizeFormula(formula),
		Name:       name,
		Confidence: 1.0,
		Source:     "settled",
	}, true
}

// normalizeFormula strips whitespace and maps unicode subscripts onto
// plain digits.
func normalizeFormula(formula string) string {
	replacer := strings.NewReplacer(
		"₀", "0", "₁", "1", "₂", "2", "₃", "3", "₄", "4",
		"₅", "5", "₆", "6", "₇", "7", "₈", "8", "₉", "9",
		" ", "", "\t", "",
	)
	return replacer.Replace(formula)
}

// genericNames are identifications too vague to headline.
var genericNames = map[string]bool{
	"compound":          true,
	"chemical":          true,
	"chemical compound": true,
	"molecule":          true,
	"organic compound":  true,
	"substance":         true,
	"unknown":           true,
}

// HeaderEligible reports whether an identification is strong and specific
// enough for a "Compound Identification" header.
func HeaderEligible(c *Compound) bool {
	if c == nil || c.Confidence < 0.7 {
		return false
	}
	return !genericNames[strings.ToLower(strings.TrimSpace(c.Name))]
}

// Header renders the compound-identification banner.
func Header(c *Compound) string {
	return "## Compound Identification: " + c.Name + " (" + c.Formula + ")\n"
}
