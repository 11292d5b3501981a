package chemistry

import "strings"

// Domain is a scholastic field detected in image descriptions.
type Domain string

const (
	DomainChemistry   Domain = "chemistry"
	DomainPureMath    Domain = "pure-math"
	DomainEngineering Domain = "engineering"
	DomainBiology     Domain = "biology"
	DomainFinance     Domain = "finance"
)

var domainKeywords = map[Domain][]string{
	DomainChemistry: {
		"molecule", "compound", "reaction", "bond", "formula", "acid",
		"base", "element", "periodic", "ion", "organic", "synthesis",
	},
	DomainPureMath: {
		"theorem", "proof", "integral", "derivative", "matrix", "equation",
		"topology", "lemma", "polynomial", "vector space",
	},
	DomainEngineering: {
		"circuit", "voltage", "torque", "beam", "stress", "schematic",
		"gear", "load", "amplifier", "resistor",
	},
	DomainBiology: {
		"cell", "protein", "dna", "enzyme", "organism", "membrane",
		"gene", "tissue", "species", "mitochondria",
	},
	DomainFinance: {
		"stock", "price", "chart", "candlestick", "revenue", "portfolio",
		"dividend", "ticker", "earnings", "valuation",
	},
}

// ClassifyDomain returns the dominant scholastic domain of combined image
// descriptions. Ties outside chemistry resolve away from chemistry so the
// gate stays conservative.
func ClassifyDomain(descriptions string) Domain {
	lower := strings.ToLower(descriptions)
	best, bestScore := DomainChemistry, 0
	for domain, keywords := range domainKeywords {
		score := 0
		for _, kw := range keywords {
			score += strings.Count(lower, kw)
		}
		if score > bestScore || (score == bestScore && score > 0 && domain != DomainChemistry && best == DomainChemistry) {
			best, bestScore = domain, score
		}
	}
	if bestScore == 0 {
		return DomainChemistry
	}
	return best
}

// GateAllowsChemistry reports whether chemistry enrichment should run for
// the combined descriptions.
func GateAllowsChemistry(descriptions string) bool {
	return ClassifyDomain(descriptions) == DomainChemistry
}
