package preflight

import (
	"regexp"
	"strings"
)

// tickerBlocklist holds common words that look like tickers but never are,
// unless written with the explicit $ prefix.
var tickerBlocklist = map[string]bool{
	"A": true, "I": true, "AM": true, "AN": true, "AND": true, "ARE": true,
	"AS": true, "AT": true, "BE": true, "BIG": true, "BUT": true, "BY": true,
	"CAN": true, "CEO": true, "DID": true, "DO": true, "ETF": true, "FAQ": true,
	"FOR": true, "GET": true, "GO": true, "HAS": true, "HOW": true, "IF": true,
	"IN": true, "IS": true, "IT": true, "ME": true, "MY": true, "NEW": true,
	"NO": true, "NOT": true, "NOW": true, "OF": true, "OK": true, "ON": true,
	"ONE": true, "OR": true, "OUT": true, "SEE": true, "SO": true, "THE": true,
	"TO": true, "UP": true, "US": true, "USA": true, "USE": true, "WAS": true,
	"WHAT": true, "WHO": true, "WHY": true, "YES": true, "YOU": true,
	"AI": true, "API": true, "CPU": true, "EMA": true, "GDP": true,
	"GPU": true, "PSI": true, "URL": true, "UTC": true,
}

// geoVetoTokens are city shorthands that shadow real tickers in
// geo-comparison queries.
var geoVetoTokens = map[string]bool{
	"la": true, "ny": true, "sf": true, "dc": true, "hk": true, "kl": true,
}

var (
	dollarTickerPattern = regexp.MustCompile(`\$([A-Za-z][A-Za-z0-9.-]{0,9})\b`)
	allCapsPattern      = regexp.MustCompile(`\b([A-Z][A-Z0-9.-]{1,9})\b`)
	titleCasePattern    = regexp.MustCompile(`\b([A-Z][a-z]{1,9})\b`)
)

// TickerCandidate is an extracted ticker with its detection strength.
type TickerCandidate struct {
	Ticker string
	// Explicit is true for $-prefixed tickers, which bypass the blocklist
	// and the geo-veto.
	Explicit bool
}

// extractTicker finds the strongest ticker candidate in a classification
// query: $TICKER beats ALL-CAPS beats Titlecase. Blocklisted and geo
// shorthand tokens only count with the $ prefix.
func extractTicker(query string) *TickerCandidate {
	if m := dollarTickerPattern.FindStringSubmatch(query); m != nil {
		return &TickerCandidate{Ticker: strings.ToUpper(m[1]), Explicit: true}
	}
	for _, m := range allCapsPattern.FindAllStringSubmatch(query, -1) {
		token := m[1]
		if tickerBlocklist[token] || geoVetoTokens[strings.ToLower(token)] {
			continue
		}
		return &TickerCandidate{Ticker: token}
	}
	for _, m := range titleCasePattern.FindAllStringSubmatch(query, -1) {
		token := strings.ToUpper(m[1])
		if tickerBlocklist[token] || geoVetoTokens[strings.ToLower(token)] {
			continue
		}
		// Titlecase is weak evidence; only accept alongside a strong stock cue.
		if hasStockCue(query) {
			return &TickerCandidate{Ticker: token}
		}
	}
	return nil
}

var stockCuePattern = regexp.MustCompile(`(?i)\$[A-Za-z]|\b(stock|ticker|share|shares)\b`)

func hasStockCue(query string) bool {
	return stockCuePattern.MatchString(query)
}

// Lego keys for the 2-of-3 indicator unlock.
var (
	legoVerbPattern = regexp.MustCompile(`(?i)\b(analyz\w*|analys\w*|diagnos\w*|forecast\w*|predict\w*|evaluat\w*|assess\w*|examin\w*|scan\w*|read\w*|check\w*)\b`)
	legoAdjPattern  = regexp.MustCompile(`(?i)\b(price|prices|trend|trends|wave|waves|ema|momentum|chart|charts|technical|oscillator|indicator|signal|signals)\b`)
	psiEmaPattern   = regexp.MustCompile(`(?i)psi[- ]?ema|ψ[- ]?ema`)
)

// legoKeys is the result of the 2-of-3 detector.
type legoKeys struct {
	Verb   bool
	Adj    bool
	Ticker *TickerCandidate
	PsiEma bool
}

func (k legoKeys) count() int {
	n := 0
	if k.Verb {
		n++
	}
	if k.Adj {
		n++
	}
	if k.Ticker != nil {
		n++
	}
	return n
}

// unlocked reports whether the indicator path opens: at least two effective
// keys with a ticker among them, or the explicit psi-ema keyword.
func (k legoKeys) unlocked() bool {
	if k.PsiEma {
		return true
	}
	return k.count() >= 2 && k.Ticker != nil
}

// detectLegoKeys runs the key detectors. The compound psi-ema token
// contributes verb and adjective at once.
func detectLegoKeys(query string) legoKeys {
	keys := legoKeys{
		Verb:   legoVerbPattern.MatchString(query),
		Adj:    legoAdjPattern.MatchString(query),
		Ticker: extractTicker(query),
		PsiEma: psiEmaPattern.MatchString(query),
	}
	if keys.PsiEma {
		keys.Verb = true
		keys.Adj = true
	}
	return keys
}

var geoComparisonPattern = regexp.MustCompile(`(?i)\bvs\.?\b|\bversus\b|\bcompared? to\b`)
var geoSubjectPattern = regexp.MustCompile(`(?i)\b(price|prices|land|housing|house|home|homes|property|real estate|rent|income|apartment|apartments)\b`)

// geoVeto reports whether a city-shorthand comparison should force the
// seed-metric path instead of a ticker read.
func geoVeto(query string, ticker *TickerCandidate) bool {
	if ticker != nil {
		return false
	}
	if hasStockCue(query) {
		return false
	}
	if !geoComparisonPattern.MatchString(query) || !geoSubjectPattern.MatchString(query) {
		return false
	}
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if geoVetoTokens[strings.Trim(word, ".,!?")] {
			return true
		}
	}
	return false
}

var customPeriodPattern = regexp.MustCompile(`\b(\d+[dwmy])\b`)

// extractCustomPeriod pulls an explicit data period like "90d" or "2y".
func extractCustomPeriod(query string) string {
	return customPeriodPattern.FindString(query)
}
