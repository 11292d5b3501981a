// Package finphysics implements the financial-physics document classifier:
// a pure routine that labels extracted tabular rows as income, cost, or
// profit using multilingual keyword priors and sign heuristics, then checks
// the accounting identity over the classified values.
package finphysics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Nature is the physical role of a financial row.
type Nature string

const (
	NatureIncome Nature = "income"
	NatureCost   Nature = "cost"
	NatureProfit Nature = "profit"
)

// Symbol is the flow sign associated with a nature.
type Symbol string

const (
	SymbolInflow  Symbol = "+"
	SymbolOutflow Symbol = "−"
	SymbolBalance Symbol = "="
)

// VariancePctLimit is the accounting-identity tolerance:
// |income - cost - profit| / |profit| must stay under 5%.
const VariancePctLimit = 5.0

// Classification is one classified row.
type Classification struct {
	Nature     Nature  `json:"nature"`
	Symbol     Symbol  `json:"symbol"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
	Value      float64 `json:"value"`
}

// Temporal is the detected reporting period.
type Temporal struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

// Validation is the accounting-identity check result.
type Validation struct {
	Valid       bool    `json:"valid"`
	Income      float64 `json:"income"`
	Cost        float64 `json:"cost"`
	Profit      float64 `json:"profit"`
	VariancePct float64 `json:"variance_pct"`
}

// Summary counts classifications per nature.
type Summary struct {
	Income int `json:"income"`
	Cost   int `json:"cost"`
	Profit int `json:"profit"`
	Total  int `json:"total"`
}

// Report is the full classifier output.
type Report struct {
	DocumentType    string           `json:"documentType"`
	Currency        string           `json:"currency"`
	Temporal        Temporal         `json:"temporal"`
	TemporalErrors  []string         `json:"temporalErrors"`
	Classifications []Classification `json:"classifications"`
	Validation      Validation       `json:"validation"`
	Summary         Summary          `json:"summary"`
}

// Keyword priors per nature across Indonesian, English, Chinese, Japanese.
var (
	incomeKeywords = []string{
		"revenue", "income", "sales", "turnover", "earnings",
		"pendapatan", "penjualan", "penghasilan",
		"收入", "营收", "销售",
		"売上", "収益", "収入",
	}
	costKeywords = []string{
		"cost", "expense", "expenditure", "cogs", "overhead", "opex",
		"biaya", "beban", "pengeluaran",
		"成本", "费用", "支出",
		"費用", "経費", "原価",
	}
	profitKeywords = []string{
		"profit", "net income", "margin", "surplus", "ebit", "ebitda",
		"laba", "keuntungan", "untung",
		"利润", "净利", "盈利",
		"利益", "純利益", "粗利",
	}
)

var docTypeKeywords = map[string][]string{
	"income_statement": {"income statement", "profit and loss", "p&l", "laporan laba rugi", "損益計算書", "利润表"},
	"balance_sheet":    {"balance sheet", "neraca", "貸借対照表", "资产负债表", "assets", "liabilities"},
	"cash_flow":        {"cash flow", "arus kas", "キャッシュフロー", "现金流量", "operating activities"},
	"ledger":           {"ledger", "journal", "buku besar", "debit", "credit"},
}

var currencyPattern = regexp.MustCompile(`(?i)\b(IDR|USD|EUR|JPY|CNY|RMB|SGD|MYR|GBP|Rp)\b|[$€£¥]`)

var currencyNames = map[string]string{
	"$": "USD", "€": "EUR", "£": "GBP", "¥": "JPY", "RP": "IDR", "RMB": "CNY",
}

// rowValuePattern matches the trailing numeric value of a row, with optional
// parentheses for negatives.
var rowValuePattern = regexp.MustCompile(`\(?-?[\d][\d,.]*[\d]\)?|\(?-?[\d]\)?`)

// logDataPattern guards against non-financial log dumps being classified.
var logDataPattern = regexp.MustCompile(`(?i)\b(error|warn|debug|trace|stack ?trace|exception)\b|\d{2}:\d{2}:\d{2}`)

// Classify runs the full pipeline over extracted rows. Rows with no
// parseable value are skipped; a log-looking payload yields an empty report.
func Classify(rows []string) *Report {
	report := &Report{DocumentType: "unknown"}

	joined := strings.ToLower(strings.Join(rows, "\n"))
	if looksLikeLogData(joined) {
		report.DocumentType = "log_data"
		return report
	}

	report.DocumentType = detectDocumentType(joined)
	report.Currency = detectCurrency(strings.Join(rows, "\n"))
	report.Temporal, report.TemporalErrors = detectTemporal(rows)

	for _, row := range rows {
		c, ok := classifyRow(row)
		if !ok {
			continue
		}
		report.Classifications = append(report.Classifications, c)
	}

	report.Validation = validate(report.Classifications)
	for _, c := range report.Classifications {
		switch c.Nature {
		case NatureIncome:
			report.Summary.Income++
		case NatureCost:
			report.Summary.Cost++
		case NatureProfit:
			report.Summary.Profit++
		}
	}
	report.Summary.Total = len(report.Classifications)
	return report
}

// Describe renders the report as prompt-ready text: document shape,
// per-nature row counts, and the accounting-identity verdict.
func (r *Report) Describe() string {
	var b strings.Builder
	b.WriteString("Financial physics classification:")
	fmt.Fprintf(&b, "\n- Document type: %s", r.DocumentType)
	if r.Currency != "" {
		fmt.Fprintf(&b, " (%s)", r.Currency)
	}
	if r.Temporal.Year != 0 {
		fmt.Fprintf(&b, "\n- Reporting year: %d", r.Temporal.Year)
	}
	fmt.Fprintf(&b, "\n- Rows classified: %d (income %d, cost %d, profit %d)",
		r.Summary.Total, r.Summary.Income, r.Summary.Cost, r.Summary.Profit)
	v := r.Validation
	switch {
	case v.Valid:
		fmt.Fprintf(&b, "\n- Accounting identity holds: income %.2f - cost %.2f matches profit %.2f (variance %.2f%%)",
			v.Income, v.Cost, v.Profit, v.VariancePct)
	case v.Profit == 0:
		b.WriteString("\n- Accounting identity unchecked: no profit row found")
	default:
		fmt.Fprintf(&b, "\n- Accounting identity FAILS: income %.2f - cost %.2f does not match profit %.2f (variance %.2f%%, limit %.1f%%)",
			v.Income, v.Cost, v.Profit, v.VariancePct, VariancePctLimit)
	}
	for _, e := range r.TemporalErrors {
		b.WriteString("\n- Warning: " + e)
	}
	return b.String()
}

// looksLikeLogData is the fast guard: heavy log vocabulary with no financial
// keywords at all.
func looksLikeLogData(lower string) bool {
	if !logDataPattern.MatchString(lower) {
		return false
	}
	for _, kw := range incomeKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	for _, kw := range profitKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}

func detectDocumentType(lower string) string {
	best, bestCount := "financial_table", 0
	for docType, keywords := range docTypeKeywords {
		count := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = docType, count
		}
	}
	return best
}

func detectCurrency(text string) string {
	m := currencyPattern.FindString(text)
	if m == "" {
		return ""
	}
	upper := strings.ToUpper(m)
	if name, ok := currencyNames[upper]; ok {
		return name
	}
	return upper
}

var yearPattern = regexp.MustCompile(`\b(19[5-9]\d|20[0-4]\d)\b`)
var actualPattern = regexp.MustCompile(`(?i)\b(actual|realisasi|実績|实际)\b`)

// detectTemporal scans header rows for the reporting year and flags
// "future year marked Actual" mislabeling.
func detectTemporal(rows []string) (Temporal, []string) {
	var t Temporal
	var errs []string
	currentYear := time.Now().Year()

	limit := len(rows)
	if limit > 5 {
		limit = 5
	}
	for _, row := range rows[:limit] {
		m := yearPattern.FindString(row)
		if m == "" {
			continue
		}
		year, _ := strconv.Atoi(m)
		if t.Year == 0 {
			t.Year = year
		}
		if year > currentYear && actualPattern.MatchString(row) {
			errs = append(errs, "future year "+m+" labeled as Actual")
		}
	}
	return t, errs
}

// classifyRow scores one row against the keyword priors, breaking ties with
// sign and position heuristics.
func classifyRow(row string) (Classification, bool) {
	value, ok := extractValue(row)
	if !ok {
		return Classification{}, false
	}
	lower := strings.ToLower(row)

	incomeScore := keywordScore(lower, incomeKeywords)
	costScore := keywordScore(lower, costKeywords)
	profitScore := keywordScore(lower, profitKeywords)

	// Sign heuristic: an explicit negative leans cost.
	if value < 0 {
		costScore += 0.5
	}

	nature, score := NatureIncome, incomeScore
	if costScore > score {
		nature, score = NatureCost, costScore
	}
	if profitScore > score {
		nature, score = NatureProfit, profitScore
	}
	if score == 0 {
		return Classification{}, false
	}

	confidence := score / (incomeScore + costScore + profitScore)
	return Classification{
		Nature:     nature,
		Symbol:     symbolFor(nature),
		Confidence: confidence,
		Label:      strings.TrimSpace(labelOf(row)),
		Value:      value,
	}, true
}

func keywordScore(lower string, keywords []string) float64 {
	score := 0.0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	return score
}

func symbolFor(n Nature) Symbol {
	switch n {
	case NatureIncome:
		return SymbolInflow
	case NatureCost:
		return SymbolOutflow
	default:
		return SymbolBalance
	}
}

// extractValue takes the last numeric token in the row as its value.
// Parenthesized values are negatives in accounting convention.
func extractValue(row string) (float64, bool) {
	matches := rowValuePattern.FindAllString(row, -1)
	if len(matches) == 0 {
		return 0, false
	}
	// A lone year is a header, not a value.
	if len(matches) == 1 && yearPattern.MatchString(row) && yearPattern.FindString(row) == matches[0] {
		return 0, false
	}
	raw := matches[len(matches)-1]
	negative := strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")")
	raw = strings.Trim(raw, "()")
	raw = strings.ReplaceAll(raw, ",", "")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

func labelOf(row string) string {
	if idx := rowValuePattern.FindStringIndex(row); idx != nil {
		return row[:idx[0]]
	}
	return row
}

// validate checks the accounting identity over summed natures. Rows
// classified cost contribute their magnitude.
func validate(classifications []Classification) Validation {
	var v Validation
	for _, c := range classifications {
		switch c.Nature {
		case NatureIncome:
			v.Income += c.Value
		case NatureCost:
			v.Cost += absFloat(c.Value)
		case NatureProfit:
			v.Profit += c.Value
		}
	}
	if v.Profit == 0 {
		v.Valid = false
		return v
	}
	v.VariancePct = absFloat(v.Income-v.Cost-v.Profit) / absFloat(v.Profit) * 100
	v.Valid = v.VariancePct < VariancePctLimit
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
