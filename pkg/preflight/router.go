// Package preflight implements the routing pass that turns a raw query into
// a mode decision, extracted keys, and prefetched data before the pipeline
// stages run.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/fetch"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/seeds/legal"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/seeds/psiema"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/seeds/seedmetric"
)

// TickerProposer is the LLM-assisted rescue used when two lego keys are
// present but no ticker was found lexically.
type TickerProposer interface {
	ProposeTicker(ctx context.Context, query string) (string, error)
}

// Input is the routing request.
type Input struct {
	Query         string
	Attachments   []models.AttachmentRecord
	DocContext    *models.DocContext
	ContextResult string
	ClientID      string
}

// Router is the preflight decision engine. All collaborators are optional;
// a nil fetcher simply disables its path's prefetch.
type Router struct {
	Market   fetch.MarketFetcher
	Forex    fetch.ForexFetcher
	Proposer TickerProposer
	Logger   *slog.Logger
}

// NewRouter wires a router with the given collaborators.
func NewRouter(market fetch.MarketFetcher, forex fetch.ForexFetcher, proposer TickerProposer, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{Market: market, Forex: forex, Proposer: proposer, Logger: logger}
}

// Route runs the full priority chain and returns the routing decision. It
// never returns an error; failures degrade the mode and are recorded on the
// result.
func (r *Router) Route(ctx context.Context, in Input) *models.PreflightResult {
	result := &models.PreflightResult{
		Mode:           models.ModeGeneral,
		SearchStrategy: models.SearchNone,
	}

	classification, isBlob := classificationQuery(in.Query)
	result.RoutingFlags.IsBlob = isBlob
	result.RoutingFlags.HasAttachments = len(in.Attachments) > 0
	result.RoutingFlags.HasDocContext = in.DocContext != nil

	r.decideMode(ctx, classification, in, result)
	r.applyAttachmentOverrides(in, result)
	r.applyRealtimeIntent(classification, result)
	return result
}

// decideMode walks the priority chain on the classification query.
func (r *Router) decideMode(ctx context.Context, classification string, in Input, result *models.PreflightResult) {
	if assistantIdentityPattern.MatchString(classification) {
		result.Mode = models.ModeIdentity
		return
	}

	if designPattern.MatchString(classification) {
		result.Mode = models.ModeDesign
		result.RoutingFlags.IsDesignQuestion = true
		result.CodeContext = designContext
		return
	}

	if identityPattern.MatchString(classification) && extractTicker(classification) == nil {
		result.Mode = models.ModePsiEMAIdentity
		result.RoutingFlags.IsPsiEMAIdentity = true
		result.CodeContext = psiema.IdentityDoc
		return
	}

	if pair, ok := detectForexPair(classification); ok {
		result.Mode = models.ModeForex
		result.RoutingFlags.UsesForex = true
		result.ForexPair = pair
		r.prefetchForex(ctx, pair, result)
		return
	}

	if r.detectSeedMetric(classification, result) {
		return
	}

	if r.detectIndicator(ctx, classification, result) {
		return
	}

	result.Mode = models.ModeGeneral
}

// detectSeedMetric handles the housing-affordability route.
func (r *Router) detectSeedMetric(classification string, result *models.PreflightResult) bool {
	keys := detectLegoKeys(classification)
	if keys.Ticker != nil && keys.Ticker.Explicit {
		// An explicit $TICKER always wins over a city shorthand.
		return false
	}

	vetoed := geoVeto(classification, keys.Ticker)
	if !vetoed && !seedMetricPattern.MatchString(classification) {
		return false
	}

	cities := seedmetric.ExtractCities(classification)
	if len(cities) == 0 {
		return false
	}

	decade := seedmetric.ExtractDecade(classification)
	result.Mode = models.ModeSeedMetric
	result.RoutingFlags.IsSeedMetric = true
	result.RoutingFlags.GeoVetoApplied = vetoed
	result.SearchStrategy = models.SearchBrave
	result.SeedCities = cities
	result.SeedDecade = decade
	for _, city := range cities {
		result.SeedQueries = append(result.SeedQueries, seedmetric.QueriesForCity(city, decade)...)
	}
	return true
}

// detectIndicator runs the 2-of-3 lego detector, AI-push rescue, and market
// prefetch.
func (r *Router) detectIndicator(ctx context.Context, classification string, result *models.PreflightResult) bool {
	keys := detectLegoKeys(classification)

	// AI-push rescue: two non-ticker keys, no ticker found lexically.
	if keys.Ticker == nil && keys.Verb && keys.Adj && r.Proposer != nil {
		proposed, err := r.Proposer.ProposeTicker(ctx, classification)
		if err == nil {
			if clean, err := fetch.SanitizeTicker(strings.ToUpper(strings.TrimSpace(proposed))); err == nil {
				keys.Ticker = &TickerCandidate{Ticker: clean}
			}
		} else {
			r.Logger.Warn("ticker rescue failed", "error", err)
		}
	}

	if !keys.unlocked() || keys.Ticker == nil {
		return false
	}

	result.CustomPeriod = extractCustomPeriod(classification)
	result.RoutingFlags.UsesPsiEMA = true

	data := r.fetchMarket(ctx, keys.Ticker.Ticker)
	if data == nil || data.Daily.BarCount == 0 {
		// Fetch failed: clear the ticker and fall back to general routing.
		result.RoutingFlags.UsesPsiEMA = false
		return false
	}

	result.Mode = models.ModePsiEMA
	result.Ticker = keys.Ticker.Ticker
	result.TickerVerified = true
	result.MarketData = data
	result.StockContext = stockContext(keys.Ticker.Ticker, data)
	result.IndicatorAnalysis = r.analyze(keys.Ticker.Ticker, data, result.CustomPeriod)
	return true
}

func (r *Router) fetchMarket(ctx context.Context, ticker string) *models.MarketData {
	if r.Market == nil {
		return nil
	}
	data, err := r.Market.FetchMarketData(ctx, ticker)
	if err != nil {
		r.Logger.Warn("market fetch failed", "ticker", ticker, "error", err)
		return nil
	}
	return data
}

// analyze runs the indicator over the fetched closes; weekly is included
// when enough bars exist.
func (r *Router) analyze(ticker string, data *models.MarketData, period string) string {
	daily, err := psiema.Analyze(data.Daily.Closes, psiema.MinDailyBars)
	if err != nil {
		r.Logger.Warn("daily analysis failed", "ticker", ticker, "error", err)
		return ""
	}
	report := &psiema.Report{
		Ticker:   ticker,
		Name:     data.Name,
		Currency: data.Currency,
		Price:    data.CurrentPrice,
		EndDate:  data.EndDate,
		Period:   period,
		Daily:    daily,
	}
	if len(data.Weekly.Closes) >= psiema.MinWeeklyBars {
		if weekly, err := psiema.Analyze(data.Weekly.Closes, psiema.MinWeeklyBars); err == nil {
			report.Weekly = weekly
		}
	}
	return report.Render()
}

func (r *Router) prefetchForex(ctx context.Context, pair string, result *models.PreflightResult) {
	if r.Forex == nil {
		return
	}
	data, err := r.Forex.FetchRate(ctx, pair)
	if err != nil {
		r.Logger.Warn("forex fetch failed", "pair", pair, "error", err)
		return
	}
	result.ForexData = data
	if data.Rate != nil {
		result.ForexContext = fmt.Sprintf("Current %s exchange rate: %.4f (source: %s, %s)",
			data.Pair, *data.Rate, data.Source, data.Timestamp)
	}
}

// applyAttachmentOverrides runs after the mode decision.
func (r *Router) applyAttachmentOverrides(in Input, result *models.PreflightResult) {
	hasFinancial := in.DocContext != nil && in.DocContext.HasFinancialDoc
	hasLegal := in.DocContext != nil && in.DocContext.HasLegalDoc
	hasCode := in.DocContext != nil && in.DocContext.HasCodeDoc

	for _, att := range in.Attachments {
		lower := strings.ToLower(att.FileName)
		if strings.HasSuffix(lower, ".xls") || strings.HasSuffix(lower, ".xlsx") {
			hasFinancial = true
		}
		if legal.LooksLegal(att.FileName) {
			hasLegal = true
		}
		if looksLikeCode(att.FileName, att.ExtractedText) {
			hasCode = true
		}
	}
	if looksLikeCode("", in.Query) {
		hasCode = true
	}

	result.RoutingFlags.UsesFinancialPhysics = hasFinancial
	result.RoutingFlags.UsesLegalAnalysis = hasLegal
	if hasCode && (result.Mode == models.ModeGeneral || result.Mode == models.ModeForex) {
		result.Mode = models.ModeCodeAudit
		result.RoutingFlags.UsesCodeAudit = true
	}
}

// applyRealtimeIntent marks general queries needing fresh search data.
func (r *Router) applyRealtimeIntent(classification string, result *models.PreflightResult) {
	if result.Mode != models.ModeGeneral {
		return
	}
	if realtimePattern.MatchString(classification) {
		result.RoutingFlags.NeedsRealtimeSearch = true
		result.SearchStrategy = models.SearchDuckDuckGo
	}
}

var (
	assistantIdentityPattern = regexp.MustCompile(`(?i)\b(who|what)\s+(are|is)\s+(you|nyan)\b|\byour\s+name\b|\bare you (a|an)\s+(bot|ai|human|llm|model)\b`)

	designPattern = regexp.MustCompile(`(?i)\b(architecture|architectural|system design|design pattern|microservice|scalab\w*|trade-?offs?|event[- ]driven|message queue|load balanc\w*|api design|database schema)\b`)

	identityPattern = regexp.MustCompile(`(?i)\b(what|explain|describe|define)\b.{0,40}\b(psi[- ]?ema|ψ[- ]?ema)|\b(psi[- ]?ema|ψ[- ]?ema)\b.{0,20}\b(mean|work|indicator)\b`)

	forexPairPattern    = regexp.MustCompile(`\b([A-Za-z]{3})\s*/\s*([A-Za-z]{3})\b`)
	forexKeywordPattern = regexp.MustCompile(`(?i)\b(forex|exchange rate|currency pair|fx rate)\b`)

	seedMetricPattern = regexp.MustCompile(`(?i)\b(housing|afford\w*|property price|house price|home price|price per (square meter|sqm|m2)|cost of living|real estate price)\b`)

	realtimePattern = regexp.MustCompile(`(?i)\b(today|tonight|right now|currently|latest|breaking|live)\b|\b(news|weather|forecast|score|scores|game|match|election)\b|\bwhat time\b`)
)

var isoCurrencies = map[string]bool{
	"USD": true, "EUR": true, "JPY": true, "GBP": true, "CHF": true,
	"AUD": true, "CAD": true, "NZD": true, "CNY": true, "HKD": true,
	"SGD": true, "SEK": true, "NOK": true, "MXN": true, "INR": true,
	"IDR": true, "KRW": true, "TRY": true, "BRL": true, "ZAR": true,
	"MYR": true, "THB": true, "PLN": true, "DKK": true, "RUB": true,
}

// detectForexPair requires a slash pair of known ISO codes, or a forex
// keyword accompanied by any slash pair.
func detectForexPair(query string) (string, bool) {
	m := forexPairPattern.FindStringSubmatch(query)
	if m == nil {
		return "", false
	}
	base := strings.ToUpper(m[1])
	quote := strings.ToUpper(m[2])
	if isoCurrencies[base] && isoCurrencies[quote] {
		return base + "/" + quote, true
	}
	if forexKeywordPattern.MatchString(query) {
		return base + "/" + quote, true
	}
	return "", false
}

var codeExtensions = []string{
	".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".rb", ".rs",
	".c", ".h", ".cpp", ".cs", ".php", ".swift", ".kt", ".sql", ".sh",
}

var codeSignalPattern = regexp.MustCompile(`(?m)^\s*(func|def|class|import|package|const|var|let|public|private|#include)\b|=>|\{\s*$|;\s*$`)

// looksLikeCode applies the extension allowlist, then language heuristics
// needing at least two signal lines.
func looksLikeCode(fileName, text string) bool {
	lower := strings.ToLower(fileName)
	for _, ext := range codeExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	if text == "" {
		return false
	}
	return len(codeSignalPattern.FindAllString(text, 3)) >= 2
}

const designContext = `Answer as a systems architect: name the forces at play, give the
candidate approaches with their trade-offs, and state a concrete
recommendation with the conditions under which it changes.`

func stockContext(ticker string, data *models.MarketData) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticker %s", ticker)
	if data.Name != "" {
		fmt.Fprintf(&sb, " (%s)", data.Name)
	}
	if data.CurrentPrice != nil {
		fmt.Fprintf(&sb, ", last price %.2f %s", *data.CurrentPrice, data.Currency)
	}
	if data.EndDate != "" {
		fmt.Fprintf(&sb, ", data through %s", data.EndDate)
	}
	fmt.Fprintf(&sb, ", %d daily bars", data.Daily.BarCount)
	return sb.String()
}
