package models

// Mode is the pipeline routing mode chosen by the preflight router.
type Mode string

// Routing modes, in rough priority order of detection.
const (
	ModeGeneral        Mode = "general"
	ModePsiEMA         Mode = "psi-ema"
	ModePsiEMAIdentity Mode = "psi-ema-identity"
	ModeSeedMetric     Mode = "seed-metric"
	ModeForex          Mode = "forex"
	ModeCodeAudit      Mode = "code-audit"
	ModeDesign         Mode = "design"
	ModeLegal          Mode = "legal"
	ModeFinancial      Mode = "financial"
	ModeIdentity       Mode = "identity"
)

// SearchStrategy selects the search cascade used for a query.
type SearchStrategy string

// Search strategies.
const (
	SearchNone       SearchStrategy = "none"
	SearchDuckDuckGo SearchStrategy = "duckduckgo"
	SearchBrave      SearchStrategy = "brave"
)

// RoutingFlags carries the boolean routing decisions made during preflight.
type RoutingFlags struct {
	UsesPsiEMA          bool `json:"uses_psi_ema"`
	IsPsiEMAIdentity    bool `json:"is_psi_ema_identity"`
	IsSeedMetric        bool `json:"is_seed_metric"`
	UsesFinancialPhysics bool `json:"uses_financial_physics"`
	UsesLegalAnalysis   bool `json:"uses_legal_analysis"`
	UsesForex           bool `json:"uses_forex"`
	UsesCodeAudit       bool `json:"uses_code_audit"`
	NeedsRealtimeSearch bool `json:"needs_realtime_search"`
	HasAttachments      bool `json:"has_attachments"`
	HasDocContext       bool `json:"has_doc_context"`
	IsBlob              bool `json:"is_blob"`
	GeoVetoApplied      bool `json:"geo_veto_applied"`
	IsDesignQuestion    bool `json:"is_design_question"`
}

// MarketData is the sanitized market fetch result consumed by the indicator
// analyzer and the reasoning stage.
type MarketData struct {
	Currency     string        `json:"currency"`
	Name         string        `json:"name"`
	CurrentPrice *float64      `json:"current_price"`
	EndDate      string        `json:"end_date"`
	Daily        BarSeries     `json:"daily"`
	Weekly       BarSeries     `json:"weekly"`
	Fundamentals map[string]any `json:"fundamentals,omitempty"`
}

// BarSeries holds one timeframe's close prices.
type BarSeries struct {
	Closes            []float64 `json:"closes"`
	BarCount          int       `json:"bar_count"`
	UnavailableReason string    `json:"unavailable_reason,omitempty"`
}

// ForexData is the parsed forex fetch result.
type ForexData struct {
	Pair      string         `json:"pair"`
	Rate      *float64       `json:"rate"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// PreflightResult is the routing decision emitted by the preflight router and
// recorded as the S0 artifact.
type PreflightResult struct {
	Mode   Mode   `json:"mode"`
	Ticker string `json:"ticker,omitempty"`

	MarketData        *MarketData `json:"market_data,omitempty"`
	IndicatorAnalysis string      `json:"indicator_analysis,omitempty"`
	DataAge           string      `json:"data_age,omitempty"`
	StockContext      string      `json:"stock_context,omitempty"`

	ForexPair    string     `json:"forex_pair,omitempty"`
	ForexData    *ForexData `json:"forex_data,omitempty"`
	ForexContext string     `json:"forex_context,omitempty"`

	CodeContext string   `json:"code_context,omitempty"`
	CodeTopics  []string `json:"code_topics,omitempty"`

	// Seed-metric routing payload: cities, decade, and the queries the
	// orchestrator should fan out to the search cascade.
	SeedCities    []string `json:"seed_cities,omitempty"`
	SeedDecade    string   `json:"seed_decade,omitempty"`
	SeedQueries   []string `json:"seed_queries,omitempty"`
	CustomPeriod  string   `json:"custom_period,omitempty"`
	TickerVerified bool    `json:"ticker_verified,omitempty"`

	SearchStrategy SearchStrategy `json:"search_strategy"`
	RoutingFlags   RoutingFlags   `json:"routing_flags"`
	Error          string         `json:"error,omitempty"`
}
