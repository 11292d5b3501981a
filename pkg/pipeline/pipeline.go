// Package pipeline implements the eight-stage orchestrator: context
// extraction, preflight routing, context build, reasoning, audit, the
// single retry loop, personality normalization, and output shaping.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/extraction"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/fetch"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/llm"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/memory"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/metrics"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/preflight"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/seeds/chemistry"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/seeds/finphysics"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/seeds/psiema"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/seeds/seedmetric"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/store"
)

// Reasoning-call parameters.
const (
	reasoningTemperature = 0.15
	reasoningMaxTokens   = 1500
	maxRetries           = 1
	maxVisionImages      = 5
	attachmentCharBudget = 100_000
)

// apiFailureFallback is the fixed user-visible text when the provider chain
// is exhausted.
const apiFailureFallback = "All reasoning providers are unavailable right now. Nothing was fabricated in their place; try again shortly."

// LLMCaller is the provider-chain surface the pipeline consumes.
type LLMCaller interface {
	CallWithRetry(ctx context.Context, req llm.Request, opts llm.CallOptions) (*llm.Response, error)
}

// Preflighter routes a query; satisfied by preflight.Router.
type Preflighter interface {
	Route(ctx context.Context, in preflight.Input) *models.PreflightResult
}

// Searcher is the cascade surface used for realtime search, seed-metric
// fan-out, and the retry stage.
type Searcher interface {
	BestEffort(ctx context.Context, query, clientID string) (*fetch.SearchResult, error)
	FanOut(ctx context.Context, queries []string, clientID string) ([]fetch.LabeledBlock, error)
}

// VisionResult is one image pre-analysis outcome.
type VisionResult struct {
	Category    string // chemical | chart | diagram | visual
	Description string
	Formula     string
	Name        string
}

// VisionAnalyzer runs a vision-capable model over one image.
type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, data []byte, fileName string) (*VisionResult, error)
}

// CompoundIdentifier resolves a vision formula; satisfied by
// chemistry.Cascade.
type CompoundIdentifier interface {
	Identify(ctx context.Context, formula, visionName string) (*chemistry.Compound, error)
}

// Pipeline wires the stage collaborators. Optional collaborators may be
// nil; the corresponding enrichment is skipped.
type Pipeline struct {
	llm       LLMCaller
	router    Preflighter
	memory    *memory.Manager
	packages  *store.TenantPackageStore
	extract   *extraction.Service
	search    Searcher
	vision    VisionAnalyzer
	compounds CompoundIdentifier
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// Protocol texts injected into the system context.
	Protocol           string
	ProtocolCompressed string

	// OnStatus, when set, receives coarse stage transitions for streaming.
	OnStatus func(stage string)
}

// Options carries the optional collaborators for New.
type Options struct {
	Search    Searcher
	Vision    VisionAnalyzer
	Compounds CompoundIdentifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// New builds a pipeline. llmCaller, router, mem, and packages are required.
func New(llmCaller LLMCaller, router Preflighter, mem *memory.Manager, packages *store.TenantPackageStore, extract *extraction.Service, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		llm:       llmCaller,
		router:    router,
		memory:    mem,
		packages:  packages,
		extract:   extract,
		search:    opts.Search,
		vision:    opts.Vision,
		compounds: opts.Compounds,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// WithStatus returns a shallow copy whose runs report stage transitions to
// fn. Collaborators are shared; only the callback differs, so concurrent
// streaming runs do not race on OnStatus.
func (p *Pipeline) WithStatus(fn func(stage string)) *Pipeline {
	clone := *p
	clone.OnStatus = fn
	return &clone
}

// state is the per-run mutable pipeline state; each run owns its own.
type state struct {
	input models.PipelineInput
	pkg   *models.DataPackage
	pre   *models.PreflightResult
	ts    time.Time

	retryCount int
	passCount  int

	attachmentText    string
	attachmentRecords []models.AttachmentRecord
	hasAttachments    bool
	hasImages         bool
	compoundHeader    string
	contextResult     string
	isFirstQuery      bool
	systemMessages    []string

	searchContext string
	didSearch     bool
	seedMetrics   []seedmetric.CityMetrics

	draft  string
	direct bool
	audit  *models.AuditResult
	final  string

	tokensIn  int
	tokensOut int
}

func (st *state) addTokens(resp *llm.Response) {
	if resp != nil {
		st.tokensIn += resp.TokensIn
		st.tokensOut += resp.TokensOut
	}
}

func (st *state) tenantID() string {
	return tenantOf(st.input)
}

// Run executes the full stage sequence for one input and returns the
// response envelope. Run never panics across stages; provider exhaustion
// degrades to an unavailable-badged response.
func (p *Pipeline) Run(ctx context.Context, in models.PipelineInput) (*models.PipelineResult, error) {
	start := time.Now()
	st := &state{
		input: in,
		pkg:   models.NewDataPackage(tenantOf(in)),
		ts:    start,
	}

	p.stageContextExtract(ctx, st)
	fastPath := p.stagePreflight(ctx, st)
	if !fastPath {
		p.stageContextBuild(st)
		p.runReasoningLoop(ctx, st)
	}
	p.stagePersonality(st)
	result := p.stageOutput(st)

	p.recordRun(st, result, time.Since(start))
	return result, nil
}

// runReasoningLoop is S2→S3 with the single S4 loop-back.
func (p *Pipeline) runReasoningLoop(ctx context.Context, st *state) {
	for {
		p.stageReasoning(ctx, st)
		p.stageAudit(ctx, st)
		if !p.stageRetry(ctx, st) {
			return
		}
	}
}

// tenantOf prefers the caller-derived tenant key; direct callers without one
// get a key hashed from the session id so the store never sees a raw
// identifier.
func tenantOf(in models.PipelineInput) string {
	if in.TenantID != "" {
		return in.TenantID
	}
	return store.DeriveTenantKey(in.SessionID, "", "")
}

func (p *Pipeline) status(stage string) {
	if p.OnStatus != nil {
		p.OnStatus(stage)
	}
}

// stageContextExtract is S-1: attachment ingest, image pre-analysis with
// the chemistry gate, and context summarization.
func (p *Pipeline) stageContextExtract(ctx context.Context, st *state) {
	p.status("context-extract")

	var attachments []string
	for _, doc := range st.input.Documents {
		record := p.ingestAttachment(ctx, st, doc)
		if record != nil {
			st.attachmentRecords = append(st.attachmentRecords, *record)
			attachments = append(attachments, fmt.Sprintf("=== %s ===\n%s", record.FileName, record.ExtractedText))
		}
	}
	st.attachmentText = boundJoin(attachments, attachmentCharBudget)
	st.hasAttachments = len(st.input.Documents) > 0 || len(st.input.Photos) > 0
	st.hasImages = len(st.input.Photos) > 0

	visionResults := p.analyzeImages(ctx, st)
	p.enrichChemistry(ctx, st, visionResults)

	if p.memory != nil && st.input.SessionID != "" {
		st.isFirstQuery = p.memory.IsFirstQuery(st.input.SessionID)
		p.memory.AddMessage(st.input.SessionID, models.RoleUser, st.input.Query, nil)
	} else {
		st.isFirstQuery = true
	}

	st.contextResult = buildContextResult(st)
	_ = st.pkg.WriteStage(models.StageContextExtract, map[string]any{
		"attachment_count": len(st.input.Documents),
		"photo_count":      len(st.input.Photos),
		"compound_header":  st.compoundHeader,
		"context_result":   st.contextResult,
		"first_query":      st.isFirstQuery,
	})
}

func (p *Pipeline) ingestAttachment(ctx context.Context, st *state, doc models.Attachment) *models.AttachmentRecord {
	if p.extract == nil {
		return nil
	}
	result, err := p.extract.Extract(ctx, doc.Data, doc.FileType, doc.FileName, st.tenantID())
	if err != nil || result == nil || !result.Success {
		p.logger.Warn("attachment extraction failed", "file", doc.FileName, "error", err)
		return nil
	}
	record := &models.AttachmentRecord{
		FileName:      doc.FileName,
		FileType:      result.FileType,
		ExtractedText: result.ExtractedData.Text,
		ToolsUsed:     result.ToolsUsed,
		Timestamp:     time.Now(),
	}
	if p.memory != nil && st.input.SessionID != "" {
		p.memory.AddMessage(st.input.SessionID, models.RoleUser,
			"[uploaded "+doc.FileName+"]", record)
	}
	return record
}

// analyzeImages runs vision pre-analysis over at most five photos.
func (p *Pipeline) analyzeImages(ctx context.Context, st *state) []*VisionResult {
	if p.vision == nil {
		return nil
	}
	photos := st.input.Photos
	if len(photos) > maxVisionImages {
		photos = photos[:maxVisionImages]
	}
	results := make([]*VisionResult, len(photos))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxVisionImages)
	for i, photo := range photos {
		g.Go(func() error {
			result, err := p.vision.AnalyzeImage(gCtx, photo.Data, photo.FileName)
			if err != nil {
				p.logger.Warn("image pre-analysis failed", "file", photo.FileName, "error", err)
				return nil
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// enrichChemistry applies the scholastic gate and the identification
// cascade; non-chemistry images fall through to vision-search enrichment.
func (p *Pipeline) enrichChemistry(ctx context.Context, st *state, results []*VisionResult) {
	var chemical []*VisionResult
	var descriptions []string
	for _, r := range results {
		descriptions = append(descriptions, r.Description)
		if r.Category == "chemical" {
			chemical = append(chemical, r)
		}
	}

	identified := false
	if len(chemical) > 0 && chemistry.GateAllowsChemistry(strings.Join(descriptions, " ")) && p.compounds != nil {
		for _, r := range chemical {
			compound, err := p.compounds.Identify(ctx, r.Formula, r.Name)
			if err != nil || compound == nil {
				continue
			}
			identified = true
			if chemistry.HeaderEligible(compound) && st.compoundHeader == "" {
				st.compoundHeader = chemistry.Header(compound)
			}
			if compound.Extract != "" {
				st.searchContext = appendBlock(st.searchContext, compound.Extract)
			}
		}
	}

	// Vision-search enrichment for non-chemistry or failed-chemistry images.
	if len(results) > 0 && !identified && p.search != nil {
		terms := meaningfulTerms(descriptions, 8)
		if len(terms) >= 2 {
			if hit, err := p.search.BestEffort(ctx, strings.Join(terms, " "), st.tenantID()); err == nil && hit != nil {
				st.searchContext = appendBlock(st.searchContext, hit.Text)
				st.didSearch = true
			}
		}
	}
}

// stagePreflight is S0. Returns true when the no-data fast path applies and
// the run should jump straight to finalization.
func (p *Pipeline) stagePreflight(ctx context.Context, st *state) bool {
	p.status("preflight")

	if st.input.PreComputedPreflight != nil {
		st.pre = st.input.PreComputedPreflight
	} else if p.router != nil {
		st.pre = p.router.Route(ctx, preflight.Input{
			Query:         st.input.Query,
			Attachments:   st.attachmentRecords,
			DocContext:    st.input.DocContext,
			ContextResult: st.contextResult,
			ClientID:      st.tenantID(),
		})
	} else {
		st.pre = &models.PreflightResult{Mode: models.ModeGeneral, SearchStrategy: models.SearchNone}
	}

	p.runRoutedSearches(ctx, st)

	_ = st.pkg.WriteStage(models.StagePreflight, map[string]any{
		"mode":            string(st.pre.Mode),
		"ticker":          st.pre.Ticker,
		"search_strategy": string(st.pre.SearchStrategy),
		"did_search":      st.didSearch,
	})

	// Fast path: an indicator request whose market fetch yielded nothing.
	if st.pre.Mode == models.ModePsiEMA && (st.pre.Ticker == "" || st.pre.MarketData == nil) {
		st.final = psiema.NoDataTemplate(st.pre.Ticker)
		st.audit = &models.AuditResult{Verdict: models.VerdictBypass, Confidence: 95}
		return true
	}
	return false
}

// runRoutedSearches issues the cascade work the routing decision calls for.
func (p *Pipeline) runRoutedSearches(ctx context.Context, st *state) {
	if p.search == nil {
		return
	}

	switch {
	case st.pre.Mode == models.ModeSeedMetric && len(st.pre.SeedQueries) > 0:
		blocks, err := p.search.FanOut(ctx, st.pre.SeedQueries, st.tenantID())
		if err != nil {
			p.logger.Warn("seed-metric fan-out interrupted", "error", err)
		}
		if len(blocks) == 0 {
			// Degrade rather than fail: no data means a general answer.
			st.pre.Mode = models.ModeGeneral
			st.pre.RoutingFlags.IsSeedMetric = false
			return
		}
		st.searchContext = appendBlock(st.searchContext, fetch.FormatBlocks(blocks))
		st.didSearch = true
		st.seedMetrics = parseSeedMetrics(st.pre.SeedCities, blocks)

	case st.pre.RoutingFlags.NeedsRealtimeSearch:
		hit, err := p.search.BestEffort(ctx, st.input.Query, st.tenantID())
		if err == nil && hit != nil {
			st.searchContext = appendBlock(st.searchContext, hit.Text)
			st.didSearch = true
		}
	}
}

// stageContextBuild is S1: assemble system messages.
func (p *Pipeline) stageContextBuild(st *state) {
	p.status("context-build")

	st.systemMessages = preflight.BuildSystemContext(st.pre, preflight.ContextOptions{
		IsFirstQuery:       st.isFirstQuery,
		BaseProtocol:       p.Protocol,
		CompressedProtocol: p.ProtocolCompressed,
		Now:                st.ts,
	})

	// Financial-physics routing classifies attachment rows and injects the
	// report so the reasoning pass sees the identity check, not raw rows.
	finRows := 0
	if st.pre.RoutingFlags.UsesFinancialPhysics && st.attachmentText != "" {
		report := finphysics.Classify(strings.Split(st.attachmentText, "\n"))
		if report.Summary.Total > 0 {
			st.systemMessages = append(st.systemMessages, report.Describe())
			finRows = report.Summary.Total
		}
	}

	nyanMode := "compressed"
	if st.isFirstQuery {
		nyanMode = "full"
	}
	_ = st.pkg.WriteStage(models.StageContextBuild, map[string]any{
		"temporal_timestamp":     st.ts.UTC().Format(time.RFC3339),
		"nyan_mode":              nyanMode,
		"system_message_count":   len(st.systemMessages),
		"financial_physics_rows": finRows,
	})
}

// stageReasoning is S2: prompt assembly, direct-output short-circuits, and
// the reasoning call.
func (p *Pipeline) stageReasoning(ctx context.Context, st *state) {
	p.status("reasoning")
	st.passCount++

	// Direct-output short-circuits skip the LLM entirely.
	if st.pre.Mode == models.ModePsiEMA && st.pre.IndicatorAnalysis != "" {
		st.draft = st.pre.IndicatorAnalysis
		st.direct = true
	} else if st.pre.Mode == models.ModeSeedMetric && len(st.seedMetrics) > 0 && len(st.seedMetrics) >= len(st.pre.SeedCities) {
		st.draft = seedmetric.RenderTable(st.seedMetrics)
		st.direct = true
	}
	if st.direct {
		_ = st.pkg.WriteStage(models.StageReasoning, map[string]any{
			"direct_output": true,
			"pass":          st.passCount,
		})
		return
	}

	temperature := reasoningTemperature
	if st.input.Temperature != nil {
		temperature = *st.input.Temperature
	}

	resp, err := p.llm.CallWithRetry(ctx, llm.Request{
		Prompt:      p.buildUserPrompt(st),
		System:      strings.Join(st.systemMessages, "\n\n"),
		Temperature: temperature,
		MaxTokens:   reasoningMaxTokens,
	}, llm.CallOptions{Provider: st.input.Provider, Chain: st.input.Chain})
	if err != nil {
		p.logger.Error("reasoning providers exhausted", "error", err)
		st.draft = apiFailureFallback
		st.audit = &models.AuditResult{Verdict: models.VerdictAPIFailure, Confidence: 0, Reason: "provider exhausted"}
		_ = st.pkg.WriteStage(models.StageReasoning, map[string]any{
			"provider_exhausted": true,
			"pass":               st.passCount,
		})
		return
	}
	st.addTokens(resp)
	st.draft = strings.TrimSpace(resp.Text)
	_ = st.pkg.WriteStage(models.StageReasoning, map[string]any{
		"draft_chars": len(st.draft),
		"pass":        st.passCount,
	})
}

// buildUserPrompt assembles the S2 prompt in priority order: memory,
// attachments, search context, query, mode appendix.
func (p *Pipeline) buildUserPrompt(st *state) string {
	var sb strings.Builder

	if p.memory != nil && st.input.SessionID != "" {
		if prefix := p.memory.BuildMemoryPrompt(st.input.SessionID, st.input.Query); prefix != "" {
			sb.WriteString(prefix)
		}
	}
	if st.attachmentText != "" {
		sb.WriteString("PRIMARY SOURCES (uploaded documents):\n")
		sb.WriteString(st.attachmentText)
		sb.WriteString("\n\n")
	}
	if st.searchContext != "" {
		sb.WriteString("SEARCH CONTEXT (secondary):\n")
		sb.WriteString(st.searchContext)
		sb.WriteString("\n\n")
	}
	sb.WriteString(st.input.Query)

	switch st.pre.Mode {
	case models.ModePsiEMA:
		sb.WriteString("\n\nPresent the attached indicator diagnostic without altering any number.")
	case models.ModeSeedMetric:
		sb.WriteString("\n\nAnswer with the affordability Markdown table only; every figure must come from the search context.")
	case models.ModeCodeAudit:
		sb.WriteString("\n\nThis is a code audit. Identify defects, risks, and concrete fixes, citing the relevant lines.")
	}
	return sb.String()
}

// stageAudit is S3. Writes markers only; corrections are applied by S5 from
// the audit result, never back into prior stages.
func (p *Pipeline) stageAudit(ctx context.Context, st *state) {
	p.status("audit")

	if st.audit != nil && st.audit.Verdict == models.VerdictAPIFailure {
		_ = st.pkg.WriteStage(models.StageAudit, map[string]any{"verdict": string(models.VerdictAPIFailure)})
		return
	}

	if st.pre.Mode == models.ModeIdentity || st.direct {
		st.audit = &models.AuditResult{Verdict: models.VerdictBypass, Confidence: 95}
		_ = st.pkg.WriteStage(models.StageAudit, map[string]any{
			"verdict":    string(models.VerdictBypass),
			"confidence": 95,
		})
		return
	}

	if st.pre.Mode == models.ModeSeedMetric {
		p.validateSeedMetricFormat(ctx, st)
	}

	st.audit = p.runAudit(ctx, st)
	_ = st.pkg.WriteStage(models.StageAudit, map[string]any{
		"verdict":    string(st.audit.Verdict),
		"confidence": st.audit.Confidence,
		"audit_mode": st.audit.Mode,
		"has_fix":    st.audit.FixedAnswer != "",
	})
}

// retrySkipModes never re-enter reasoning after a rejection.
var retrySkipModes = map[models.Mode]bool{
	models.ModePsiEMA:         true,
	models.ModePsiEMAIdentity: true,
	models.ModeDesign:         true,
	models.ModeCodeAudit:      true,
}

// stageRetry is S4. Returns true when the loop should re-enter S2.
func (p *Pipeline) stageRetry(ctx context.Context, st *state) bool {
	if st.audit == nil || st.audit.Verdict != models.VerdictRejected {
		return false
	}
	if st.retryCount >= maxRetries || retrySkipModes[st.pre.Mode] || st.hasImages {
		return false
	}
	p.status("retry")
	st.retryCount++

	refined := p.extractCoreQuestion(ctx, st)
	if p.search != nil {
		if hit, err := p.search.BestEffort(ctx, refined, st.tenantID()); err == nil && hit != nil {
			st.searchContext = appendBlock(st.searchContext, hit.Text)
			st.didSearch = true
		}
	}
	_ = st.pkg.WriteStage(models.StageRetry, map[string]any{
		"refined_query": refined,
		"did_search":    st.didSearch,
	})
	return true
}

// extractCoreQuestion asks the chain for the search-ready core of the
// query; on failure the original query is used unchanged.
func (p *Pipeline) extractCoreQuestion(ctx context.Context, st *state) string {
	resp, err := p.llm.CallWithRetry(ctx, llm.Request{
		Prompt:      "Extract the single core factual question from this text as one short search query, nothing else:\n\n" + st.input.Query,
		Temperature: 0.1,
		MaxTokens:   60,
	}, llm.CallOptions{Provider: st.input.Provider, Chain: st.input.Chain})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		return st.input.Query
	}
	st.addTokens(resp)
	return strings.TrimSpace(resp.Text)
}

// stagePersonality is S5: fluff normalization and the signature, then
// package finalization and the tenant-store append.
func (p *Pipeline) stagePersonality(st *state) {
	p.status("personality")

	if st.final == "" {
		base := st.draft
		if st.audit != nil && st.audit.FixedAnswer != "" {
			base = st.audit.FixedAnswer
		}
		st.final = ApplyPersonality(base, st.pre.Mode, st.compoundHeader, st.ts)
	} else {
		st.final = ApplyPersonality(st.final, st.pre.Mode, st.compoundHeader, st.ts)
	}

	_ = st.pkg.WriteStage(models.StagePersonality, map[string]any{
		"final_chars": len(st.final),
		"used_fix":    st.audit != nil && st.audit.FixedAnswer != "",
	})
	st.pkg.FinalAnswer = st.final
	_ = st.pkg.WriteStage(models.StageOutput, map[string]any{
		"badge":         string(badgeOf(st)),
		"output_length": len(st.final),
	})
	st.pkg.Finalize()

	if p.packages != nil {
		if err := p.packages.StorePackage(st.pkg.TenantID, st.pkg); err != nil {
			p.logger.Warn("package store failed", "tenant", st.pkg.TenantID, "error", err)
		}
	}

	if p.memory != nil && st.input.SessionID != "" {
		p.memory.AddMessage(st.input.SessionID, models.RoleAssistant, st.final, nil)
	}
}

func badgeOf(st *state) models.Badge {
	if st.audit == nil {
		return models.BadgeUnverified
	}
	return models.BadgeForVerdict(st.audit.Verdict)
}

// stageOutput is S6: the response envelope.
func (p *Pipeline) stageOutput(st *state) *models.PipelineResult {
	p.status("output")

	summary := st.pkg.Summarize()
	badge := badgeOf(st)
	return &models.PipelineResult{
		Success:            badge != models.BadgeUnavailable,
		Answer:             st.final,
		Mode:               st.pre.Mode,
		Preflight:          st.pre,
		AuditResult:        st.audit,
		Badge:              badge,
		DidSearch:          st.didSearch,
		RetryCount:         st.retryCount,
		PassCount:          st.passCount,
		DataPackageID:      st.pkg.ID,
		DataPackageSummary: &summary,
		TokensIn:           st.tokensIn,
		TokensOut:          st.tokensOut,
	}
}

func (p *Pipeline) recordRun(st *state, result *models.PipelineResult, elapsed time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordPipelineRun(string(st.pre.Mode), string(result.Badge), elapsed)
	}
	if p.memory != nil && st.input.SessionID != "" && p.memory.ShouldSummarize(st.input.SessionID) {
		go p.memory.GenerateSummary(context.Background(), st.input.SessionID)
	}
}

// parseSeedMetrics pairs fan-out blocks back to cities. Each city owns four
// consecutive queries: current price, current income, historical price,
// historical income; the current pair feeds the table.
func parseSeedMetrics(cities []string, blocks []fetch.LabeledBlock) []seedmetric.CityMetrics {
	var out []seedmetric.CityMetrics
	for _, city := range cities {
		var price, income float64
		// Blocks arrive in fan-out order: the current price and income
		// queries precede the historical pair, and first-wins keeps the
		// current figures in the table.
		for _, b := range blocks {
			if !strings.Contains(b.Query, city) {
				continue
			}
			if l, i, err := seedmetric.ParseLandIncome(b.Text); err == nil {
				price, income = l, i
				break
			}
			value, err := seedmetric.ParseSnippetNumber(b.Text)
			if err != nil {
				continue
			}
			if strings.Contains(b.Query, "income") {
				if income == 0 {
					income = value
				}
			} else if price == 0 {
				price = value
			}
		}
		if price > 0 && income > 0 {
			out = append(out, seedmetric.Compute(city, price, income))
		}
	}
	return out
}

// buildContextResult summarizes the conversational situation for S-1.
func buildContextResult(st *state) string {
	var parts []string
	if st.hasAttachments {
		parts = append(parts, fmt.Sprintf("%d attachment(s)", len(st.input.Documents)+len(st.input.Photos)))
	}
	if len(st.input.History) > 0 {
		parts = append(parts, fmt.Sprintf("%d prior turns", len(st.input.History)))
	}
	if st.compoundHeader != "" {
		parts = append(parts, "compound identified")
	}
	if len(parts) == 0 {
		return "fresh query, no attachments"
	}
	return strings.Join(parts, ", ")
}

// meaningfulTerms picks up to max informative words from descriptions.
func meaningfulTerms(descriptions []string, max int) []string {
	stop := map[string]bool{
		"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
		"with": true, "and": true, "or": true, "is": true, "are": true,
		"this": true, "that": true, "image": true, "picture": true, "photo": true,
		"shows": true, "showing": true, "appears": true, "contains": true,
	}
	var out []string
	seen := make(map[string]bool)
	for _, desc := range descriptions {
		for _, word := range strings.Fields(strings.ToLower(desc)) {
			word = strings.Trim(word, ".,;:!?()\"'")
			if len(word) < 3 || stop[word] || seen[word] {
				continue
			}
			seen[word] = true
			out = append(out, word)
			if len(out) >= max {
				return out
			}
		}
	}
	return out
}

func appendBlock(existing, block string) string {
	block = strings.TrimSpace(block)
	if block == "" {
		return existing
	}
	if existing == "" {
		return block
	}
	return existing + "\n\n" + block
}

func boundJoin(parts []string, budget int) string {
	joined := strings.Join(parts, "\n\n")
	if len(joined) <= budget {
		return joined
	}
	// Back off to a rune boundary so the cut never leaves a partial
	// multibyte character behind.
	cut := budget
	for cut > 0 && !utf8.RuneStart(joined[cut]) {
		cut--
	}
	return joined[:cut]
}
