// Package metrics holds the Prometheus instrumentation for provider usage
// and pipeline outcomes.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	ProviderCalls    *prometheus.CounterVec
	ProviderTokens   *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	ProviderRetries  *prometheus.CounterVec
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	SearchCalls      *prometheus.CounterVec

	mu    sync.Mutex
	usage UsageSnapshot
}

// UsageSnapshot is the JSON-friendly usage view served by the API.
type UsageSnapshot struct {
	TotalCalls     int64            `json:"total_calls"`
	TotalTokensIn  int64            `json:"total_tokens_in"`
	TotalTokensOut int64            `json:"total_tokens_out"`
	ByProvider     map[string]int64 `json:"by_provider"`
	ByBadge        map[string]int64 `json:"by_badge"`
}

// New creates and registers all metrics on a dedicated registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProviderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nyanclaw_provider_calls_total",
				Help: "LLM provider calls by provider and outcome",
			},
			[]string{"provider", "outcome"}, // outcome: ok, error, rate_limited
		),
		ProviderTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nyanclaw_provider_tokens_total",
				Help: "Token usage by provider and direction",
			},
			[]string{"provider", "direction"}, // direction: in, out
		),
		ProviderLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nyanclaw_provider_latency_seconds",
				Help:    "LLM provider call latency",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64, 120},
			},
			[]string{"provider"},
		),
		ProviderRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nyanclaw_provider_retries_total",
				Help: "Retries performed against rate-limited providers",
			},
			[]string{"provider"},
		),
		PipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nyanclaw_pipeline_runs_total",
				Help: "Pipeline runs by mode and badge",
			},
			[]string{"mode", "badge"},
		),
		PipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nyanclaw_pipeline_duration_seconds",
				Help:    "End-to-end pipeline run duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		SearchCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nyanclaw_search_calls_total",
				Help: "Search cascade calls by provider and outcome",
			},
			[]string{"provider", "outcome"}, // outcome: ok, empty, denied, error
		),
		usage: UsageSnapshot{
			ByProvider: make(map[string]int64),
			ByBadge:    make(map[string]int64),
		},
	}
}

// RecordProviderCall records one provider invocation.
func (m *Metrics) RecordProviderCall(provider, outcome string, latency time.Duration, tokensIn, tokensOut int) {
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(latency.Seconds())
	if tokensIn > 0 {
		m.ProviderTokens.WithLabelValues(provider, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		m.ProviderTokens.WithLabelValues(provider, "out").Add(float64(tokensOut))
	}

	m.mu.Lock()
	m.usage.TotalCalls++
	m.usage.TotalTokensIn += int64(tokensIn)
	m.usage.TotalTokensOut += int64(tokensOut)
	m.usage.ByProvider[provider]++
	m.mu.Unlock()
}

// RecordRetry counts one retry attempt against a provider.
func (m *Metrics) RecordRetry(provider string) {
	m.ProviderRetries.WithLabelValues(provider).Inc()
}

// RecordPipelineRun records a finished pipeline run.
func (m *Metrics) RecordPipelineRun(mode, badge string, duration time.Duration) {
	m.PipelineRuns.WithLabelValues(mode, badge).Inc()
	m.PipelineDuration.WithLabelValues(mode).Observe(duration.Seconds())

	m.mu.Lock()
	m.usage.ByBadge[badge]++
	m.mu.Unlock()
}

// RecordSearchCall counts one search provider call.
func (m *Metrics) RecordSearchCall(provider, outcome string) {
	m.SearchCalls.WithLabelValues(provider, outcome).Inc()
}

// Usage returns a copy of the usage snapshot.
func (m *Metrics) Usage() UsageSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := UsageSnapshot{
		TotalCalls:     m.usage.TotalCalls,
		TotalTokensIn:  m.usage.TotalTokensIn,
		TotalTokensOut: m.usage.TotalTokensOut,
		ByProvider:     make(map[string]int64, len(m.usage.ByProvider)),
		ByBadge:        make(map[string]int64, len(m.usage.ByBadge)),
	}
	for k, v := range m.usage.ByProvider {
		snap.ByProvider[k] = v
	}
	for k, v := range m.usage.ByBadge {
		snap.ByBadge[k] = v
	}
	return snap
}
