package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/metrics"
)

// CallOptions tunes one chain call.
type CallOptions struct {
	// Provider forces a single-provider dispatch when set.
	Provider string
	// Chain overrides the dynamic chain for this call only.
	Chain []string
}

// Chain is the ordered LLM provider chain with fallback. The active order is
// replaced atomically by SetDynamicChain; each call works on the snapshot
// taken at call time.
type Chain struct {
	adapters map[string]Adapter
	order    atomic.Pointer[[]string]
	metrics  *metrics.Metrics
}

// NewChain builds a chain over the given adapters in the given order.
// Metrics may be nil.
func NewChain(order []string, adapters []Adapter, m *metrics.Metrics) *Chain {
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	c := &Chain{adapters: byName, metrics: m}
	c.SetDynamicChain(order)
	return c
}

// DiscoverChain probes the environment for provider credentials and a local
// model server, returning the discovered adapter order. The env var names
// are informative, not normative; they match the adapter vendors.
func DiscoverChain(m *metrics.Metrics) *Chain {
	var order []string
	var adapters []Adapter

	if key := os.Getenv("MINIMAX_API_KEY"); key != "" {
		order = append(order, ProviderMinimax)
		adapters = append(adapters, NewMinimaxAdapter(key))
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		order = append(order, ProviderGroq)
		adapters = append(adapters, NewGroqAdapter(key))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		order = append(order, ProviderClaude)
		adapters = append(adapters, NewClaudeAdapter(key))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		order = append(order, ProviderOpenAI)
		adapters = append(adapters, NewOpenAIAdapter(key))
	}

	ollamaURL := os.Getenv("OLLAMA_URL")
	if probeOllama(ollamaURL) {
		order = append(order, ProviderOllama)
		adapters = append(adapters, NewOllamaAdapter(ollamaURL))
	}

	slog.Info("Provider chain discovered", "order", order)
	return NewChain(order, adapters, m)
}

// probeOllama checks local model server reachability with a short deadline.
func probeOllama(baseURL string) bool {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SetDynamicChain atomically replaces the provider order. Live updates take
// effect for subsequent calls only.
func (c *Chain) SetDynamicChain(order []string) {
	snapshot := make([]string, len(order))
	copy(snapshot, order)
	c.order.Store(&snapshot)
}

// Order returns a copy of the current provider order.
func (c *Chain) Order() []string {
	current := c.order.Load()
	if current == nil {
		return nil
	}
	out := make([]string, len(*current))
	copy(out, *current)
	return out
}

// Empty reports whether the chain has no providers.
func (c *Chain) Empty() bool {
	return len(c.Order()) == 0
}

// Call dispatches the request. With opts.Provider set it dispatches once;
// otherwise it iterates the chain snapshot, logging and continuing past
// failed providers, and fails with ErrAllProvidersFailed at exhaustion.
func (c *Chain) Call(ctx context.Context, req Request, opts CallOptions) (*Response, error) {
	if opts.Provider != "" {
		adapter, ok := c.adapters[opts.Provider]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, opts.Provider)
		}
		return c.invoke(ctx, adapter, req)
	}

	order := opts.Chain
	if order == nil {
		order = c.Order()
	}
	if len(order) == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error
	for _, tag := range order {
		adapter, ok := c.adapters[tag]
		if !ok {
			slog.Warn("Skipping unknown provider in chain", "provider", tag)
			continue
		}
		resp, err := c.invoke(ctx, adapter, req)
		if err != nil {
			slog.Warn("Provider call failed, trying next",
				"provider", tag, "error", err)
			lastErr = err
			continue
		}
		return resp, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: last error: %v", ErrAllProvidersFailed, lastErr)
	}
	return nil, ErrNoProviders
}

// invoke runs one adapter call with metrics recording.
func (c *Chain) invoke(ctx context.Context, adapter Adapter, req Request) (*Response, error) {
	start := time.Now()
	resp, err := adapter.Call(ctx, req)
	if c.metrics != nil {
		outcome := "ok"
		switch {
		case IsRateLimited(err):
			outcome = "rate_limited"
		case err != nil:
			outcome = "error"
		}
		var tokensIn, tokensOut int
		if resp != nil {
			tokensIn, tokensOut = resp.TokensIn, resp.TokensOut
		}
		c.metrics.RecordProviderCall(adapter.Name(), outcome, time.Since(start), tokensIn, tokensOut)
	}
	return resp, err
}
