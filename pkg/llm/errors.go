// Package llm implements the provider chain: vendor HTTP adapters, ordered
// fallback, and the rate-limit-aware retry wrapper used by the reasoning and
// audit passes.
package llm

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for chain-level failures.
var (
	// ErrAllProvidersFailed is returned when every provider in the chain
	// failed for a single call.
	ErrAllProvidersFailed = errors.New("all providers failed")
	// ErrNoProviders is returned when the chain is empty.
	ErrNoProviders = errors.New("no providers configured")
	// ErrUnknownProvider is returned for a provider tag with no adapter.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ErrorKind distinguishes provider failure classes.
type ErrorKind string

// Provider error kinds.
const (
	KindRateLimit ErrorKind = "rate_limit"
	KindAuth      ErrorKind = "auth"
	KindTimeout   ErrorKind = "timeout"
	KindOther     ErrorKind = "other"
)

// ProviderError is a typed failure from a single adapter call.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	// RetryAfter is the server-requested backoff for rate limits; zero when
	// the Retry-After header was absent.
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s (%s): %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s (%s): status %d", e.Provider, e.Kind, e.StatusCode)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a provider rate-limit failure.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindRateLimit
}

// RetryAfterOf extracts the server-requested backoff, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.RetryAfter > 0 {
		return pe.RetryAfter, true
	}
	return 0, false
}
