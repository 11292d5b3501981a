package llm

import (
	"context"
	"log/slog"
	"time"
)

// Retry policy for rate-limited providers on the primary reasoning/audit path.
const (
	maxRateLimitRetries = 3
	baseBackoff         = time.Second
	maxBackoff          = 8 * time.Second
)

// CallWithRetry wraps Call for the primary reasoning/audit path. HTTP 429
// responses honor the Retry-After header when present, otherwise back off
// exponentially (min(1s·2^attempt, 8s)) for up to three retries per
// provider step. All other errors propagate to the chain fallback without
// retrying.
func (c *Chain) CallWithRetry(ctx context.Context, req Request, opts CallOptions) (*Response, error) {
	order := opts.Chain
	if opts.Provider != "" {
		order = []string{opts.Provider}
	} else if order == nil {
		order = c.Order()
	}
	if len(order) == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error
	for _, tag := range order {
		resp, err := c.callProviderWithRetry(ctx, tag, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return resp, nil
	}
	if opts.Provider != "" {
		return nil, lastErr
	}
	return nil, ErrAllProvidersFailed
}

func (c *Chain) callProviderWithRetry(ctx context.Context, tag string, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.Call(ctx, req, CallOptions{Provider: tag})
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRateLimited(err) || attempt >= maxRateLimitRetries {
			return nil, lastErr
		}

		delay := backoffFor(err, attempt)
		if c.metrics != nil {
			c.metrics.RecordRetry(tag)
		}
		slog.Info("Provider rate limited, backing off",
			"provider", tag, "attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoffFor prefers the server's Retry-After over exponential backoff.
func backoffFor(err error, attempt int) time.Duration {
	if retryAfter, ok := RetryAfterOf(err); ok {
		return retryAfter
	}
	delay := baseBackoff << attempt
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}
