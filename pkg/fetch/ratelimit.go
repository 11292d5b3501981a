package fetch

import (
	"sync"

	"golang.org/x/time/rate"
)

// CapacityLimiter is the per-(client, service) token bucket consulted before
// any paid-provider call.
type CapacityLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewCapacityLimiter creates a limiter granting ratePerSec tokens per second
// with the given burst per (client, service) pair.
func NewCapacityLimiter(ratePerSec float64, burst int) *CapacityLimiter {
	return &CapacityLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(ratePerSec),
		burst:   burst,
	}
}

// Allow consumes one token for the pair, reporting whether capacity remains.
func (l *CapacityLimiter) Allow(clientID, service string) bool {
	l.mu.Lock()
	key := clientID + "|" + service
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow()
}
