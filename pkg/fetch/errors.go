// Package fetch implements the external data fan-out: market data, forex
// rates, and the DDG/Brave search cascade, all behind per-client rate
// limiting. Fetch failures are non-fatal by contract; callers degrade.
package fetch

import (
	"errors"
	"fmt"
)

// ErrCapacityDenied is returned when the token bucket rejects a paid call.
var ErrCapacityDenied = errors.New("capacity denied by rate limiter")

// ErrInvalidTicker is returned for tickers failing sanitization.
var ErrInvalidTicker = errors.New("invalid ticker")

// ErrInvalidPair is returned for malformed forex pairs.
var ErrInvalidPair = errors.New("invalid forex pair")

// MarketFetchError is a typed market-data failure carrying the ticker.
type MarketFetchError struct {
	Ticker string
	Err    error
}

func (e *MarketFetchError) Error() string {
	return fmt.Sprintf("market fetch %s: %v", e.Ticker, e.Err)
}

func (e *MarketFetchError) Unwrap() error {
	return e.Err
}
