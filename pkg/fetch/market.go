package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"time"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

// MarketTimeout is the hard deadline for one market-data fetch.
const MarketTimeout = 30 * time.Second

// tickerPattern enforces the sanitized ticker shape: A-Z0-9.- only, 1-10
// chars, starting with a letter.
var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.-]{0,9}$`)

// SanitizeTicker validates and returns the ticker, or ErrInvalidTicker.
func SanitizeTicker(ticker string) (string, error) {
	if !tickerPattern.MatchString(ticker) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTicker, ticker)
	}
	return ticker, nil
}

// MarketFetcher retrieves sanitized market data for a ticker.
type MarketFetcher interface {
	FetchMarketData(ctx context.Context, ticker string) (*models.MarketData, error)
}

// CommandMarketFetcher invokes the market-data adapter as a subprocess. The
// sanitized ticker is the only argument; the adapter prints JSON on stdout.
type CommandMarketFetcher struct {
	Command string
	Args    []string
}

// NewCommandMarketFetcher wires the subprocess adapter.
func NewCommandMarketFetcher(command string, args ...string) *CommandMarketFetcher {
	return &CommandMarketFetcher{Command: command, Args: args}
}

// FetchMarketData runs the adapter under the 30 s deadline and sanitizes the
// parsed result against non-finite numbers.
func (f *CommandMarketFetcher) FetchMarketData(ctx context.Context, ticker string) (*models.MarketData, error) {
	clean, err := SanitizeTicker(ticker)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, MarketTimeout)
	defer cancel()

	args := append(append([]string{}, f.Args...), clean)
	cmd := exec.CommandContext(ctx, f.Command, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &MarketFetchError{Ticker: clean, Err: fmt.Errorf("timeout after %v", MarketTimeout)}
		}
		return nil, &MarketFetchError{Ticker: clean, Err: err}
	}

	data, err := ParseMarketData(stdout.Bytes())
	if err != nil {
		return nil, &MarketFetchError{Ticker: clean, Err: err}
	}
	return data, nil
}

// ParseMarketData decodes adapter JSON and scrubs NaN/Infinity to null.
func ParseMarketData(raw []byte) (*models.MarketData, error) {
	var parsed struct {
		Currency     string          `json:"currency"`
		Name         string          `json:"name"`
		CurrentPrice *float64        `json:"current_price"`
		EndDate      string          `json:"end_date"`
		Daily        rawBarSeries    `json:"daily"`
		Weekly       rawBarSeries    `json:"weekly"`
		Fundamentals map[string]any  `json:"fundamentals"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse market JSON: %w", err)
	}

	data := &models.MarketData{
		Currency:     parsed.Currency,
		Name:         parsed.Name,
		CurrentPrice: scrubFloat(parsed.CurrentPrice),
		EndDate:      parsed.EndDate,
		Daily:        scrubSeries(parsed.Daily),
		Weekly:       scrubSeries(parsed.Weekly),
		Fundamentals: scrubMap(parsed.Fundamentals),
	}
	return data, nil
}

type rawBarSeries struct {
	Closes            []float64 `json:"closes"`
	BarCount          int       `json:"bar_count"`
	UnavailableReason string    `json:"unavailable_reason"`
}

// scrubSeries drops non-finite closes and recounts bars.
func scrubSeries(raw rawBarSeries) models.BarSeries {
	closes := make([]float64, 0, len(raw.Closes))
	for _, c := range raw.Closes {
		if isFinite(c) {
			closes = append(closes, c)
		}
	}
	count := raw.BarCount
	if count == 0 || count > len(closes) {
		count = len(closes)
	}
	return models.BarSeries{
		Closes:            closes,
		BarCount:          count,
		UnavailableReason: raw.UnavailableReason,
	}
}

func scrubFloat(v *float64) *float64 {
	if v == nil || !isFinite(*v) {
		return nil
	}
	return v
}

// scrubMap replaces non-finite numbers with nil anywhere in a JSON-shaped map.
func scrubMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = scrubValue(v)
	}
	return out
}

func scrubValue(v any) any {
	switch val := v.(type) {
	case float64:
		if !isFinite(val) {
			return nil
		}
		return val
	case map[string]any:
		return scrubMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = scrubValue(item)
		}
		return out
	default:
		return v
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
