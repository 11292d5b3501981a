package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

var pairPattern = regexp.MustCompile(`^([A-Z]{3})/([A-Z]{3})$`)

// ParsePair validates a BASE/QUOTE currency pair.
func ParsePair(pair string) (base, quote string, err error) {
	m := pairPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(pair)))
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	return m[1], m[2], nil
}

// ForexFetcher retrieves a rate for a currency pair.
type ForexFetcher interface {
	FetchRate(ctx context.Context, pair string) (*models.ForexData, error)
}

// HTTPForexFetcher fetches rates from an exchange-rate HTTP endpoint.
type HTTPForexFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPForexFetcher creates a fetcher against the given base URL
// (defaults to the public exchange-rate host).
func NewHTTPForexFetcher(baseURL string) *HTTPForexFetcher {
	if baseURL == "" {
		baseURL = "https://open.er-api.com/v6"
	}
	return &HTTPForexFetcher{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchRate parses the pair, fetches the base currency table, and extracts
// the quote rate when present in the raw response.
func (f *HTTPForexFetcher) FetchRate(ctx context.Context, pair string) (*models.ForexData, error) {
	base, quote, err := ParsePair(pair)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/latest/%s", f.BaseURL, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forex fetch %s: status %d", pair, resp.StatusCode)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("forex parse %s: %w", pair, err)
	}

	data := &models.ForexData{
		Pair:      base + "/" + quote,
		Source:    f.BaseURL,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Raw:       body,
	}
	if rates, ok := body["rates"].(map[string]any); ok {
		if rate, ok := rates[quote].(float64); ok && isFinite(rate) {
			data.Rate = &rate
		}
	}
	return data, nil
}
