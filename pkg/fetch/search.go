package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SearchItem is one web result.
type SearchItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// SearchResult is a provider response. A nil result means zero hits or a
// capacity denial; both are non-fatal to the pipeline.
type SearchResult struct {
	Text    string       `json:"text"`
	Related []string     `json:"related,omitempty"`
	Results []SearchItem `json:"results,omitempty"`
}

// DDGSearcher is the free search provider contract.
type DDGSearcher interface {
	DDG(ctx context.Context, query string) (*SearchResult, error)
}

// BraveSearcher is the credentialed, rate-limited provider contract.
type BraveSearcher interface {
	Brave(ctx context.Context, query, clientID string) (*SearchResult, error)
}

// HTTPDDGSearcher queries the DuckDuckGo instant answer API.
type HTTPDDGSearcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPDDGSearcher creates the DDG client.
func NewHTTPDDGSearcher(baseURL string) *HTTPDDGSearcher {
	if baseURL == "" {
		baseURL = "https://api.duckduckgo.com"
	}
	return &HTTPDDGSearcher{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// DDG runs one instant-answer query. Returns nil on zero results.
func (s *HTTPDDGSearcher) DDG(ctx context.Context, query string) (*SearchResult, error) {
	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1", s.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ddg search: status %d", resp.StatusCode)
	}

	var body struct {
		AbstractText  string `json:"AbstractText"`
		Answer        string `json:"Answer"`
		RelatedTopics []struct {
			Text string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("ddg parse: %w", err)
	}

	text := body.AbstractText
	if text == "" {
		text = body.Answer
	}
	var related []string
	for _, topic := range body.RelatedTopics {
		if topic.Text != "" {
			related = append(related, topic.Text)
		}
	}
	if text == "" && len(related) == 0 {
		return nil, nil
	}
	if text == "" {
		text = strings.Join(related, "\n")
	}
	return &SearchResult{Text: text, Related: related}, nil
}

// HTTPBraveSearcher queries the Brave web search API behind the capacity
// limiter.
type HTTPBraveSearcher struct {
	BaseURL string
	APIKey  string
	Limiter *CapacityLimiter
	Client  *http.Client
}

// NewHTTPBraveSearcher creates the Brave client. limiter may be nil
// (unlimited).
func NewHTTPBraveSearcher(baseURL, apiKey string, limiter *CapacityLimiter) *HTTPBraveSearcher {
	if baseURL == "" {
		baseURL = "https://api.search.brave.com/res/v1"
	}
	return &HTTPBraveSearcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Limiter: limiter,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Brave runs one web search. Returns nil without error on capacity denial
// or zero results, per the fetcher degradation contract.
func (s *HTTPBraveSearcher) Brave(ctx context.Context, query, clientID string) (*SearchResult, error) {
	if s.APIKey == "" {
		return nil, nil
	}
	if s.Limiter != nil && !s.Limiter.Allow(clientID, "brave") {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/web/search?q=%s&count=5", s.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", s.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave search: status %d", resp.StatusCode)
	}

	var body struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("brave parse: %w", err)
	}
	if len(body.Web.Results) == 0 {
		return nil, nil
	}

	result := &SearchResult{}
	var sb strings.Builder
	for _, item := range body.Web.Results {
		result.Results = append(result.Results, SearchItem{
			Title:       item.Title,
			URL:         item.URL,
			Description: item.Description,
		})
		sb.WriteString(item.Title)
		sb.WriteString(": ")
		sb.WriteString(item.Description)
		sb.WriteString("\n")
	}
	result.Text = strings.TrimSpace(sb.String())
	return result, nil
}
