package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// DefaultTimeout is the network timeout for provider calls.
const DefaultTimeout = 2 * time.Minute

// Request is the provider-agnostic completion request.
type Request struct {
	Prompt      string
	System      string
	Model       string // empty selects the adapter's default model
	Temperature float64
	MaxTokens   int
	// Images are raw image bytes attached to the user turn; each vendor
	// dialect carries them in its own envelope.
	Images [][]byte
}

// Response carries the first-choice text and token usage.
type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Adapter is the single-method LLM adapter contract. Errors are surfaced as
// *ProviderError distinguishing rate-limit, auth, timeout, and other.
type Adapter interface {
	Name() string
	Call(ctx context.Context, req Request) (*Response, error)
}

// Provider tags.
const (
	ProviderMinimax = "minimax"
	ProviderGroq    = "groq"
	ProviderClaude  = "claude"
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
)

// httpDoer lets tests substitute the HTTP transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// wireFormat selects the request/response JSON dialect.
type wireFormat int

const (
	formatOpenAI    wireFormat = iota // OpenAI-compatible chat completions
	formatAnthropic                   // Anthropic messages API
	formatOllama                      // Ollama local chat API
)

// HTTPAdapter is a generic vendor adapter configured per provider.
type HTTPAdapter struct {
	name         string
	endpoint     string
	apiKey       string
	defaultModel string
	format       wireFormat
	client       httpDoer
}

// NewMinimaxAdapter talks to the MiniMax chat completion API.
func NewMinimaxAdapter(apiKey string) *HTTPAdapter {
	return &HTTPAdapter{
		name:         ProviderMinimax,
		endpoint:     "https://api.minimax.chat/v1/text/chatcompletion_v2",
		apiKey:       apiKey,
		defaultModel: "MiniMax-Text-01",
		format:       formatOpenAI,
		client:       &http.Client{Timeout: DefaultTimeout},
	}
}

// NewGroqAdapter talks to the Groq OpenAI-compatible API.
func NewGroqAdapter(apiKey string) *HTTPAdapter {
	return &HTTPAdapter{
		name:         ProviderGroq,
		endpoint:     "https://api.groq.com/openai/v1/chat/completions",
		apiKey:       apiKey,
		defaultModel: "llama-3.3-70b-versatile",
		format:       formatOpenAI,
		client:       &http.Client{Timeout: DefaultTimeout},
	}
}

// NewClaudeAdapter talks to the Anthropic messages API.
func NewClaudeAdapter(apiKey string) *HTTPAdapter {
	return &HTTPAdapter{
		name:         ProviderClaude,
		endpoint:     "https://api.anthropic.com/v1/messages",
		apiKey:       apiKey,
		defaultModel: "claude-3-5-sonnet-20241022",
		format:       formatAnthropic,
		client:       &http.Client{Timeout: DefaultTimeout},
	}
}

// NewOpenAIAdapter talks to the OpenAI chat completions API.
func NewOpenAIAdapter(apiKey string) *HTTPAdapter {
	return &HTTPAdapter{
		name:         ProviderOpenAI,
		endpoint:     "https://api.openai.com/v1/chat/completions",
		apiKey:       apiKey,
		defaultModel: "gpt-4o-mini",
		format:       formatOpenAI,
		client:       &http.Client{Timeout: DefaultTimeout},
	}
}

// NewOllamaAdapter talks to a local Ollama server. baseURL defaults to
// http://localhost:11434 when empty.
func NewOllamaAdapter(baseURL string) *HTTPAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &HTTPAdapter{
		name:         ProviderOllama,
		endpoint:     baseURL + "/api/chat",
		defaultModel: "llama3.1",
		format:       formatOllama,
		client:       &http.Client{Timeout: DefaultTimeout},
	}
}

// Name returns the provider tag.
func (a *HTTPAdapter) Name() string {
	return a.name
}

// Call sends the completion request and parses the first-choice text.
func (a *HTTPAdapter) Call(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	body, err := a.encodeRequest(model, req)
	if err != nil {
		return nil, &ProviderError{Provider: a.name, Kind: KindOther, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: a.name, Kind: KindOther, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	switch a.format {
	case formatAnthropic:
		httpReq.Header.Set("x-api-key", a.apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")
	case formatOpenAI:
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	case formatOllama:
		// Local server, no auth.
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		kind := KindOther
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			kind = KindTimeout
		}
		return nil, &ProviderError{Provider: a.name, Kind: kind, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &ProviderError{Provider: a.name, Kind: KindOther, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ProviderError{
			Provider:   a.name,
			Kind:       KindRateLimit,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("rate limited"),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &ProviderError{
			Provider:   a.name,
			Kind:       KindAuth,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("auth rejected: %s", truncateBody(raw)),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &ProviderError{
			Provider:   a.name,
			Kind:       KindOther,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", truncateBody(raw)),
		}
	}

	return a.decodeResponse(raw)
}

func (a *HTTPAdapter) encodeRequest(model string, req Request) ([]byte, error) {
	switch a.format {
	case formatAnthropic:
		payload := map[string]any{
			"model":       model,
			"max_tokens":  req.MaxTokens,
			"temperature": req.Temperature,
			"messages": []map[string]any{
				{"role": "user", "content": anthropicContent(req)},
			},
		}
		if req.System != "" {
			payload["system"] = req.System
		}
		return json.Marshal(payload)

	case formatOllama:
		return json.Marshal(map[string]any{
			"model":    model,
			"stream":   false,
			"messages": chatMessages(req, a.format),
			"options": map[string]any{
				"temperature": req.Temperature,
				"num_predict": req.MaxTokens,
			},
		})

	default:
		return json.Marshal(map[string]any{
			"model":       model,
			"messages":    chatMessages(req, a.format),
			"temperature": req.Temperature,
			"max_tokens":  req.MaxTokens,
		})
	}
}

// anthropicContent returns the user-turn content: a bare string for text-only
// requests, or image blocks followed by a text block.
func anthropicContent(req Request) any {
	if len(req.Images) == 0 {
		return req.Prompt
	}
	blocks := make([]map[string]any, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": http.DetectContentType(img),
				"data":       base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	return append(blocks, map[string]any{"type": "text", "text": req.Prompt})
}

func chatMessages(req Request, format wireFormat) []map[string]any {
	var messages []map[string]any
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	user := map[string]any{"role": "user", "content": req.Prompt}
	if len(req.Images) > 0 {
		switch format {
		case formatOllama:
			encoded := make([]string, len(req.Images))
			for i, img := range req.Images {
				encoded[i] = base64.StdEncoding.EncodeToString(img)
			}
			user["images"] = encoded
		default:
			// OpenAI-style multimodal content: text part plus data-URI parts.
			parts := []map[string]any{{"type": "text", "text": req.Prompt}}
			for _, img := range req.Images {
				parts = append(parts, map[string]any{
					"type": "image_url",
					"image_url": map[string]any{
						"url": "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img),
					},
				})
			}
			user["content"] = parts
		}
	}
	return append(messages, user)
}

func (a *HTTPAdapter) decodeResponse(raw []byte) (*Response, error) {
	switch a.format {
	case formatAnthropic:
		var parsed struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			Usage struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Content) == 0 {
			return nil, &ProviderError{Provider: a.name, Kind: KindOther, Err: fmt.Errorf("malformed response: %v", err)}
		}
		return &Response{
			Text:      parsed.Content[0].Text,
			TokensIn:  parsed.Usage.InputTokens,
			TokensOut: parsed.Usage.OutputTokens,
		}, nil

	case formatOllama:
		var parsed struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			PromptEvalCount int `json:"prompt_eval_count"`
			EvalCount       int `json:"eval_count"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, &ProviderError{Provider: a.name, Kind: KindOther, Err: fmt.Errorf("malformed response: %v", err)}
		}
		return &Response{
			Text:      parsed.Message.Content,
			TokensIn:  parsed.PromptEvalCount,
			TokensOut: parsed.EvalCount,
		}, nil

	default:
		var parsed struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			Usage struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Choices) == 0 {
			return nil, &ProviderError{Provider: a.name, Kind: KindOther, Err: fmt.Errorf("malformed response: %v", err)}
		}
		return &Response{
			Text:      parsed.Choices[0].Message.Content,
			TokensIn:  parsed.Usage.PromptTokens,
			TokensOut: parsed.Usage.CompletionTokens,
		}, nil
	}
}

// parseRetryAfter handles delta-seconds Retry-After values.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncateBody(raw []byte) string {
	const limit = 200
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
