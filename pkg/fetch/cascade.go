package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FanOutSpacing is the pause between sequential fan-out requests.
const FanOutSpacing = 350 * time.Millisecond

// Cascade sequences the two search providers under the capacity limiter.
type Cascade struct {
	DDG   DDGSearcher
	Brave BraveSearcher

	// spacing is overridable in tests.
	spacing time.Duration
}

// NewCascade wires the two providers.
func NewCascade(ddg DDGSearcher, brave BraveSearcher) *Cascade {
	return &Cascade{DDG: ddg, Brave: brave, spacing: FanOutSpacing}
}

// BestEffort tries DDG first, falling back to Brave on a null result.
// Returns nil when both providers come up empty; provider errors degrade to
// the next provider rather than failing the call.
func (c *Cascade) BestEffort(ctx context.Context, query, clientID string) (*SearchResult, error) {
	if c.DDG != nil {
		result, err := c.DDG.DDG(ctx, query)
		if err == nil && result != nil {
			return result, nil
		}
	}
	if c.Brave != nil {
		result, err := c.Brave.Brave(ctx, query, clientID)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, nil
}

// LabeledBlock is one fan-out result tagged with its originating query.
type LabeledBlock struct {
	Query string `json:"query"`
	Text  string `json:"text"`
}

// FanOut issues the queries sequentially with a fixed spacing between
// requests, Brave first with DDG fallback per query. Queries yielding
// nothing are omitted from the returned blocks.
func (c *Cascade) FanOut(ctx context.Context, queries []string, clientID string) ([]LabeledBlock, error) {
	blocks := make([]LabeledBlock, 0, len(queries))
	for i, query := range queries {
		if i > 0 {
			select {
			case <-ctx.Done():
				return blocks, ctx.Err()
			case <-time.After(c.spacing):
			}
		}

		var result *SearchResult
		if c.Brave != nil {
			result, _ = c.Brave.Brave(ctx, query, clientID)
		}
		if result == nil && c.DDG != nil {
			result, _ = c.DDG.DDG(ctx, query)
		}
		if result == nil || result.Text == "" {
			continue
		}
		blocks = append(blocks, LabeledBlock{Query: query, Text: result.Text})
	}
	return blocks, nil
}

// FormatBlocks renders fan-out blocks as labeled sections for prompt use.
func FormatBlocks(blocks []LabeledBlock) string {
	if len(blocks) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, b := range blocks {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", b.Query, b.Text)
	}
	return strings.TrimSpace(sb.String())
}
