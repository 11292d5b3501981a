package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainVisionParsesStructuredReply(t *testing.T) {
	caller := &fakeLLM{fallback: "CATEGORY: chemical\nDESCRIPTION: a benzene ring drawn on paper\nFORMULA: C6H6\nNAME: benzene"}
	v := NewChainVision(caller)

	result, err := v.AnalyzeImage(context.Background(), []byte("img-bytes"), "ring.png")
	require.NoError(t, err)

	assert.Equal(t, "chemical", result.Category)
	assert.Equal(t, "a benzene ring drawn on paper", result.Description)
	assert.Equal(t, "C6H6", result.Formula)
	assert.Equal(t, "benzene", result.Name)

	// The image bytes ride along on the provider request.
	caller.mu.Lock()
	defer caller.mu.Unlock()
	require.Len(t, caller.calls, 1)
	require.Len(t, caller.calls[0].Images, 1)
	assert.Equal(t, []byte("img-bytes"), caller.calls[0].Images[0])
}

func TestChainVisionNoneFieldsClear(t *testing.T) {
	caller := &fakeLLM{fallback: "CATEGORY: chart\nDESCRIPTION: a daily candlestick chart\nFORMULA: none\nNAME: none"}
	v := NewChainVision(caller)

	result, err := v.AnalyzeImage(context.Background(), []byte("x"), "chart.png")
	require.NoError(t, err)
	assert.Equal(t, "chart", result.Category)
	assert.Empty(t, result.Formula)
	assert.Empty(t, result.Name)
}

func TestParseVisionReplyDegradesToVisual(t *testing.T) {
	result := parseVisionReply("just a free-form sentence about the picture")
	assert.Equal(t, "visual", result.Category)
	assert.Equal(t, "just a free-form sentence about the picture", result.Description)
}

func TestChainVisionPropagatesProviderFailure(t *testing.T) {
	caller := &fakeLLM{fail: true}
	v := NewChainVision(caller)

	_, err := v.AnalyzeImage(context.Background(), []byte("x"), "a.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.png")
}
