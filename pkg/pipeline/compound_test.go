package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

func TestRunCompoundMergesParts(t *testing.T) {
	caller := &fakeLLM{rules: []llmRule{auditApproved()}, fallback: "part answer"}
	p, _ := newTestPipeline(t, caller, &fakeRouter{}, nil)

	result, err := p.RunCompound(context.Background(), models.PipelineInput{
		Query:     "What is the capital of France? Also what is the largest city in Japan right now",
		SessionID: "s1",
	})
	require.NoError(t, err)

	assert.Contains(t, result.Answer, "## 1. ")
	assert.Contains(t, result.Answer, "## 2. ")
	assert.Equal(t, 1, strings.Count(result.Answer, "🔥 ~nyan"))
	assert.Equal(t, models.BadgeVerified, result.Badge)
	assert.Equal(t, 90, result.AuditResult.Confidence)
	assert.Equal(t, 2, result.PassCount)
}

func TestRunCompoundWorstBadgeWins(t *testing.T) {
	caller := &fakeLLM{
		rules: []llmRule{{
			contains: "largest city",
			reply:    "VERDICT: REJECTED\nCONFIDENCE: 10\nREASON: unsupported",
		}, auditApproved()},
		fallback: "part answer",
	}
	p, _ := newTestPipeline(t, caller, &fakeRouter{}, nil)

	result, err := p.RunCompound(context.Background(), models.PipelineInput{
		Query:     "What is the capital of France? Also what is the largest city in Japan right now",
		SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.BadgeUnverified, result.Badge)
	assert.Equal(t, 50, result.AuditResult.Confidence)
}

func TestSplitCompoundQuestionBoundary(t *testing.T) {
	parts := SplitCompound("What moves the bond market? How do rate hikes affect equity prices?")
	require.Len(t, parts, 2)
	assert.Equal(t, "What moves the bond market?", parts[0])
	assert.Equal(t, "How do rate hikes affect equity prices?", parts[1])
}

func TestSplitCompoundShortFragmentAbandonsSplit(t *testing.T) {
	parts := SplitCompound("What is inflation targeting? Why bother")
	assert.Equal(t, []string{"What is inflation targeting? Why bother"}, parts)
}

func TestSplitCompoundChartTickerNeedsPhoto(t *testing.T) {
	query := "Explain this candlestick chart? $TSLA"

	assert.Len(t, SplitCompound(query), 1)

	parts := splitCompound(query, 1)
	require.Len(t, parts, 2)
	assert.Equal(t, "Explain this candlestick chart?", parts[0])
	assert.Equal(t, "$TSLA", parts[1])
}

func TestRunCompoundSinglePartDelegates(t *testing.T) {
	caller := &fakeLLM{rules: []llmRule{auditApproved()}, fallback: "only answer"}
	p, _ := newTestPipeline(t, caller, &fakeRouter{}, nil)

	result, err := p.RunCompound(context.Background(), models.PipelineInput{
		Query: "a single plain question without conjunctions", SessionID: "s1",
	})
	require.NoError(t, err)
	assert.NotContains(t, result.Answer, "## 1.")
	assert.Contains(t, result.Answer, "only answer")
}
