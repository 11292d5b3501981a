package preflight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
)

func TestBuildSystemContextTemporalAlwaysFirst(t *testing.T) {
	now := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)
	result := &models.PreflightResult{Mode: models.ModeGeneral}

	messages := BuildSystemContext(result, ContextOptions{Now: now})
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[0], "2026-08-25 14:30 UTC")
}

func TestBuildSystemContextProtocolSelection(t *testing.T) {
	result := &models.PreflightResult{Mode: models.ModeGeneral}

	messages := BuildSystemContext(result, ContextOptions{
		IsFirstQuery:       true,
		BaseProtocol:       "FULL PROTOCOL",
		CompressedProtocol: "COMPRESSED",
	})
	require.Len(t, messages, 2)
	assert.Equal(t, "FULL PROTOCOL", messages[1])

	messages = BuildSystemContext(result, ContextOptions{
		IsFirstQuery:       false,
		BaseProtocol:       "FULL PROTOCOL",
		CompressedProtocol: "COMPRESSED",
	})
	require.Len(t, messages, 2)
	assert.Equal(t, "COMPRESSED", messages[1])
}

func TestBuildSystemContextSeeds(t *testing.T) {
	result := &models.PreflightResult{
		Mode: models.ModeSeedMetric,
		RoutingFlags: models.RoutingFlags{
			IsSeedMetric:         true,
			UsesFinancialPhysics: true,
			UsesLegalAnalysis:    true,
		},
	}
	messages := BuildSystemContext(result, ContextOptions{})

	joined := ""
	for _, m := range messages {
		joined += m + "\n"
	}
	assert.Contains(t, joined, "FATALISM")
	assert.Contains(t, joined, "accounting identity")
	assert.Contains(t, joined, "eight sections")
}

func TestBuildSystemContextIndicatorSeed(t *testing.T) {
	result := &models.PreflightResult{
		Mode:              models.ModePsiEMA,
		IndicatorAnalysis: "## Ψ-EMA Diagnostic: NVDA",
		RoutingFlags:      models.RoutingFlags{UsesPsiEMA: true},
	}
	messages := BuildSystemContext(result, ContextOptions{})

	found := false
	for _, m := range messages {
		if assert.ObjectsAreEqual(indicatorSeed, m) {
			found = true
		}
	}
	assert.True(t, found)
}
