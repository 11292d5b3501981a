package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStageSetsCurrentStage(t *testing.T) {
	pkg := NewDataPackage("tenant-a")

	require.NoError(t, pkg.WriteStage(StageContextExtract, map[string]any{"query": "hello"}))
	assert.Equal(t, StageContextExtract, pkg.CurrentStage)

	require.NoError(t, pkg.WriteStage(StagePreflight, map[string]any{"mode": "general"}))
	assert.Equal(t, StagePreflight, pkg.CurrentStage)
	assert.Equal(t, 2, pkg.StageCount())
}

func TestWriteStageAfterFinalizeFails(t *testing.T) {
	pkg := NewDataPackage("tenant-a")
	require.NoError(t, pkg.WriteStage(StageOutput, map[string]any{"answer": "done"}))

	pkg.Finalize()
	require.True(t, pkg.Finalized)
	require.NotNil(t, pkg.FinalizedAt)

	err := pkg.WriteStage(StageOutput, map[string]any{"answer": "again"})
	require.ErrorIs(t, err, ErrFinalized)

	// Reads continue after finalization.
	data := pkg.ReadStage(StageOutput)
	require.NotNil(t, data)
	assert.Equal(t, "done", data["answer"])
}

func TestReadStageReturnsDeepCopy(t *testing.T) {
	pkg := NewDataPackage("tenant-a")
	require.NoError(t, pkg.WriteStage(StageReasoning, map[string]any{
		"draft":  "first",
		"nested": map[string]any{"tokens": float64(42)},
	}))

	first := pkg.ReadStage(StageReasoning)
	first["draft"] = "mutated"
	first["nested"].(map[string]any)["tokens"] = float64(0)

	second := pkg.ReadStage(StageReasoning)
	assert.Equal(t, "first", second["draft"])
	assert.Equal(t, float64(42), second["nested"].(map[string]any)["tokens"])
}

func TestWriteStageCopiesCallerData(t *testing.T) {
	pkg := NewDataPackage("tenant-a")
	data := map[string]any{"mode": "general"}
	require.NoError(t, pkg.WriteStage(StagePreflight, data))

	data["mode"] = "mutated"
	stored := pkg.ReadStage(StagePreflight)
	assert.Equal(t, "general", stored["mode"])
}

func TestReadStageMissingReturnsNil(t *testing.T) {
	pkg := NewDataPackage("tenant-a")
	assert.Nil(t, pkg.ReadStage(StageAudit))
}

func TestSnapshotRoundTrip(t *testing.T) {
	pkg := NewDataPackage("tenant-a")
	require.NoError(t, pkg.WriteStage(StageContextExtract, map[string]any{"query": "q"}))
	require.NoError(t, pkg.WriteStage(StagePreflight, map[string]any{"mode": "forex", "ticker": "USD"}))
	pkg.Finalize()

	snap, err := pkg.ToSnapshot()
	require.NoError(t, err)

	restored, err := FromSnapshot(snap)
	require.NoError(t, err)

	snap2, err := restored.ToSnapshot()
	require.NoError(t, err)
	assert.Equal(t, snap, snap2)

	assert.Equal(t, pkg.ID, restored.ID)
	assert.True(t, restored.Finalized)
	assert.Equal(t, StagePreflight, restored.CurrentStage)
}

func TestSnapshotIsIndependentOfPackage(t *testing.T) {
	pkg := NewDataPackage("tenant-a")
	require.NoError(t, pkg.WriteStage(StagePreflight, map[string]any{"mode": "general"}))

	snap, err := pkg.ToSnapshot()
	require.NoError(t, err)
	snap.Stages[StagePreflight].Data["mode"] = "mutated"

	assert.Equal(t, "general", pkg.ReadStage(StagePreflight)["mode"])
}

func TestSummarizePullsTickerModeAndVerdict(t *testing.T) {
	pkg := NewDataPackage("tenant-a")
	require.NoError(t, pkg.WriteStage(StagePreflight, map[string]any{"mode": "psi-ema", "ticker": "NVDA"}))
	require.NoError(t, pkg.WriteStage(StageAudit, map[string]any{"verdict": "BYPASS"}))

	summary := pkg.Summarize()
	assert.Equal(t, pkg.ID[:8], summary.ShortID)
	assert.Equal(t, "NVDA", summary.Ticker)
	assert.Equal(t, "psi-ema", summary.Mode)
	assert.Equal(t, "BYPASS", summary.AuditPass)
}

func TestBadgeForVerdict(t *testing.T) {
	tests := []struct {
		verdict AuditVerdict
		badge   Badge
	}{
		{VerdictApproved, BadgeVerified},
		{VerdictAccepted, BadgeVerified},
		{VerdictBypass, BadgeVerified},
		{VerdictFixable, BadgeCorrected},
		{VerdictAPIFailure, BadgeUnavailable},
		{VerdictRejected, BadgeUnverified},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.badge, BadgeForVerdict(tc.verdict), string(tc.verdict))
	}
}

func TestWorstBadge(t *testing.T) {
	assert.Equal(t, BadgeUnverified, WorstBadge(BadgeVerified, BadgeUnverified))
	assert.Equal(t, BadgeUnavailable, WorstBadge(BadgeUnavailable, BadgeCorrected))
	assert.Equal(t, BadgeVerified, WorstBadge(BadgeVerified, BadgeVerified))
}
