package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestUsageSnapshotAccumulates(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordProviderCall("groq", "ok", 300*time.Millisecond, 120, 80)
	m.RecordProviderCall("groq", "ok", 200*time.Millisecond, 100, 50)
	m.RecordProviderCall("claude", "error", time.Second, 0, 0)
	m.RecordPipelineRun("general", "verified", 2*time.Second)
	m.RecordPipelineRun("psi-ema", "verified", time.Second)

	snap := m.Usage()
	assert.Equal(t, int64(3), snap.TotalCalls)
	assert.Equal(t, int64(220), snap.TotalTokensIn)
	assert.Equal(t, int64(130), snap.TotalTokensOut)
	assert.Equal(t, int64(2), snap.ByProvider["groq"])
	assert.Equal(t, int64(2), snap.ByBadge["verified"])
}

func TestUsageReturnsCopy(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordPipelineRun("general", "verified", 0)

	snap := m.Usage()
	snap.ByBadge["verified"] = 99

	assert.Equal(t, int64(1), m.Usage().ByBadge["verified"])
}

func TestProviderCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordProviderCall("minimax", "ok", time.Millisecond, 10, 5)
	m.RecordRetry("minimax")
	m.RecordSearchCall("brave", "ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("minimax", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRetries.WithLabelValues("minimax")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchCalls.WithLabelValues("brave", "ok")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.ProviderTokens.WithLabelValues("minimax", "in")))
}
