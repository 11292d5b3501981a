package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/config"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/events"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/memory"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/metrics"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/store"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/swarm"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/watchtower"
	"github.com/prometheus/client_golang/prometheus"
)

func newExecTestServer(t *testing.T, tower *watchtower.Watchtower, swarms *swarm.Manager) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	reg := prometheus.NewRegistry()
	return NewServer(cfg.Server, config.RateLimitConfig{RequestsPerMinute: 6000, Burst: 1000},
		&fakePipeline{}, memory.NewManager(nil), store.NewTenantPackageStore(),
		events.NewBroker(nil), metrics.New(reg), tower, swarms, reg, nil)
}

func TestExecHandlerBlocksDangerousCommand(t *testing.T) {
	tower := watchtower.New(t.TempDir(), slog.Default())
	s := newExecTestServer(t, tower, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/exec", `{"command":"rm -rf /"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result watchtower.ForegroundResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, result.Stderr, "[watchtower] blocked")
}

func TestExecHandlerValidatesInput(t *testing.T) {
	tower := watchtower.New(t.TempDir(), slog.Default())
	s := newExecTestServer(t, tower, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/exec", `{"command":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/exec/no-such-run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecHandlerForegroundRuns(t *testing.T) {
	tower := watchtower.New(t.TempDir(), slog.Default())
	s := newExecTestServer(t, tower, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/exec", `{"command":"/bin/echo hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result watchtower.ForegroundResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hello")
}

func TestExecRoutesAbsentWithoutTower(t *testing.T) {
	s := newTestServer(t, &fakePipeline{})
	rec := doJSON(t, s, http.MethodPost, "/api/exec", `{"command":"/bin/echo hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSwarmHandlerLifecycle(t *testing.T) {
	swarms := swarm.NewManager(&fakePipeline{}, nil, slog.Default())
	s := newExecTestServer(t, nil, swarms)

	rec := doJSON(t, s, http.MethodPost, "/api/swarm",
		`{"session_id":"s1","tasks":[{"label":"a","query":"first"},{"label":"b","query":"second"}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SwarmResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SwarmID)
	require.Len(t, resp.Workers, 2)

	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodGet, "/api/swarm/"+resp.SwarmID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		var status SwarmResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Status == swarm.SwarmDone
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSwarmHandlerValidatesInput(t *testing.T) {
	swarms := swarm.NewManager(&fakePipeline{}, nil, slog.Default())
	s := newExecTestServer(t, nil, swarms)

	rec := doJSON(t, s, http.MethodPost, "/api/swarm", `{"session_id":"s1","tasks":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/swarm", `{"tasks":[{"query":"q"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/swarm/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/swarm/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
