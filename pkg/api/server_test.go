package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnjames-bit/nyanclaw-sub000/pkg/config"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/events"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/memory"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/metrics"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/models"
	"github.com/johnjames-bit/nyanclaw-sub000/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
)

type fakePipeline struct {
	result  *models.PipelineResult
	audit   *models.AuditResult
	lastIn  models.PipelineInput
	failRun bool
}

func (f *fakePipeline) Run(_ context.Context, in models.PipelineInput) (*models.PipelineResult, error) {
	return f.RunCompound(context.Background(), in)
}

func (f *fakePipeline) RunCompound(_ context.Context, in models.PipelineInput) (*models.PipelineResult, error) {
	f.lastIn = in
	if f.failRun {
		return nil, assert.AnError
	}
	if f.result != nil {
		return f.result, nil
	}
	return &models.PipelineResult{
		Success: true,
		Answer:  "answer text 🔥 ~nyan [2026-01-01T00:00:00Z]",
		Mode:    models.ModeGeneral,
		Badge:   models.BadgeVerified,
	}, nil
}

func (f *fakePipeline) Audit(_ context.Context, query, draft, sources string, strict bool) *models.AuditResult {
	if f.audit != nil {
		return f.audit
	}
	return &models.AuditResult{Verdict: models.VerdictAccepted, Confidence: 80}
}

func newTestServer(t *testing.T, p Runner) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	reg := prometheus.NewRegistry()
	return NewServer(cfg.Server, config.RateLimitConfig{RequestsPerMinute: 6000, Burst: 1000},
		p, memory.NewManager(nil), store.NewTenantPackageStore(),
		events.NewBroker(nil), metrics.New(reg), nil, nil, reg, nil)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestPlaygroundRunsPipeline(t *testing.T) {
	p := &fakePipeline{}
	s := newTestServer(t, p)

	rec := doJSON(t, s, http.MethodPost, "/api/playground",
		`{"query":"hello","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.PipelineResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Contains(t, result.Answer, "answer text")
	assert.Equal(t, "hello", p.lastIn.Query)
	assert.Equal(t, "s1", p.lastIn.SessionID)
}

func TestPlaygroundValidatesInput(t *testing.T) {
	s := newTestServer(t, &fakePipeline{})

	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing query", `{"session_id":"s1"}`, http.StatusBadRequest},
		{"missing session", `{"query":"hi"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"query too long", `{"query":"` + strings.Repeat("a", maxQueryChars+1) + `","session_id":"s1"}`, http.StatusRequestEntityTooLarge},
		{"bad base64", `{"query":"hi","session_id":"s1","documents":[{"file_name":"a.txt","data":"%%%"}]}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/playground", tc.body)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestPlaygroundDecodesAttachments(t *testing.T) {
	p := &fakePipeline{}
	s := newTestServer(t, p)

	rec := doJSON(t, s, http.MethodPost, "/api/playground",
		`{"query":"read this","session_id":"s1","documents":[{"file_name":"a.txt","file_type":"txt","data":"aGVsbG8="}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, p.lastIn.Documents, 1)
	assert.Equal(t, []byte("hello"), p.lastIn.Documents[0].Data)
}

func TestPlaygroundPipelineFailure(t *testing.T) {
	s := newTestServer(t, &fakePipeline{failRun: true})
	rec := doJSON(t, s, http.MethodPost, "/api/playground",
		`{"query":"hello","session_id":"s1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuditHandler(t *testing.T) {
	p := &fakePipeline{audit: &models.AuditResult{Verdict: models.VerdictFixable, Confidence: 70, FixedAnswer: "fixed"}}
	s := newTestServer(t, p)

	rec := doJSON(t, s, http.MethodPost, "/api/nyan-ai/audit",
		`{"query":"q","draft":"d","strict":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AuditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.VerdictFixable, resp.Audit.Verdict)
	assert.Equal(t, models.BadgeCorrected, resp.Badge)

	rec = doJSON(t, s, http.MethodPost, "/api/nyan-ai/audit", `{"query":"q"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNukeHandler(t *testing.T) {
	s := newTestServer(t, &fakePipeline{})
	s.memory.AddMessage("s9", models.RoleUser, "hello", nil)
	require.Equal(t, 1, s.memory.SessionCount())

	rec := doJSON(t, s, http.MethodPost, "/api/playground/nuke", `{"session_id":"s9"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, s.memory.SessionCount())

	rec = doJSON(t, s, http.MethodPost, "/api/playground/nuke", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestsCarryDerivedTenantKey(t *testing.T) {
	p := &fakePipeline{}
	s := newTestServer(t, p)

	rec := doJSON(t, s, http.MethodPost, "/api/playground",
		`{"query":"hello","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// The pipeline sees a hashed network identity, never the session id
	// or the raw address.
	want := store.DeriveTenantKey("192.0.2.1", "", config.DefaultConfig().Server.TenantSalt)
	assert.Equal(t, want, p.lastIn.TenantID)
	assert.NotContains(t, p.lastIn.TenantID, "192.0.2.1")
	assert.NotEqual(t, "s1", p.lastIn.TenantID)
}

func TestNukeClearsTenantWindow(t *testing.T) {
	s := newTestServer(t, &fakePipeline{})
	key := store.DeriveTenantKey("192.0.2.1", "", config.DefaultConfig().Server.TenantSalt)

	pkg := models.NewDataPackage(key)
	pkg.Finalize()
	require.NoError(t, s.packages.StorePackage(key, pkg))
	require.Equal(t, 1, s.packages.PackageCount(key))

	rec := doJSON(t, s, http.MethodPost, "/api/playground/nuke", `{"session_id":"s9"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, s.packages.PackageCount(key))
}

func TestUsageHandler(t *testing.T) {
	s := newTestServer(t, &fakePipeline{})
	s.metrics.RecordPipelineRun("general", "verified", 0)

	rec := doJSON(t, s, http.MethodGet, "/api/playground/usage", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap metrics.UsageSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.ByBadge["verified"])
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, &fakePipeline{})
	rec := doJSON(t, s, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, resp.Version)
}

func TestStreamHandlerEventSequence(t *testing.T) {
	s := newTestServer(t, &fakePipeline{})

	rec := doJSON(t, s, http.MethodPost, "/api/playground/stream",
		`{"query":"hello","session_id":"stream1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var types []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			types = append(types, strings.TrimPrefix(line, "event: "))
		}
	}
	require.NotEmpty(t, types)
	// Audit precedes tokens; done is terminal.
	auditIdx, tokenIdx := -1, -1
	for i, typ := range types {
		if typ == events.EventTypeAudit && auditIdx == -1 {
			auditIdx = i
		}
		if typ == events.EventTypeToken && tokenIdx == -1 {
			tokenIdx = i
		}
	}
	assert.GreaterOrEqual(t, tokenIdx, 0)
	assert.Less(t, auditIdx, tokenIdx)
	assert.Equal(t, events.EventTypeDone, types[len(types)-1])
}

func TestStreamTokensPreserveMultibyteRunes(t *testing.T) {
	// An answer of multibyte runes wider than one chunk; byte-based
	// slicing would cut characters apart and emit replacement runes.
	answer := strings.Repeat("🔥火焰", 40)
	s := newTestServer(t, &fakePipeline{result: &models.PipelineResult{
		Success: true,
		Answer:  answer,
		Mode:    models.ModeGeneral,
		Badge:   models.BadgeVerified,
	}})

	rec := doJSON(t, s, http.MethodPost, "/api/playground/stream",
		`{"query":"hello","session_id":"stream2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var reassembled strings.Builder
	tokenEvents := 0
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Type string `json:"type"`
			Data any    `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		if ev.Type != events.EventTypeToken {
			continue
		}
		token, ok := ev.Data.(string)
		require.True(t, ok)
		assert.NotContains(t, token, "�")
		reassembled.WriteString(token)
		tokenEvents++
	}
	assert.Greater(t, tokenEvents, 1)
	assert.Equal(t, answer, reassembled.String())
}

func TestRateLimiterRejectsBursts(t *testing.T) {
	cfg := config.DefaultConfig()
	reg := prometheus.NewRegistry()
	s := NewServer(cfg.Server, config.RateLimitConfig{RequestsPerMinute: 60, Burst: 2},
		&fakePipeline{}, memory.NewManager(nil), store.NewTenantPackageStore(),
		events.NewBroker(nil), metrics.New(reg), nil, nil, reg, nil)

	codes := make(map[int]int)
	for i := 0; i < 5; i++ {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/health", "")
		codes[rec.Code]++
	}
	assert.Equal(t, 2, codes[http.StatusOK])
	assert.Equal(t, 3, codes[http.StatusTooManyRequests])
}
