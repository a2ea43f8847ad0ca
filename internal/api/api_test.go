package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rooney011/CodeWeaver/internal/agent"
	"github.com/rooney011/CodeWeaver/internal/archive"
	"github.com/rooney011/CodeWeaver/internal/auth"
	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
	"github.com/rooney011/CodeWeaver/internal/hostmetrics"
	"github.com/rooney011/CodeWeaver/internal/logging"
	"github.com/rooney011/CodeWeaver/internal/remediation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	pending   *remediation.Plan
	alerts    []agent.Alert
	alertErr  error
	decideErr error
	actor     string
	planID    string
	history   []archive.Entry
	limit     int
}

func (f *fakePipeline) HandleAlert(_ context.Context, a agent.Alert) (remediation.Plan, error) {
	f.alerts = append(f.alerts, a)
	if f.alertErr != nil {
		return remediation.Plan{}, f.alertErr
	}
	p := remediation.Plan{
		ID:             "plan-1",
		Action:         remediation.NewEscalateAction(),
		Reason:         "needs a human",
		Status:         remediation.StatusPending,
		SafetyFindings: []string{},
		Diagnosis:      remediation.FailedDiagnosis("unclear", ""),
	}
	f.pending = &p
	return p, nil
}

func (f *fakePipeline) Pending() (remediation.Plan, bool) {
	if f.pending == nil {
		return remediation.Plan{}, false
	}
	return *f.pending, true
}

func (f *fakePipeline) decide(actor, planID string, to remediation.Status) (remediation.Plan, error) {
	f.actor, f.planID = actor, planID
	if f.decideErr != nil {
		return remediation.Plan{}, f.decideErr
	}
	if f.pending == nil {
		return remediation.Plan{}, cwerrors.NotFound("fake", planID, errors.New("no pending plan"))
	}
	p := *f.pending
	p.Status = to
	p.DecidedBy = actor
	f.pending = nil
	return p, nil
}

func (f *fakePipeline) Approve(_ context.Context, actor, planID string) (remediation.Plan, remediation.ExecutionResult, error) {
	p, err := f.decide(actor, planID, remediation.StatusExecuted)
	if err != nil {
		return p, remediation.ExecutionResult{}, err
	}
	return p, remediation.ExecutionResult{Status: remediation.ResultEscalated, Details: p.Reason}, nil
}

func (f *fakePipeline) Reject(_ context.Context, actor, planID string) (remediation.Plan, error) {
	return f.decide(actor, planID, remediation.StatusRejected)
}

func (f *fakePipeline) History(_ context.Context, limit int) ([]archive.Entry, error) {
	f.limit = limit
	return f.history, nil
}

func newTestServer(t *testing.T, p Pipeline, ratePerMinute int) *httptest.Server {
	t.Helper()
	return newTestServerWithDeps(t, &Deps{Agent: p, Version: "test", WebhookRatePerMinute: ratePerMinute})
}

func newTestServerWithDeps(t *testing.T, deps *Deps) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)
	srv := httptest.NewServer(WithRequestID(WithCORS(mux)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakePipeline{}, 10)
	for _, path := range []string{"/", "/health"} {
		code, body := doJSON(t, http.MethodGet, srv.URL+path, "")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, ServiceName, body["service"])
	}

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAlert_WrappedAndBare(t *testing.T) {
	p := &fakePipeline{}
	srv := newTestServer(t, p, 10)

	code, body := doJSON(t, http.MethodPost, srv.URL+"/webhook/alert",
		`{"data":{"source":"prom","severity":"critical","message":"latency","log_path":"service.log"}}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "waiting_for_approval", body["status"])
	plan, ok := body["plan"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "plan-1", plan["id"])
	assert.Equal(t, "pending", plan["status"])

	p.pending = nil
	code, _ = doJSON(t, http.MethodPost, srv.URL+"/webhook/alert", `{"source":"grafana","message":"down"}`)
	assert.Equal(t, http.StatusOK, code)

	require.Len(t, p.alerts, 2)
	assert.Equal(t, "prom", p.alerts[0].Source)
	assert.Equal(t, "service.log", p.alerts[0].LogPath)
	assert.Equal(t, "grafana", p.alerts[1].Source)
}

func TestAlert_ErrorsMapToStatus(t *testing.T) {
	p := &fakePipeline{alertErr: cwerrors.Conflict("agent.alert", "plan-0", "plan plan-0 is still awaiting a decision")}
	srv := newTestServer(t, p, 10)

	code, body := doJSON(t, http.MethodPost, srv.URL+"/webhook/alert", `{"message":"x"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body["status"])

	code, body = doJSON(t, http.MethodPost, srv.URL+"/webhook/alert", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", body["status"])

	resp, err := http.Get(srv.URL + "/webhook/alert")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAlert_RateLimited(t *testing.T) {
	p := &fakePipeline{alertErr: cwerrors.Conflict("agent.alert", "x", "busy")}
	srv := newTestServer(t, p, 2)

	for i := 0; i < 2; i++ {
		code, _ := doJSON(t, http.MethodPost, srv.URL+"/webhook/alert", `{}`)
		assert.Equal(t, http.StatusConflict, code)
	}
	code, _ := doJSON(t, http.MethodPost, srv.URL+"/webhook/alert", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Len(t, p.alerts, 2)
}

func TestPlanLifecycle(t *testing.T) {
	p := &fakePipeline{}
	srv := newTestServer(t, p, 10)

	code, body := doJSON(t, http.MethodGet, srv.URL+"/plan/pending", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "empty", body["status"])
	assert.Nil(t, body["plan"])

	_, _ = doJSON(t, http.MethodPost, srv.URL+"/webhook/alert", `{"message":"x"}`)
	code, body = doJSON(t, http.MethodGet, srv.URL+"/plan/pending", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending", body["status"])

	code, body = doJSON(t, http.MethodPost, srv.URL+"/plan/approve", `{"plan_id":"plan-1","actor":"alice"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "approved", body["status"])
	assert.Equal(t, "alice", p.actor)
	assert.Equal(t, "plan-1", p.planID)
	execution, ok := body["execution"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "escalated", execution["status"])

	code, body = doJSON(t, http.MethodPost, srv.URL+"/plan/approve", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, defaultActor, p.actor)

	code, body = doJSON(t, http.MethodPost, srv.URL+"/plan/reject", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "no_pending_plan", body["status"])
}

func TestReject_ActorHeaderAndConflict(t *testing.T) {
	p := &fakePipeline{}
	srv := newTestServer(t, p, 10)
	_, _ = doJSON(t, http.MethodPost, srv.URL+"/webhook/alert", `{}`)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/plan/reject", nil)
	require.NoError(t, err)
	req.Header.Set("X-Actor", "bob")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bob", p.actor)

	p.decideErr = cwerrors.Conflict("approval.reject", "other", "pending plan is plan-1")
	code, body := doJSON(t, http.MethodPost, srv.URL+"/plan/reject", `{"plan_id":"other"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body["status"])
}

func TestHistory(t *testing.T) {
	p := &fakePipeline{history: []archive.Entry{{EventID: "01J", Plan: remediation.Plan{ID: "p"}}}}
	srv := newTestServer(t, p, 10)

	code, body := doJSON(t, http.MethodGet, srv.URL+"/plan/history?limit=5", "")
	assert.Equal(t, http.StatusOK, code)
	entries, ok := body["entries"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 1)
	assert.Equal(t, 5, p.limit)

	code, _ = doJSON(t, http.MethodGet, srv.URL+"/plan/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &fakePipeline{}, 10)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/plan/approve", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakePipeline{}, 10)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogStream(t *testing.T) {
	srv := newTestServer(t, &fakePipeline{}, 10)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/logs/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	marker := "log-stream-marker " + time.Now().Format(time.RFC3339Nano)
	_, _ = logging.GetBroadcaster().Write([]byte(marker))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		if strings.Contains(string(msg), marker) {
			return
		}
	}
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(60)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 60; i++ {
		require.True(t, rl.Allow("1.2.3.4"))
	}
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))
}

func TestHealth_HostProbe(t *testing.T) {
	probe := func(context.Context) (hostmetrics.Snapshot, error) {
		return hostmetrics.Snapshot{CPUCount: 2, MemoryUsage: 40}, nil
	}
	srv := newTestServerWithDeps(t, &Deps{Agent: &fakePipeline{}, HostProbe: probe})

	code, body := doJSON(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, code)
	host, ok := body["host"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2.0, host["cpu_count"])

	failing := func(context.Context) (hostmetrics.Snapshot, error) { return hostmetrics.Snapshot{}, errors.New("nope") }
	srv = newTestServerWithDeps(t, &Deps{Agent: &fakePipeline{}, HostProbe: failing})
	_, body = doJSON(t, http.MethodGet, srv.URL+"/health", "")
	assert.NotContains(t, body, "host")
}

func TestDecisionsRequireApproverToken(t *testing.T) {
	token, err := auth.GenerateToken()
	require.NoError(t, err)
	hash, err := auth.HashToken(token)
	require.NoError(t, err)

	p := &fakePipeline{}
	srv := newTestServerWithDeps(t, &Deps{Agent: p, WebhookRatePerMinute: 10, ApprovalTokenHash: hash})
	_, _ = doJSON(t, http.MethodPost, srv.URL+"/webhook/alert", `{}`)

	code, _ := doJSON(t, http.MethodPost, srv.URL+"/plan/approve", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	_, ok := p.Pending()
	assert.True(t, ok)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/plan/approve", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, &fakePipeline{}, 10)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
