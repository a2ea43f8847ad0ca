// Package api exposes the remediation agent over HTTP: the alert webhook, the
// approval endpoints the dashboard drives, health, metrics and a live log
// stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rooney011/CodeWeaver/internal/agent"
	"github.com/rooney011/CodeWeaver/internal/archive"
	"github.com/rooney011/CodeWeaver/internal/auth"
	"github.com/rooney011/CodeWeaver/internal/hostmetrics"
	"github.com/rooney011/CodeWeaver/internal/logging"
	"github.com/rooney011/CodeWeaver/internal/remediation"
)

// ServiceName is reported by the health endpoints.
const ServiceName = "CodeWeaver SRE Agent"

// Pipeline is the agent surface the handlers drive.
type Pipeline interface {
	HandleAlert(ctx context.Context, alert agent.Alert) (remediation.Plan, error)
	Pending() (remediation.Plan, bool)
	Approve(ctx context.Context, actor, planID string) (remediation.Plan, remediation.ExecutionResult, error)
	Reject(ctx context.Context, actor, planID string) (remediation.Plan, error)
	History(ctx context.Context, limit int) ([]archive.Entry, error)
}

// HostProbe samples the agent host for the health endpoint.
type HostProbe func(ctx context.Context) (hostmetrics.Snapshot, error)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Agent                Pipeline
	Version              string
	WebhookRatePerMinute int
	// ApprovalTokenHash guards approve/reject when set.
	ApprovalTokenHash string
	HostProbe         HostProbe // nil omits host stats from /health
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	h := &handlers{agent: deps.Agent, version: deps.Version, probe: deps.HostProbe}
	approver := func(fn http.HandlerFunc) http.Handler {
		return auth.RequireApprover(deps.ApprovalTokenHash, fn)
	}

	mux.HandleFunc("GET /{$}", h.handleHealth)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	webhookLimiter := NewRateLimiter(deps.WebhookRatePerMinute)
	mux.Handle("POST /webhook/alert", webhookLimiter.Middleware(http.HandlerFunc(h.handleAlert)))

	mux.HandleFunc("GET /plan/pending", h.handlePending)
	mux.Handle("POST /plan/approve", approver(h.handleApprove))
	mux.Handle("POST /plan/reject", approver(h.handleReject))
	mux.HandleFunc("GET /plan/history", h.handleHistory)

	mux.HandleFunc("GET /api/logs/ws", HandleLogStream)
}

// WithCORS allows the dashboard, served from another origin, to call the API.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", "*")
		hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		hdr.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Actor, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithRequestID tags each request with an X-Request-ID, reusing the caller's
// when present, and logs the request at debug level.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, id := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", id)
		logger := logging.ForComponent("api")
		logger.Debug().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("HTTP request")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
