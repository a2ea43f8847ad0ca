package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rooney011/CodeWeaver/internal/agent"
	"github.com/rooney011/CodeWeaver/internal/archive"
	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
	"github.com/rooney011/CodeWeaver/internal/hostmetrics"
	"github.com/rooney011/CodeWeaver/internal/logging"
	"github.com/rooney011/CodeWeaver/internal/remediation"
)

const (
	maxAlertBodyBytes    = 1 << 20
	maxDecisionBodyBytes = 16 << 10
	defaultActor         = "operator"

	msgNoPendingPlan = "No plan is currently waiting for approval"
)

type handlers struct {
	agent   Pipeline
	version string
	probe   HostProbe
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status  string                `json:"status"`
	Service string                `json:"service"`
	Version string                `json:"version,omitempty"`
	Host    *hostmetrics.Snapshot `json:"host,omitempty"`
}

type alertResponse struct {
	Status    string                `json:"status"`
	Message   string                `json:"message"`
	Diagnosis remediation.Diagnosis `json:"diagnosis"`
	Plan      remediation.Plan      `json:"plan"`
}

type pendingResponse struct {
	Status string            `json:"status"`
	Plan   *remediation.Plan `json:"plan"`
}

type decisionResponse struct {
	Status    string                       `json:"status"`
	Message   string                       `json:"message"`
	Plan      remediation.Plan             `json:"plan"`
	Execution *remediation.ExecutionResult `json:"execution,omitempty"`
}

type historyResponse struct {
	Entries []archive.Entry `json:"entries"`
}

// alertEnvelope accepts both a bare alert and one wrapped in "data".
type alertEnvelope struct {
	Data *agent.Alert `json:"data"`
	agent.Alert
}

type decisionRequest struct {
	PlanID string `json:"plan_id"`
	Actor  string `json:"actor"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Service: ServiceName, Version: h.version}
	if h.probe != nil {
		if snap, err := h.probe(r.Context()); err == nil {
			resp.Host = &snap
		} else {
			logger := logging.ForComponent("api")
			logger.Debug().Err(err).Msg("Host metrics unavailable")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleAlert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAlertBodyBytes)
	var env alertEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "invalid alert payload: " + err.Error()})
		return
	}
	alert := env.Alert
	if env.Data != nil {
		alert = *env.Data
	}

	plan, err := h.agent.HandleAlert(r.Context(), alert)
	if err != nil {
		h.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alertResponse{
		Status:    "waiting_for_approval",
		Message:   "Alert received and plan generated. Awaiting human approval.",
		Diagnosis: plan.Diagnosis,
		Plan:      plan,
	})
}

func (h *handlers) handlePending(w http.ResponseWriter, _ *http.Request) {
	plan, ok := h.agent.Pending()
	if !ok {
		writeJSON(w, http.StatusOK, pendingResponse{Status: "empty"})
		return
	}
	writeJSON(w, http.StatusOK, pendingResponse{Status: "pending", Plan: &plan})
}

func (h *handlers) handleApprove(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDecision(w, r)
	if !ok {
		return
	}
	plan, result, err := h.agent.Approve(r.Context(), req.Actor, req.PlanID)
	if err != nil {
		if cwerrors.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, statusResponse{Status: "error", Message: msgNoPendingPlan})
			return
		}
		h.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{
		Status:    "approved",
		Message:   "Plan approved and executed",
		Plan:      plan,
		Execution: &result,
	})
}

func (h *handlers) handleReject(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDecision(w, r)
	if !ok {
		return
	}
	plan, err := h.agent.Reject(r.Context(), req.Actor, req.PlanID)
	if err != nil {
		if cwerrors.IsNotFound(err) {
			writeJSON(w, http.StatusNotFound, statusResponse{Status: "no_pending_plan", Message: msgNoPendingPlan})
			return
		}
		h.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{
		Status:  "rejected",
		Message: "Plan has been rejected",
		Plan:    plan,
	})
}

func (h *handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	entries, err := h.agent.History(r.Context(), limit)
	if err != nil {
		h.writeAgentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

// decodeDecision reads the optional {plan_id, actor} body. An empty body is
// allowed and decides whatever plan is pending.
func decodeDecision(w http.ResponseWriter, r *http.Request) (decisionRequest, bool) {
	var req decisionRequest
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxDecisionBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "invalid decision payload: " + err.Error()})
			return req, false
		}
	}
	req.PlanID = strings.TrimSpace(req.PlanID)
	req.Actor = strings.TrimSpace(req.Actor)
	if req.Actor == "" {
		req.Actor = strings.TrimSpace(r.Header.Get("X-Actor"))
	}
	if req.Actor == "" {
		req.Actor = defaultActor
	}
	return req, true
}

func (h *handlers) writeAgentError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	label := "error"
	switch cwerrors.KindOf(err) {
	case cwerrors.KindStateConflict:
		status, label = http.StatusConflict, "conflict"
	case cwerrors.KindNotFound:
		status = http.StatusNotFound
	case cwerrors.KindInvalidInput:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger := logging.ForComponent("api")
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, statusResponse{Status: label, Message: err.Error()})
}
