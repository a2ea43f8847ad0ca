// Package agent wires the remediation pipeline together: alerts become
// diagnoses, diagnoses become pending plans, and operator decisions drive
// execution and archiving.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rooney011/CodeWeaver/internal/archive"
	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
	"github.com/rooney011/CodeWeaver/internal/logging"
	"github.com/rooney011/CodeWeaver/internal/metrics"
	"github.com/rooney011/CodeWeaver/internal/remediation"
)

// Alert is the payload monitoring systems post to the webhook.
type Alert struct {
	Source    string `json:"source"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	LogPath   string `json:"log_path"`
}

// Extractor turns log text into a diagnosis.
type Extractor interface {
	Extract(ctx context.Context, logText string) remediation.Diagnosis
}

// Synthesizer turns a diagnosis into a pending plan.
type Synthesizer interface {
	Synthesize(ctx context.Context, d remediation.Diagnosis) remediation.Plan
}

// PlanStore holds the plan awaiting a decision.
type PlanStore interface {
	Submit(plan remediation.Plan) error
	Peek() (remediation.Plan, bool)
	Approve(actor, planID string) (remediation.Plan, error)
	Reject(actor, planID string) (remediation.Plan, error)
}

// Executor runs approved plans.
type Executor interface {
	Execute(ctx context.Context, plan remediation.Plan) remediation.ExecutionResult
}

// Archive records decided plans. It is optional.
type Archive interface {
	Record(ctx context.Context, plan remediation.Plan, result *remediation.ExecutionResult) (archive.Entry, error)
	List(ctx context.Context, limit int) ([]archive.Entry, error)
}

// Deps are the pipeline stages the agent coordinates.
type Deps struct {
	Logs        *LogTailer
	Extractor   Extractor
	Synthesizer Synthesizer
	Store       PlanStore
	Executor    Executor
	Archive     Archive
}

// Agent coordinates the pipeline. It holds no state of its own; the plan
// store is the single source of truth for what awaits a decision.
type Agent struct {
	deps Deps
}

// New validates deps and returns an Agent.
func New(deps Deps) (*Agent, error) {
	switch {
	case deps.Logs == nil:
		return nil, fmt.Errorf("agent: log tailer is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("agent: extractor is required")
	case deps.Synthesizer == nil:
		return nil, fmt.Errorf("agent: synthesizer is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("agent: plan store is required")
	case deps.Executor == nil:
		return nil, fmt.Errorf("agent: executor is required")
	}
	return &Agent{deps: deps}, nil
}

// HandleAlert diagnoses the alert's logs and submits the resulting plan for
// approval. It fails with a state conflict while another plan is pending.
// Stages are bounded by their own timeouts, not by the caller's cancellation.
func (a *Agent) HandleAlert(ctx context.Context, alert Alert) (remediation.Plan, error) {
	ctx = context.WithoutCancel(ctx)
	logger := logging.ForComponent("agent")
	source := strings.TrimSpace(alert.Source)
	if source == "" {
		source = "unknown"
	}
	logger.Info().
		Str("source", source).
		Str("severity", alert.Severity).
		Msgf("Alert received: %s", orUnknown(alert.Message))

	if pending, ok := a.deps.Store.Peek(); ok {
		metrics.AlertsReceivedTotal.WithLabelValues(source, "conflict").Inc()
		return remediation.Plan{}, cwerrors.Conflict("agent.alert", pending.ID,
			"plan %s is still awaiting a decision", pending.ID)
	}

	var diagnosis remediation.Diagnosis
	logText, path, err := a.deps.Logs.Tail(alert.LogPath)
	switch {
	case cwerrors.IsNotFound(err):
		diagnosis = remediation.FailedDiagnosis(fmt.Sprintf("Log file not found at %s", path), "")
	case err != nil:
		diagnosis = remediation.FailedDiagnosis(fmt.Sprintf("Error reading log file: %v", err), "")
	default:
		logger.Info().Str("log_path", path).Msg("Reading recent log lines")
		diagnosis = a.deps.Extractor.Extract(ctx, logText)
	}
	logger.Info().
		Str("root_cause", diagnosis.RootCause).
		Float64("confidence", diagnosis.Confidence).
		Str("file", diagnosis.PrimaryFile).
		Msg("Diagnosis complete")

	plan := a.deps.Synthesizer.Synthesize(ctx, diagnosis)
	if err := a.deps.Store.Submit(plan); err != nil {
		metrics.AlertsReceivedTotal.WithLabelValues(source, "conflict").Inc()
		return remediation.Plan{}, err
	}
	metrics.AlertsReceivedTotal.WithLabelValues(source, "planned").Inc()
	logger.Info().
		Str("plan_id", plan.ID).
		Str("action", string(plan.Action.Type)).
		Msg("Plan waiting for approval")
	return plan, nil
}

// Pending returns the plan awaiting a decision, if any.
func (a *Agent) Pending() (remediation.Plan, bool) {
	return a.deps.Store.Peek()
}

// Approve approves the pending plan, executes it and archives the outcome.
// The returned plan carries its final executed or failed status. Once the
// slot is cleared, execution and archiving run to completion even if ctx is
// cancelled.
func (a *Agent) Approve(ctx context.Context, actor, planID string) (remediation.Plan, remediation.ExecutionResult, error) {
	ctx = context.WithoutCancel(ctx)
	plan, err := a.deps.Store.Approve(actor, planID)
	if err != nil {
		return remediation.Plan{}, remediation.ExecutionResult{}, err
	}

	result := a.deps.Executor.Execute(ctx, plan)
	if err := plan.Transition(result.PlanStatus()); err != nil {
		// Approved always moves to executed or failed.
		return plan, result, cwerrors.Conflict("agent.approve", plan.ID, "%v", err)
	}
	a.archive(ctx, plan, &result)
	return plan, result, nil
}

// Reject discards the pending plan without running it.
func (a *Agent) Reject(ctx context.Context, actor, planID string) (remediation.Plan, error) {
	ctx = context.WithoutCancel(ctx)
	plan, err := a.deps.Store.Reject(actor, planID)
	if err != nil {
		return remediation.Plan{}, err
	}
	a.archive(ctx, plan, nil)
	return plan, nil
}

// History lists archived decisions, newest first.
func (a *Agent) History(ctx context.Context, limit int) ([]archive.Entry, error) {
	if a.deps.Archive == nil {
		return []archive.Entry{}, nil
	}
	return a.deps.Archive.List(ctx, limit)
}

func (a *Agent) archive(ctx context.Context, plan remediation.Plan, result *remediation.ExecutionResult) {
	if a.deps.Archive == nil {
		return
	}
	if _, err := a.deps.Archive.Record(ctx, plan, result); err != nil {
		logger := logging.ForComponent("agent")
		logger.Error().Err(err).Str("plan_id", plan.ID).Msg("Failed to archive decided plan")
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown Alert"
	}
	return s
}
