// Package executor carries out approved plans. Each action type has its own
// side-effect contract; every outcome is reported as an ExecutionResult and
// never as a panic or error to the caller.
package executor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rooney011/CodeWeaver/internal/logging"
	"github.com/rooney011/CodeWeaver/internal/metrics"
	"github.com/rooney011/CodeWeaver/internal/netutil"
	"github.com/rooney011/CodeWeaver/internal/projectfs"
	"github.com/rooney011/CodeWeaver/internal/remediation"
)

// NoExecutionPath is reported for action types the executor does not know.
const NoExecutionPath = "no execution path for this action"

// Config bounds the executor's external calls.
type Config struct {
	RecoveryTimeout   time.Duration
	ScriptTimeout     time.Duration
	ScriptHTTPTimeout time.Duration
}

// DefaultConfig returns the timeouts used when none are configured.
func DefaultConfig() Config {
	return Config{
		RecoveryTimeout:   10 * time.Second,
		ScriptTimeout:     30 * time.Second,
		ScriptHTTPTimeout: 10 * time.Second,
	}
}

// Executor dispatches approved plans to their action handlers.
type Executor struct {
	cfg        Config
	root       *projectfs.Root
	httpClient *http.Client
}

// New creates an Executor. root may be nil, in which case patches fail.
func New(cfg Config, root *projectfs.Root) *Executor {
	def := DefaultConfig()
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = def.ScriptTimeout
	}
	if cfg.ScriptHTTPTimeout <= 0 {
		cfg.ScriptHTTPTimeout = def.ScriptHTTPTimeout
	}
	return &Executor{
		cfg:        cfg,
		root:       root,
		httpClient: &http.Client{Transport: netutil.NewTransport()},
	}
}

// Execute runs an approved plan's action.
func (e *Executor) Execute(ctx context.Context, plan remediation.Plan) remediation.ExecutionResult {
	logger := logging.ForComponent("executor")
	start := time.Now()

	var result remediation.ExecutionResult
	if plan.Status != remediation.StatusApproved {
		result = errorResult(fmt.Sprintf("plan %s is %s, only approved plans can be executed", plan.ID, plan.Status))
	} else {
		result = e.dispatch(ctx, plan)
	}
	result.Duration = time.Since(start)

	metrics.RecordExecution(string(plan.Action.Type), string(result.Status), result.Duration)
	event := logger.Info()
	if result.Status == remediation.ResultError {
		event = logger.Warn()
	}
	event.
		Str("plan_id", plan.ID).
		Str("action", string(plan.Action.Type)).
		Str("status", string(result.Status)).
		Dur("duration", result.Duration).
		Msg(result.Details)
	return result
}

func (e *Executor) dispatch(ctx context.Context, plan remediation.Plan) (result remediation.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = errorResult(fmt.Sprintf("execution panicked: %v", r))
		}
	}()

	a := plan.Action
	switch {
	case a.Type == remediation.ActionRunScript && a.Script != nil:
		return e.runScript(ctx, a.Script.Script)
	case a.Type == remediation.ActionApplyCodePatch && a.Patch != nil:
		return e.applyPatch(*a.Patch)
	case a.Type == remediation.ActionResolveExternal && a.Resolve != nil:
		return e.resolveExternal(ctx, a.Resolve.Target)
	case a.Type == remediation.ActionEscalate:
		return remediation.ExecutionResult{Status: remediation.ResultEscalated, Details: plan.Reason}
	default:
		return errorResult(NoExecutionPath)
	}
}

func errorResult(details string) remediation.ExecutionResult {
	return remediation.ExecutionResult{Status: remediation.ResultError, Details: details}
}
