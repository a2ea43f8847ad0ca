// Package remediation defines the records that flow through the remediation
// pipeline: diagnoses, plans and execution results.
package remediation

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Unknown is the sentinel used for diagnosis fields the Oracle did not supply.
const Unknown = "unknown"

// Diagnosis is the structured reading of recent log text.
type Diagnosis struct {
	RootCause     string   `json:"root_cause"`
	Confidence    float64  `json:"confidence"`
	PrimaryFile   string   `json:"primary_file"`
	InvolvedFiles []string `json:"involved_files"`
	LineNumber    string   `json:"line_number"`
	CodeExcerpt   string   `json:"code_excerpt"`
	SourceContext string   `json:"source_context,omitempty"`
	// LogExcerpt is the windowed log text the diagnosis was derived from.
	LogExcerpt string `json:"log_excerpt,omitempty"`
}

// FailedDiagnosis returns the zero-confidence diagnosis used whenever
// extraction cannot produce a real one.
func FailedDiagnosis(reason, logText string) Diagnosis {
	return Diagnosis{RootCause: reason, LogExcerpt: logText}.Normalize()
}

// Normalize fills sentinels, clamps confidence and de-duplicates the
// involved file list while keeping its order.
func (d Diagnosis) Normalize() Diagnosis {
	d.RootCause = strings.TrimSpace(d.RootCause)
	if d.RootCause == "" {
		d.RootCause = Unknown
	}
	switch {
	case math.IsNaN(d.Confidence), d.Confidence < 0:
		d.Confidence = 0
	case d.Confidence > 1:
		d.Confidence = 1
	}
	d.PrimaryFile = strings.TrimSpace(d.PrimaryFile)
	if d.PrimaryFile == "" {
		d.PrimaryFile = Unknown
	}
	d.LineNumber = strings.TrimSpace(d.LineNumber)
	if d.LineNumber == "" {
		d.LineNumber = Unknown
	}

	seen := make(map[string]struct{}, len(d.InvolvedFiles))
	files := make([]string, 0, len(d.InvolvedFiles))
	for _, f := range d.InvolvedFiles {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		files = append(files, f)
	}
	d.InvolvedFiles = files
	return d
}

// HasLocation reports whether both the file and line are known.
func (d Diagnosis) HasLocation() bool {
	return d.PrimaryFile != "" && d.PrimaryFile != Unknown &&
		d.LineNumber != "" && d.LineNumber != Unknown
}

// ActionType tags the populated variant of an Action.
type ActionType string

const (
	ActionRunScript       ActionType = "run_script"
	ActionApplyCodePatch  ActionType = "apply_code_patch"
	ActionResolveExternal ActionType = "resolve_external"
	ActionEscalate        ActionType = "escalate"
)

// ScriptAction runs a gated script in the restricted runtime.
type ScriptAction struct {
	Script string `json:"script"`
}

// PatchAction replaces the first occurrence of OriginalCode with FixedCode.
type PatchAction struct {
	FilePath     string `json:"file_path"`
	OriginalCode string `json:"original_code"`
	FixedCode    string `json:"fixed_code"`
}

// ResolveAction calls a recovery endpoint once.
type ResolveAction struct {
	Target string `json:"target"`
}

// EscalateAction hands the incident to a human.
type EscalateAction struct{}

// Action is a tagged variant; exactly one payload matches Type.
type Action struct {
	Type     ActionType      `json:"type"`
	Script   *ScriptAction   `json:"script,omitempty"`
	Patch    *PatchAction    `json:"patch,omitempty"`
	Resolve  *ResolveAction  `json:"resolve,omitempty"`
	Escalate *EscalateAction `json:"escalate,omitempty"`
}

// NewScriptAction builds a run_script action.
func NewScriptAction(script string) Action {
	return Action{Type: ActionRunScript, Script: &ScriptAction{Script: script}}
}

// NewPatchAction builds an apply_code_patch action.
func NewPatchAction(filePath, original, fixed string) Action {
	return Action{Type: ActionApplyCodePatch, Patch: &PatchAction{
		FilePath:     filePath,
		OriginalCode: original,
		FixedCode:    fixed,
	}}
}

// NewResolveAction builds a resolve_external action.
func NewResolveAction(target string) Action {
	return Action{Type: ActionResolveExternal, Resolve: &ResolveAction{Target: target}}
}

// NewEscalateAction builds an escalate action.
func NewEscalateAction() Action {
	return Action{Type: ActionEscalate, Escalate: &EscalateAction{}}
}

// Validate checks that exactly one payload is set and that it matches Type.
func (a Action) Validate() error {
	populated := 0
	for _, set := range []bool{a.Script != nil, a.Patch != nil, a.Resolve != nil, a.Escalate != nil} {
		if set {
			populated++
		}
	}
	if populated != 1 {
		return fmt.Errorf("action must carry exactly one payload, found %d", populated)
	}

	var ok bool
	switch a.Type {
	case ActionRunScript:
		ok = a.Script != nil
	case ActionApplyCodePatch:
		ok = a.Patch != nil
	case ActionResolveExternal:
		ok = a.Resolve != nil
	case ActionEscalate:
		ok = a.Escalate != nil
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if !ok {
		return fmt.Errorf("payload does not match action type %q", a.Type)
	}
	return nil
}

// Clone returns a deep copy so callers can never alias a stored plan's payload.
func (a Action) Clone() Action {
	out := Action{Type: a.Type}
	if a.Script != nil {
		s := *a.Script
		out.Script = &s
	}
	if a.Patch != nil {
		p := *a.Patch
		out.Patch = &p
	}
	if a.Resolve != nil {
		r := *a.Resolve
		out.Resolve = &r
	}
	if a.Escalate != nil {
		out.Escalate = &EscalateAction{}
	}
	return out
}

// Status is a plan's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusExecuted, StatusFailed},
}

// CanTransition reports whether from -> to moves the lifecycle forward.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Plan is a candidate or decided remediation.
type Plan struct {
	ID             string     `json:"id"`
	Action         Action     `json:"action"`
	Reason         string     `json:"reason"`
	Status         Status     `json:"status"`
	SafetyFindings []string   `json:"safety_findings"`
	Diagnosis      Diagnosis  `json:"diagnosis"`
	Preview        string     `json:"preview,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	DecidedBy      string     `json:"decided_by,omitempty"`
}

// Transition moves the plan forward or returns an error naming the illegal move.
func (p *Plan) Transition(to Status) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("plan %s cannot move from %s to %s", p.ID, p.Status, to)
	}
	p.Status = to
	return nil
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	out := p
	out.Action = p.Action.Clone()
	out.SafetyFindings = append([]string(nil), p.SafetyFindings...)
	out.Diagnosis.InvolvedFiles = append([]string(nil), p.Diagnosis.InvolvedFiles...)
	if p.DecidedAt != nil {
		t := *p.DecidedAt
		out.DecidedAt = &t
	}
	return out
}

// ResultStatus is the outcome of executing a plan.
type ResultStatus string

const (
	ResultSuccess   ResultStatus = "success"
	ResultError     ResultStatus = "error"
	ResultEscalated ResultStatus = "escalated"
)

// ExecutionResult reports what the executor did.
type ExecutionResult struct {
	Status     ResultStatus  `json:"status"`
	Details    string        `json:"details"`
	BackupPath string        `json:"backup_path,omitempty"`
	Output     string        `json:"output,omitempty"`
	Duration   time.Duration `json:"duration_ms"`
}

// PlanStatus maps an execution outcome to the plan's terminal status.
func (r ExecutionResult) PlanStatus() Status {
	if r.Status == ResultError {
		return StatusFailed
	}
	return StatusExecuted
}
