// Package planner turns a Diagnosis into a pending Plan. Runbook rules are
// tried first; otherwise the Oracle proposes a script or patch that must pass
// the safety gate. Every failure degrades to an escalate plan.
package planner

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rooney011/CodeWeaver/internal/config"
	"github.com/rooney011/CodeWeaver/internal/logging"
	"github.com/rooney011/CodeWeaver/internal/metrics"
	"github.com/rooney011/CodeWeaver/internal/oracle"
	"github.com/rooney011/CodeWeaver/internal/projectfs"
	"github.com/rooney011/CodeWeaver/internal/remediation"
	"github.com/rooney011/CodeWeaver/internal/safety"
)

// Plan synthesis strategies, used as a metrics label.
const (
	StrategyRunbook  = "runbook"
	StrategyOracle   = "oracle"
	StrategyFallback = "fallback"
)

// DefaultMinConfidence is the lowest diagnosis confidence for which the
// Oracle is asked to generate a script or patch.
const DefaultMinConfidence = 0.8

var candidateValidate = validator.New()

// candidate is the remediation shape the Oracle is asked to produce.
type candidate struct {
	Action       string `json:"action" validate:"required,oneof=run_script apply_code_patch escalate"`
	Reason       string `json:"reason" validate:"max=2000"`
	Script       string `json:"script" validate:"required_if=Action run_script"`
	FilePath     string `json:"file_path" validate:"required_if=Action apply_code_patch"`
	OriginalCode string `json:"original_code" validate:"required_if=Action apply_code_patch"`
	FixedCode    string `json:"fixed_code"`
}

// Synthesizer builds plans from diagnoses.
type Synthesizer struct {
	oracle   oracle.Oracle
	runbooks *config.Runbooks
	root     *projectfs.Root

	minConfidence float64

	now   func() time.Time
	newID func() string
}

// NewSynthesizer creates a Synthesizer. A nil runbooks uses the defaults.
func NewSynthesizer(o oracle.Oracle, runbooks *config.Runbooks, root *projectfs.Root) *Synthesizer {
	if runbooks == nil {
		runbooks = config.DefaultRunbooks()
	}
	return &Synthesizer{
		oracle:   o,
		runbooks: runbooks,
		root:     root,

		minConfidence: DefaultMinConfidence,

		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithMinConfidence sets the confidence below which non-runbook diagnoses
// escalate without consulting the Oracle. Values outside [0,1] are clamped.
// A zero-confidence diagnosis always escalates.
func (s *Synthesizer) WithMinConfidence(threshold float64) *Synthesizer {
	s.minConfidence = math.Max(0, math.Min(1, threshold))
	return s
}

// Synthesize always returns a pending plan with a well-formed action.
func (s *Synthesizer) Synthesize(ctx context.Context, d remediation.Diagnosis) remediation.Plan {
	d = d.Normalize()
	plan := remediation.Plan{
		ID:             s.newID(),
		Status:         remediation.StatusPending,
		SafetyFindings: []string{},
		Diagnosis:      d,
		CreatedAt:      s.now().UTC(),
	}

	strategy := s.fill(ctx, &plan)

	logger := logging.ForComponent("planner")
	logger.Info().
		Str("plan_id", plan.ID).
		Str("action", string(plan.Action.Type)).
		Str("strategy", strategy).
		Int("findings", len(plan.SafetyFindings)).
		Msg("Plan synthesized")
	metrics.PlansSynthesizedTotal.WithLabelValues(string(plan.Action.Type), strategy).Inc()
	return plan
}

func (s *Synthesizer) fill(ctx context.Context, plan *remediation.Plan) string {
	d := plan.Diagnosis
	if rule, ok := s.runbooks.Match(d.RootCause, d.CodeExcerpt, d.LogExcerpt); ok {
		switch rule.Action {
		case config.RunbookActionResolveExternal:
			plan.Action = remediation.NewResolveAction(rule.Target)
		default:
			plan.Action = remediation.NewEscalateAction()
		}
		plan.Reason = rule.Reason
		if plan.Reason == "" {
			plan.Reason = fmt.Sprintf("Matched runbook rule %q", rule.Name)
		}
		return StrategyRunbook
	}

	if d.Confidence <= 0 || d.Confidence < s.minConfidence {
		escalate(plan, "Diagnosis confidence %.2f is below %.2f; needs human review: %s",
			d.Confidence, s.minConfidence, d.RootCause)
		return StrategyFallback
	}

	raw, err := s.oracle.Invoke(ctx, systemPrompt, userPrompt(d))
	if err != nil {
		escalate(plan, "Remediation synthesis failed: %v", err)
		return StrategyFallback
	}

	var c candidate
	if err := oracle.DecodeObject("planner.parse", raw, &c); err != nil {
		escalate(plan, "Remediation synthesis returned unparseable output: %v", err)
		return StrategyFallback
	}
	c.Action = strings.TrimSpace(c.Action)
	if err := candidateValidate.Struct(&c); err != nil {
		escalate(plan, "Remediation candidate failed validation: %v", err)
		return StrategyFallback
	}

	reason := strings.TrimSpace(c.Reason)
	switch remediation.ActionType(c.Action) {
	case remediation.ActionRunScript:
		return s.fillScript(plan, c, reason)
	case remediation.ActionApplyCodePatch:
		return s.fillPatch(plan, c, reason)
	default:
		if reason == "" {
			reason = "Root cause unclear or requires human intervention."
		}
		plan.Action = remediation.NewEscalateAction()
		plan.Reason = reason
		return StrategyOracle
	}
}

func (s *Synthesizer) fillScript(plan *remediation.Plan, c candidate, reason string) string {
	script := oracle.StripFences(c.Script)
	verdict := safety.Check(script)
	if verdict.Blocked {
		escalate(plan, "Generated script was blocked by the safety gate: %s", strings.Join(verdict.Findings, "; "))
		return StrategyFallback
	}
	plan.Action = remediation.NewScriptAction(safety.NormalizeScript(script))
	plan.SafetyFindings = append(plan.SafetyFindings, verdict.Findings...)
	plan.Reason = orDefault(reason, "Run generated remediation script")
	return StrategyOracle
}

func (s *Synthesizer) fillPatch(plan *remediation.Plan, c candidate, reason string) string {
	patch := remediation.PatchAction{
		FilePath:     strings.TrimSpace(c.FilePath),
		OriginalCode: c.OriginalCode,
		FixedCode:    c.FixedCode,
	}

	if s.root == nil {
		escalate(plan, "Generated patch for %s cannot be applied: no project root configured", patch.FilePath)
		return StrategyFallback
	}
	if _, err := s.root.Resolve(patch.FilePath); err != nil {
		escalate(plan, "Generated patch targets an invalid path: %v", err)
		return StrategyFallback
	}

	verdict := safety.CheckPatch(patch)
	if verdict.Blocked {
		escalate(plan, "Generated patch was blocked by the safety gate: %s", strings.Join(verdict.Findings, "; "))
		return StrategyFallback
	}

	plan.Action = remediation.Action{Type: remediation.ActionApplyCodePatch, Patch: &patch}
	plan.SafetyFindings = append(plan.SafetyFindings, verdict.Findings...)
	plan.Reason = orDefault(reason, fmt.Sprintf("Patch %s", patch.FilePath))

	content, err := s.root.ReadFile(patch.FilePath)
	if err != nil {
		plan.SafetyFindings = append(plan.SafetyFindings, fmt.Sprintf("target file cannot be read: %v", err))
	} else {
		preview, err := patchPreview(patch.FilePath, string(content), patch.OriginalCode, patch.FixedCode)
		if err != nil {
			logger := logging.ForComponent("planner")
			logger.Debug().Err(err).Msg("Failed to render patch preview")
		}
		plan.Preview = preview
		if preview == "" {
			plan.SafetyFindings = append(plan.SafetyFindings, "original code not found in the current file; the patch will be rejected at execution")
		}
	}
	return StrategyOracle
}

func escalate(plan *remediation.Plan, format string, args ...any) {
	plan.Action = remediation.NewEscalateAction()
	plan.Reason = fmt.Sprintf(format, args...)
	logger := logging.ForComponent("planner")
	logger.Warn().Str("plan_id", plan.ID).Msg(plan.Reason)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
