// Package approval holds the single plan awaiting an operator decision and
// enforces the pending -> approved/rejected state machine.
package approval

import (
	"errors"
	"sync"
	"time"

	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
	"github.com/rooney011/CodeWeaver/internal/metrics"
	"github.com/rooney011/CodeWeaver/internal/remediation"
	"github.com/rs/zerolog/log"
)

var errNoPendingPlan = errors.New("no pending plan")

// Store is a lock-guarded single-slot queue. At most one plan is pending at a
// time; deciding a plan clears the slot and hands the plan to the caller.
type Store struct {
	mu      sync.Mutex
	pending *remediation.Plan
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Submit places plan in the empty slot. It fails with a state conflict if a
// plan is already pending; the pending plan is left untouched.
func (s *Store) Submit(plan remediation.Plan) error {
	if plan.Status != remediation.StatusPending {
		return cwerrors.Conflict("approval.submit", plan.ID, "plan status is %s, want %s", plan.Status, remediation.StatusPending)
	}
	if err := plan.Action.Validate(); err != nil {
		return cwerrors.New(cwerrors.KindInvalidInput, "approval.submit", plan.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return cwerrors.Conflict("approval.submit", plan.ID, "plan %s is already awaiting a decision", s.pending.ID)
	}
	stored := plan.Clone()
	s.pending = &stored
	metrics.PendingPlans.Set(1)

	log.Info().
		Str("plan_id", plan.ID).
		Str("action", string(plan.Action.Type)).
		Msg("Plan submitted for approval")
	return nil
}

// Peek returns a copy of the pending plan, if any.
func (s *Store) Peek() (remediation.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return remediation.Plan{}, false
	}
	return s.pending.Clone(), true
}

// Approve marks the pending plan approved, clears the slot and returns it.
// A non-empty planID must match the pending plan.
func (s *Store) Approve(actor, planID string) (remediation.Plan, error) {
	return s.decide("approval.approve", remediation.StatusApproved, actor, planID)
}

// Reject marks the pending plan rejected, clears the slot and returns it.
// A non-empty planID must match the pending plan.
func (s *Store) Reject(actor, planID string) (remediation.Plan, error) {
	return s.decide("approval.reject", remediation.StatusRejected, actor, planID)
}

func (s *Store) decide(op string, to remediation.Status, actor, planID string) (remediation.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return remediation.Plan{}, cwerrors.NotFound(op, planID, errNoPendingPlan)
	}
	if planID != "" && planID != s.pending.ID {
		return remediation.Plan{}, cwerrors.Conflict(op, planID, "pending plan is %s", s.pending.ID)
	}

	plan := s.pending.Clone()
	if err := plan.Transition(to); err != nil {
		return remediation.Plan{}, cwerrors.Conflict(op, plan.ID, "%v", err)
	}
	decidedAt := s.now().UTC()
	plan.DecidedAt = &decidedAt
	plan.DecidedBy = actor

	s.pending = nil
	metrics.PendingPlans.Set(0)
	metrics.DecisionsTotal.WithLabelValues(string(to)).Inc()

	log.Info().
		Str("plan_id", plan.ID).
		Str("decision", string(to)).
		Str("actor", actor).
		Msg("Plan decided")
	return plan, nil
}
