package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrTimeout           = errors.New("timeout")
	ErrInvalidInput      = errors.New("invalid input")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrMalformedOutput   = errors.New("malformed output")
	ErrUnsafeCode        = errors.New("unsafe code")
	ErrPatchMismatch     = errors.New("original code section not found")
)

// Kind classifies a failure in the remediation pipeline.
type Kind string

const (
	// KindTransientExternal covers Oracle/network failures and timeouts.
	KindTransientExternal Kind = "transient_external"
	// KindMalformedOutput covers Oracle responses that do not satisfy the schema.
	KindMalformedOutput Kind = "malformed_output"
	// KindCatastrophicUnsafe covers generated code that must never run (unparseable).
	KindCatastrophicUnsafe Kind = "catastrophic_unsafe"
	// KindPolicyWarning covers denylisted but non-fatal constructs.
	KindPolicyWarning Kind = "policy_warning"
	// KindStateConflict covers lifecycle operations attempted in the wrong state.
	KindStateConflict Kind = "state_conflict"
	// KindPatchMismatch covers patches whose original code is not present verbatim.
	KindPatchMismatch Kind = "patch_mismatch"
	// KindNotFound covers missing plans and missing files.
	KindNotFound Kind = "not_found"
	// KindInvalidInput covers caller supplied values that fail validation.
	KindInvalidInput Kind = "invalid_input"
)

// RemediationError is a structured error for pipeline operations
type RemediationError struct {
	Kind      Kind
	Op        string // Operation that failed (e.g., "oracle.invoke", "patch.apply")
	Subject   string // Plan ID, file path or endpoint involved
	Err       error
	Timestamp time.Time
}

func (e *RemediationError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Subject, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RemediationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *RemediationError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindStateConflict
	case ErrMalformedOutput:
		return e.Kind == KindMalformedOutput
	case ErrUnsafeCode:
		return e.Kind == KindCatastrophicUnsafe
	case ErrPatchMismatch:
		return e.Kind == KindPatchMismatch
	case ErrOracleUnavailable:
		return e.Kind == KindTransientExternal
	}

	return errors.Is(e.Err, target)
}

// New creates a new RemediationError
func New(kind Kind, op, subject string, err error) *RemediationError {
	return &RemediationError{
		Kind:      kind,
		Op:        op,
		Subject:   subject,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Conflict wraps a lifecycle state conflict.
func Conflict(op, subject string, format string, args ...any) error {
	return New(KindStateConflict, op, subject, fmt.Errorf(format, args...))
}

// NotFound wraps a missing plan or file.
func NotFound(op, subject string, err error) error {
	return New(KindNotFound, op, subject, err)
}

// Transient wraps an Oracle or network failure.
func Transient(op, subject string, err error) error {
	return New(KindTransientExternal, op, subject, err)
}

// Malformed wraps an Oracle response that failed parsing or validation.
func Malformed(op string, err error) error {
	return New(KindMalformedOutput, op, "", err)
}

// KindOf returns the Kind of err, or "" when err is not a RemediationError.
func KindOf(err error) Kind {
	var remErr *RemediationError
	if errors.As(err, &remErr) {
		return remErr.Kind
	}
	return ""
}

// IsConflict reports whether err is a lifecycle state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err refers to a missing plan or file.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
