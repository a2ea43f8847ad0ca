// Package oracle talks to the external text-generation service that turns log
// text into diagnoses and diagnoses into remediation candidates. Every response
// is treated as untrusted text.
package oracle

import (
	"context"
	"errors"

	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
)

// Oracle maps a system instruction and user content to generated text.
type Oracle interface {
	Invoke(ctx context.Context, system, user string) (string, error)
	Name() string
}

// Unavailable is the Oracle used when no provider is configured. Every call
// fails, so the pipeline degrades to zero-confidence diagnoses and escalations.
type Unavailable struct{}

// Name returns "none".
func (Unavailable) Name() string { return "none" }

// Invoke always fails.
func (Unavailable) Invoke(context.Context, string, string) (string, error) {
	return "", cwerrors.Transient("oracle.invoke", "none", errors.New("no oracle provider configured"))
}
