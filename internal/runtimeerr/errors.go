// Package runtimeerr defines the error-kind taxonomy shared by every
// component of the agent runtime (spec.md §7), following the teacher's
// structured-error-with-classification pattern (internal/agent/errors.go)
// generalized from tool-only errors to every collaborator contract.
package runtimeerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry logic and caller-facing reporting.
type Kind string

const (
	NotFound           Kind = "not_found"
	InvalidArgument    Kind = "invalid_argument"
	PreconditionFailed Kind = "precondition_failed"
	Unauthenticated    Kind = "unauthenticated"
	TransientUpstream  Kind = "transient_upstream"
	PermanentUpstream  Kind = "permanent_upstream"
	Timeout            Kind = "timeout"
	Cancelled          Kind = "cancelled"
	BudgetExceeded     Kind = "budget_exceeded"
	ToolFailed         Kind = "tool_failed"
	Internal           Kind = "internal"
)

// Retryable reports whether an error of this kind is worth retrying under
// the ModelClient/Store retry budget.
func (k Kind) Retryable() bool {
	switch k {
	case TransientUpstream, Timeout:
		return true
	default:
		return false
	}
}

// Error is a structured runtime error: a Kind, the operation that failed,
// and the wrapped cause. It implements Unwrap so callers can use
// errors.Is/errors.As against both Error and the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an Error.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind of an error, defaulting to Internal if the
// error isn't (or doesn't wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
