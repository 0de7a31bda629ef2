// Package apperrors defines the error-kind taxonomy shared across the
// kline pipeline, optimizer, evaluator, and scheduler so that HTTP handlers
// and the scheduler can classify a failure without string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy's buckets.
type Kind string

const (
	// ConfigNotFound means a requested configuration entity id does not
	// exist.
	ConfigNotFound Kind = "config_not_found"
	// UpstreamUnavailable means the exchange API or the database was
	// unreachable.
	UpstreamUnavailable Kind = "upstream_unavailable"
	// IntegrityViolation means a kline gap-detection check failed.
	IntegrityViolation Kind = "integrity_violation"
	// Cancelled means cooperative cancellation was observed.
	Cancelled Kind = "cancelled"
	// InvalidTransition means a task state machine transition was
	// rejected.
	InvalidTransition Kind = "invalid_transition"
	// VariableTypeMismatch means clone_with_new_parameters received a
	// Variable of the wrong shape.
	VariableTypeMismatch Kind = "variable_type_mismatch"
)

// CancelledMessage is the exact result string a cancelled worker reports;
// the scheduler recognizes it as a non-failure.
const CancelledMessage = "Task was cancelled"

// Error wraps an underlying error with a Kind and the operation that
// produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error for op with the given kind, optionally wrapping err.
func New(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error; the zero Kind otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
