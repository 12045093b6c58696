// Package apperr defines the error taxonomy shared by the scheduling engine:
// validation, conflict, stale state and upstream failures.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the viewer is not allowed to act on a record.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports malformed input. It is never persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports that a slot is not bookable, with every reason found.
type ConflictError struct {
	Reasons []string
}

func (e *ConflictError) Error() string {
	if len(e.Reasons) == 0 {
		return "conflict"
	}
	return "conflict: " + strings.Join(e.Reasons, "; ")
}

// StaleStateError reports that a transition's precondition no longer holds.
// Callers should refresh and retry; nothing retries automatically.
type StaleStateError struct {
	ID            string
	Action        string
	Status        string
	PaymentStatus string
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("stale state: %s not allowed on %s (status=%s payment=%s)", e.Action, e.ID, e.Status, e.PaymentStatus)
}

// UpstreamError wraps a record store or collaborator failure.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as an UpstreamError unless it already carries a taxonomy type.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTyped(err) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// IsTyped reports whether err already belongs to the taxonomy.
func IsTyped(err error) bool {
	var (
		ve *ValidationError
		ce *ConflictError
		se *StaleStateError
		ue *UpstreamError
	)
	return errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &se) || errors.As(err, &ue) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden)
}
