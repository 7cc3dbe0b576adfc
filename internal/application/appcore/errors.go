package appcore

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// ErrCommandRejected is returned when a business rule rejects a command.
	// Nothing was persisted; the caller may correct the input and resubmit.
	ErrCommandRejected = errors.New("command rejected")

	// ErrUnknownCommand is returned when no handler is registered for a
	// command type. This is a configuration error, not a runtime condition.
	ErrUnknownCommand = errors.New("no handler registered for command")

	// ErrDuplicateHandler is returned when a second handler is registered
	// for the same command type.
	ErrDuplicateHandler = errors.New("handler already registered for command")

	// ErrNotFound is returned when a read model is absent. Absence is a
	// normal result, not an exceptional condition.
	ErrNotFound = errors.New("resource not found")

	// ErrValidationFailed is returned when command input fails validation.
	ErrValidationFailed = errors.New("validation failed")
)

// RejectionError wraps a business-rule failure with its reason. It unwraps
// to ErrCommandRejected so callers can test with errors.Is.
type RejectionError struct {
	Command string
	Reason  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("command %s rejected: %s", e.Command, e.Reason)
}

// Unwrap makes errors.Is(err, ErrCommandRejected) succeed.
func (e *RejectionError) Unwrap() error {
	return ErrCommandRejected
}

// NewRejectionError creates a RejectionError.
func NewRejectionError(command, reason string) error {
	return &RejectionError{Command: command, Reason: reason}
}

// ValidationError represents a validation error with field context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Unwrap makes errors.Is(err, ErrValidationFailed) succeed.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// TransientError marks a projection-side failure as retryable: the engine
// retries with backoff and does not advance the applied-sequence marker.
// Failures not marked transient are routed to the dead letter store.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MarkTransient wraps err as retryable.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
