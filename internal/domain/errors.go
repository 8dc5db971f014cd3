package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveSession is returned when an action needs a session and the terminal is on the main screen
	ErrNoActiveSession = errors.New("no active session")

	// ErrInvalidAction is returned when an action does not apply to the current kind or step
	ErrInvalidAction = errors.New("invalid action for current step")

	// ErrOperationPending is returned while a step-bound asynchronous operation is outstanding
	ErrOperationPending = errors.New("operation pending")

	// ErrSessionCompleted is returned when an action tries to mutate a completed session
	ErrSessionCompleted = errors.New("session already completed")

	// ErrStepLocked is returned when back navigation is attempted during processing
	ErrStepLocked = errors.New("step does not allow going back")

	// ErrRecordNotFound is returned by record repositories for unknown IDs
	ErrRecordNotFound = errors.New("transaction record not found")
)

// ValidationError is a user-recoverable rejection. The session is left unchanged
// and Reason is meant to be shown inline on the current screen.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a new ValidationError instance
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
