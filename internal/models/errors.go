package models

import (
	"errors"
	"fmt"
)

// Custom errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
)

// ValidationError represents a caller mistake: bad request shape, an invalid
// state transition, or a dataset that cannot serve the requested run type.
// It maps to a 4xx response and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewValidationError creates a validation error with a formatted reason
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvalidTransitionError signals a state-machine transition that is not
// permitted from the run's current status.
type InvalidTransitionError struct {
	From   RunStatus
	To     RunStatus
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s run in status %s (target %s)", e.Action, e.From, e.To)
}

// IsInvalidTransition reports whether err is an invalid transition error
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}
