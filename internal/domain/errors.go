package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a transition guard fails. Callers
	// treat it as a programming or concurrency error, not user input.
	ErrInvalidTransition = errors.New("invalid payment transition")

	// ErrMissingReason is returned when a rejection has no usable reason.
	ErrMissingReason = errors.New("rejection reason is required")

	// ErrMissingActor is returned when no administrator identity is available.
	ErrMissingActor = errors.New("acting administrator is required")

	ErrInvalidMethod = errors.New("invalid payment method")
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidRecord = errors.New("invalid payment record")
)

// TransitionError identifies the attempted transition and the state it was
// attempted from.
type TransitionError struct {
	Transition string
	From       Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed from %s", e.Transition, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
