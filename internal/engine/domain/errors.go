package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnregisteredEventType is returned when no job definition is bound to an event type
	ErrUnregisteredEventType = errors.New("unregistered event type")

	// ErrValidation is returned when a trigger payload is malformed
	ErrValidation = errors.New("invalid trigger payload")

	// ErrStepExhausted is returned when a step used up its retry budget
	ErrStepExhausted = errors.New("step retries exhausted")

	// ErrLedgerConflict is returned when a step or trigger disagrees with what the ledger already holds
	ErrLedgerConflict = errors.New("ledger conflict")

	// ErrLeaseLost is returned when an attempt is no longer the live attempt of its step
	ErrLeaseLost = errors.New("attempt lease lost")

	// ErrEntryNotFound is returned when committing a step that has no ledger entry
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrInstanceNotFound is returned when a job instance has never been dispatched
	ErrInstanceNotFound = errors.New("job instance not found")

	// ErrDuplicateDefinition is returned when registering a job type or event type twice
	ErrDuplicateDefinition = errors.New("duplicate job definition")

	// ErrInvalidDefinition is returned when a job definition is not well formed
	ErrInvalidDefinition = errors.New("invalid job definition")
)

// ValidationError describes a malformed trigger payload
type ValidationError struct {
	EventType string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload for event %q: %s", e.EventType, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a new validation error
func NewValidationError(eventType, reason string) error {
	return &ValidationError{EventType: eventType, Reason: reason}
}

// StepError wraps a failure raised by a step body during one attempt
type StepError struct {
	Step    string
	Attempt int
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q attempt %d: %s", e.Step, e.Attempt, e.Err.Error())
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepExhaustedError reports a step that failed on every attempt it was allowed
type StepExhaustedError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepExhaustedError) Error() string {
	return fmt.Sprintf("step %q exhausted after %d attempts: %s", e.Step, e.Attempts, e.Err.Error())
}

func (e *StepExhaustedError) Unwrap() []error {
	return []error{ErrStepExhausted, e.Err}
}

// ConflictError carries the key of a ledger conflict
type ConflictError struct {
	InstanceID string
	Step       string
	Reason     string
}

func (e *ConflictError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("ledger conflict on instance %s: %s", e.InstanceID, e.Reason)
	}
	return fmt.Sprintf("ledger conflict on instance %s step %q: %s", e.InstanceID, e.Step, e.Reason)
}

func (e *ConflictError) Unwrap() error {
	return ErrLedgerConflict
}

// PermanentError marks a step failure that retrying cannot fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent error: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the executor stops retrying the step
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}
