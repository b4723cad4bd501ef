// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidID    = errors.New("invalid ID")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// Lifecycle errors
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrPreconditionUnmet = errors.New("precondition unmet")
	ErrAlreadyEvaluated  = errors.New("gate already evaluated")
	ErrAlreadyResolved   = errors.New("evaluation already resolved")

	// Storage errors
	ErrPersistenceFailure     = errors.New("persistence failure")
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "participant", "gate", "cohort"
	Op      string // Operation that failed, e.g., "Transition", "Evaluate"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Participant domain errors
var (
	ErrParticipantNotFound = NewDomainError("participant", "Find", ErrNotFound, "participant not found")
	ErrTerminalState       = NewDomainError("participant", "Transition", ErrInvalidTransition, "participant is in a terminal state")
	ErrStaleFromState      = NewDomainError("participant", "Transition", ErrConcurrentModification, "participant state changed concurrently")
)

// Cohort domain errors
var (
	ErrCohortNotFound = NewDomainError("cohort", "Find", ErrNotFound, "cohort not found")
	ErrInvalidTZ      = NewDomainError("cohort", "Validate", ErrInvalidInput, "unknown cohort timezone")
)

// Gate domain errors
var (
	ErrEvaluationNotFound = NewDomainError("gate", "Find", ErrNotFound, "gate evaluation not found")
	ErrDuplicateGate      = NewDomainError("gate", "Record", ErrAlreadyEvaluated, "gate already evaluated for participant")
	ErrNotResolvable      = NewDomainError("gate", "Resolve", ErrPreconditionUnmet, "only INTERVENTION_REQUIRED evaluations can be resolved")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsInvalidTransition checks if the error is a rejected lifecycle transition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsPreconditionUnmet checks if the error is a failed business precondition.
func IsPreconditionUnmet(err error) bool {
	return errors.Is(err, ErrPreconditionUnmet)
}

// IsAlreadyEvaluated reports whether a gate evaluation insert hit the uniqueness key.
func IsAlreadyEvaluated(err error) bool {
	return errors.Is(err, ErrAlreadyEvaluated)
}

// IsPersistence checks if the error came from the storage layer.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrEmptyValue)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceFailure) ||
		errors.Is(err, ErrConcurrentModification)
}
