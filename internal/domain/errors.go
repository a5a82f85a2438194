package domain

import (
	"errors"
	"fmt"
)

// ErrKeyNotFound indicates that a requested state key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// StateError reports which key and operation failed on a State.
type StateError struct {
	Key       string
	Operation string
	Err       error
}

// Error implements the error interface for StateError.
func (e *StateError) Error() string {
	return fmt.Sprintf("state error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StateError) Unwrap() error { return e.Err }

// NewStateError creates a new StateError with the given details.
func NewStateError(key, operation string, err error) *StateError {
	return &StateError{Key: key, Operation: operation, Err: err}
}

// MissingKey returns a StateError for a required key absent from the State.
func MissingKey[T any](key Key[T], operation string) *StateError {
	return NewStateError(key.name, operation, ErrKeyNotFound)
}

// ValidationError collects every problem found while validating one entity.
type ValidationError struct {
	Entity string
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity, Errors: make([]string, 0)}
}
