package errors

import (
	"errors"
	"fmt"
)

// Generic error types

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a backing service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Model lifecycle errors

var (
	// ErrInsufficientData indicates too few valid records to train a model
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrPersistence indicates a trained model could not be saved
	ErrPersistence = errors.New("model persistence failed")

	// ErrActivationConflict indicates a concurrent activation was detected
	ErrActivationConflict = errors.New("model activation conflict")

	// ErrNoActiveModel indicates no model is currently in production
	ErrNoActiveModel = errors.New("no active model")

	// ErrIntegrity indicates the registry and the artifact store disagree
	ErrIntegrity = errors.New("registry and artifact store out of sync")

	// ErrTrainingTimeout indicates training exceeded its execution budget
	ErrTrainingTimeout = errors.New("training timed out")

	// ErrInvalidPolicy indicates a label policy that does not fit the cluster count
	ErrInvalidPolicy = errors.New("invalid label policy")
)

// Classification and audit errors

var (
	// ErrClassificationInput indicates a record whose features cannot be used by the model
	ErrClassificationInput = errors.New("invalid classification input")

	// ErrAuditWrite indicates an audit trail write failed (non-fatal)
	ErrAuditWrite = errors.New("audit write failed")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap lets validation errors match ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// MultiError wraps multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[0])
}

// Unwrap exposes every collected error to errors.Is / errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Kind returns a short machine-readable name for the lifecycle sentinel err wraps.
// Unknown errors map to "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrActivationConflict):
		return "activation_conflict"
	case errors.Is(err, ErrNoActiveModel):
		return "no_active_model"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrTrainingTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidPolicy):
		return "invalid_policy"
	case errors.Is(err, ErrClassificationInput):
		return "classification_input"
	case errors.Is(err, ErrAuditWrite):
		return "audit_write"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	}
	return "internal"
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WithKind wraps err with message and marks it with a lifecycle sentinel,
// so errors.Is matches both kind and the original cause.
func WithKind(kind error, err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", message, kind, err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
