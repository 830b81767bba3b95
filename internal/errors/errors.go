// Package errors holds the error taxonomy shared by every feedoracle package.
//
// This file provides:
// - Stable response codes for whatever boundary wraps the core
// - Sentinel errors for all error conditions
// - Error category checking functions
// - ErrorToCode and CodeToError mapping
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Response codes
// ============================================================================

const (
	CodeUnknown          int32 = 1
	CodeInvalidRequest   int32 = 2
	CodeNotFound         int32 = 3
	CodeAlreadyExists    int32 = 4
	CodeNoCalculator     int32 = 5
	CodeArityMismatch    int32 = 6
	CodeInvalidInput     int32 = 7
	CodePermissionDenied int32 = 8
	CodeCyclicDependency int32 = 9
	CodeInternal         int32 = 10
	CodeUpstream         int32 = 11
	CodeTimeout          int32 = 12
)

// CodeName returns a human-readable name for an error code.
func CodeName(code int32) string {
	switch code {
	case CodeUnknown:
		return "Unknown"
	case CodeInvalidRequest:
		return "InvalidRequest"
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodeNoCalculator:
		return "NoCalculator"
	case CodeArityMismatch:
		return "ArityMismatch"
	case CodeInvalidInput:
		return "InvalidInput"
	case CodePermissionDenied:
		return "PermissionDenied"
	case CodeCyclicDependency:
		return "CyclicDependency"
	case CodeInternal:
		return "Internal"
	case CodeUpstream:
		return "Upstream"
	case CodeTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Not found errors
	ErrNotFound           = errors.New("not found")
	ErrFeedNotFound       = errors.New("feed not found")
	ErrCalculatorNotFound = errors.New("no calculator registered")

	// Already exists errors
	ErrAlreadyExists     = errors.New("already exists")
	ErrFeedAlreadyExists = errors.New("feed already exists")

	// Calculator graph configuration errors
	ErrArityMismatch    = errors.New("input parameter count mismatch")
	ErrCyclicDependency = errors.New("cyclic calculator dependency")
	ErrDepthExceeded    = errors.New("resolution depth exceeded")

	// Validation errors
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Authorization errors
	ErrPermissionDenied = errors.New("permission denied")

	// Upstream/producer errors
	ErrUpstream = errors.New("upstream error")
	ErrTimeout  = errors.New("timeout")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsNotFound returns true if err is a not-found error.
// A missing calculator is reported separately by IsNoCalculator.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrFeedNotFound)
}

// IsNoCalculator returns true if err reports an unregistered output feed type.
func IsNoCalculator(err error) bool {
	return errors.Is(err, ErrCalculatorNotFound)
}

// IsAlreadyExists returns true if err is an already-exists error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrFeedAlreadyExists)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// IsConfigurationError returns true if err stems from a misconfigured
// calculator graph rather than from missing or bad data.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrArityMismatch) ||
		errors.Is(err, ErrCyclicDependency) ||
		errors.Is(err, ErrDepthExceeded)
}

// IsRetriable returns true if the error is potentially retriable.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUpstream)
}

// ============================================================================
// Error to code mapping
// ============================================================================

// ErrorToCode maps a sentinel error to its response code.
func ErrorToCode(err error) int32 {
	if err == nil {
		return CodeUnknown
	}

	switch {
	case Is(err, ErrPermissionDenied):
		return CodePermissionDenied

	case IsNoCalculator(err):
		return CodeNoCalculator

	case IsNotFound(err):
		return CodeNotFound

	case IsAlreadyExists(err):
		return CodeAlreadyExists

	case Is(err, ErrArityMismatch):
		return CodeArityMismatch

	case Is(err, ErrCyclicDependency), Is(err, ErrDepthExceeded):
		return CodeCyclicDependency

	case Is(err, ErrInvalidInput):
		return CodeInvalidInput

	case IsValidation(err):
		return CodeInvalidRequest

	case Is(err, ErrTimeout):
		return CodeTimeout
	case Is(err, ErrUpstream):
		return CodeUpstream

	default:
		return CodeInternal
	}
}

// CodeToError maps a response code back to a sentinel error (for clients).
func CodeToError(code int32) error {
	switch code {
	case CodeInvalidRequest:
		return ErrInvalidConfig
	case CodeNotFound:
		return ErrNotFound
	case CodeAlreadyExists:
		return ErrAlreadyExists
	case CodeNoCalculator:
		return ErrCalculatorNotFound
	case CodeArityMismatch:
		return ErrArityMismatch
	case CodeInvalidInput:
		return ErrInvalidInput
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodeCyclicDependency:
		return ErrCyclicDependency
	case CodeUpstream:
		return ErrUpstream
	case CodeTimeout:
		return ErrTimeout
	default:
		return ErrInternal
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewAlreadyExists creates an already-exists error with context.
func NewAlreadyExists(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrAlreadyExists)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// NewInvalidInput creates an invalid-input error for numerical inputs.
func NewInvalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
