package errors

import (
	"fmt"
)

// BioError is the structured error type for biosearch.
// It provides rich context for error handling, logging, and API responses.
type BioError struct {
	// Code is the unique error code (e.g., "ERR_402_QUERY_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Service, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *BioError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *BioError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with BioError.
func (e *BioError) Is(target error) bool {
	if t, ok := target.(*BioError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *BioError) WithDetail(key, value string) *BioError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *BioError) WithSuggestion(suggestion string) *BioError {
	e.Suggestion = suggestion
	return e
}

// New creates a new BioError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *BioError {
	return &BioError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a BioError from an existing error.
// The error's message becomes the BioError message.
func Wrap(code string, err error) *BioError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *BioError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates an index or snapshot store error.
func StorageError(message string, cause error) *BioError {
	return New(ErrCodeSnapshotStore, message, cause)
}

// ServiceError creates an external service error.
// Service errors are typically retryable.
func ServiceError(message string, cause error) *BioError {
	return New(ErrCodeServiceUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *BioError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *BioError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := err.(*BioError); ok {
		return be.Retryable
	}
	return false
}

// IsValidation checks if an error is a validation error.
// API handlers use this to map errors to 400 responses.
func IsValidation(err error) bool {
	if be, ok := err.(*BioError); ok {
		return be.Category == CategoryValidation
	}
	return false
}

// GetCode extracts the error code from a BioError.
// Returns empty string if not a BioError.
func GetCode(err error) string {
	if be, ok := err.(*BioError); ok {
		return be.Code
	}
	return ""
}

// GetCategory extracts the category from a BioError.
func GetCategory(err error) Category {
	if be, ok := err.(*BioError); ok {
		return be.Category
	}
	return ""
}
