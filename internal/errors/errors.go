package errors

import (
	stderrors "errors"
	"fmt"
)

// DocError is the structured error type for docvector.
// It provides rich context for error handling, logging, and user presentation.
type DocError struct {
	// Code is the unique error code (e.g., "ERR_201_ROOT_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *DocError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with DocError.
func (e *DocError) Is(target error) bool {
	if t, ok := target.(*DocError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *DocError) WithDetail(key, value string) *DocError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new DocError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *DocError {
	return &DocError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DocError from an existing error.
// The error's message becomes the DocError message.
func Wrap(code string, err error) *DocError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DocError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// NotFoundError creates an error for a missing root path or file.
func NotFoundError(message string, cause error) *DocError {
	return New(ErrCodeRootNotFound, message, cause)
}

// ConnectionError creates a backend-connectivity error. Fatal at phase entry.
func ConnectionError(message string, cause error) *DocError {
	return New(ErrCodeBackendUnavailable, message, cause)
}

// SchemaValidationError creates a direct-metadata validation error.
// Fields should name every missing, unknown, or disallowed field.
func SchemaValidationError(message string, fields []string) *DocError {
	e := New(ErrCodeSchemaValidation, message, nil)
	for _, f := range fields {
		e.WithDetail(f, "invalid")
	}
	return e
}

// IsFatal checks if an error has fatal severity, unwrapping as needed.
// Fatal errors abort the current pipeline run.
func IsFatal(err error) bool {
	var de *DocError
	if stderrors.As(err, &de) {
		return de.Severity == SeverityFatal
	}
	return false
}

// IsRetryable checks if an error is retryable, unwrapping as needed.
func IsRetryable(err error) bool {
	var de *DocError
	if stderrors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// GetCode extracts the error code from a DocError anywhere in the chain.
// Returns empty string if none is found.
func GetCode(err error) string {
	var de *DocError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}
