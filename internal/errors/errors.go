package errors

import (
	"errors"
	"fmt"
)

// CorpusError is the structured error type for corpusctl.
// It provides rich context for error handling, logging, and user presentation.
type CorpusError struct {
	// Code is the unique error code (e.g., "ERR_201_RESOURCE_CONFLICT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Resource, Network, etc.).
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
func (e *CorpusError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CorpusError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with CorpusError.
func (e *CorpusError) Is(target error) bool {
	if t, ok := target.(*CorpusError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *CorpusError) WithDetail(key, value string) *CorpusError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *CorpusError) WithSuggestion(suggestion string) *CorpusError {
	e.Suggestion = suggestion
	return e
}

// New creates a new CorpusError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CorpusError {
	return &CorpusError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CorpusError from an existing error.
// The error's message becomes the CorpusError message.
func Wrap(code string, err error) *CorpusError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
// Configuration errors are surfaced before any remote resource is touched.
func ConfigError(message string, cause error) *CorpusError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ConflictError creates an "already exists" error for a named resource.
func ConflictError(message string, cause error) *CorpusError {
	return New(ErrCodeResourceConflict, message, cause)
}

// NotFoundError creates a "resource not found" error.
func NotFoundError(message string, cause error) *CorpusError {
	return New(ErrCodeResourceNotFound, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *CorpusError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *CorpusError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *CorpusError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if any CorpusError in the chain has the Retryable flag set.
func IsRetryable(err error) bool {
	if ce := find(err); ce != nil {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if ce := find(err); ce != nil {
		return ce.Severity == SeverityFatal
	}
	return false
}

// IsNotFound reports whether err carries a resource-not-found code.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeResourceNotFound)
}

// IsConflict reports whether err carries a resource-conflict code.
func IsConflict(err error) bool {
	return HasCode(err, ErrCodeResourceConflict)
}

// HasCode reports whether any CorpusError in the tree of err has one of codes.
// Joined errors are searched too.
func HasCode(err error, codes ...string) bool {
	for err != nil {
		if ce, ok := err.(*CorpusError); ok {
			for _, c := range codes {
				if ce.Code == c {
					return true
				}
			}
		}
		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range multi.Unwrap() {
				if HasCode(e, codes...) {
					return true
				}
			}
			return false
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the error code from the first CorpusError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	if ce := find(err); ce != nil {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from the first CorpusError in the chain.
// Returns empty string if there is none.
func GetCategory(err error) Category {
	if ce := find(err); ce != nil {
		return ce.Category
	}
	return ""
}

func find(err error) *CorpusError {
	var ce *CorpusError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}
