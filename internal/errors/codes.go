// Package errors provides structured error handling for corpusctl.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Remote resource errors (conflict, not found)
//   - 3XX: Network and service availability errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryResource indicates errors about remote resource state.
	CategoryResource Category = "RESOURCE"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound    = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "ERR_102_CONFIG_INVALID"
	ErrCodeCredentialMissing = "ERR_103_CREDENTIAL_MISSING"
	ErrCodeUnauthorized      = "ERR_104_UNAUTHORIZED"

	// Resource errors (200-299)
	ErrCodeResourceConflict  = "ERR_201_RESOURCE_CONFLICT"
	ErrCodeResourceNotFound  = "ERR_202_RESOURCE_NOT_FOUND"
	ErrCodeReferenceNotFound = "ERR_203_REFERENCE_NOT_FOUND"
	ErrCodeResourceLocked    = "ERR_204_RESOURCE_LOCKED"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeServiceUnavailable = "ERR_302_SERVICE_UNAVAILABLE"
	ErrCodeRateLimited        = "ERR_303_RATE_LIMITED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidPrefix     = "ERR_403_INVALID_PREFIX"
	ErrCodeInvalidVariant    = "ERR_404_INVALID_VARIANT"
	ErrCodeInvalidSchema     = "ERR_405_INVALID_SCHEMA"
	ErrCodeRequestRejected   = "ERR_406_REQUEST_REJECTED"

	// Internal errors (500-599)
	ErrCodeInternal           = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed    = "ERR_502_EMBEDDING_FAILED"
	ErrCodeProvisionFailed    = "ERR_503_PROVISION_FAILED"
	ErrCodeTeardownFailed     = "ERR_504_TEARDOWN_FAILED"
	ErrCodeStoreFailed        = "ERR_505_STORE_FAILED"
	ErrCodeUnexpectedResponse = "ERR_506_UNEXPECTED_RESPONSE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_RESOURCE_CONFLICT")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryResource
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeResourceConflict, ErrCodeUnauthorized, ErrCodeCredentialMissing:
		return SeverityFatal
	}

	// Retryable errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeServiceUnavailable, ErrCodeRateLimited:
		return true
	default:
		return false
	}
}
