package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorpusError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with CorpusError
	ce := New(ErrCodeResourceNotFound, "index not found: docs-index", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, ce)
	assert.Equal(t, originalErr, errors.Unwrap(ce))
	assert.True(t, errors.Is(ce, originalErr))
}

func TestCorpusError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "conflict",
			code:     ErrCodeResourceConflict,
			message:  "index docs-index already exists",
			expected: "[ERR_201_RESOURCE_CONFLICT] index docs-index already exists",
		},
		{
			name:     "network error",
			code:     ErrCodeNetworkTimeout,
			message:  "request timed out",
			expected: "[ERR_301_NETWORK_TIMEOUT] request timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestCorpusError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeResourceConflict, "index A exists", nil)
	err2 := New(ErrCodeResourceConflict, "index B exists", nil)
	err3 := New(ErrCodeResourceNotFound, "index C missing", nil)

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestCorpusError_WithDetailAndSuggestion(t *testing.T) {
	err := New(ErrCodeResourceConflict, "index exists", nil).
		WithDetail("name", "docs-index").
		WithSuggestion("Run teardown first")

	assert.Equal(t, "docs-index", err.Details["name"])
	assert.Equal(t, "Run teardown first", err.Suggestion)
}

func TestCorpusError_DerivedFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantCategory  Category
		wantSeverity  Severity
		wantRetryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeCredentialMissing, CategoryConfig, SeverityFatal, false},
		{ErrCodeResourceConflict, CategoryResource, SeverityFatal, false},
		{ErrCodeResourceNotFound, CategoryResource, SeverityError, false},
		{ErrCodeNetworkTimeout, CategoryNetwork, SeverityWarning, true},
		{ErrCodeRateLimited, CategoryNetwork, SeverityWarning, true},
		{ErrCodeServiceUnavailable, CategoryNetwork, SeverityWarning, true},
		{ErrCodeInvalidVariant, CategoryValidation, SeverityError, false},
		{ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
			assert.Equal(t, tt.wantSeverity, err.Severity)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestHelpers_SeeThroughWrapping(t *testing.T) {
	// Given: a CorpusError wrapped by fmt.Errorf
	inner := NotFoundError("skillset missing", nil)
	wrapped := fmt.Errorf("delete skillset: %w", inner)

	// Then: predicates and getters find it
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.Equal(t, ErrCodeResourceNotFound, GetCode(wrapped))
	assert.Equal(t, CategoryResource, GetCategory(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeInternal, ErrCodeResourceNotFound))
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"retryable", New(ErrCodeRateLimited, "throttled", nil), true},
		{"non-retryable", New(ErrCodeResourceConflict, "exists", nil), false},
		{"wrapped retryable", fmt.Errorf("ctx: %w", NetworkError("reset", nil)), true},
		{"standard error", errors.New("standard error"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	assert.True(t, IsFatal(ConflictError("exists", nil)))
	assert.False(t, IsFatal(NotFoundError("missing", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestHasCode_SearchesJoinedErrors(t *testing.T) {
	joined := errors.Join(
		New(ErrCodeResourceConflict, "exists", nil),
		fmt.Errorf("prefix b: %w", New(ErrCodeResourceLocked, "held", nil)),
	)
	outer := New(ErrCodeProvisionFailed, "failed", joined)

	assert.True(t, HasCode(outer, ErrCodeResourceLocked))
	assert.True(t, HasCode(outer, ErrCodeResourceConflict))
	assert.False(t, HasCode(outer, ErrCodeRateLimited))
}
