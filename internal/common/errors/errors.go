// Package errors provides standardized error handling for the turn pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeClassificationFailed ErrorCode = "CLASSIFICATION_FAILED"
	ErrCodeExtractionFailed     ErrorCode = "EXTRACTION_FAILED"
	ErrCodeEnrichmentDegraded   ErrorCode = "ENRICHMENT_DEGRADED"
	ErrCodeScaffoldingFailed    ErrorCode = "SCAFFOLDING_FAILED"

	ErrCodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	ErrCodeProviderError       ErrorCode = "PROVIDER_ERROR"
	ErrCodeProviderTimeout     ErrorCode = "PROVIDER_TIMEOUT"
	ErrCodeProviderRateLimited ErrorCode = "PROVIDER_RATE_LIMITED"
	ErrCodeSchemaValidation    ErrorCode = "SCHEMA_VALIDATION_FAILED"

	ErrCodeWritebackFailed          ErrorCode = "WRITEBACK_FAILED"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"

	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodePromptNotFound ErrorCode = "PROMPT_NOT_FOUND"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewClassificationFailedError creates a recoverable classification error.
// Callers fall back to the capture branch rather than dropping input.
func NewClassificationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeClassificationFailed,
		Message:   "Intent classification failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewExtractionFailedError creates a fatal-to-the-turn extraction error.
// No partial extraction is better than hallucinated partial extraction.
func NewExtractionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionFailed,
		Message:   "Primary extraction failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEnrichmentDegradedError records an item-local stage failure.
func NewEnrichmentDegradedError(stage string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEnrichmentDegraded,
		Message:   "Enrichment stage degraded to neutral default",
		Details:   fmt.Sprintf("stage: %s, error: %s", stage, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCircuitOpenError creates a fail-fast circuit rejection error.
func NewCircuitOpenError(dependency string, retryAfter time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeCircuitOpen,
		Message:   fmt.Sprintf("Circuit '%s' is open", dependency),
		Details:   fmt.Sprintf("retry after %.1fs", retryAfter.Seconds()),
		Retryable: true,
		Metadata: map[string]interface{}{
			"dependency":        dependency,
			"retryAfterSeconds": int(retryAfter.Seconds()),
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitExceededError creates a caller-surfaced quota error.
func NewRateLimitExceededError(limitType string, retryAfter time.Duration, remaining int) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimitExceeded,
		Message:   fmt.Sprintf("Rate limit exceeded (%s window)", limitType),
		Details:   fmt.Sprintf("retry after %ds", int(retryAfter.Seconds())),
		Retryable: true,
		Metadata: map[string]interface{}{
			"limitType":         limitType,
			"retryAfterSeconds": int(retryAfter.Seconds()),
			"remaining":         remaining,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderError creates a retryable upstream model-provider error.
func NewProviderError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderError,
		Message:   "Model provider error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderTimeoutError creates a retryable provider timeout error.
func NewProviderTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderTimeout,
		Message:   "Model provider timeout",
		Details:   "call exceeded deadline",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWritebackFailedError creates a logged-only writeback error.
func NewWritebackFailedError(naturalKey string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWritebackFailed,
		Message:   "Knowledge writeback failed",
		Details:   fmt.Sprintf("naturalKey: %s, error: %s", naturalKey, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRequestError creates a non-retryable request validation error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Invalid request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable at the turn boundary.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeClassificationFailed,
		ErrCodeExtractionFailed,
		ErrCodeCircuitOpen,
		ErrCodeRateLimitExceeded,
		ErrCodeProviderError,
		ErrCodeProviderTimeout,
		ErrCodeProviderRateLimited,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeDatabaseInsertFailed:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "PROVIDER") || strings.Contains(codeStr, "SCHEMA"):
		return "PROVIDER"
	case strings.Contains(codeStr, "CIRCUIT") || strings.Contains(codeStr, "RATE_LIMIT"):
		return "RESILIENCE"
	case strings.Contains(codeStr, "CLASSIFICATION") || strings.Contains(codeStr, "EXTRACTION") ||
		strings.Contains(codeStr, "ENRICHMENT") || strings.Contains(codeStr, "SCAFFOLDING"):
		return "PIPELINE"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "WRITEBACK"):
		return "STORAGE"
	default:
		return "OTHER"
	}
}
