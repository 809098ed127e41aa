package errors

import (
	"errors"
	"net/http"
)

// Envelope is the JSON error body returned to API callers.
type Envelope struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// ToEnvelope converts any error into the caller-facing error body.
// Internal details are intentionally not surfaced.
func ToEnvelope(err error, requestID string) Envelope {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return Envelope{
			ErrorCode: string(stdErr.Code),
			Message:   stdErr.Message,
			RequestID: requestID,
		}
	}
	return Envelope{
		ErrorCode: "INTERNAL_ERROR",
		Message:   "Internal error",
		RequestID: requestID,
	}
}

// HTTPStatus maps an error to the transport status code.
func HTTPStatus(err error) int {
	var stdErr *StandardError
	if !errors.As(err, &stdErr) {
		return http.StatusInternalServerError
	}
	switch stdErr.Code {
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeCircuitOpen:
		return http.StatusServiceUnavailable
	case ErrCodeExtractionFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeProviderTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeProviderError, ErrCodeProviderRateLimited:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RetryAfterSeconds extracts the retry hint from resilience errors, or 0.
func RetryAfterSeconds(err error) int {
	var stdErr *StandardError
	if !errors.As(err, &stdErr) {
		return 0
	}
	if stdErr.Metadata == nil {
		return 0
	}
	if v, ok := stdErr.Metadata["retryAfterSeconds"].(int); ok {
		return v
	}
	return 0
}
