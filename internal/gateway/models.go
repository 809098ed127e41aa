// internal/gateway/models.go
package gateway

import (
	"context"
	"encoding/json"
)

// CompletionRequest is a single free-text model call.
type CompletionRequest struct {
	Operation   string  `json:"-"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type CompletionResponse struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
}

// ExtractionRequest is a structured-output model call. The response body
// must parse as JSON and, when Schema is set, validate against it.
type ExtractionRequest struct {
	Operation string
	System    string
	Prompt    string
	Schema    string
	MaxTokens int
}

// Provider is the model provider surface the pipeline depends on.
// Implementations must honor ctx cancellation on every call.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	ExtractStructured(ctx context.Context, req ExtractionRequest) (json.RawMessage, error)
}

// UsageRecorder receives token counts after each successful call.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, operation string, inputTokens, outputTokens int)
}
