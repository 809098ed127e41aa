// internal/stages/extraction/stage.go
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stderrors "nuance-pipeline/internal/common/errors"
	"nuance-pipeline/internal/gateway"
	"nuance-pipeline/internal/models"
	"nuance-pipeline/pkg/registry"
)

const StageName = "extraction"

// resultSchema constrains the model's structured output for extraction.
const resultSchema = `{
	"type": "object",
	"properties": {
		"actions": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string", "minLength": 1, "maxLength": 500},
					"rawSegment": {"type": "string"},
					"estimatedMinutes": {"type": "integer", "minimum": 5, "maximum": 480}
				},
				"required": ["title", "rawSegment"]
			}
		},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"ambiguities": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["actions"]
}`

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Result is the output of the primary extraction pass.
type Result struct {
	Actions     []models.ExtractedItem `json:"actions"`
	Confidence  float64                `json:"confidence"`
	Ambiguities []string               `json:"ambiguities,omitempty"`
}

// Stage splits raw input into candidate actions. Unlike the enrichment
// stages it has no neutral default: a failure here fails the turn.
type Stage struct {
	provider gateway.Provider
	registry *registry.Registry
	logger   Logger
}

func New(provider gateway.Provider, reg *registry.Registry, log Logger) *Stage {
	return &Stage{
		provider: provider,
		registry: reg,
		logger: log.With(map[string]interface{}{
			"stage": StageName,
		}),
	}
}

// Run extracts actions from text. An empty action list is a valid result
// for input that carries no tasks.
func (s *Stage) Run(ctx context.Context, text string) (*Result, error) {
	prompt, err := s.registry.Resolve("extraction", "")
	if err != nil {
		return nil, stderrors.NewExtractionFailedError(err)
	}

	raw, err := s.provider.ExtractStructured(ctx, gateway.ExtractionRequest{
		Operation: StageName,
		System:    prompt.Content,
		Prompt:    text,
		Schema:    resultSchema,
	})
	if err != nil {
		s.logger.Error("extraction failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, classifyProviderError(err)
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, stderrors.NewExtractionFailedError(fmt.Errorf("decode extraction result: %w", err))
	}

	if result.Confidence == 0 {
		result.Confidence = 0.8
	}
	for i := range result.Actions {
		if result.Actions[i].EstimatedMinutes == 0 {
			result.Actions[i].EstimatedMinutes = 15
		}
	}

	s.logger.Info("actions extracted", map[string]interface{}{
		"actionCount": len(result.Actions),
		"confidence":  result.Confidence,
	})

	return &result, nil
}

// classifyProviderError separates provider outages from bad model
// output. Timeouts and upstream failures surface with their own codes
// so callers retry against the right thing; everything else means the
// model answered badly and the extraction itself failed.
func classifyProviderError(err error) *stderrors.StandardError {
	var stdErr *stderrors.StandardError
	if errors.As(err, &stdErr) {
		// Already typed, e.g. a circuit-open rejection. Keep its code.
		return stdErr
	}
	switch {
	case errors.Is(err, gateway.ErrProviderTimeout):
		return stderrors.NewProviderTimeoutError()
	case errors.Is(err, gateway.ErrProviderFailed), errors.Is(err, gateway.ErrProviderRateLimited):
		return stderrors.NewProviderError(err)
	default:
		return stderrors.NewExtractionFailedError(err)
	}
}
