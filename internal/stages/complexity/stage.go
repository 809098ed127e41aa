// internal/stages/complexity/stage.go
package complexity

import (
	"context"
	"encoding/json"
	"fmt"

	stderrors "nuance-pipeline/internal/common/errors"
	"nuance-pipeline/internal/common/metrics"
	"nuance-pipeline/internal/gateway"
	"nuance-pipeline/internal/models"
	"nuance-pipeline/pkg/registry"
)

const StageName = "complexity"

const resultSchema = `{
	"type": "object",
	"properties": {
		"level": {"type": "string", "enum": ["atomic", "composite", "project"]},
		"suggestedSteps": {"type": "integer", "minimum": 1, "maximum": 20},
		"needsBreakdown": {"type": "boolean"},
		"reasoning": {"type": "string"}
	},
	"required": ["level"]
}`

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Stage classifies task complexity. It never fails the turn: errors
// degrade to a time-based default.
type Stage struct {
	provider        gateway.Provider
	registry        *registry.Registry
	fastPathMinutes int
	logger          Logger
}

func New(provider gateway.Provider, reg *registry.Registry, fastPathMinutes int, log Logger) *Stage {
	return &Stage{
		provider:        provider,
		registry:        reg,
		fastPathMinutes: fastPathMinutes,
		logger: log.With(map[string]interface{}{
			"stage": StageName,
		}),
	}
}

// Run classifies one item. Short tasks skip the model entirely.
func (s *Stage) Run(ctx context.Context, title string, estimatedMinutes int) models.ComplexityResult {
	if estimatedMinutes <= s.fastPathMinutes {
		return models.ComplexityResult{
			Level:          models.ComplexityAtomic,
			SuggestedSteps: 1,
			NeedsBreakdown: false,
			Reasoning:      fmt.Sprintf("Short task (%d min) - atomic by default", estimatedMinutes),
		}
	}

	prompt, err := s.registry.Resolve("complexity", "")
	if err != nil {
		return s.degrade(title, estimatedMinutes, err)
	}

	raw, err := s.provider.ExtractStructured(ctx, gateway.ExtractionRequest{
		Operation: StageName,
		System:    prompt.Content,
		Prompt:    fmt.Sprintf("Task: %s (estimated %d minutes)", title, estimatedMinutes),
		Schema:    resultSchema,
	})
	if err != nil {
		return s.degrade(title, estimatedMinutes, err)
	}

	var result models.ComplexityResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return s.degrade(title, estimatedMinutes, err)
	}

	if result.SuggestedSteps < 1 {
		result.SuggestedSteps = 1
	}
	// A non-atomic task always warrants a breakdown offer.
	if result.Level != models.ComplexityAtomic && !result.NeedsBreakdown {
		result.NeedsBreakdown = true
	}

	s.logger.Info("complexity classified", map[string]interface{}{
		"title":          title,
		"level":          string(result.Level),
		"needsBreakdown": result.NeedsBreakdown,
	})

	return result
}

func (s *Stage) degrade(title string, estimatedMinutes int, err error) models.ComplexityResult {
	metrics.StageFailures.WithLabelValues(StageName).Inc()
	stdErr := stderrors.NewEnrichmentDegradedError(StageName, err)
	s.logger.Error("complexity classification failed", map[string]interface{}{
		"title":     title,
		"errorCode": string(stdErr.Code),
		"details":   stdErr.Details,
	})

	if estimatedMinutes > 60 {
		return models.ComplexityResult{
			Level:          models.ComplexityComposite,
			SuggestedSteps: 3,
			NeedsBreakdown: true,
			Reasoning:      "Classification failed, defaulting based on time: " + err.Error(),
		}
	}
	return models.ComplexityResult{
		Level:          models.ComplexityAtomic,
		SuggestedSteps: 1,
		NeedsBreakdown: false,
		Reasoning:      "Classification failed, defaulting based on time: " + err.Error(),
	}
}
