// internal/stages/scaffold/stage.go
package scaffold

import (
	"context"
	"encoding/json"
	"fmt"

	"nuance-pipeline/internal/common/metrics"
	"nuance-pipeline/internal/gateway"
	"nuance-pipeline/internal/models"
	"nuance-pipeline/pkg/registry"
)

const StageName = "scaffold"

const resultSchema = `{
	"type": "object",
	"properties": {
		"steps": {
			"type": "array",
			"minItems": 3,
			"maxItems": 5,
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string", "maxLength": 100},
					"estimatedMinutes": {"type": "integer", "minimum": 1, "maximum": 15},
					"isPhysical": {"type": "boolean"}
				},
				"required": ["title"]
			}
		},
		"probeQuestion": {"type": "string"},
		"firstStepEmphasis": {"type": "string"}
	},
	"required": ["steps"]
}`

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Stage generates initiation scaffolding for tasks that warrant it: a
// probe question for the turn and micro-step breakdowns for project
// items. It runs sequentially after enrichment; a failure here never
// blocks the turn, the orchestrator drops the scaffolding instead.
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

// Candidates returns the indexes of items that warrant scaffolding:
// project-complexity items whose classifier asked for a breakdown.
func Candidates(actions []models.EnrichedAction) []int {
	var idxs []int
	for i, a := range actions {
		if a.Complexity.Level == models.ComplexityProject && a.Complexity.NeedsBreakdown {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

// ShouldScaffold reports whether the turn warrants a scaffolding nudge.
func ShouldScaffold(actions []models.EnrichedAction) bool {
	return len(Candidates(actions)) > 0
}

// ProbeQuestion is the formulaic question used when the model did not
// propose one of its own.
func ProbeQuestion(actions []models.EnrichedAction) string {
	var heaviest *models.EnrichedAction
	for i := range actions {
		if heaviest == nil || actions[i].Avoidance.Weight > heaviest.Avoidance.Weight {
			heaviest = &actions[i]
		}
	}
	if heaviest == nil {
		return ""
	}
	return fmt.Sprintf("\"%s\" looks heavy. Want me to break it into a few tiny first steps?", heaviest.Title)
}

// BreakDown produces a 3-5 micro-step plan for one task, plus the probe
// question offered alongside it. Errors propagate so the caller can
// degrade the whole scaffolding step.
func (s *Stage) BreakDown(ctx context.Context, taskTitle string) (*models.Breakdown, error) {
	prompt, err := s.registry.Resolve("breakdown", "")
	if err != nil {
		return nil, s.fail(taskTitle, err)
	}

	raw, err := s.provider.ExtractStructured(ctx, gateway.ExtractionRequest{
		Operation: "breakdown",
		System:    prompt.Content,
		Prompt:    "Break down: " + taskTitle,
		Schema:    resultSchema,
	})
	if err != nil {
		return nil, s.fail(taskTitle, err)
	}

	var result models.Breakdown
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, s.fail(taskTitle, err)
	}

	for i := range result.Steps {
		if result.Steps[i].EstimatedMinutes == 0 {
			result.Steps[i].EstimatedMinutes = 5
		}
		result.TotalEstimatedMinutes += result.Steps[i].EstimatedMinutes
	}

	s.logger.Info("task broken down", map[string]interface{}{
		"taskTitle":    taskTitle,
		"stepCount":    len(result.Steps),
		"totalMinutes": result.TotalEstimatedMinutes,
	})

	return &result, nil
}

func (s *Stage) fail(taskTitle string, err error) error {
	metrics.StageFailures.WithLabelValues(StageName).Inc()
	s.logger.Error("breakdown failed", map[string]interface{}{
		"taskTitle": taskTitle,
		"error":     err.Error(),
	})
	return fmt.Errorf("breakdown for %q: %w", taskTitle, err)
}
