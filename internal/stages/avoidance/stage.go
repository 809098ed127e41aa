// internal/stages/avoidance/stage.go
package avoidance

import (
	"context"
	"encoding/json"
	"strings"

	stderrors "nuance-pipeline/internal/common/errors"
	"nuance-pipeline/internal/common/metrics"
	"nuance-pipeline/internal/gateway"
	"nuance-pipeline/internal/models"
	"nuance-pipeline/pkg/registry"
)

const StageName = "avoidance"

// dreadMarkers are the lexical signals that justify spending a model call
// on resistance analysis. Text without any of them scores neutral.
var dreadMarkers = []string{
	"ugh", "hate", "dread",
	"putting off", "keep forgetting", "avoiding",
	"scary", "overwhelming", "anxious", "stress",
	"finally", "have to", "should have",
	"just need to", "only have to",
	// Contexts that reliably carry resistance even in neutral phrasing.
	"insurance", "taxes", "dmv",
}

const resultSchema = `{
	"type": "object",
	"properties": {
		"weight": {"type": "integer", "minimum": 1, "maximum": 5},
		"signals": {"type": "array", "items": {"type": "string"}},
		"reasoning": {"type": "string"}
	},
	"required": ["weight"]
}`

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Stage scores emotional resistance per item. It never fails the turn:
// any error degrades to the neutral weight.
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

// Run scores a single item. rawSegment gives the model the user's own
// phrasing, which carries the emotional signal the title may have lost.
func (s *Stage) Run(ctx context.Context, title, rawSegment string) models.AvoidanceResult {
	if !hasDreadMarker(title) && !hasDreadMarker(rawSegment) {
		return models.AvoidanceResult{
			Weight:    1,
			Signals:   []string{},
			Reasoning: "No resistance signals detected",
		}
	}

	prompt, err := s.registry.Resolve("avoidance", "")
	if err != nil {
		return s.degrade(title, err)
	}

	text := "Task: " + title
	if rawSegment != "" {
		text += "\nOriginal input: " + rawSegment
	}

	raw, err := s.provider.ExtractStructured(ctx, gateway.ExtractionRequest{
		Operation: StageName,
		System:    prompt.Content,
		Prompt:    text,
		Schema:    resultSchema,
	})
	if err != nil {
		return s.degrade(title, err)
	}

	var result models.AvoidanceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return s.degrade(title, err)
	}

	result.Weight = models.ClampAvoidanceWeight(result.Weight)
	if result.Signals == nil {
		result.Signals = []string{}
	}

	s.logger.Info("avoidance analyzed", map[string]interface{}{
		"title":       title,
		"weight":      result.Weight,
		"signalCount": len(result.Signals),
	})

	return result
}

func (s *Stage) degrade(title string, err error) models.AvoidanceResult {
	metrics.StageFailures.WithLabelValues(StageName).Inc()
	stdErr := stderrors.NewEnrichmentDegradedError(StageName, err)
	s.logger.Error("avoidance detection failed", map[string]interface{}{
		"title":     title,
		"errorCode": string(stdErr.Code),
		"details":   stdErr.Details,
	})
	return models.AvoidanceResult{
		Weight:    1,
		Signals:   []string{},
		Reasoning: "Analysis failed: " + err.Error(),
	}
}

func hasDreadMarker(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range dreadMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
