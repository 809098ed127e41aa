// internal/stages/confidence/stage.go
package confidence

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	stderrors "nuance-pipeline/internal/common/errors"
	"nuance-pipeline/internal/common/metrics"
	"nuance-pipeline/internal/gateway"
	"nuance-pipeline/internal/models"
	"nuance-pipeline/pkg/registry"
)

const StageName = "confidence"

// Action verbs that indicate high confidence
var strongActionVerbs = map[string]bool{
	"buy": true, "call": true, "send": true, "email": true, "write": true,
	"submit": true, "schedule": true, "book": true, "order": true, "pay": true,
	"cancel": true, "return": true, "pick": true, "get": true,
	"create": true, "fix": true, "update": true, "review": true,
	"clean": true, "organize": true,
}

// Vague language patterns that reduce confidence
var vaguePatterns = []string{
	"that thing", "stuff", "whatever", "something", "somehow",
	"the thing", "that project", "those things", "misc",
}

const resultSchema = `{
	"type": "object",
	"properties": {
		"score": {"type": "number", "minimum": 0, "maximum": 1},
		"ambiguities": {"type": "array", "items": {"type": "string"}},
		"reasoning": {"type": "string"}
	},
	"required": ["score"]
}`

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Stage scores how well an extracted item reflects the user's intent.
// Most items are scored by heuristics alone; the model is consulted only
// when the heuristic score falls below the gate without an obvious cause.
type Stage struct {
	provider gateway.Provider
	registry *registry.Registry
	aiGate   float64
	logger   Logger
}

func New(provider gateway.Provider, reg *registry.Registry, aiGate float64, log Logger) *Stage {
	return &Stage{
		provider: provider,
		registry: reg,
		aiGate:   aiGate,
		logger: log.With(map[string]interface{}{
			"stage": StageName,
		}),
	}
}

func (s *Stage) Run(ctx context.Context, item models.ExtractedItem, rawInput string) models.ConfidenceResult {
	titleLower := strings.ToLower(item.Title)
	inputLower := strings.ToLower(rawInput)
	var ambiguities []string

	firstWord := ""
	if fields := strings.Fields(titleLower); len(fields) > 0 {
		firstWord = fields[0]
	}
	hasActionVerb := strongActionVerbs[firstWord]

	hasVaguePattern := false
	for _, pattern := range vaguePatterns {
		if strings.Contains(inputLower, pattern) {
			hasVaguePattern = true
			break
		}
	}
	if hasVaguePattern {
		ambiguities = append(ambiguities, "Input contains vague language")
	}

	if len(item.Title) < 5 {
		ambiguities = append(ambiguities, "Task title is very short")
	}

	if strings.Contains(rawInput, "?") {
		ambiguities = append(ambiguities, "Input contains question - may not be a task")
	}

	score := 0.8
	if hasActionVerb {
		score += 0.1
	}
	if hasVaguePattern {
		score -= 0.3
	}
	if len(item.Title) < 5 {
		score -= 0.1
	}
	if strings.Contains(rawInput, "?") {
		score -= 0.15
	}
	if item.EstimatedMinutes < 5 || item.EstimatedMinutes > 240 {
		score -= 0.1
		ambiguities = append(ambiguities, "Time estimate may need adjustment")
	}

	score = models.ClampConfidence(score)

	// Vague language already explains a low score; only unexplained low
	// scores are worth a model call.
	if score < s.aiGate && !hasVaguePattern {
		return s.aiScore(ctx, item, rawInput, ambiguities)
	}

	result := models.ConfidenceResult{
		Score:       math.Round(score*100) / 100,
		Ambiguities: ambiguities,
		Reasoning:   buildReasoning(hasActionVerb, hasVaguePattern, len(ambiguities)),
	}

	s.logger.Info("confidence scored", map[string]interface{}{
		"title":          truncate(item.Title, 50),
		"confidence":     result.Score,
		"ambiguityCount": len(ambiguities),
	})

	return result
}

func (s *Stage) aiScore(ctx context.Context, item models.ExtractedItem, rawInput string, existing []string) models.ConfidenceResult {
	prompt, err := s.registry.Resolve("confidence", "")
	if err != nil {
		return s.degrade(existing, err)
	}

	raw, err := s.provider.ExtractStructured(ctx, gateway.ExtractionRequest{
		Operation: StageName,
		System:    prompt.Content,
		Prompt:    fmt.Sprintf("Action: %s\nOriginal input: %s", item.Title, rawInput),
		Schema:    resultSchema,
	})
	if err != nil {
		return s.degrade(existing, err)
	}

	var result models.ConfidenceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return s.degrade(existing, err)
	}

	result.Score = models.ClampConfidence(result.Score)
	result.Ambiguities = mergeAmbiguities(existing, result.Ambiguities)

	s.logger.Info("model confidence scored", map[string]interface{}{
		"title":      truncate(item.Title, 50),
		"confidence": result.Score,
	})

	return result
}

func (s *Stage) degrade(existing []string, err error) models.ConfidenceResult {
	metrics.StageFailures.WithLabelValues(StageName).Inc()
	stdErr := stderrors.NewEnrichmentDegradedError(StageName, err)
	s.logger.Error("model confidence scoring failed", map[string]interface{}{
		"errorCode": string(stdErr.Code),
		"details":   stdErr.Details,
	})
	return models.ConfidenceResult{
		Score:       0.5,
		Ambiguities: append(append([]string{}, existing...), "AI analysis unavailable"),
		Reasoning:   "Heuristic fallback: " + err.Error(),
	}
}

func buildReasoning(hasActionVerb, hasVaguePattern bool, ambiguityCount int) string {
	var reasons []string

	if hasActionVerb {
		reasons = append(reasons, "Clear action verb detected")
	} else {
		reasons = append(reasons, "No clear action verb")
	}

	if hasVaguePattern {
		reasons = append(reasons, "Contains vague language")
	}

	if ambiguityCount == 0 {
		reasons = append(reasons, "No ambiguities found")
	} else {
		reasons = append(reasons, fmt.Sprintf("%d potential ambiguities", ambiguityCount))
	}

	return strings.Join(reasons, "; ")
}

// mergeAmbiguities deduplicates while keeping first-seen order.
func mergeAmbiguities(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
