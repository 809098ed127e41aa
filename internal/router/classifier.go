// internal/router/classifier.go
package router

import (
	"context"
	"fmt"
	"strings"

	stderrors "nuance-pipeline/internal/common/errors"
	"nuance-pipeline/internal/gateway"
	"nuance-pipeline/internal/models"
	"nuance-pipeline/pkg/registry"
)

// actionStarters are first words that almost always open a task statement.
var actionStarters = map[string]bool{
	"buy": true, "call": true, "send": true, "email": true, "write": true,
	"do": true, "finish": true, "complete": true, "submit": true,
	"schedule": true, "book": true, "order": true, "pick": true, "get": true,
	"make": true, "create": true, "fix": true, "update": true, "review": true,
	"prepare": true, "clean": true, "organize": true, "pay": true,
	"cancel": true, "renew": true, "return": true, "check": true,
	"reply": true, "respond": true, "follow": true,
}

// capturePrefixes mark explicit task-entry shorthand.
var capturePrefixes = []string{"add:", "add ", "todo:", "task:"}

// coachingSignals are phrases that indicate emotional stuckness rather
// than a task to record.
var coachingSignals = []string{
	"can't", "cannot", "stuck", "overwhelmed", "anxious", "scared",
	"don't know", "frustrated", "confused", "lost", "paralyzed",
	"procrastinating", "avoiding", "dreading", "hate", "impossible",
	"too much", "too hard", "help me", "what do i do", "why can't i",
}

// Classifier routes a raw turn to an intent. Cheap lexical rules cover
// the common shapes; the model only sees genuinely ambiguous input.
type Classifier struct {
	provider gateway.Provider
	registry *registry.Registry
	logger   Logger
}

func NewClassifier(provider gateway.Provider, reg *registry.Registry, log Logger) *Classifier {
	return &Classifier{
		provider: provider,
		registry: reg,
		logger: log.With(map[string]interface{}{
			"component": "intent_classifier",
		}),
	}
}

// Classify never returns an error. When both heuristics and the model
// fail, input is treated as a low-confidence capture so nothing is lost.
func (c *Classifier) Classify(ctx context.Context, text string) models.IntentClassification {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	if strings.HasPrefix(trimmed, "/") {
		return models.IntentClassification{
			Type:       models.IntentCommand,
			Confidence: 1.0,
			Reasoning:  "Command prefix",
		}
	}

	for _, prefix := range capturePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return models.IntentClassification{
				Type:       models.IntentCapture,
				Confidence: 0.98,
				Reasoning:  "Explicit add/todo prefix",
			}
		}
	}

	for _, signal := range coachingSignals {
		if strings.Contains(lower, signal) {
			return models.IntentClassification{
				Type:       models.IntentCoaching,
				Confidence: 0.90,
				Reasoning:  "Emotional/stuck signals detected",
			}
		}
	}

	if words := strings.Fields(lower); len(words) > 0 && actionStarters[words[0]] {
		return models.IntentClassification{
			Type:       models.IntentCapture,
			Confidence: 0.95,
			Reasoning:  fmt.Sprintf("Starts with action verb: %s", words[0]),
		}
	}

	return c.classifyWithModel(ctx, trimmed)
}

func (c *Classifier) classifyWithModel(ctx context.Context, text string) models.IntentClassification {
	fallback := models.IntentClassification{
		Type:       models.IntentCapture,
		Confidence: 0.5,
		Reasoning:  "fallback:classification_failed",
	}

	prompt, err := c.registry.Resolve("intent", "")
	if err != nil {
		c.logger.Error("intent prompt missing", map[string]interface{}{
			"error": err.Error(),
		})
		return fallback
	}

	resp, err := c.provider.Complete(ctx, gateway.CompletionRequest{
		Operation: "intent",
		System:    prompt.Content,
		Prompt:    text,
		MaxTokens: 20,
	})
	if err != nil {
		stdErr := stderrors.NewClassificationFailedError(err)
		c.logger.Warn("intent classification failed, defaulting to capture", map[string]interface{}{
			"errorCode": string(stdErr.Code),
			"error":     stdErr.Error(),
			"details":   stdErr.Details,
		})
		return fallback
	}

	intent := parseIntent(resp.Text)
	return models.IntentClassification{
		Type:       intent,
		Confidence: 0.85,
		Reasoning:  fmt.Sprintf("AI classified as %s", strings.ToUpper(string(intent))),
	}
}

// parseIntent maps model output to an intent, tolerating extra text.
// Anything unrecognized becomes capture rather than failing the turn.
func parseIntent(text string) models.Intent {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, candidate := range []models.Intent{
		models.IntentCoaching, models.IntentCommand, models.IntentClarify, models.IntentCapture,
	} {
		if strings.Contains(upper, strings.ToUpper(string(candidate))) {
			return candidate
		}
	}
	return models.IntentCapture
}
