// internal/router/router.go

// Package router classifies incoming turns and dispatches them to the
// capture, coaching, or command branch.
package router

import (
	"context"
	"math"

	"nuance-pipeline/internal/coaching"
	"nuance-pipeline/internal/models"
)

// clarifyConfidenceCeiling caps overall confidence on the clarify branch
// so the caller is always prompted to validate the result.
const clarifyConfidenceCeiling = 0.5

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// CaptureProcessor runs the extraction pipeline for a capture turn.
type CaptureProcessor interface {
	Process(ctx context.Context, turn models.Turn) (*models.OrchestrationResult, error)
}

// Router is the single entry point for turn processing.
type Router struct {
	classifier   *Classifier
	orchestrator CaptureProcessor
	coaching     *coaching.Service
	commands     *CommandHandler
	logger       Logger
}

func New(classifier *Classifier, orch CaptureProcessor, coachingSvc *coaching.Service, commands *CommandHandler, log Logger) *Router {
	return &Router{
		classifier:   classifier,
		orchestrator: orch,
		coaching:     coachingSvc,
		commands:     commands,
		logger: log.With(map[string]interface{}{
			"component": "router",
		}),
	}
}

// Route classifies the turn and runs exactly one handler branch.
func (r *Router) Route(ctx context.Context, turn models.Turn) (*models.UnifiedResponse, error) {
	classification := r.classify(ctx, turn)

	r.logger.Info("turn classified", map[string]interface{}{
		"requestId":  turn.RequestID,
		"userId":     turn.UserID,
		"intent":     string(classification.Type),
		"confidence": classification.Confidence,
	})

	resp := &models.UnifiedResponse{
		RequestID:        turn.RequestID,
		Intent:           classification.Type,
		IntentConfidence: classification.Confidence,
		IntentReasoning:  classification.Reasoning,
	}

	switch classification.Type {
	case models.IntentCommand:
		resp.Command = r.commands.Handle(turn.RawInput, turn.UserID)
	case models.IntentCoaching:
		taskID, taskTitle := taskContext(turn)
		resp.Coaching = r.coaching.Process(ctx, turn.RawInput, turn.UserID, taskID, taskTitle)
	case models.IntentClarify:
		result, err := r.orchestrator.Process(ctx, turn)
		if err != nil {
			return nil, err
		}
		forceLowConfidence(result)
		resp.Capture = result
	default:
		result, err := r.orchestrator.Process(ctx, turn)
		if err != nil {
			return nil, err
		}
		resp.Capture = result
	}

	return resp, nil
}

func (r *Router) classify(ctx context.Context, turn models.Turn) models.IntentClassification {
	if turn.ForcedIntent != "" && turn.ForcedIntent.Valid() {
		return models.IntentClassification{
			Type:       turn.ForcedIntent,
			Confidence: 1.0,
			Reasoning:  "Intent forced by caller",
		}
	}
	return r.classifier.Classify(ctx, turn.RawInput)
}

// forceLowConfidence caps capture confidence for clarify turns so the
// result always requires validation.
func forceLowConfidence(result *models.OrchestrationResult) {
	result.OverallConfidence = math.Min(result.OverallConfidence, clarifyConfidenceCeiling)
	result.NeedsValidation = true
}

func taskContext(turn models.Turn) (taskID, taskTitle string) {
	if turn.TaskContext == nil {
		return "", ""
	}
	if v, ok := turn.TaskContext["taskId"].(string); ok {
		taskID = v
	}
	if v, ok := turn.TaskContext["taskTitle"].(string); ok {
		taskTitle = v
	}
	return taskID, taskTitle
}
