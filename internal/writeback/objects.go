// internal/writeback/objects.go

// Package writeback derives durable knowledge objects from completed turns
// and persists them asynchronously. Nothing here can fail a user turn.
package writeback

import (
	"encoding/json"
	"fmt"
	"time"

	"nuance-pipeline/internal/models"
	"nuance-pipeline/internal/stages/insight"
)

// coachingSummaryLimit bounds how much of a coaching message is stored.
const coachingSummaryLimit = 500

// KnowledgeCoachingNote is the knowledge type for coaching turn records.
const KnowledgeCoachingNote = "coaching_note"

// BuildObjects derives every knowledge object a finished turn produces.
// Capture turns yield taxonomy labels and state snapshots per action,
// breakdowns for structured items, and turn-level insights. Coaching
// turns yield one note.
func BuildObjects(turn models.Turn, resp *models.UnifiedResponse) []models.KnowledgeObject {
	var objects []models.KnowledgeObject
	now := time.Now().UTC()

	if resp.Capture != nil {
		for i, action := range resp.Capture.Actions {
			captureID := captureID(turn.RequestID, i)
			objects = append(objects,
				buildTaxonomyLabel(turn, captureID, action, now),
				buildStateSnapshot(turn, captureID, action, now),
			)
			if action.Breakdown != nil {
				objects = append(objects, buildBreakdown(turn, captureID, action, now))
			}
		}
		for _, ins := range insight.Detect(resp.Capture.Actions) {
			objects = append(objects, buildInsight(turn, ins, now))
		}
	}

	if resp.Coaching != nil {
		objects = append(objects, buildCoachingNote(turn, resp.Coaching, now))
	}

	return objects
}

type breakdownPayload struct {
	ParentCaptureID       string                 `json:"parentCaptureId"`
	ParentTitle           string                 `json:"parentTitle"`
	Steps                 []models.BreakdownStep `json:"steps"`
	StepCount             int                    `json:"stepCount"`
	TotalEstimatedMinutes int                    `json:"totalEstimatedMinutes"`
	FirstStepEmphasis     string                 `json:"firstStepEmphasis,omitempty"`
}

func buildBreakdown(turn models.Turn, captureID string, action models.EnrichedAction, now time.Time) models.KnowledgeObject {
	plan := action.Breakdown
	payload := mustJSON(breakdownPayload{
		ParentCaptureID:       captureID,
		ParentTitle:           action.Title,
		Steps:                 plan.Steps,
		StepCount:             len(plan.Steps),
		TotalEstimatedMinutes: plan.TotalEstimatedMinutes,
		FirstStepEmphasis:     plan.FirstStepEmphasis,
	})

	return models.KnowledgeObject{
		Type:            models.KnowledgeBreakdown,
		NaturalKey:      fmt.Sprintf("breakdown:%s:%s", captureID, turn.RequestID),
		UserID:          turn.UserID,
		Payload:         payload,
		SourceRequestID: turn.RequestID,
		Confidence:      0.8,
		Importance:      70,
		ValidFrom:       now,
	}
}

type taxonomyPayload struct {
	CaptureID     string `json:"captureId"`
	CaptureTitle  string `json:"captureTitle"`
	CognitiveLoad string `json:"cognitiveLoad"`
	Complexity    string `json:"complexity"`
}

func buildTaxonomyLabel(turn models.Turn, captureID string, action models.EnrichedAction, now time.Time) models.KnowledgeObject {
	payload := mustJSON(taxonomyPayload{
		CaptureID:     captureID,
		CaptureTitle:  action.Title,
		CognitiveLoad: string(action.CognitiveLoad),
		Complexity:    string(action.Complexity.Level),
	})

	return models.KnowledgeObject{
		Type:            models.KnowledgeTaxonomyLabel,
		NaturalKey:      fmt.Sprintf("taxonomy:%s", captureID),
		UserID:          turn.UserID,
		Payload:         payload,
		SourceRequestID: turn.RequestID,
		Confidence:      action.Confidence.Score,
		Importance:      calculateImportance(action),
		ValidFrom:       now,
	}
}

type snapshotPayload struct {
	CaptureID        string   `json:"captureId"`
	CaptureTitle     string   `json:"captureTitle"`
	AvoidanceWeight  int      `json:"avoidanceWeight"`
	AvoidanceSignals []string `json:"avoidanceSignals,omitempty"`
	EstimatedMinutes int      `json:"estimatedMinutes"`
	NeedsBreakdown   bool     `json:"needsBreakdown"`
	Ambiguities      []string `json:"ambiguities,omitempty"`
}

func buildStateSnapshot(turn models.Turn, captureID string, action models.EnrichedAction, now time.Time) models.KnowledgeObject {
	payload := mustJSON(snapshotPayload{
		CaptureID:        captureID,
		CaptureTitle:     action.Title,
		AvoidanceWeight:  action.Avoidance.Weight,
		AvoidanceSignals: action.Avoidance.Signals,
		EstimatedMinutes: action.EstimatedMinutes,
		NeedsBreakdown:   action.Complexity.NeedsBreakdown,
		Ambiguities:      action.Confidence.Ambiguities,
	})

	return models.KnowledgeObject{
		Type:            models.KnowledgeStateSnapshot,
		NaturalKey:      fmt.Sprintf("snapshot:%s:%s", captureID, turn.RequestID),
		UserID:          turn.UserID,
		Payload:         payload,
		SourceRequestID: turn.RequestID,
		Confidence:      action.Confidence.Score,
		Importance:      calculateImportance(action),
		ValidFrom:       now,
	}
}

type insightPayload struct {
	PatternName string   `json:"patternName"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence,omitempty"`
}

func buildInsight(turn models.Turn, ins insight.Insight, now time.Time) models.KnowledgeObject {
	payload := mustJSON(insightPayload{
		PatternName: ins.Pattern,
		Description: ins.Description,
		Evidence:    ins.Evidence,
	})

	return models.KnowledgeObject{
		Type:            models.KnowledgeInsight,
		NaturalKey:      fmt.Sprintf("insight:%s:%s", ins.Pattern, turn.RequestID),
		UserID:          turn.UserID,
		Payload:         payload,
		SourceRequestID: turn.RequestID,
		Confidence:      ins.Confidence,
		Importance:      75,
		ValidFrom:       now,
	}
}

type coachingPayload struct {
	MessageSummary    string `json:"messageSummary"`
	FullMessageLength int    `json:"fullMessageLength"`
}

func buildCoachingNote(turn models.Turn, coaching *models.CoachingResponse, now time.Time) models.KnowledgeObject {
	summary := coaching.Message
	if len(summary) > coachingSummaryLimit {
		summary = summary[:coachingSummaryLimit]
	}
	payload := mustJSON(coachingPayload{
		MessageSummary:    summary,
		FullMessageLength: len(coaching.Message),
	})

	return models.KnowledgeObject{
		Type:            KnowledgeCoachingNote,
		NaturalKey:      fmt.Sprintf("coaching:%s", turn.RequestID),
		UserID:          turn.UserID,
		Payload:         payload,
		SourceRequestID: turn.RequestID,
		Confidence:      0.9,
		Importance:      60,
		ValidFrom:       now,
	}
}

// calculateImportance scores how much an item deserves attention later.
// High avoidance and low confidence raise the score; so does needing a
// breakdown.
func calculateImportance(action models.EnrichedAction) int {
	base := 50
	avoidanceBoost := (action.Avoidance.Weight - 1) * 10
	confidenceBoost := int((1 - action.Confidence.Score) * 20)
	breakdownBoost := 0
	if action.Complexity.NeedsBreakdown {
		breakdownBoost = 10
	}

	importance := base + avoidanceBoost + confidenceBoost + breakdownBoost
	if importance > 100 {
		importance = 100
	}
	return importance
}

func captureID(requestID string, index int) string {
	return fmt.Sprintf("%s-%d", requestID, index)
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Payload structs contain only marshalable fields.
		return json.RawMessage(`{}`)
	}
	return data
}
