package models

import (
	"encoding/json"
	"time"
)

// CommandResponse is the result of a slash-command turn.
type CommandResponse struct {
	Command string                 `json:"command"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// CoachingResponse is the result of a coaching turn.
type CoachingResponse struct {
	Message         string `json:"message"`
	SuggestedAction string `json:"suggestedAction,omitempty"`
}

// UnifiedResponse is the single response shape returned for every turn.
// Exactly one of Capture, Coaching, Command is populated.
type UnifiedResponse struct {
	RequestID        string               `json:"requestId"`
	Intent           Intent               `json:"intent"`
	IntentConfidence float64              `json:"intentConfidence"`
	IntentReasoning  string               `json:"intentReasoning,omitempty"`
	Capture          *OrchestrationResult `json:"capture,omitempty"`
	Coaching         *CoachingResponse    `json:"coaching,omitempty"`
	Command          *CommandResponse     `json:"command,omitempty"`
}

// KnowledgeObject is a durable derived-knowledge record. NaturalKey enforces
// idempotent upsert: the same key submitted twice converges to one stored row.
type KnowledgeObject struct {
	Type            string          `json:"type"`
	NaturalKey      string          `json:"naturalKey"`
	UserID          string          `json:"userId"`
	Payload         json.RawMessage `json:"payload"`
	SourceRequestID string          `json:"sourceRequestId"`
	Confidence      float64         `json:"confidence"`
	Importance      int             `json:"importance"`
	ValidFrom       time.Time       `json:"validFrom"`
	ValidTo         *time.Time      `json:"validTo,omitempty"`
}

// Knowledge object types persisted by the writeback service.
const (
	KnowledgeTaxonomyLabel = "taxonomy_label"
	KnowledgeBreakdown     = "breakdown"
	KnowledgeInsight       = "insight"
	KnowledgeStateSnapshot = "state_snapshot"
)
