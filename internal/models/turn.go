// Package models holds the shared data model for the turn-processing pipeline.
package models

import (
	"time"
)

// Intent is the classified purpose of a user turn.
type Intent string

const (
	IntentCapture  Intent = "capture"
	IntentCoaching Intent = "coaching"
	IntentCommand  Intent = "command"
	IntentClarify  Intent = "clarify"
)

// Valid reports whether the intent is one of the known values.
func (i Intent) Valid() bool {
	switch i {
	case IntentCapture, IntentCoaching, IntentCommand, IntentClarify:
		return true
	}
	return false
}

// Turn is one request cycle. Created at request entry, immutable afterwards.
type Turn struct {
	RequestID    string                 `json:"requestId"`
	UserID       string                 `json:"userId"`
	RawInput     string                 `json:"rawInput"`
	ForcedIntent Intent                 `json:"forcedIntent,omitempty"`
	TaskContext  map[string]interface{} `json:"taskContext,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// IntentClassification is produced once per Turn and never mutated.
type IntentClassification struct {
	Type       Intent  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}
