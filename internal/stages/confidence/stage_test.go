// internal/stages/confidence/stage_test.go
package confidence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"nuance-pipeline/internal/gateway"
	"nuance-pipeline/internal/models"
	"nuance-pipeline/pkg/registry"
)

// TestLogger implements the Logger interface for testing
type TestLogger struct {
	t *testing.T
}

func NewTestLogger(t *testing.T) *TestLogger { return &TestLogger{t: t} }

func (l *TestLogger) Debug(msg string, fields map[string]interface{}) { l.t.Logf("DEBUG: %s %v", msg, fields) }
func (l *TestLogger) Info(msg string, fields map[string]interface{})  { l.t.Logf("INFO: %s %v", msg, fields) }
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  { l.t.Logf("WARN: %s %v", msg, fields) }
func (l *TestLogger) Error(msg string, fields map[string]interface{}) { l.t.Logf("ERROR: %s %v", msg, fields) }
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

type fakeProvider struct {
	raw       string
	err       error
	callCount int
}

func (p *fakeProvider) Complete(_ context.Context, _ gateway.CompletionRequest) (*gateway.CompletionResponse, error) {
	return nil, errors.New("not used")
}

func (p *fakeProvider) ExtractStructured(_ context.Context, _ gateway.ExtractionRequest) (json.RawMessage, error) {
	p.callCount++
	if p.err != nil {
		return nil, p.err
	}
	return json.RawMessage(p.raw), nil
}

func newStage(t *testing.T, provider gateway.Provider) *Stage {
	return New(provider, registry.New(), 0.6, NewTestLogger(t))
}

func item(title string, minutes int) models.ExtractedItem {
	return models.ExtractedItem{Title: title, RawSegment: title, EstimatedMinutes: minutes}
}

func TestStage_Run_HeuristicScoring(t *testing.T) {
	tests := []struct {
		name      string
		item      models.ExtractedItem
		rawInput  string
		wantScore float64
	}{
		{
			name:      "strong action verb",
			item:      item("Buy milk", 15),
			rawInput:  "buy milk",
			wantScore: 0.9, // 0.8 + 0.1 verb
		},
		{
			name:      "no action verb",
			item:      item("Groceries errand", 15),
			rawInput:  "need groceries at some point",
			wantScore: 0.8,
		},
		{
			name:      "question mark penalty",
			item:      item("Review report", 30),
			rawInput:  "should I review the report?",
			wantScore: 0.75, // 0.8 + 0.1 - 0.15
		},
		{
			name:      "unreasonable time estimate",
			item:      item("Call mom", 300),
			rawInput:  "call mom",
			wantScore: 0.8, // 0.8 + 0.1 - 0.1
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{}
			stage := newStage(t, provider)

			result := stage.Run(context.Background(), tt.item, tt.rawInput)

			assert.InDelta(t, tt.wantScore, result.Score, 0.001)
			assert.Equal(t, 0, provider.callCount)
		})
	}
}

func TestStage_Run_VagueInputScoresLowWithoutModelCall(t *testing.T) {
	provider := &fakeProvider{}
	stage := newStage(t, provider)

	// 0.8 - 0.3 vague - 0.1 short title = 0.4, but vagueness explains it.
	result := stage.Run(context.Background(), item("Misc", 15), "handle that thing and stuff")

	assert.InDelta(t, 0.4, result.Score, 0.001)
	assert.Contains(t, result.Ambiguities, "Input contains vague language")
	assert.Equal(t, 0, provider.callCount)
}

func TestStage_Run_UnexplainedLowScoreCallsModel(t *testing.T) {
	provider := &fakeProvider{raw: `{"score": 0.65, "ambiguities": ["scope unclear"], "reasoning": "implied action"}`}
	stage := newStage(t, provider)

	// 0.8 - 0.1 short - 0.15 question - 0.1 time = 0.45, no vague pattern.
	result := stage.Run(context.Background(), item("Hmm", 2), "hmm?")

	assert.Equal(t, 1, provider.callCount)
	assert.InDelta(t, 0.65, result.Score, 0.001)
	assert.Contains(t, result.Ambiguities, "scope unclear")
	// Heuristic ambiguities are preserved through the model path.
	assert.Contains(t, result.Ambiguities, "Task title is very short")
}

func TestStage_Run_ModelFailureFallsBackToHalf(t *testing.T) {
	provider := &fakeProvider{err: gateway.ErrProviderTimeout}
	stage := newStage(t, provider)

	result := stage.Run(context.Background(), item("Hmm", 2), "hmm?")

	assert.Equal(t, 0.5, result.Score)
	assert.Contains(t, result.Ambiguities, "AI analysis unavailable")
	assert.Contains(t, result.Reasoning, "Heuristic fallback")
}

func TestMergeAmbiguities(t *testing.T) {
	merged := mergeAmbiguities(
		[]string{"a", "b"},
		[]string{"b", "c"},
	)
	assert.Equal(t, []string{"a", "b", "c"}, merged)
}
