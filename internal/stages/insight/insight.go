// internal/stages/insight/insight.go

// Package insight derives behavioral patterns from an enriched turn.
// Insights feed the knowledge store only; they never change the response
// sent back to the user.
package insight

import (
	"fmt"

	"nuance-pipeline/internal/models"
)

const (
	PatternAvoidanceCluster = "avoidance_cluster"
	PatternBrainDump        = "brain_dump"
	PatternVagueCapture     = "vague_capture"
)

// Insight is a detected behavioral pattern with its supporting evidence.
type Insight struct {
	Pattern     string   `json:"pattern"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
	Confidence  float64  `json:"confidence"`
}

// Detect runs the pattern detectors over one turn's enriched actions.
// Detection is purely lexical and structural; spending model tokens on
// retrospective patterns is not worth the latency inside a turn.
func Detect(actions []models.EnrichedAction) []Insight {
	var insights []Insight

	if in := detectAvoidanceCluster(actions); in != nil {
		insights = append(insights, *in)
	}
	if in := detectBrainDump(actions); in != nil {
		insights = append(insights, *in)
	}
	if in := detectVagueCapture(actions); in != nil {
		insights = append(insights, *in)
	}

	return insights
}

// detectAvoidanceCluster flags turns where several items carry heavy
// resistance. One dreaded task is normal; a cluster suggests overload.
func detectAvoidanceCluster(actions []models.EnrichedAction) *Insight {
	var evidence []string
	for _, a := range actions {
		if a.Avoidance.Weight >= 4 {
			evidence = append(evidence, a.Title)
		}
	}
	if len(evidence) < 2 {
		return nil
	}
	return &Insight{
		Pattern:     PatternAvoidanceCluster,
		Description: fmt.Sprintf("%d tasks in one capture carry high avoidance weight", len(evidence)),
		Evidence:    evidence,
		Confidence:  0.8,
	}
}

// detectBrainDump flags unusually large captures.
func detectBrainDump(actions []models.EnrichedAction) *Insight {
	if len(actions) < 6 {
		return nil
	}
	evidence := make([]string, 0, len(actions))
	for _, a := range actions {
		evidence = append(evidence, a.Title)
	}
	return &Insight{
		Pattern:     PatternBrainDump,
		Description: fmt.Sprintf("Single capture produced %d tasks", len(actions)),
		Evidence:    evidence,
		Confidence:  0.9,
	}
}

// detectVagueCapture flags turns where most items scored low confidence.
func detectVagueCapture(actions []models.EnrichedAction) *Insight {
	if len(actions) == 0 {
		return nil
	}
	var evidence []string
	for _, a := range actions {
		if a.Confidence.Score < 0.6 {
			evidence = append(evidence, a.Title)
		}
	}
	if len(evidence)*2 <= len(actions) {
		return nil
	}
	return &Insight{
		Pattern:     PatternVagueCapture,
		Description: "Most extracted tasks scored low confidence",
		Evidence:    evidence,
		Confidence:  0.7,
	}
}
