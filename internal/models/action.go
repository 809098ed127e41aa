package models

// Complexity classifies how much structure a task needs before execution.
type Complexity string

const (
	ComplexityAtomic    Complexity = "atomic"
	ComplexityComposite Complexity = "composite"
	ComplexityProject   Complexity = "project"
)

// CognitiveLoad is the derived routine-vs-friction classification of a task.
type CognitiveLoad string

const (
	LoadRoutine      CognitiveLoad = "routine"
	LoadHighFriction CognitiveLoad = "high_friction"
)

// ExtractedItem is one candidate unit of work parsed out of raw input.
type ExtractedItem struct {
	Title            string `json:"title"`
	RawSegment       string `json:"rawSegment"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
}

// AvoidanceResult scores emotional resistance from 1 (neutral) to 5 (dread).
type AvoidanceResult struct {
	Weight    int      `json:"weight"`
	Signals   []string `json:"signals"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// ComplexityResult classifies task structure and breakdown need.
type ComplexityResult struct {
	Level          Complexity `json:"level"`
	SuggestedSteps int        `json:"suggestedSteps"`
	NeedsBreakdown bool       `json:"needsBreakdown"`
	Reasoning      string     `json:"reasoning,omitempty"`
}

// ConfidenceResult scores how sure the pipeline is about one extraction.
type ConfidenceResult struct {
	Score       float64  `json:"score"`
	Ambiguities []string `json:"ambiguities"`
	Reasoning   string   `json:"reasoning,omitempty"`
}

// BreakdownStep is one micro-step of an initiation plan.
type BreakdownStep struct {
	Title            string `json:"title"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
	IsPhysical       bool   `json:"isPhysical"`
}

// Breakdown is the micro-step plan attached to a project item that
// needs one.
type Breakdown struct {
	Steps                 []BreakdownStep `json:"steps"`
	ProbeQuestion         string          `json:"probeQuestion,omitempty"`
	FirstStepEmphasis     string          `json:"firstStepEmphasis,omitempty"`
	TotalEstimatedMinutes int             `json:"totalEstimatedMinutes"`
}

// EnrichedAction is an ExtractedItem joined with every enrichment result.
// Breakdown is set only for items the scaffolding step broke down.
type EnrichedAction struct {
	ExtractedItem

	Avoidance     AvoidanceResult  `json:"avoidance"`
	Complexity    ComplexityResult `json:"complexity"`
	Confidence    ConfidenceResult `json:"confidence"`
	CognitiveLoad CognitiveLoad    `json:"cognitiveLoad"`
	Breakdown     *Breakdown       `json:"breakdown,omitempty"`
}

// OrchestrationResult is the terminal object of one capture turn.
// Actions is never nil; an empty slice means extraction found nothing.
type OrchestrationResult struct {
	Actions             []EnrichedAction `json:"actions"`
	RawInput            string           `json:"rawInput"`
	OverallConfidence   float64          `json:"overallConfidence"`
	NeedsValidation     bool             `json:"needsValidation"`
	CognitiveLoad       CognitiveLoad    `json:"cognitiveLoad"`
	NeedsScaffolding    bool             `json:"needsScaffolding"`
	ScaffoldingQuestion string           `json:"scaffoldingQuestion,omitempty"`
}

// DeriveCognitiveLoad computes the load class from avoidance weight and
// complexity level. Pure function, no model call.
func DeriveCognitiveLoad(weight int, level Complexity) CognitiveLoad {
	if weight >= 4 {
		return LoadHighFriction
	}
	if level == ComplexityProject {
		return LoadHighFriction
	}
	if weight >= 3 && level == ComplexityComposite {
		return LoadHighFriction
	}
	return LoadRoutine
}

// ClampAvoidanceWeight forces a weight into the valid [1,5] range.
func ClampAvoidanceWeight(w int) int {
	if w < 1 {
		return 1
	}
	if w > 5 {
		return 5
	}
	return w
}

// ClampConfidence forces a score into [0,1].
func ClampConfidence(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
