// internal/orchestrator/orchestrator.go

// Package orchestrator coordinates the capture pipeline: one extraction
// pass, then per-item enrichment fanned out over a bounded worker pool.
package orchestrator

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"nuance-pipeline/internal/common/config"
	"nuance-pipeline/internal/models"
	"nuance-pipeline/internal/stages/avoidance"
	"nuance-pipeline/internal/stages/complexity"
	"nuance-pipeline/internal/stages/confidence"
	"nuance-pipeline/internal/stages/extraction"
	"nuance-pipeline/internal/stages/scaffold"
)

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Orchestrator struct {
	extraction *extraction.Stage
	avoidance  *avoidance.Stage
	complexity *complexity.Stage
	confidence *confidence.Stage
	scaffold   *scaffold.Stage

	pool        chan struct{}
	threshold   float64
	turnTimeout time.Duration
	logger      Logger
}

func New(
	extractionStage *extraction.Stage,
	avoidanceStage *avoidance.Stage,
	complexityStage *complexity.Stage,
	confidenceStage *confidence.Stage,
	scaffoldStage *scaffold.Stage,
	cfg config.PipelineConfig,
	log Logger,
) *Orchestrator {
	return &Orchestrator{
		extraction:  extractionStage,
		avoidance:   avoidanceStage,
		complexity:  complexityStage,
		confidence:  confidenceStage,
		scaffold:    scaffoldStage,
		pool:        make(chan struct{}, cfg.PoolSize),
		threshold:   cfg.ConfidenceThreshold,
		turnTimeout: config.GetDuration(cfg.TurnTimeout),
		logger: log.With(map[string]interface{}{
			"component": "orchestrator",
		}),
	}
}

// Process runs the full capture pipeline on one turn. Extraction failure
// fails the turn; enrichment stage failures degrade item-locally and are
// reflected in the confidence and ambiguity fields instead.
func (o *Orchestrator) Process(ctx context.Context, turn models.Turn) (*models.OrchestrationResult, error) {
	text := strings.TrimSpace(turn.RawInput)
	if text == "" {
		return &models.OrchestrationResult{
			Actions:           []models.EnrichedAction{},
			RawInput:          turn.RawInput,
			OverallConfidence: 1.0,
			NeedsValidation:   false,
			CognitiveLoad:     models.LoadRoutine,
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	o.logger.Info("starting capture pipeline", map[string]interface{}{
		"requestId":   turn.RequestID,
		"inputLength": len(text),
	})

	extractionResult, err := o.extraction.Run(ctx, turn.RawInput)
	if err != nil {
		return nil, err
	}

	if len(extractionResult.Actions) == 0 {
		return &models.OrchestrationResult{
			Actions:           []models.EnrichedAction{},
			RawInput:          turn.RawInput,
			OverallConfidence: extractionResult.Confidence,
			NeedsValidation:   extractionResult.Confidence < o.threshold,
			CognitiveLoad:     models.LoadRoutine,
		}, nil
	}

	enriched := o.enrich(ctx, extractionResult.Actions, turn.RawInput)

	result := o.aggregate(enriched, turn.RawInput)

	o.applyScaffolding(ctx, result)

	o.logger.Info("capture pipeline complete", map[string]interface{}{
		"requestId":         turn.RequestID,
		"actionCount":       len(result.Actions),
		"overallConfidence": result.OverallConfidence,
		"needsValidation":   result.NeedsValidation,
	})

	return result, nil
}

// enrich runs the three enrichment stages per item through the shared
// pool. Results merge by item index, so output order matches extraction
// order regardless of completion order.
func (o *Orchestrator) enrich(ctx context.Context, items []models.ExtractedItem, rawInput string) []models.EnrichedAction {
	enriched := make([]models.EnrichedAction, len(items))

	var wg sync.WaitGroup
	for i := range items {
		i := i
		item := items[i]
		enriched[i].ExtractedItem = item

		wg.Add(3)
		go func() {
			defer wg.Done()
			o.withSlot(ctx, func() {
				enriched[i].Avoidance = o.avoidance.Run(ctx, item.Title, item.RawSegment)
			})
		}()
		go func() {
			defer wg.Done()
			o.withSlot(ctx, func() {
				enriched[i].Complexity = o.complexity.Run(ctx, item.Title, item.EstimatedMinutes)
			})
		}()
		go func() {
			defer wg.Done()
			o.withSlot(ctx, func() {
				enriched[i].Confidence = o.confidence.Run(ctx, item, rawInput)
			})
		}()
	}
	wg.Wait()

	for i := range enriched {
		enriched[i].CognitiveLoad = models.DeriveCognitiveLoad(
			enriched[i].Avoidance.Weight,
			enriched[i].Complexity.Level,
		)
	}

	return enriched
}

// withSlot runs fn holding a pool slot. Once the turn deadline passes the
// slot wait is skipped: the stage runs immediately against the dead
// context and takes its degrade path.
func (o *Orchestrator) withSlot(ctx context.Context, fn func()) {
	select {
	case o.pool <- struct{}{}:
		defer func() { <-o.pool }()
		fn()
	case <-ctx.Done():
		fn()
	}
}

func (o *Orchestrator) aggregate(actions []models.EnrichedAction, rawInput string) *models.OrchestrationResult {
	// The weakest item gates the whole capture: one bad extraction is
	// enough to warrant user validation.
	overall := 1.0
	load := models.LoadRoutine

	for _, a := range actions {
		if a.Confidence.Score < overall {
			overall = a.Confidence.Score
		}
		if a.CognitiveLoad == models.LoadHighFriction {
			load = models.LoadHighFriction
		}
	}
	overall = math.Round(overall*100) / 100

	return &models.OrchestrationResult{
		Actions:           actions,
		RawInput:          rawInput,
		OverallConfidence: overall,
		NeedsValidation:   overall < o.threshold,
		CognitiveLoad:     load,
	}
}

// applyScaffolding runs the sequential scaffolding step: one breakdown
// per project item that asked for one, plus the probe question. A
// single failure drops the whole step; partial plans are not offered.
func (o *Orchestrator) applyScaffolding(ctx context.Context, result *models.OrchestrationResult) {
	candidates := scaffold.Candidates(result.Actions)
	if len(candidates) == 0 {
		return
	}

	question := ""
	for _, idx := range candidates {
		plan, err := o.scaffold.BreakDown(ctx, result.Actions[idx].Title)
		if err != nil {
			o.logger.Warn("scaffolding degraded", map[string]interface{}{
				"title": result.Actions[idx].Title,
				"error": err.Error(),
			})
			for _, j := range candidates {
				result.Actions[j].Breakdown = nil
			}
			return
		}
		result.Actions[idx].Breakdown = plan
		if question == "" && plan.ProbeQuestion != "" {
			question = plan.ProbeQuestion
		}
	}

	if question == "" {
		question = scaffold.ProbeQuestion(result.Actions)
	}
	result.NeedsScaffolding = true
	result.ScaffoldingQuestion = question
}
