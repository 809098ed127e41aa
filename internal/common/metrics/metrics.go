// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_turns_processed_total",
			Help: "Total number of turns processed by intent and status",
		},
		[]string{"intent", "status"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_turn_duration_seconds",
			Help: "Duration of turn processing in seconds",
		},
		[]string{"intent"},
	)

	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_model_calls_total",
			Help: "Total number of model provider calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_failures_total",
			Help: "Total number of enrichment stage failures that degraded to defaults",
		},
		[]string{"stage"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_breaker_transitions_total",
			Help: "Circuit breaker state transitions by dependency and target state",
		},
		[]string{"dependency", "state"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_breaker_state",
			Help: "Current circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"dependency"},
	)

	LimiterRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_limiter_rejections_total",
			Help: "Rate limiter rejections by window type",
		},
		[]string{"limit_type"},
	)

	WritebackResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_writeback_results_total",
			Help: "Knowledge writeback outcomes by object type and result",
		},
		[]string{"object_type", "result"},
	)

	WritebackQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_writeback_queue_depth",
			Help: "Number of knowledge objects waiting in the writeback queue",
		},
	)
)
