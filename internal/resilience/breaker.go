// internal/resilience/breaker.go
package resilience

import (
	"sync"
	"time"

	"nuance-pipeline/internal/common/config"
	stderrors "nuance-pipeline/internal/common/errors"
	"nuance-pipeline/internal/common/metrics"
)

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Breaker is a per-dependency circuit breaker. Consecutive failures past
// the threshold open the circuit; after the cooldown a single trial call
// is let through to probe recovery.
type Breaker struct {
	mu sync.Mutex

	name             string
	failureThreshold int
	cooldown         time.Duration
	logger           Logger

	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	now func() time.Time
}

func NewBreaker(name string, cfg config.BreakerConfig, log Logger) *Breaker {
	return &Breaker{
		name:             name,
		failureThreshold: cfg.FailureThreshold,
		cooldown:         time.Duration(cfg.CooldownSeconds) * time.Second,
		logger: log.With(map[string]interface{}{
			"component":  "breaker",
			"dependency": name,
		}),
		state: StateClosed,
		now:   time.Now,
	}
}

// Allow reports whether a call may proceed. While open it fails fast with
// a retry-after hint; past the cooldown exactly one trial call passes.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cooldown {
			return stderrors.NewCircuitOpenError(b.name, b.cooldown-elapsed)
		}
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return nil

	case StateHalfOpen:
		if b.trialInFlight {
			return stderrors.NewCircuitOpenError(b.name, b.cooldown)
		}
		b.trialInFlight = true
		return nil
	}

	return nil
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.trialInFlight = false
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// RecordFailure counts a failure. In half-open a failed trial reopens the
// circuit and restarts the cooldown clock.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false

	if b.state == StateHalfOpen {
		b.openedAt = b.now()
		b.transition(StateOpen)
		return
	}

	b.consecutiveFailures++
	if b.state == StateClosed && b.consecutiveFailures >= b.failureThreshold {
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

// CurrentState returns the state for health reporting.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to

	metrics.BreakerTransitions.WithLabelValues(b.name, to.String()).Inc()
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))

	if to == StateOpen {
		b.logger.Warn("circuit opened", map[string]interface{}{
			"from":                from.String(),
			"consecutiveFailures": b.consecutiveFailures,
			"cooldownSeconds":     int(b.cooldown.Seconds()),
		})
		return
	}
	b.logger.Info("circuit state changed", map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	})
}

// BreakerRegistry hands out one breaker per dependency name.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	cfg      config.BreakerConfig
	logger   Logger
}

func NewBreakerRegistry(cfg config.BreakerConfig, log Logger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		logger:   log,
	}
}

func (r *BreakerRegistry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.cfg, r.logger)
	r.breakers[name] = b
	return b
}
