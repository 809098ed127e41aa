// internal/resilience/middleware.go
package resilience

import (
	"context"
	"encoding/json"
	"errors"

	"nuance-pipeline/internal/gateway"
)

// GuardedProvider wraps a model provider with a circuit breaker. Every
// model call in the pipeline goes through this guard, so a failing
// provider is cut off for all stages at once.
type GuardedProvider struct {
	inner   gateway.Provider
	breaker *Breaker
}

func NewGuardedProvider(inner gateway.Provider, breaker *Breaker) *GuardedProvider {
	return &GuardedProvider{
		inner:   inner,
		breaker: breaker,
	}
}

func (g *GuardedProvider) Complete(ctx context.Context, req gateway.CompletionRequest) (*gateway.CompletionResponse, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, err
	}

	resp, err := g.inner.Complete(ctx, req)
	g.record(err)
	return resp, err
}

func (g *GuardedProvider) ExtractStructured(ctx context.Context, req gateway.ExtractionRequest) (json.RawMessage, error) {
	if err := g.breaker.Allow(); err != nil {
		return nil, err
	}

	raw, err := g.inner.ExtractStructured(ctx, req)
	g.record(err)
	return raw, err
}

// record feeds the breaker. Schema validation failures are the model
// producing unusable output, not the provider being down, so they do not
// count toward opening the circuit.
func (g *GuardedProvider) record(err error) {
	if err == nil {
		g.breaker.RecordSuccess()
		return
	}
	if errors.Is(err, gateway.ErrSchemaValidation) {
		g.breaker.RecordSuccess()
		return
	}
	g.breaker.RecordFailure()
}
