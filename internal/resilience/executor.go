// Package resilience composes the circuit breaker and retry engine into the
// fixed breaker-outside-retry ordering mandated by §4.5 and §9(c):
// breaker.Call(ctx, func() { return retry.Do(ctx, fn) }).
package resilience

import (
	"context"

	"github.com/wxxb789/vprism/internal/circuitbreaker"
	"github.com/wxxb789/vprism/internal/retry"
)

// Executor runs a call through retry, itself wrapped by a circuit breaker.
// A breaker rejection is raised before retry.Do ever runs, so it never
// consumes a retry attempt or feeds retry's own accounting.
type Executor struct {
	Breaker *circuitbreaker.Breaker
	Retryer *retry.Retryer
}

// New builds an Executor from an already-constructed breaker and retryer.
func New(b *circuitbreaker.Breaker, r *retry.Retryer) *Executor {
	return &Executor{Breaker: b, Retryer: r}
}

// Execute runs fn through retry-inside-breaker.
func (e *Executor) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return e.Breaker.Call(ctx, func(ctx context.Context) error {
		return e.Retryer.Do(ctx, fn)
	})
}
