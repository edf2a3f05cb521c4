// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package activity

import (
	"context"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/ports"
	"github.com/ManuGH/restream/internal/resilience"
)

// Guarded wraps a mirror sink in a circuit breaker so a dead Redis costs
// one fast error per append instead of a dial timeout.
type Guarded struct {
	next    ports.ActivitySink
	breaker *resilience.CircuitBreaker
}

var _ ports.ActivitySink = (*Guarded)(nil)

// NewGuarded returns next behind cb.
func NewGuarded(next ports.ActivitySink, cb *resilience.CircuitBreaker) *Guarded {
	return &Guarded{next: next, breaker: cb}
}

func (g *Guarded) AppendActivityLog(ctx context.Context, a model.Activity) error {
	return g.breaker.Do(ctx, func(ctx context.Context) error {
		return g.next.AppendActivityLog(ctx, a)
	})
}
