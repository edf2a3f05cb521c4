// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package activity

import (
	"context"
	"errors"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/ports"
)

// Fanout delivers every entry to all sinks. The first sink is the primary
// store; the others are best-effort mirrors.
type Fanout []ports.ActivitySink

var _ ports.ActivitySink = Fanout(nil)

// NewFanout drops nil sinks. With a single sink it returns that sink.
func NewFanout(sinks ...ports.ActivitySink) ports.ActivitySink {
	var out Fanout
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// AppendActivityLog writes to every sink and joins the failures.
func (f Fanout) AppendActivityLog(ctx context.Context, a model.Activity) error {
	var errs []error
	for _, s := range f {
		if err := s.AppendActivityLog(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
