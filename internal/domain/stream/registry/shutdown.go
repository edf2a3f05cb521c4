// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package registry

import (
	"context"
	"fmt"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/metrics"
)

// Recover fails every session a previous process left non-terminal. Their
// encoders and scheduled stops did not survive the restart.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	if r.deps.Store == nil {
		return 0, nil
	}
	orphans, err := r.deps.Store.ListNonTerminal(ctx)
	if err != nil {
		return 0, fmt.Errorf("list non-terminal sessions: %w", err)
	}

	n := 0
	for i := range orphans {
		s := orphans[i]
		if _, live := r.get(s.ID); live {
			continue
		}
		from := s.State
		if from.IsTerminal() {
			continue
		}
		// Written directly: Stopping has no edge to Failed.
		s.State = model.StateFailed
		now := r.now()
		s.Reason = model.ReasonOrphaned
		s.StoppedAt = &now
		s.PID = 0

		sctx := sessionCtx(ctx, &s)
		r.logTransition(sctx, s.ID, from, model.StateFailed, model.ReasonOrphaned)
		r.persistUpdate(sctx, s)
		metrics.IncReconciliation("orphaned")
		n++
	}
	if n > 0 {
		r.logger.Warn().Int("count", n).Msg("failed sessions orphaned by a previous run")
	}
	return n, nil
}

// Shutdown rejects new starts, terminates every encoder and waits for their
// exits until ctx expires. Sessions still holding a slot afterwards are
// marked Stopped.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	ids := make([]string, 0, r.active)
	for id, s := range r.sessions {
		if s.State.OccupiesSlot() {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	r.logger.Info().Int("active", len(ids)).Msg("registry shutting down")

	for _, id := range ids {
		r.withSession(ctx, id, func(sctx context.Context, s *model.StreamSession) {
			if s.State != model.StateLive {
				return
			}
			from := s.State
			if err := r.update(s, func(s *model.StreamSession) error {
				if err := s.Transition(model.StateStopping); err != nil {
					return err
				}
				s.Reason = model.ReasonShutdown
				return nil
			}); err != nil {
				return
			}
			r.deps.Scheduler.Disarm(s.ID)
			r.logTransition(sctx, s.ID, from, model.StateStopping, model.ReasonShutdown)
			r.persistUpdate(sctx, r.snapshot(s))
		})
	}

	err := r.deps.Encoder.Shutdown(ctx)

	for _, id := range ids {
		r.withSession(ctx, id, func(sctx context.Context, s *model.StreamSession) {
			if s.State.IsTerminal() {
				return
			}
			reason := s.Reason
			if reason == model.ReasonNone {
				reason = model.ReasonShutdown
			}
			if s.State == model.StateStarting {
				r.finalize(sctx, s, model.StateFailed, reason, nil)
				return
			}
			if s.State == model.StateLive {
				_ = r.update(s, func(s *model.StreamSession) error { return s.Transition(model.StateStopping) })
			}
			r.finalize(sctx, s, model.StateStopped, reason, nil)
		})
	}

	r.deps.Scheduler.Close()
	return err
}

// withSession runs fn under the owner lock of session id, if it exists.
func (r *Registry) withSession(ctx context.Context, id string, fn func(context.Context, *model.StreamSession)) {
	owner, ok := r.ownerOf(id)
	if !ok {
		return
	}
	unlock := r.locks.Lock(owner)
	defer unlock()
	if s, ok := r.get(id); ok {
		fn(sessionCtx(ctx, s), s)
	}
}
