// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package registry

import (
	"context"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/log"
	"github.com/ManuGH/restream/internal/metrics"
)

// List returns the owner's recent sessions, newest first: persisted history
// merged with the in-memory table. Before listing, every Live session whose
// process is gone is failed and every Stopping one is finalized.
func (r *Registry) List(ctx context.Context, owner string) ([]model.Summary, error) {
	ctx = log.ContextWithOwner(ctx, owner)
	unlock := r.locks.Lock(owner)
	defer unlock()

	r.reconcileLocked(ctx, owner)

	merged := make(map[string]model.StreamSession)
	if r.deps.Store != nil {
		history, err := r.deps.Store.ListSessions(ctx, owner, r.historyLimit)
		if err != nil {
			r.persistFailed(ctx, "list_sessions", err)
		}
		for _, s := range history {
			merged[s.ID] = s
		}
	}
	for _, s := range r.ownerSessions(owner) {
		merged[s.ID] = r.snapshot(s)
	}

	list := make([]model.StreamSession, 0, len(merged))
	for _, s := range merged {
		list = append(list, s)
	}
	sortNewestFirst(list)
	if len(list) > r.historyLimit {
		list = list[:r.historyLimit]
	}

	out := make([]model.Summary, 0, len(list))
	for i := range list {
		out = append(out, list[i].Summarize())
	}
	return out, nil
}

// GetActive returns the owner's session that currently holds the
// concurrency slot, after reconciling against the live process set.
func (r *Registry) GetActive(ctx context.Context, owner string) (model.Summary, bool) {
	ctx = log.ContextWithOwner(ctx, owner)
	unlock := r.locks.Lock(owner)
	defer unlock()

	r.reconcileLocked(ctx, owner)
	for _, s := range r.ownerSessions(owner) {
		snap := r.snapshot(s)
		if snap.State.OccupiesSlot() {
			return snap.Summarize(), true
		}
	}
	return model.Summary{}, false
}

func (r *Registry) reconcileLocked(ctx context.Context, owner string) {
	for _, s := range r.ownerSessions(owner) {
		state := r.snapshot(s).State
		if !state.OccupiesSlot() || r.deps.Encoder.Alive(s.ID) {
			continue
		}
		sctx := sessionCtx(ctx, s)
		switch state {
		case model.StateLive:
			metrics.IncReconciliation(string(model.StateFailed))
			logger := log.WithContext(sctx, r.logger)
			logger.Warn().Msg("live session has no running process")
			r.crashLocked(sctx, s, nil)
		case model.StateStopping:
			metrics.IncReconciliation(string(model.StateStopped))
			r.finalize(sctx, s, model.StateStopped, s.Reason, nil)
		}
	}
}
