// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package registry

import (
	"context"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/log"
	"github.com/ManuGH/restream/internal/metrics"
)

// Persistence is fire-and-forget: failures are counted and logged but never
// change the outcome of the operation that triggered them. Writes detach
// from the caller's cancellation so a finished HTTP request cannot drop them.

func (r *Registry) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
}

func (r *Registry) persistFailed(ctx context.Context, op string, err error) {
	metrics.IncPersistenceError(op)
	logger := log.WithContext(ctx, r.logger)
	logger.Warn().Err(err).Str("op", op).Msg("persistence failed")
}

func (r *Registry) persistInsert(ctx context.Context, s model.StreamSession) {
	if r.deps.Store == nil {
		return
	}
	pctx, cancel := r.persistCtx(ctx)
	defer cancel()
	if err := r.deps.Store.InsertSession(pctx, s); err != nil {
		r.persistFailed(ctx, "insert_session", err)
	}
}

func (r *Registry) persistUpdate(ctx context.Context, s model.StreamSession) {
	if r.deps.Store == nil {
		return
	}
	pctx, cancel := r.persistCtx(ctx)
	defer cancel()
	if err := r.deps.Store.UpdateSessionState(pctx, s); err != nil {
		r.persistFailed(ctx, "update_session", err)
	}
}

func (r *Registry) persistLiveCount(ctx context.Context, owner string) {
	if r.deps.Store == nil {
		return
	}
	pctx, cancel := r.persistCtx(ctx)
	defer cancel()
	if err := r.deps.Store.IncrementLiveCount(pctx, owner); err != nil {
		r.persistFailed(ctx, "increment_live_count", err)
	}
}

func (r *Registry) appendActivity(ctx context.Context, owner, action, sessionID, details string) {
	if r.deps.Activity == nil {
		return
	}
	pctx, cancel := r.persistCtx(ctx)
	defer cancel()
	entry := model.Activity{
		Owner:     owner,
		Action:    action,
		Details:   details,
		SessionID: sessionID,
		ClientIP:  ClientIPFromContext(ctx),
		At:        r.now(),
	}
	if err := r.deps.Activity.AppendActivityLog(pctx, entry); err != nil {
		r.persistFailed(ctx, "append_activity", err)
	}
}
