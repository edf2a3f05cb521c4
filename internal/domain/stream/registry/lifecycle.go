// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package registry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/ports"
	"github.com/ManuGH/restream/internal/domain/stream/quota"
	"github.com/ManuGH/restream/internal/log"
	"github.com/ManuGH/restream/internal/metrics"
	"github.com/ManuGH/restream/internal/telemetry"
)

var errNotFound = model.NewError(model.KindSessionNotFound, "stream not found or already stopped", nil)

// Start validates req, runs the quota gate and launches the encoder. On
// success the session is Live, the owner's live counter is incremented and
// the optional scheduled stop is armed. A spawn failure leaves a Failed
// record and changes nothing else.
func (r *Registry) Start(ctx context.Context, owner string, req model.StartRequest) (model.Summary, error) {
	ctx = log.ContextWithOwner(ctx, owner)
	ctx, span := r.tracer.Start(ctx, "registry.Start", trace.WithAttributes(
		telemetry.EncodeAttributes(req.Platform, req.QualityTier, string(req.Orientation), req.Loop)...,
	))
	defer span.End()
	span.SetAttributes(telemetry.SessionAttributes("", owner, "")...)

	sum, err := r.start(ctx, owner, req)
	if err != nil {
		telemetry.RecordError(span, err, string(model.KindOf(err)))
		return sum, err
	}
	span.SetAttributes(telemetry.SessionAttributes(sum.ID, "", string(sum.State))...)
	return sum, nil
}

func (r *Registry) start(ctx context.Context, owner string, req model.StartRequest) (model.Summary, error) {
	logger := log.WithContext(ctx, r.logger)
	catalog, policy, _ := r.settings()

	job, err := r.validate(catalog, owner, req)
	if err != nil {
		metrics.IncSessionStart("invalid")
		return model.Summary{}, err
	}
	if r.isClosing() {
		metrics.IncSessionStart("error")
		return model.Summary{}, model.NewError(model.KindInternal, "service is shutting down", nil)
	}

	unlock := r.locks.Lock(owner)
	defer unlock()

	acct, err := r.account(ctx, owner)
	if err != nil {
		metrics.IncSessionStart("error")
		logger.Error().Err(err).Msg("account lookup failed")
		return model.Summary{}, model.NewError(model.KindInternal, "account lookup failed", err)
	}
	if d := quota.CanStart(policy, acct, req.QualityTier); !d.Allowed {
		metrics.IncQuotaDenial(string(d.Kind))
		metrics.IncSessionStart("denied")
		logger.Info().
			Str(log.FieldEvent, "session.denied").
			Str("kind", string(d.Kind)).
			Str(log.FieldQualityTier, req.QualityTier).
			Int("live_count", acct.LiveCount).
			Bool("premium", acct.Premium).
			Msg("start denied by quota gate")
		return model.Summary{}, d.Err()
	}

	asset, err := r.deps.Assets.ResolveAsset(ctx, req.AssetID, owner)
	if err != nil {
		if model.KindOf(err) == model.KindAssetNotFound {
			metrics.IncSessionStart("asset_not_found")
			return model.Summary{}, err
		}
		metrics.IncSessionStart("error")
		logger.Error().Err(err).Str(log.FieldAssetID, req.AssetID).Msg("asset lookup failed")
		return model.Summary{}, model.NewError(model.KindInternal, "asset lookup failed", err)
	}

	s := &model.StreamSession{
		ID:              r.newID(),
		Owner:           owner,
		Asset:           asset,
		Platform:        req.Platform,
		DestinationKey:  req.DestinationKey,
		QualityTier:     req.QualityTier,
		Orientation:     req.Orientation,
		Loop:            req.Loop,
		ScheduledStopAt: req.ScheduledStopAt,
		State:           model.StateIdle,
		RequestedAt:     r.now(),
	}
	if err := s.Transition(model.StateStarting); err != nil {
		return model.Summary{}, model.NewError(model.KindInternal, "session init", err)
	}
	ctx = log.ContextWithSessionID(ctx, s.ID)
	logger = log.WithContext(ctx, r.logger)
	r.insert(s)
	r.logTransition(ctx, s.ID, model.StateIdle, model.StateStarting, model.ReasonNone)
	r.persistInsert(ctx, r.snapshot(s))

	job.SessionID = s.ID
	job.InputPath = asset.Path
	pid, err := r.deps.Encoder.Spawn(ctx, job)
	if err != nil {
		metrics.IncSessionStart("spawn_failed")
		logger.Error().Err(err).Msg("encoder spawn failed")
		r.finalize(ctx, s, model.StateFailed, model.ReasonSpawnFailed, nil)
		r.appendActivity(ctx, owner, model.ActionStreamFailed, s.ID,
			fmt.Sprintf("Failed to start stream of asset %s to %s", asset.ID, req.Platform))
		return model.Summary{}, model.NewError(model.KindEncoderSpawnFailure, "encoder failed to start", err)
	}

	startedAt := r.now()
	if err := r.update(s, func(s *model.StreamSession) error {
		if err := s.Transition(model.StateLive); err != nil {
			return err
		}
		s.PID = pid
		s.StartedAt = &startedAt
		return nil
	}); err != nil {
		logger.Error().Err(err).Msg("commit live failed")
		_ = r.deps.Encoder.Terminate(s.ID)
		return model.Summary{}, model.NewError(model.KindInternal, "commit live", err)
	}
	r.logTransition(ctx, s.ID, model.StateStarting, model.StateLive, model.ReasonNone)

	snap := r.snapshot(s)
	r.persistUpdate(ctx, snap)
	r.persistLiveCount(ctx, owner)
	if req.ScheduledStopAt != nil {
		r.deps.Scheduler.Arm(s.ID, *req.ScheduledStopAt)
	}
	r.appendActivity(ctx, owner, model.ActionStreamStart, s.ID,
		fmt.Sprintf("Started streaming asset %s to %s (%s, %s)", asset.ID, req.Platform, req.QualityTier, req.Orientation))
	metrics.IncSessionStart("live")

	logger.Info().
		Str(log.FieldEvent, "session.live").
		Int(log.FieldPID, pid).
		Str(log.FieldPlatform, req.Platform).
		Str(log.FieldQualityTier, req.QualityTier).
		Str(log.FieldOrientation, string(req.Orientation)).
		Bool("loop", req.Loop).
		Msg("stream is live")
	return snap.Summarize(), nil
}

// validate checks the request against the catalog and renders the encode
// job parameters that do not depend on the resolved asset.
func (r *Registry) validate(catalog model.Catalog, owner string, req model.StartRequest) (ports.EncodeJob, error) {
	if strings.TrimSpace(owner) == "" {
		return ports.EncodeJob{}, model.NewError(model.KindInvalidRequest, "owner is required", nil)
	}
	if req.AssetID == "" {
		return ports.EncodeJob{}, model.NewError(model.KindInvalidRequest, "assetId is required", nil)
	}
	if req.Orientation != model.OrientationLandscape && req.Orientation != model.OrientationPortrait {
		return ports.EncodeJob{}, model.NewError(model.KindInvalidRequest, fmt.Sprintf("unknown orientation %q", req.Orientation), nil)
	}
	url, err := catalog.Destination(req.Platform, req.DestinationKey)
	if err != nil {
		return ports.EncodeJob{}, err
	}
	frame, err := catalog.Frame(req.QualityTier, req.Orientation)
	if err != nil {
		return ports.EncodeJob{}, err
	}
	if req.ScheduledStopAt != nil && !req.ScheduledStopAt.After(r.now()) {
		return ports.EncodeJob{}, model.NewError(model.KindInvalidRequest, "scheduledStopAt must be in the future", nil)
	}
	return ports.EncodeJob{
		DestinationURL: url,
		Width:          frame.Width,
		Height:         frame.Height,
		BitrateK:       frame.BitrateK,
		Loop:           req.Loop,
	}, nil
}

func (r *Registry) account(ctx context.Context, owner string) (quota.Account, error) {
	premium, err := r.deps.Accounts.IsPremium(ctx, owner)
	if err != nil {
		return quota.Account{}, fmt.Errorf("premium flag: %w", err)
	}
	count, err := r.deps.Accounts.LiveCount(ctx, owner)
	if err != nil {
		return quota.Account{}, fmt.Errorf("live count: %w", err)
	}
	return quota.Account{Premium: premium, LiveCount: count, Active: r.activeFor(owner)}, nil
}

// Stop requests termination of the owner's session. A session already
// Stopping is acknowledged without change.
func (r *Registry) Stop(ctx context.Context, owner, id string) error {
	ctx = log.ContextWithSessionID(log.ContextWithOwner(ctx, owner), id)
	ctx, span := r.tracer.Start(ctx, "registry.Stop", trace.WithAttributes(
		telemetry.SessionAttributes(id, owner, "")...,
	))
	defer span.End()

	err := r.stop(ctx, owner, id)
	if err != nil {
		telemetry.RecordError(span, err, string(model.KindOf(err)))
	}
	return err
}

func (r *Registry) stop(ctx context.Context, owner, id string) error {
	unlock := r.locks.Lock(owner)
	defer unlock()

	s, ok := r.get(id)
	if !ok || s.Owner != owner || s.State.IsTerminal() {
		return errNotFound
	}
	if s.State == model.StateStopping {
		return nil
	}
	if err := r.stopLocked(ctx, s, model.ReasonUserStop); err != nil {
		return err
	}
	r.appendActivity(ctx, owner, model.ActionStreamStop, id, "Stopped stream")
	return nil
}

// stopLocked moves a Live session to Stopping and signals the encoder. The
// session becomes Stopped on the exit notification, or right away when
// stops are optimistic or the process is already gone.
func (r *Registry) stopLocked(ctx context.Context, s *model.StreamSession, reason model.ReasonCode) error {
	logger := log.WithContext(ctx, r.logger)
	from := s.State
	if err := r.update(s, func(s *model.StreamSession) error {
		if err := s.Transition(model.StateStopping); err != nil {
			return err
		}
		s.Reason = reason
		return nil
	}); err != nil {
		logger.Error().Err(err).Msg("stop rejected by state machine")
		return model.NewError(model.KindInternal, "stop", err)
	}
	r.deps.Scheduler.Disarm(s.ID)
	r.logTransition(ctx, s.ID, from, model.StateStopping, reason)
	r.persistUpdate(ctx, r.snapshot(s))

	if err := r.deps.Encoder.Terminate(s.ID); err != nil {
		logger.Warn().Err(err).Msg("terminate request failed")
	}

	_, _, optimistic := r.settings()
	if optimistic || !r.deps.Encoder.Alive(s.ID) {
		r.finalize(ctx, s, model.StateStopped, reason, nil)
	}
	return nil
}

// finalize moves s into a terminal state, releases its process
// association and disarms any scheduled stop.
func (r *Registry) finalize(ctx context.Context, s *model.StreamSession, to model.State, reason model.ReasonCode, exitCode *int) bool {
	from := s.State
	stoppedAt := r.now()
	if err := r.update(s, func(s *model.StreamSession) error {
		if err := s.Transition(to); err != nil {
			return err
		}
		s.Reason = reason
		s.StoppedAt = &stoppedAt
		s.PID = 0
		if exitCode != nil {
			code := *exitCode
			s.ExitCode = &code
		}
		return nil
	}); err != nil {
		logger := log.WithContext(ctx, r.logger)
		logger.Error().Err(err).Msg("terminal transition rejected")
		return false
	}
	r.deps.Scheduler.Disarm(s.ID)
	r.logTransition(ctx, s.ID, from, to, reason)
	r.persistUpdate(ctx, r.snapshot(s))
	r.prune(s.Owner)
	return true
}

// OnExit receives encoder exit notifications.
func (r *Registry) OnExit(id string, status ports.ExitStatus) {
	owner, ok := r.ownerOf(id)
	if !ok {
		r.logger.Debug().Str(log.FieldSessionID, id).Msg("exit for unknown session ignored")
		return
	}
	ctx := log.ContextWithSessionID(log.ContextWithOwner(context.Background(), owner), id)

	unlock := r.locks.Lock(owner)
	defer unlock()

	s, ok := r.get(id)
	if !ok {
		return
	}
	code := status.Code
	switch s.State {
	case model.StateStopping:
		r.finalize(ctx, s, model.StateStopped, s.Reason, &code)
	case model.StateLive:
		if status.Success() {
			if r.finalize(ctx, s, model.StateStopped, model.ReasonCompleted, &code) {
				r.appendActivity(ctx, owner, model.ActionStreamStop, id, "Stream completed")
			}
			return
		}
		r.crashLocked(ctx, s, &code)
	case model.StateStarting:
		r.crashLocked(ctx, s, &code)
	}
}

// OnCrash marks a Starting or Live session Failed. Terminal sessions are
// left untouched.
func (r *Registry) OnCrash(ctx context.Context, id string, exitCode int) {
	owner, ok := r.ownerOf(id)
	if !ok {
		return
	}
	ctx = log.ContextWithSessionID(log.ContextWithOwner(ctx, owner), id)
	unlock := r.locks.Lock(owner)
	defer unlock()

	if s, ok := r.get(id); ok {
		r.crashLocked(ctx, s, &exitCode)
	}
}

func (r *Registry) crashLocked(ctx context.Context, s *model.StreamSession, exitCode *int) {
	switch {
	case s.State.IsTerminal():
		return
	case s.State == model.StateStopping:
		r.finalize(ctx, s, model.StateStopped, s.Reason, exitCode)
		return
	}
	if !r.finalize(ctx, s, model.StateFailed, model.ReasonEncoderCrashed, exitCode) {
		return
	}
	detail := "Encoder exited unexpectedly"
	if exitCode != nil {
		detail = fmt.Sprintf("Encoder exited with code %d", *exitCode)
	}
	logger := log.WithContext(ctx, r.logger)
	logger.Warn().
		Str(log.FieldEvent, "session.crashed").
		Msg(detail)
	r.appendActivity(ctx, s.Owner, model.ActionStreamFailed, s.ID, detail)
}

func (r *Registry) onScheduledStop(id string) {
	owner, ok := r.ownerOf(id)
	if !ok {
		return
	}
	ctx := log.ContextWithSessionID(log.ContextWithOwner(context.Background(), owner), id)
	unlock := r.locks.Lock(owner)
	defer unlock()

	s, ok := r.get(id)
	if !ok || s.State != model.StateLive {
		r.logger.Debug().Str(log.FieldSessionID, id).Msg("scheduled stop for inactive session ignored")
		return
	}
	if err := r.stopLocked(ctx, s, model.ReasonScheduledStop); err != nil {
		logger := log.WithContext(ctx, r.logger)
		logger.Error().Err(err).Msg("scheduled stop failed")
		return
	}
	r.appendActivity(ctx, owner, model.ActionStreamStop, id, "Scheduled stop")
}

// sessionCtx tags ctx with the owner and id of s for log correlation.
func sessionCtx(ctx context.Context, s *model.StreamSession) context.Context {
	return log.ContextWithSessionID(log.ContextWithOwner(ctx, s.Owner), s.ID)
}

// logTransition expects ctx to carry the session id.
func (r *Registry) logTransition(ctx context.Context, id string, from, to model.State, reason model.ReasonCode) {
	metrics.IncSessionTransition(string(from), string(to))
	logger := log.WithContext(ctx, r.logger)
	logger.Info().
		Str(log.FieldEvent, "session.transition").
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Str(log.FieldReason, string(reason)).
		Msg("session state changed")
}
