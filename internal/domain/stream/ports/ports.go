// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ports defines the collaborators the stream registry depends on.
// Implementations live in internal/store, internal/activity and
// internal/infra/ffmpeg.
package ports

import (
	"context"
	"time"

	"github.com/ManuGH/restream/internal/domain/stream/model"
)

// AccountProvider answers quota questions about an owner.
type AccountProvider interface {
	IsPremium(ctx context.Context, owner string) (bool, error)
	// LiveCount is the cumulative number of streams the owner has taken live.
	LiveCount(ctx context.Context, owner string) (int, error)
}

// AssetResolver looks up a stored asset. It returns an error of kind
// model.KindAssetNotFound when the asset is missing or owned by someone else.
type AssetResolver interface {
	ResolveAsset(ctx context.Context, assetID, owner string) (model.Asset, error)
}

// SessionStore persists session history. Calls are fire-and-forget from the
// registry's perspective: failures are logged, never surfaced to callers.
type SessionStore interface {
	InsertSession(ctx context.Context, s model.StreamSession) error
	UpdateSessionState(ctx context.Context, s model.StreamSession) error
	IncrementLiveCount(ctx context.Context, owner string) error
	// ListSessions returns the owner's most recent sessions, newest first.
	ListSessions(ctx context.Context, owner string, limit int) ([]model.StreamSession, error)
	// ListNonTerminal returns every session not in a terminal state.
	ListNonTerminal(ctx context.Context) ([]model.StreamSession, error)
}

// ActivitySink receives per-account activity log entries.
type ActivitySink interface {
	AppendActivityLog(ctx context.Context, a model.Activity) error
}

// EncodeJob is everything the encoder needs to run one session.
type EncodeJob struct {
	SessionID      string
	InputPath      string
	DestinationURL string
	Width          int
	Height         int
	BitrateK       int
	Loop           bool
}

// ExitStatus describes how an encoder process ended.
type ExitStatus struct {
	Code      int
	Signal    string
	Requested bool // a Terminate was issued before the exit
	Err       error
}

// Success reports a clean zero exit.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == "" && s.Err == nil
}

// ExitHandler is invoked exactly once per spawned process.
type ExitHandler func(sessionID string, status ExitStatus)

// Encoder supervises external encoder processes.
type Encoder interface {
	// Spawn starts the process and returns its PID. A non-nil error means
	// no process is running and the exit handler will not be called.
	Spawn(ctx context.Context, job EncodeJob) (int, error)
	// Terminate requests a graceful stop. It returns once the signal is sent.
	Terminate(sessionID string) error
	Alive(sessionID string) bool
	SetExitHandler(h ExitHandler)
	// Shutdown terminates every process and waits for exits or ctx.
	Shutdown(ctx context.Context) error
}

// StopScheduler arms one-shot stop deadlines keyed by session id.
type StopScheduler interface {
	Arm(sessionID string, at time.Time)
	Disarm(sessionID string) bool
	SetFireHandler(fn func(sessionID string))
	Close()
}
