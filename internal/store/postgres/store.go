// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package postgres implements the stream ports on a shared Postgres
// database so several restream nodes can serve the same accounts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/ports"
)

var (
	_ ports.AccountProvider = (*Store)(nil)
	_ ports.AssetResolver   = (*Store)(nil)
	_ ports.SessionStore    = (*Store)(nil)
	_ ports.ActivitySink    = (*Store)(nil)
)

// ErrSessionMissing is returned when an update targets an unknown session.
var ErrSessionMissing = errors.New("postgres: session not found")

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	owner TEXT PRIMARY KEY,
	premium BOOLEAN NOT NULL DEFAULT FALSE,
	live_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS assets (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	path TEXT NOT NULL,
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_resolution TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS stream_sessions (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	asset_id TEXT NOT NULL,
	asset_path TEXT NOT NULL,
	platform TEXT NOT NULL,
	quality_tier TEXT NOT NULL,
	orientation TEXT NOT NULL,
	loop BOOLEAN NOT NULL DEFAULT FALSE,
	scheduled_stop_at TIMESTAMPTZ,
	state TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	pid INTEGER NOT NULL DEFAULT 0,
	exit_code INTEGER,
	requested_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	stopped_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS stream_sessions_owner_requested_idx ON stream_sessions (owner, requested_at DESC);
CREATE TABLE IF NOT EXISTS activity_logs (
	id BIGSERIAL PRIMARY KEY,
	owner TEXT NOT NULL,
	action TEXT NOT NULL,
	details TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	client_ip TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
`

// Store is a pgx pool bound to the restream schema.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, verifies connectivity and applies the schema.
func Open(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool, giving up when ctx expires.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Ping checks pool connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertAccount creates an account or updates its premium flag.
func (s *Store) UpsertAccount(ctx context.Context, owner string, premium bool) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO accounts (owner, premium) VALUES ($1, $2)
ON CONFLICT (owner) DO UPDATE SET premium = EXCLUDED.premium
`, owner, premium)
	return err
}

// UpsertAsset registers an asset owned by owner.
func (s *Store) UpsertAsset(ctx context.Context, owner string, a model.Asset) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO assets (id, owner, path, duration_seconds, source_resolution) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET owner = EXCLUDED.owner, path = EXCLUDED.path,
	duration_seconds = EXCLUDED.duration_seconds, source_resolution = EXCLUDED.source_resolution
`, a.ID, owner, a.Path, a.DurationSeconds, a.SourceResolution)
	return err
}

func (s *Store) IsPremium(ctx context.Context, owner string) (bool, error) {
	var premium bool
	err := s.pool.QueryRow(ctx, `SELECT premium FROM accounts WHERE owner = $1`, owner).Scan(&premium)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return premium, err
}

func (s *Store) LiveCount(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT live_count FROM accounts WHERE owner = $1`, owner).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (s *Store) IncrementLiveCount(ctx context.Context, owner string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO accounts (owner, live_count) VALUES ($1, 1)
ON CONFLICT (owner) DO UPDATE SET live_count = accounts.live_count + 1
`, owner)
	return err
}

func (s *Store) ResolveAsset(ctx context.Context, assetID, owner string) (model.Asset, error) {
	var a model.Asset
	err := s.pool.QueryRow(ctx, `
SELECT id, path, duration_seconds, source_resolution FROM assets WHERE id = $1 AND owner = $2
`, assetID, owner).Scan(&a.ID, &a.Path, &a.DurationSeconds, &a.SourceResolution)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Asset{}, model.NewError(model.KindAssetNotFound, fmt.Sprintf("asset %s not found", assetID), nil)
	}
	if err != nil {
		return model.Asset{}, fmt.Errorf("resolve asset: %w", err)
	}
	return a, nil
}

func (s *Store) InsertSession(ctx context.Context, sess model.StreamSession) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO stream_sessions (
	id, owner, asset_id, asset_path, platform, quality_tier, orientation, loop,
	scheduled_stop_at, state, reason, pid, exit_code, requested_at, started_at, stopped_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
`, sess.ID, sess.Owner, sess.Asset.ID, sess.Asset.Path, sess.Platform, sess.QualityTier,
		string(sess.Orientation), sess.Loop, utc(sess.ScheduledStopAt), string(sess.State), string(sess.Reason),
		sess.PID, sess.ExitCode, sess.RequestedAt.UTC(), utc(sess.StartedAt), utc(sess.StoppedAt))
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) UpdateSessionState(ctx context.Context, sess model.StreamSession) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE stream_sessions SET state = $2, reason = $3, pid = $4, exit_code = $5, started_at = $6, stopped_at = $7
WHERE id = $1
`, sess.ID, string(sess.State), string(sess.Reason), sess.PID, sess.ExitCode, utc(sess.StartedAt), utc(sess.StoppedAt))
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionMissing, sess.ID)
	}
	return nil
}

const sessionColumns = `id, owner, asset_id, asset_path, platform, quality_tier, orientation, loop,
	scheduled_stop_at, state, reason, pid, exit_code, requested_at, started_at, stopped_at`

func (s *Store) ListSessions(ctx context.Context, owner string, limit int) ([]model.StreamSession, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `SELECT `+sessionColumns+` FROM stream_sessions
WHERE owner = $1 ORDER BY requested_at DESC, id DESC LIMIT $2`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return collectSessions(rows)
}

func (s *Store) ListNonTerminal(ctx context.Context) ([]model.StreamSession, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sessionColumns+` FROM stream_sessions
WHERE state <> ALL($1) ORDER BY requested_at`, []string{string(model.StateStopped), string(model.StateFailed)})
	if err != nil {
		return nil, fmt.Errorf("list non-terminal sessions: %w", err)
	}
	return collectSessions(rows)
}

func (s *Store) AppendActivityLog(ctx context.Context, a model.Activity) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO activity_logs (owner, action, details, session_id, client_ip, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, a.Owner, a.Action, a.Details, a.SessionID, a.ClientIP, a.At.UTC())
	return err
}

func collectSessions(rows pgx.Rows) ([]model.StreamSession, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StreamSession, error) {
		var (
			sess                       model.StreamSession
			orientation, state, reason string
		)
		err := row.Scan(
			&sess.ID, &sess.Owner, &sess.Asset.ID, &sess.Asset.Path, &sess.Platform, &sess.QualityTier,
			&orientation, &sess.Loop, &sess.ScheduledStopAt, &state, &reason, &sess.PID, &sess.ExitCode,
			&sess.RequestedAt, &sess.StartedAt, &sess.StoppedAt,
		)
		sess.Orientation = model.Orientation(orientation)
		sess.State = model.State(state)
		sess.Reason = model.ReasonCode(reason)
		return sess, err
	})
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
