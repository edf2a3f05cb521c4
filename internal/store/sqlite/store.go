// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sqlite persists accounts, assets, stream sessions and the activity
// log in a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/ports"
)

const schemaVersion = 1

var (
	_ ports.AccountProvider = (*Store)(nil)
	_ ports.AssetResolver   = (*Store)(nil)
	_ ports.SessionStore    = (*Store)(nil)
	_ ports.ActivitySink    = (*Store)(nil)
)

// ErrSessionMissing is returned when an update targets an unknown session.
var ErrSessionMissing = errors.New("sqlite: session not found")

// Store implements the stream ports on SQLite.
type Store struct {
	DB *sql.DB
}

// New opens (and migrates) the database at dbPath.
func New(dbPath string, cfg Config) (*Store, error) {
	db, err := Open(dbPath, cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("stream store: migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Destination keys are credentials and are never persisted.
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		owner TEXT PRIMARY KEY,
		premium INTEGER NOT NULL DEFAULT 0,
		live_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		path TEXT NOT NULL,
		duration_seconds REAL NOT NULL DEFAULT 0,
		source_resolution TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_assets_owner ON assets(owner);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		asset_path TEXT NOT NULL,
		platform TEXT NOT NULL,
		quality_tier TEXT NOT NULL,
		orientation TEXT NOT NULL,
		loop INTEGER NOT NULL DEFAULT 0,
		scheduled_stop_at_ms INTEGER,
		state TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		pid INTEGER NOT NULL DEFAULT 0,
		exit_code INTEGER,
		requested_at_ms INTEGER NOT NULL,
		started_at_ms INTEGER,
		stopped_at_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_owner_requested ON sessions(owner, requested_at_ms DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);

	CREATE TABLE IF NOT EXISTS activity_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		action TEXT NOT NULL,
		details TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		client_ip TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_activity_owner ON activity_logs(owner, created_at_ms);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// UpsertAccount creates an account or updates its premium flag.
func (s *Store) UpsertAccount(ctx context.Context, owner string, premium bool) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO accounts (owner, premium) VALUES (?, ?)
	ON CONFLICT(owner) DO UPDATE SET premium = excluded.premium`, owner, premium)
	return err
}

// UpsertAsset registers an asset owned by owner.
func (s *Store) UpsertAsset(ctx context.Context, owner string, a model.Asset) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO assets (id, owner, path, duration_seconds, source_resolution) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		owner = excluded.owner,
		path = excluded.path,
		duration_seconds = excluded.duration_seconds,
		source_resolution = excluded.source_resolution`,
		a.ID, owner, a.Path, a.DurationSeconds, a.SourceResolution)
	return err
}

func (s *Store) IsPremium(ctx context.Context, owner string) (bool, error) {
	var premium bool
	err := s.DB.QueryRowContext(ctx, `SELECT premium FROM accounts WHERE owner = ?`, owner).Scan(&premium)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return premium, err
}

func (s *Store) LiveCount(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT live_count FROM accounts WHERE owner = ?`, owner).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (s *Store) IncrementLiveCount(ctx context.Context, owner string) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO accounts (owner, live_count) VALUES (?, 1)
	ON CONFLICT(owner) DO UPDATE SET live_count = live_count + 1`, owner)
	return err
}

func (s *Store) ResolveAsset(ctx context.Context, assetID, owner string) (model.Asset, error) {
	var a model.Asset
	err := s.DB.QueryRowContext(ctx, `
	SELECT id, path, duration_seconds, source_resolution FROM assets WHERE id = ? AND owner = ?`,
		assetID, owner).Scan(&a.ID, &a.Path, &a.DurationSeconds, &a.SourceResolution)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Asset{}, model.NewError(model.KindAssetNotFound, fmt.Sprintf("asset %s not found", assetID), nil)
	}
	if err != nil {
		return model.Asset{}, fmt.Errorf("resolve asset: %w", err)
	}
	return a, nil
}

func (s *Store) InsertSession(ctx context.Context, sess model.StreamSession) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO sessions (
		id, owner, asset_id, asset_path, platform, quality_tier, orientation, loop,
		scheduled_stop_at_ms, state, reason, pid, exit_code,
		requested_at_ms, started_at_ms, stopped_at_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Owner, sess.Asset.ID, sess.Asset.Path, sess.Platform, sess.QualityTier,
		string(sess.Orientation), sess.Loop,
		nullMillis(sess.ScheduledStopAt), string(sess.State), string(sess.Reason), sess.PID, nullInt(sess.ExitCode),
		sess.RequestedAt.UnixMilli(), nullMillis(sess.StartedAt), nullMillis(sess.StoppedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) UpdateSessionState(ctx context.Context, sess model.StreamSession) error {
	res, err := s.DB.ExecContext(ctx, `
	UPDATE sessions SET
		state = ?, reason = ?, pid = ?, exit_code = ?,
		started_at_ms = ?, stopped_at_ms = ?
	WHERE id = ?`,
		string(sess.State), string(sess.Reason), sess.PID, nullInt(sess.ExitCode),
		nullMillis(sess.StartedAt), nullMillis(sess.StoppedAt), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionMissing, sess.ID)
	}
	return nil
}

const sessionColumns = `id, owner, asset_id, asset_path, platform, quality_tier, orientation, loop,
	scheduled_stop_at_ms, state, reason, pid, exit_code, requested_at_ms, started_at_ms, stopped_at_ms`

func (s *Store) ListSessions(ctx context.Context, owner string, limit int) ([]model.StreamSession, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions
	WHERE owner = ? ORDER BY requested_at_ms DESC, id DESC LIMIT ?`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return scanSessions(rows)
}

func (s *Store) ListNonTerminal(ctx context.Context) ([]model.StreamSession, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions
	WHERE state NOT IN (?, ?) ORDER BY requested_at_ms`, string(model.StateStopped), string(model.StateFailed))
	if err != nil {
		return nil, fmt.Errorf("list non-terminal sessions: %w", err)
	}
	return scanSessions(rows)
}

func (s *Store) AppendActivityLog(ctx context.Context, a model.Activity) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO activity_logs (owner, action, details, session_id, client_ip, created_at_ms)
	VALUES (?, ?, ?, ?, ?, ?)`,
		a.Owner, a.Action, a.Details, a.SessionID, a.ClientIP, a.At.UnixMilli())
	return err
}

// ListActivity returns the owner's most recent activity entries, newest first.
func (s *Store) ListActivity(ctx context.Context, owner string, limit int) ([]model.Activity, error) {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT owner, action, details, session_id, client_ip, created_at_ms
	FROM activity_logs WHERE owner = ? ORDER BY id DESC LIMIT ?`, owner, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Activity
	for rows.Next() {
		var a model.Activity
		var at int64
		if err := rows.Scan(&a.Owner, &a.Action, &a.Details, &a.SessionID, &a.ClientIP, &at); err != nil {
			return nil, err
		}
		a.At = time.UnixMilli(at).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanSessions(rows *sql.Rows) ([]model.StreamSession, error) {
	defer func() { _ = rows.Close() }()

	var out []model.StreamSession
	for rows.Next() {
		var (
			sess                        model.StreamSession
			orientation, state, reason  string
			scheduled, started, stopped sql.NullInt64
			exitCode                    sql.NullInt64
			requested                   int64
		)
		if err := rows.Scan(
			&sess.ID, &sess.Owner, &sess.Asset.ID, &sess.Asset.Path, &sess.Platform, &sess.QualityTier,
			&orientation, &sess.Loop, &scheduled, &state, &reason, &sess.PID, &exitCode,
			&requested, &started, &stopped,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Orientation = model.Orientation(orientation)
		sess.State = model.State(state)
		sess.Reason = model.ReasonCode(reason)
		sess.RequestedAt = time.UnixMilli(requested).UTC()
		sess.ScheduledStopAt = fromMillis(scheduled)
		sess.StartedAt = fromMillis(started)
		sess.StoppedAt = fromMillis(stopped)
		if exitCode.Valid {
			code := int(exitCode.Int64)
			sess.ExitCode = &code
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
