// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/restream/internal/domain/stream/model"
)

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "", 0)
	assert.Error(t, err)

	_, err = Open(context.Background(), "postgres://%zz", 0)
	assert.Error(t, err)
}

// openForTest connects to RESTREAM_TEST_POSTGRES_DSN or skips.
func openForTest(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("RESTREAM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("RESTREAM_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func TestStore_Integration(t *testing.T) {
	s := openForTest(t)
	ctx := context.Background()
	owner := "it-" + uuid.NewString()

	require.NoError(t, s.UpsertAccount(ctx, owner, false))
	require.NoError(t, s.IncrementLiveCount(ctx, owner))
	n, err := s.LiveCount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assetID := uuid.NewString()
	require.NoError(t, s.UpsertAsset(ctx, owner, model.Asset{ID: assetID, Path: "/uploads/a.mp4"}))
	_, err = s.ResolveAsset(ctx, assetID, "someone-else")
	assert.ErrorIs(t, err, model.ErrAssetNotFound)

	requested := time.Now().UTC().Truncate(time.Millisecond)
	sess := model.StreamSession{
		ID:          uuid.NewString(),
		Owner:       owner,
		Asset:       model.Asset{ID: assetID, Path: "/uploads/a.mp4"},
		Platform:    "youtube",
		QualityTier: "720p",
		Orientation: model.OrientationLandscape,
		State:       model.StateLive,
		PID:         321,
		RequestedAt: requested,
	}
	require.NoError(t, s.InsertSession(ctx, sess))

	open, err := s.ListNonTerminal(ctx)
	require.NoError(t, err)
	found := false
	for _, o := range open {
		if o.ID == sess.ID {
			found = true
		}
	}
	assert.True(t, found)

	code := 0
	stopped := requested.Add(time.Minute)
	sess.State = model.StateStopped
	sess.Reason = model.ReasonCompleted
	sess.PID = 0
	sess.ExitCode = &code
	sess.StoppedAt = &stopped
	require.NoError(t, s.UpdateSessionState(ctx, sess))

	list, err := s.ListSessions(ctx, owner, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.StateStopped, list[0].State)
	require.NotNil(t, list[0].ExitCode)
	assert.Zero(t, *list[0].ExitCode)

	assert.ErrorIs(t, s.UpdateSessionState(ctx, model.StreamSession{ID: uuid.NewString()}), ErrSessionMissing)
	require.NoError(t, s.AppendActivityLog(ctx, model.Activity{Owner: owner, Action: model.ActionStreamStop, At: stopped}))
}
