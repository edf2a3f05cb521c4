// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/restream/internal/domain/stream/model"
)

func TestStore_Accounts(t *testing.T) {
	ctx := context.Background()
	s := New()

	premium, err := s.IsPremium(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, premium)

	s.PutAccount("alice", Account{Premium: true, LiveCount: 3})
	require.NoError(t, s.IncrementLiveCount(ctx, "alice"))
	require.NoError(t, s.IncrementLiveCount(ctx, "bob"))

	n, err := s.LiveCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	premium, _ = s.IsPremium(ctx, "alice")
	assert.True(t, premium, "increment keeps the premium flag")

	n, _ = s.LiveCount(ctx, "bob")
	assert.Equal(t, 1, n)
}

func TestStore_ResolveAssetChecksOwner(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutAsset("alice", model.Asset{ID: "a1", Path: "/v/a1.mp4"})

	a, err := s.ResolveAsset(ctx, "a1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "/v/a1.mp4", a.Path)

	_, err = s.ResolveAsset(ctx, "a1", "bob")
	assert.ErrorIs(t, err, model.ErrAssetNotFound)
	_, err = s.ResolveAsset(ctx, "missing", "alice")
	assert.ErrorIs(t, err, model.ErrAssetNotFound)
}

func TestStore_Sessions(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, s.InsertSession(ctx, model.StreamSession{
			ID:          id,
			Owner:       "alice",
			State:       model.StateStarting,
			RequestedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.InsertSession(ctx, model.StreamSession{ID: "b1", Owner: "bob", State: model.StateLive}))
	assert.Error(t, s.InsertSession(ctx, model.StreamSession{ID: "s1", Owner: "alice"}), "duplicate id")

	done := base.Add(time.Hour)
	require.NoError(t, s.UpdateSessionState(ctx, model.StreamSession{
		ID: "s1", Owner: "alice", State: model.StateStopped, RequestedAt: base, StoppedAt: &done,
	}))
	assert.Error(t, s.UpdateSessionState(ctx, model.StreamSession{ID: "nope"}))

	list, err := s.ListSessions(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s3", list[0].ID)
	assert.Equal(t, "s2", list[1].ID)

	open, err := s.ListNonTerminal(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 3)

	got, ok := s.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.StateStopped, got.State)

	// Stored rows are copies.
	*got.StoppedAt = base
	again, _ := s.Session("s1")
	assert.Equal(t, done, *again.StoppedAt)
}

func TestStore_Activities(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.AppendActivityLog(ctx, model.Activity{Owner: "alice", Action: model.ActionStreamStart}))
	require.NoError(t, s.AppendActivityLog(ctx, model.Activity{Owner: "bob", Action: model.ActionStreamStart}))
	require.NoError(t, s.AppendActivityLog(ctx, model.Activity{Owner: "alice", Action: model.ActionStreamStop}))

	acts := s.Activities("alice")
	require.Len(t, acts, 2)
	assert.Equal(t, model.ActionStreamStop, acts[1].Action)
}
