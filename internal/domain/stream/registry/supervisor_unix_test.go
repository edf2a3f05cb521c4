// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix

package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/ports"
	"github.com/ManuGH/restream/internal/infra/ffmpeg"
	"github.com/ManuGH/restream/internal/store/memory"
)

// shellEncoder runs a shell script under the real supervisor in place of
// the rendered encoder arguments.
type shellEncoder struct {
	*ffmpeg.Supervisor

	mu     sync.Mutex
	script string
}

func (e *shellEncoder) run(script string) {
	e.mu.Lock()
	e.script = script
	e.mu.Unlock()
}

func (e *shellEncoder) Spawn(ctx context.Context, job ports.EncodeJob) (int, error) {
	e.mu.Lock()
	script := e.script
	e.mu.Unlock()
	h, err := e.Launch(ctx, ffmpeg.Command{SessionID: job.SessionID, Args: []string{"-c", script}})
	if err != nil {
		return 0, err
	}
	return h.PID, nil
}

func newSupervisedRegistry(t *testing.T) (*Registry, *shellEncoder, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.PutAsset("alice", model.Asset{ID: "vid-1", Path: "/data/uploads/vid-1.mp4", DurationSeconds: 120})

	enc := &shellEncoder{Supervisor: ffmpeg.New(ffmpeg.Config{
		Binary:         "sh",
		TerminateGrace: time.Second,
		KillTimeout:    time.Second,
	})}
	reg, err := New(Deps{
		Accounts: store,
		Assets:   store,
		Store:    store,
		Activity: store,
		Encoder:  enc,
	}, Options{})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})
	return reg, enc, store
}

func awaitState(t *testing.T, reg *Registry, id string, want model.State) model.StreamSession {
	t.Helper()
	var s model.StreamSession
	require.Eventually(t, func() bool {
		var ok bool
		s, ok = reg.Get(id)
		return ok && s.State == want
	}, 10*time.Second, 20*time.Millisecond, "session %s never reached %s", id, want)
	return s
}

func TestSupervised_StopEndsStopped(t *testing.T) {
	reg, enc, _ := newSupervisedRegistry(t)
	enc.run("sleep 30")

	sum, err := reg.Start(context.Background(), "alice", request("720p"))
	require.NoError(t, err)
	require.Equal(t, model.StateLive, sum.State)
	assert.True(t, enc.Alive(sum.ID))

	require.NoError(t, reg.Stop(context.Background(), "alice", sum.ID))

	s := awaitState(t, reg, sum.ID, model.StateStopped)
	assert.Equal(t, model.ReasonUserStop, s.Reason)
	assert.Zero(t, s.PID)
	assert.NotNil(t, s.StoppedAt)
	assert.False(t, enc.Alive(sum.ID))

	_, err = reg.Start(context.Background(), "alice", request("720p"))
	assert.NoError(t, err, "the stopped session released its slot")
}

func TestSupervised_CrashEndsFailed(t *testing.T) {
	reg, enc, store := newSupervisedRegistry(t)
	enc.run("sleep 0.3; exit 3")

	req := request("720p")
	stopAt := time.Now().Add(time.Hour)
	req.ScheduledStopAt = &stopAt
	sum, err := reg.Start(context.Background(), "alice", req)
	require.NoError(t, err)

	s := awaitState(t, reg, sum.ID, model.StateFailed)
	assert.Equal(t, model.ReasonEncoderCrashed, s.Reason)
	require.NotNil(t, s.ExitCode)
	assert.Equal(t, 3, *s.ExitCode)

	// A stop deadline firing after the crash leaves the record alone.
	reg.onScheduledStop(sum.ID)
	after, ok := reg.Get(sum.ID)
	require.True(t, ok)
	assert.Equal(t, model.StateFailed, after.State)
	assert.Equal(t, model.ReasonEncoderCrashed, after.Reason)

	require.Eventually(t, func() bool {
		stored, ok := store.Session(sum.ID)
		return ok && stored.State == model.StateFailed
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSupervised_ScheduledStop(t *testing.T) {
	reg, enc, _ := newSupervisedRegistry(t)
	enc.run("sleep 30")

	req := request("720p")
	stopAt := time.Now().Add(300 * time.Millisecond)
	req.ScheduledStopAt = &stopAt
	sum, err := reg.Start(context.Background(), "alice", req)
	require.NoError(t, err)

	s := awaitState(t, reg, sum.ID, model.StateStopped)
	assert.Equal(t, model.ReasonScheduledStop, s.Reason)
	require.NotNil(t, s.StoppedAt)
	assert.False(t, s.StoppedAt.Before(stopAt))
	assert.False(t, enc.Alive(sum.ID))
}
