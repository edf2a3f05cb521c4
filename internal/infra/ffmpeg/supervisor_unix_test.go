// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix

package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/restream/internal/domain/stream/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type exitEvent struct {
	id     string
	status ports.ExitStatus
}

func newShellSupervisor(t *testing.T, cfg Config) (*Supervisor, chan exitEvent) {
	t.Helper()
	if cfg.Binary == "" {
		cfg.Binary = "sh"
	}
	if cfg.TerminateGrace == 0 {
		cfg.TerminateGrace = 2 * time.Second
	}
	s := New(cfg)
	exits := make(chan exitEvent, 8)
	s.SetExitHandler(func(id string, st ports.ExitStatus) {
		exits <- exitEvent{id: id, status: st}
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, exits
}

func shell(id, script string) Command {
	return Command{SessionID: id, Args: []string{"-c", script}}
}

func awaitExit(t *testing.T, exits <-chan exitEvent) exitEvent {
	t.Helper()
	select {
	case ev := <-exits:
		return ev
	case <-time.After(10 * time.Second):
		t.Fatal("no exit reported")
		return exitEvent{}
	}
}

func TestTerminate_ReportsRequestedExit(t *testing.T) {
	s, exits := newShellSupervisor(t, Config{})

	h, err := s.Launch(context.Background(), shell("s1", "sleep 30"))
	require.NoError(t, err)
	assert.Positive(t, h.PID)
	assert.True(t, s.Alive("s1"))
	assert.Equal(t, []string{"s1"}, s.Live())

	require.NoError(t, s.Terminate("s1"))
	require.NoError(t, s.Terminate("s1"), "terminate is idempotent")

	ev := awaitExit(t, exits)
	assert.Equal(t, "s1", ev.id)
	assert.True(t, ev.status.Requested)
	assert.False(t, ev.status.Success())
	assert.False(t, s.Alive("s1"))
	assert.Empty(t, s.Live())

	require.NoError(t, s.Terminate("s1"), "terminate after exit is a no-op")
}

func TestSpontaneousCrash_WritesReport(t *testing.T) {
	dir := t.TempDir()
	s, exits := newShellSupervisor(t, Config{CrashDir: dir})

	_, err := s.Launch(context.Background(), shell("crashy", "echo 'Connection refused' >&2; sleep 0.2; exit 3"))
	require.NoError(t, err)

	ev := awaitExit(t, exits)
	assert.Equal(t, "crashy", ev.id)
	assert.Equal(t, 3, ev.status.Code)
	assert.False(t, ev.status.Requested)

	data, err := os.ReadFile(filepath.Join(dir, "crashy.crash.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "exit_code: 3")
	assert.Contains(t, string(data), "Connection refused")
}

func TestCleanExit_NoReport(t *testing.T) {
	dir := t.TempDir()
	s, exits := newShellSupervisor(t, Config{CrashDir: dir})

	_, err := s.Launch(context.Background(), shell("done", "exit 0"))
	require.NoError(t, err)

	ev := awaitExit(t, exits)
	assert.True(t, ev.status.Success())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStartupProbe_EarlyExitIsSpawnError(t *testing.T) {
	s, exits := newShellSupervisor(t, Config{StartupProbe: 2 * time.Second})

	_, err := s.Launch(context.Background(), shell("bad", "echo 'No such file or directory' >&2; exit 1"))
	var se *SpawnError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Status.Code)
	assert.Contains(t, se.Stderr, "No such file or directory")

	select {
	case ev := <-exits:
		t.Fatalf("exit of failed spawn must not be reported: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
	assert.False(t, s.Alive("bad"))
}

func TestStartupProbe_SurvivorIsLive(t *testing.T) {
	s, exits := newShellSupervisor(t, Config{StartupProbe: 100 * time.Millisecond})

	h, err := s.Launch(context.Background(), shell("ok", "sleep 30"))
	require.NoError(t, err)
	assert.False(t, h.Exited())

	require.NoError(t, s.Terminate("ok"))
	ev := awaitExit(t, exits)
	assert.True(t, ev.status.Requested)
}

func TestLaunch_MissingBinary(t *testing.T) {
	s, _ := newShellSupervisor(t, Config{Binary: "/nonexistent/ffmpeg"})

	_, err := s.Launch(context.Background(), Command{SessionID: "x"})
	var se *SpawnError
	require.ErrorAs(t, err, &se)
	assert.Error(t, se.Err)
	assert.Empty(t, s.Live())
}

func TestLaunch_DuplicateSession(t *testing.T) {
	s, _ := newShellSupervisor(t, Config{})

	_, err := s.Launch(context.Background(), shell("dup", "sleep 30"))
	require.NoError(t, err)
	_, err = s.Launch(context.Background(), shell("dup", "sleep 30"))
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestTerminate_EscalatesToKill(t *testing.T) {
	s, exits := newShellSupervisor(t, Config{TerminateGrace: 200 * time.Millisecond})

	_, err := s.Launch(context.Background(), shell("stubborn", "trap '' TERM; while true; do sleep 0.1; done"))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond) // let the trap install

	require.NoError(t, s.Terminate("stubborn"))
	ev := awaitExit(t, exits)
	assert.True(t, ev.status.Requested)
	assert.Equal(t, "killed", ev.status.Signal)
}

func TestShutdown_TerminatesAllAndRejectsSpawns(t *testing.T) {
	s, exits := newShellSupervisor(t, Config{})

	for _, id := range []string{"a", "b"} {
		_, err := s.Launch(context.Background(), shell(id, "sleep 30"))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	assert.Empty(t, s.Live())
	assert.Len(t, exits, 2)

	_, err := s.Launch(context.Background(), shell("c", "sleep 1"))
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestShutdown_RacingLaunchesAllReaped(t *testing.T) {
	s, _ := newShellSupervisor(t, Config{})

	const n = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		handles []*Handle
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			h, err := s.Launch(context.Background(), shell(id, "sleep 30"))
			if err != nil {
				assert.ErrorIs(t, err, ErrClosed)
				return
			}
			mu.Lock()
			handles = append(handles, h)
			mu.Unlock()
		}("race-" + strconv.Itoa(i))
	}

	close(start)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	wg.Wait()

	// Every launch that got in before the close must be gone once Shutdown
	// has returned.
	mu.Lock()
	defer mu.Unlock()
	for _, h := range handles {
		assert.True(t, h.Exited(), "session %s outlived shutdown", h.SessionID)
	}
	assert.Empty(t, s.Live())
}

func TestSpawn_RendersJob(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-ffmpeg")
	// Records its argv and idles like a live encoder.
	script := "#!/bin/sh\necho \"$@\" > " + filepath.Join(dir, "argv") + "\nexec sleep 30\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	s, exits := newShellSupervisor(t, Config{Binary: bin})
	pid, err := s.Spawn(context.Background(), ports.EncodeJob{
		SessionID:      "job",
		InputPath:      "/in.mp4",
		DestinationURL: "rtmp://example/live/k",
		Width:          1280,
		Height:         720,
		BitrateK:       2500,
	})
	require.NoError(t, err)
	assert.Positive(t, pid)

	var argv []byte
	require.Eventually(t, func() bool {
		argv, _ = os.ReadFile(filepath.Join(dir, "argv"))
		return len(argv) > 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, string(argv), "-stream_loop 0 -i /in.mp4")
	assert.Contains(t, string(argv), "rtmp://example/live/k")

	require.NoError(t, s.Terminate("job"))
	awaitExit(t, exits)
}
