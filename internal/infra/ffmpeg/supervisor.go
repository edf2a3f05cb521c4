// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ffmpeg supervises the external encoder processes that push
// stored assets to live-ingestion endpoints.
//
// Each process runs in its own process group. The supervisor owns the
// handle from spawn to exit: every exit path removes the handle and reports
// the exit status to the registered handler exactly once, unless the spawn
// itself was reported as failed.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/restream/internal/domain/stream/ports"
	"github.com/ManuGH/restream/internal/log"
	"github.com/ManuGH/restream/internal/metrics"
	"github.com/ManuGH/restream/internal/procgroup"
)

var (
	// ErrClosed is returned by Spawn after Shutdown.
	ErrClosed = errors.New("supervisor closed")
	// ErrAlreadyRunning is returned when a session already owns a process.
	ErrAlreadyRunning = errors.New("session already has a running process")
)

var _ ports.Encoder = (*Supervisor)(nil)

// Config tunes the supervisor.
type Config struct {
	Binary         string
	Preset         string
	TerminateGrace time.Duration // SIGTERM -> SIGKILL
	KillTimeout    time.Duration // wait after SIGKILL
	// StartupProbe, when positive, holds Spawn for this long and turns an
	// early nonzero exit into a SpawnError.
	StartupProbe time.Duration
	SpawnRate    float64 // spawns per second, 0 disables throttling
	SpawnBurst   int
	CrashDir     string // empty disables crash reports
	StderrLines  int
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = "ffmpeg"
	}
	if c.Preset == "" {
		c.Preset = DefaultPreset
	}
	if c.TerminateGrace <= 0 {
		c.TerminateGrace = 5 * time.Second
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = 2 * time.Second
	}
	if c.SpawnBurst <= 0 {
		c.SpawnBurst = 1
	}
	if c.StderrLines <= 0 {
		c.StderrLines = 200
	}
	return c
}

// Command is a fully rendered process invocation for one session.
type Command struct {
	SessionID string
	Args      []string
}

// SpawnError reports a process that could not be started or died inside
// the startup probe window.
type SpawnError struct {
	SessionID string
	Status    ports.ExitStatus
	Stderr    []string
	Err       error
}

func (e *SpawnError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "spawn %s", e.SessionID)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else {
		fmt.Fprintf(&b, ": exited during startup with code %d", e.Status.Code)
	}
	if n := len(e.Stderr); n > 0 {
		fmt.Fprintf(&b, " (%s)", e.Stderr[n-1])
	}
	return b.String()
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Supervisor tracks running encoder processes by session id.
type Supervisor struct {
	cfg     Config
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	onExit  ports.ExitHandler
	closed  bool

	wg sync.WaitGroup
}

// New creates a Supervisor.
func New(cfg Config) *Supervisor {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.SpawnRate > 0 {
		limit = rate.Limit(cfg.SpawnRate)
	}
	return &Supervisor{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.SpawnBurst),
		logger:  log.WithComponent("supervisor"),
		handles: make(map[string]*Handle),
	}
}

// SetExitHandler installs the callback that receives exit statuses.
func (s *Supervisor) SetExitHandler(h ports.ExitHandler) {
	s.mu.Lock()
	s.onExit = h
	s.mu.Unlock()
}

// Spawn renders the encoder arguments for job and launches the process.
func (s *Supervisor) Spawn(ctx context.Context, job ports.EncodeJob) (int, error) {
	h, err := s.Launch(ctx, Command{SessionID: job.SessionID, Args: BuildArgs(job, s.cfg.Preset)})
	if err != nil {
		return 0, err
	}
	return h.PID, nil
}

// Launch starts the configured binary with cmd.Args. The returned handle is
// already registered; its exit is reported through the exit handler.
func (s *Supervisor) Launch(ctx context.Context, cmd Command) (*Handle, error) {
	logger := log.WithContext(ctx, s.logger).With().Str(log.FieldSessionID, cmd.SessionID).Logger()

	s.mu.Lock()
	closed := s.closed
	_, exists := s.handles[cmd.SessionID]
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", cmd.SessionID, ErrAlreadyRunning)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		metrics.IncEncoderSpawn("throttled")
		return nil, &SpawnError{SessionID: cmd.SessionID, Err: fmt.Errorf("spawn throttled: %w", err)}
	}

	ring := NewLineRing(s.cfg.StderrLines)
	c := exec.Command(s.cfg.Binary, cmd.Args...) // #nosec G204
	procgroup.Set(c)
	c.Stderr = ring

	if err := c.Start(); err != nil {
		metrics.IncEncoderSpawn("error")
		logger.Error().Err(err).Str("binary", s.cfg.Binary).Msg("encoder start failed")
		return nil, &SpawnError{SessionID: cmd.SessionID, Err: err}
	}

	h := newHandle(cmd.SessionID, c, ring)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.suppress()
		_ = procgroup.Kill(c, syscall.SIGKILL)
		_ = c.Wait()
		return nil, ErrClosed
	}
	s.handles[cmd.SessionID] = h
	s.setRunningLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	go s.wait(h)

	if s.cfg.StartupProbe > 0 {
		if err := s.probe(ctx, h); err != nil {
			metrics.IncEncoderSpawn("probe_failed")
			logger.Warn().Err(err).Int(log.FieldPID, h.PID).Msg("encoder failed during startup")
			return nil, err
		}
	}
	h.arm()

	metrics.IncEncoderSpawn("ok")
	logger.Info().
		Str(log.FieldEvent, "encoder.spawned").
		Int(log.FieldPID, h.PID).
		Msg("encoder started")
	return h, nil
}

// probe waits for the startup window. An early nonzero exit or a cancelled
// context becomes a SpawnError and the exit is not reported to the handler.
func (s *Supervisor) probe(ctx context.Context, h *Handle) error {
	timer := time.NewTimer(s.cfg.StartupProbe)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-h.done:
		st := h.Status()
		if st.Success() {
			// A very short single-pass asset; report the exit normally.
			return nil
		}
		h.suppress()
		return &SpawnError{SessionID: h.SessionID, Status: st, Stderr: h.Stderr(20)}
	case <-ctx.Done():
		h.suppress()
		_ = procgroup.Kill(h.cmd, syscall.SIGKILL)
		return &SpawnError{SessionID: h.SessionID, Err: ctx.Err()}
	}
}

func (s *Supervisor) wait(h *Handle) {
	defer s.wg.Done()

	err := h.cmd.Wait()
	st := exitStatus(err)
	st.Requested = h.terminateRequested()

	s.mu.Lock()
	if cur, ok := s.handles[h.SessionID]; ok && cur == h {
		delete(s.handles, h.SessionID)
	}
	s.setRunningLocked()
	handler := s.onExit
	s.mu.Unlock()

	h.finish(st)
	if !h.awaitArmed() {
		return
	}

	uptime := time.Since(h.StartedAt)
	metrics.ObserveEncoderUptime(uptime.Seconds())
	metrics.IncEncoderExit(exitReason(st))

	ev := s.logger.Info()
	if !st.Success() && !st.Requested {
		ev = s.logger.Warn()
	}
	ev.Str(log.FieldEvent, "encoder.exited").
		Str(log.FieldSessionID, h.SessionID).
		Int(log.FieldPID, h.PID).
		Int(log.FieldExitCode, st.Code).
		Str(log.FieldSignal, st.Signal).
		Bool("requested", st.Requested).
		Dur("uptime", uptime).
		Msg("encoder exited")

	if !st.Success() && !st.Requested && s.cfg.CrashDir != "" {
		path, werr := writeCrashReport(s.cfg.CrashDir, h.SessionID, h.PID, st, uptime, h.Stderr(0))
		if werr != nil {
			s.logger.Error().Err(werr).Str(log.FieldSessionID, h.SessionID).Msg("crash report write failed")
		} else {
			s.logger.Info().Str(log.FieldSessionID, h.SessionID).Str(log.FieldPath, path).Msg("crash report written")
		}
	}

	if handler != nil {
		handler(h.SessionID, st)
	}
}

// Terminate asks the process of sessionID to stop. SIGTERM goes to the
// process group and SIGKILL follows after the grace period. Unknown ids and
// repeated calls are no-ops.
func (s *Supervisor) Terminate(sessionID string) error {
	s.mu.Lock()
	h, ok := s.handles[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	s.terminate(h)
	return nil
}

// terminate counts the signalling goroutine only while h is still
// registered; its waiter then holds the group open, so Shutdown cannot be
// past Wait.
func (s *Supervisor) terminate(h *Handle) {
	s.mu.Lock()
	if cur, ok := s.handles[h.SessionID]; !ok || cur != h || !h.requestTerminate() {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		outcome, err := procgroup.Terminate(h.cmd, h.done, s.cfg.TerminateGrace, s.cfg.KillTimeout)
		ev := s.logger.Debug()
		if err != nil {
			ev = s.logger.Error().Err(err)
		}
		ev.Str(log.FieldSessionID, h.SessionID).
			Int(log.FieldPID, h.PID).
			Str("outcome", string(outcome)).
			Msg("encoder terminated")
	}()
}

// Alive reports whether sessionID currently owns a running process.
func (s *Supervisor) Alive(sessionID string) bool {
	s.mu.Lock()
	h, ok := s.handles[sessionID]
	s.mu.Unlock()
	return ok && !h.Exited()
}

// Lookup returns the handle of sessionID.
func (s *Supervisor) Lookup(sessionID string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[sessionID]
	return h, ok
}

// Live returns the ids of all sessions with a running process.
func (s *Supervisor) Live() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Shutdown rejects new spawns, terminates every process and waits until all
// exits are reported or ctx expires.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	if len(handles) > 0 {
		s.logger.Info().Int("count", len(handles)).Msg("terminating encoders")
	}
	for _, h := range handles {
		s.terminate(h)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn().Int("pending", len(s.Live())).Msg("shutdown deadline reached before all encoders exited")
		return ctx.Err()
	}
}

func (s *Supervisor) setRunningLocked() {
	metrics.SetEncoderRunning(len(s.handles))
}

func exitStatus(err error) ports.ExitStatus {
	if err == nil {
		return ports.ExitStatus{}
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		st := ports.ExitStatus{Code: ee.ExitCode()}
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			st.Signal = ws.Signal().String()
		}
		return st
	}
	return ports.ExitStatus{Code: -1, Err: err}
}

func exitReason(st ports.ExitStatus) string {
	switch {
	case st.Success():
		return "completed"
	case st.Requested:
		return "terminated"
	case st.Signal != "":
		return "signaled"
	default:
		return "crashed"
	}
}
