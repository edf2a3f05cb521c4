// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/restream/internal/domain/stream/ports"
)

// Handle is the supervisor's ownership record for one running process.
type Handle struct {
	SessionID string
	PID       int
	StartedAt time.Time

	cmd  *exec.Cmd
	ring *LineRing

	done      chan struct{} // closed once Wait returned
	armed     chan struct{} // closed once Spawn decided the outcome
	armOnce   sync.Once
	muted     atomic.Bool
	requested atomic.Bool

	mu     sync.Mutex
	status ports.ExitStatus
}

func newHandle(sessionID string, cmd *exec.Cmd, ring *LineRing) *Handle {
	return &Handle{
		SessionID: sessionID,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		cmd:       cmd,
		ring:      ring,
		done:      make(chan struct{}),
		armed:     make(chan struct{}),
	}
}

// Done is closed when the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Exited reports whether the process has exited.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Status returns the exit status. Only meaningful once Done is closed.
func (h *Handle) Status() ports.ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Stderr returns up to n of the last stderr lines; n <= 0 returns all.
func (h *Handle) Stderr(n int) []string {
	return h.ring.LastN(n)
}

func (h *Handle) finish(st ports.ExitStatus) {
	h.mu.Lock()
	h.status = st
	h.mu.Unlock()
	close(h.done)
}

// arm releases the exit report to the handler.
func (h *Handle) arm() {
	h.armOnce.Do(func() { close(h.armed) })
}

// suppress releases the waiter but drops the exit report; the spawn
// failure was already returned to the caller.
func (h *Handle) suppress() {
	h.muted.Store(true)
	h.arm()
}

// awaitArmed blocks until the spawn outcome is known and reports whether
// the exit should be delivered.
func (h *Handle) awaitArmed() bool {
	<-h.armed
	return !h.muted.Load()
}

func (h *Handle) requestTerminate() bool {
	return h.requested.CompareAndSwap(false, true)
}

func (h *Handle) terminateRequested() bool {
	return h.requested.Load()
}
