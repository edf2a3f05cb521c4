// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package schedule arms one-shot stop deadlines keyed by session id.
//
// Deadlines are converted to a monotonic duration at Arm time. They are kept
// in memory only; a restart loses them.
package schedule

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/restream/internal/log"
	"github.com/ManuGH/restream/internal/metrics"
)

type entry struct {
	timer *time.Timer
	gen   uint64
	at    time.Time
}

// Scheduler fires a callback once per armed session id.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	fire    func(sessionID string)
	closed  bool
	now     func() time.Time
	logger  zerolog.Logger
}

// New creates an empty scheduler. The fire handler is set later by the
// registry through SetFireHandler.
func New() *Scheduler {
	return &Scheduler{
		entries: make(map[string]*entry),
		now:     time.Now,
		logger:  log.WithComponent("scheduler"),
	}
}

// SetFireHandler installs the callback invoked when a deadline passes.
// The callback runs on a timer goroutine, outside the scheduler lock.
func (s *Scheduler) SetFireHandler(fn func(sessionID string)) {
	s.mu.Lock()
	s.fire = fn
	s.mu.Unlock()
}

// Arm schedules a stop for sessionID at the given wall time. Arming an id
// that is already armed replaces the previous deadline. A deadline in the
// past fires immediately.
func (s *Scheduler) Arm(sessionID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if prev, ok := s.entries[sessionID]; ok {
		prev.timer.Stop()
	}

	s.gen++
	gen := s.gen
	d := at.Sub(s.now())
	if d < 0 {
		d = 0
	}
	e := &entry{gen: gen, at: at}
	e.timer = time.AfterFunc(d, func() { s.onTimer(sessionID, gen) })
	s.entries[sessionID] = e

	metrics.IncScheduledStop("armed")
	s.logger.Debug().
		Str(log.FieldSessionID, sessionID).
		Time("stop_at", at).
		Dur("in", d).
		Msg("scheduled stop armed")
}

// Disarm cancels a pending deadline. It reports whether one was pending.
func (s *Scheduler) Disarm(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, sessionID)
	metrics.IncScheduledStop("disarmed")
	return true
}

// Pending returns the armed deadline for sessionID.
func (s *Scheduler) Pending(sessionID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return time.Time{}, false
	}
	return e.at, true
}

// Len returns the number of armed deadlines.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops every timer. Arm is a no-op afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
	s.closed = true
}

func (s *Scheduler) onTimer(sessionID string, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[sessionID]
	if !ok || e.gen != gen {
		// Disarmed or re-armed after this timer was already running.
		s.mu.Unlock()
		metrics.IncScheduledStop("stale")
		return
	}
	delete(s.entries, sessionID)
	fire := s.fire
	s.mu.Unlock()

	metrics.IncScheduledStop("fired")
	s.logger.Info().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldEvent, "schedule.fired").
		Msg("scheduled stop fired")
	if fire != nil {
		fire(sessionID)
	}
}
