// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package schedule

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	fired []string
	ch    chan string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 16)}
}

func (r *recorder) fire(id string) {
	r.mu.Lock()
	r.fired = append(r.fired, id)
	r.mu.Unlock()
	r.ch <- id
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func TestArm_Fires(t *testing.T) {
	s := New()
	defer s.Close()
	rec := newRecorder()
	s.SetFireHandler(rec.fire)

	s.Arm("a", time.Now().Add(20*time.Millisecond))
	_, pending := s.Pending("a")
	assert.True(t, pending)

	select {
	case id := <-rec.ch:
		assert.Equal(t, "a", id)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Equal(t, 0, s.Len(), "fired entries are removed")
}

func TestArm_PastDeadlineFiresImmediately(t *testing.T) {
	s := New()
	defer s.Close()
	rec := newRecorder()
	s.SetFireHandler(rec.fire)

	s.Arm("late", time.Now().Add(-time.Minute))

	select {
	case id := <-rec.ch:
		assert.Equal(t, "late", id)
	case <-time.After(2 * time.Second):
		t.Fatal("past deadline did not fire")
	}
}

func TestDisarm_PreventsFire(t *testing.T) {
	s := New()
	defer s.Close()
	rec := newRecorder()
	s.SetFireHandler(rec.fire)

	s.Arm("a", time.Now().Add(30*time.Millisecond))
	assert.True(t, s.Disarm("a"))
	assert.False(t, s.Disarm("a"), "second disarm reports nothing pending")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestArm_ReplacesPrevious(t *testing.T) {
	s := New()
	defer s.Close()
	rec := newRecorder()
	s.SetFireHandler(rec.fire)

	s.Arm("a", time.Now().Add(20*time.Millisecond))
	later := time.Now().Add(time.Hour)
	s.Arm("a", later)

	at, ok := s.Pending("a")
	require.True(t, ok)
	assert.Equal(t, later, at)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "replaced deadline must not fire")
	assert.Equal(t, 1, s.Len())
}

func TestStaleGeneration_IsIgnored(t *testing.T) {
	s := New()
	defer s.Close()
	rec := newRecorder()
	s.SetFireHandler(rec.fire)

	s.Arm("a", time.Now().Add(time.Hour))
	s.mu.Lock()
	gen := s.entries["a"].gen
	s.mu.Unlock()

	// Simulate a timer callback that raced with a re-arm.
	s.Arm("a", time.Now().Add(time.Hour))
	s.onTimer("a", gen)

	assert.Equal(t, 0, rec.count())
	assert.Equal(t, 1, s.Len())
}

func TestClose_StopsEverything(t *testing.T) {
	s := New()
	rec := newRecorder()
	s.SetFireHandler(rec.fire)

	s.Arm("a", time.Now().Add(20*time.Millisecond))
	s.Arm("b", time.Now().Add(20*time.Millisecond))
	s.Close()
	s.Arm("c", time.Now())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, 0, s.Len())
}

func TestFireWithoutHandler(t *testing.T) {
	s := New()
	defer s.Close()
	s.Arm("a", time.Now())
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}
