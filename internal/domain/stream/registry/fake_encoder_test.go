// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuGH/restream/internal/domain/stream/ports"
)

// fakeEncoder stands in for the ffmpeg supervisor. Exits are delivered
// explicitly through exit() unless autoExit is set, in which case Terminate
// reports a requested exit from a separate goroutine like the real thing.
type fakeEncoder struct {
	mu         sync.Mutex
	alive      map[string]bool
	jobs       []ports.EncodeJob
	terminated []string
	spawnErr   error
	autoExit   bool
	onExit     ports.ExitHandler
	nextPID    int
	wg         sync.WaitGroup
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{alive: make(map[string]bool), nextPID: 1000}
}

func (f *fakeEncoder) Spawn(_ context.Context, job ports.EncodeJob) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return 0, f.spawnErr
	}
	if f.alive[job.SessionID] {
		return 0, errors.New("already running")
	}
	f.alive[job.SessionID] = true
	f.jobs = append(f.jobs, job)
	f.nextPID++
	return f.nextPID, nil
}

func (f *fakeEncoder) Terminate(id string) error {
	f.mu.Lock()
	f.terminated = append(f.terminated, id)
	auto := f.autoExit && f.alive[id]
	f.mu.Unlock()
	if auto {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.exit(id, ports.ExitStatus{Code: -1, Signal: "terminated", Requested: true})
		}()
	}
	return nil
}

func (f *fakeEncoder) Alive(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[id]
}

func (f *fakeEncoder) SetExitHandler(h ports.ExitHandler) {
	f.mu.Lock()
	f.onExit = h
	f.mu.Unlock()
}

func (f *fakeEncoder) Shutdown(context.Context) error {
	f.mu.Lock()
	var ids []string
	for id, alive := range f.alive {
		if alive {
			ids = append(ids, id)
		}
	}
	f.mu.Unlock()
	for _, id := range ids {
		f.exit(id, ports.ExitStatus{Code: -1, Signal: "terminated", Requested: true})
	}
	f.wg.Wait()
	return nil
}

// exit marks the process gone and reports it, at most once per process.
func (f *fakeEncoder) exit(id string, st ports.ExitStatus) {
	f.mu.Lock()
	if !f.alive[id] {
		f.mu.Unlock()
		return
	}
	f.alive[id] = false
	h := f.onExit
	f.mu.Unlock()
	if h != nil {
		h(id, st)
	}
}

// vanish marks the process gone without reporting the exit.
func (f *fakeEncoder) vanish(id string) {
	f.mu.Lock()
	f.alive[id] = false
	f.mu.Unlock()
}

func (f *fakeEncoder) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func (f *fakeEncoder) lastJob() ports.EncodeJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[len(f.jobs)-1]
}

func (f *fakeEncoder) terminateCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.terminated {
		if t == id {
			n++
		}
	}
	return n
}
