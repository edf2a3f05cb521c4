// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package registry owns the authoritative table of stream sessions and
// drives their state machine.
//
// Every mutation of an owner's sessions (start, stop, exit and crash
// notifications, scheduled stops, reconciliation) runs under that owner's
// lock, so the quota check and the creation of the Starting record are one
// atomic step. The table itself is guarded by a separate mutex which is
// only held for short reads and writes and never across I/O.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/ports"
	"github.com/ManuGH/restream/internal/domain/stream/quota"
	"github.com/ManuGH/restream/internal/domain/stream/schedule"
	"github.com/ManuGH/restream/internal/log"
	"github.com/ManuGH/restream/internal/metrics"
	"github.com/ManuGH/restream/internal/telemetry"
)

// DefaultHistoryLimit is the number of sessions returned by List.
const DefaultHistoryLimit = 10

// Deps are the registry's collaborators. Accounts, Assets and Encoder are
// required; the rest default to in-process implementations or no-ops.
type Deps struct {
	Accounts  ports.AccountProvider
	Assets    ports.AssetResolver
	Store     ports.SessionStore
	Activity  ports.ActivitySink
	Encoder   ports.Encoder
	Scheduler ports.StopScheduler
}

// Options tune registry behaviour.
type Options struct {
	Catalog model.Catalog
	Policy  quota.Policy
	// OptimisticStop marks a stopped session Stopped as soon as the
	// terminate signal is sent instead of waiting for the exit.
	OptimisticStop bool
	HistoryLimit   int
	PersistTimeout time.Duration
	Now            func() time.Time
	NewID          func() string
}

// Registry is the only component allowed to mutate session state.
type Registry struct {
	deps           Deps
	now            func() time.Time
	newID          func() string
	historyLimit   int
	persistTimeout time.Duration

	cfgMu          sync.RWMutex
	catalog        model.Catalog
	policy         quota.Policy
	optimisticStop bool

	locks *keyLock

	mu       sync.RWMutex
	sessions map[string]*model.StreamSession
	owners   map[string][]string // session ids per owner, oldest first
	active   int
	closing  bool

	logger zerolog.Logger
	tracer trace.Tracer
}

// New wires a registry to its collaborators and registers itself as the
// encoder's exit handler and the scheduler's fire handler.
func New(deps Deps, opts Options) (*Registry, error) {
	if deps.Accounts == nil || deps.Assets == nil || deps.Encoder == nil {
		return nil, errors.New("registry: accounts, assets and encoder are required")
	}
	if deps.Scheduler == nil {
		deps.Scheduler = schedule.New()
	}
	if opts.Catalog.Platforms == nil || opts.Catalog.Tiers == nil {
		opts.Catalog = model.DefaultCatalog()
	}
	if opts.Policy.FreeCeiling <= 0 && opts.Policy.PremiumTiers == nil {
		opts.Policy = quota.DefaultPolicy()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	r := &Registry{
		deps:           deps,
		now:            opts.Now,
		newID:          opts.NewID,
		historyLimit:   opts.HistoryLimit,
		persistTimeout: opts.PersistTimeout,
		catalog:        opts.Catalog.Clone(),
		policy:         opts.Policy,
		optimisticStop: opts.OptimisticStop,
		locks:          newKeyLock(),
		sessions:       make(map[string]*model.StreamSession),
		owners:         make(map[string][]string),
		logger:         log.WithComponent("registry"),
		tracer:         telemetry.Tracer("restream/registry"),
	}
	deps.Encoder.SetExitHandler(r.OnExit)
	deps.Scheduler.SetFireHandler(r.onScheduledStop)
	return r, nil
}

// Apply swaps the live-reloadable settings.
func (r *Registry) Apply(catalog model.Catalog, policy quota.Policy, optimisticStop bool) {
	r.cfgMu.Lock()
	r.catalog = catalog.Clone()
	r.policy = policy
	r.optimisticStop = optimisticStop
	r.cfgMu.Unlock()
	r.logger.Info().
		Int("platforms", len(catalog.Platforms)).
		Int("tiers", len(catalog.Tiers)).
		Int("free_ceiling", policy.FreeCeiling).
		Bool("optimistic_stop", optimisticStop).
		Msg("registry settings applied")
}

// Catalog returns a copy of the current platform and tier tables.
func (r *Registry) Catalog() model.Catalog {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.catalog.Clone()
}

// Policy returns the current quota policy.
func (r *Registry) Policy() quota.Policy {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.policy
}

func (r *Registry) settings() (model.Catalog, quota.Policy, bool) {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.catalog, r.policy, r.optimisticStop
}

// --- table access ---

func (r *Registry) get(id string) (*model.StreamSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) ownerOf(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return "", false
	}
	return s.Owner, true
}

func (r *Registry) insert(s *model.StreamSession) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.owners[s.Owner] = append(r.owners[s.Owner], s.ID)
	if s.State.OccupiesSlot() {
		r.active++
	}
	active := r.active
	r.mu.Unlock()
	metrics.SetSessionsActive(active)
}

// update applies fn to s under the table lock so concurrent readers see a
// consistent record.
func (r *Registry) update(s *model.StreamSession, fn func(*model.StreamSession) error) error {
	r.mu.Lock()
	was := s.State.OccupiesSlot()
	err := fn(s)
	is := s.State.OccupiesSlot()
	switch {
	case was && !is:
		r.active--
	case !was && is:
		r.active++
	}
	active := r.active
	r.mu.Unlock()
	metrics.SetSessionsActive(active)
	return err
}

func (r *Registry) snapshot(s *model.StreamSession) model.StreamSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return s.Clone()
}

// ownerSessions returns the owner's in-memory sessions, oldest first.
func (r *Registry) ownerSessions(owner string) []*model.StreamSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.owners[owner]
	out := make([]*model.StreamSession, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) activeFor(owner string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, id := range r.owners[owner] {
		if s, ok := r.sessions[id]; ok && s.State.OccupiesSlot() {
			n++
		}
	}
	return n
}

// prune drops the owner's oldest terminal sessions beyond the history limit.
// Terminal history remains available from the store.
func (r *Registry) prune(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.owners[owner]
	keep := make([]string, 0, len(ids))
	terminal := 0
	for i := len(ids) - 1; i >= 0; i-- {
		s, ok := r.sessions[ids[i]]
		if !ok {
			continue
		}
		if s.State.IsTerminal() {
			if terminal >= r.historyLimit {
				delete(r.sessions, ids[i])
				continue
			}
			terminal++
		}
		keep = append(keep, ids[i])
	}
	for i, j := 0, len(keep)-1; i < j; i, j = i+1, j-1 {
		keep[i], keep[j] = keep[j], keep[i]
	}
	if len(keep) == 0 {
		delete(r.owners, owner)
		return
	}
	r.owners[owner] = keep
}

func (r *Registry) isClosing() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closing
}

// ActiveCount returns the number of sessions occupying a slot.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Get returns a copy of a session regardless of owner.
func (r *Registry) Get(id string) (model.StreamSession, bool) {
	s, ok := r.get(id)
	if !ok {
		return model.StreamSession{}, false
	}
	return r.snapshot(s), true
}

func sortNewestFirst(list []model.StreamSession) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].RequestedAt.Equal(list[j].RequestedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].RequestedAt.After(list[j].RequestedAt)
	})
}
