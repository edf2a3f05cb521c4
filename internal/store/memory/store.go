// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package memory is an in-process implementation of the stream ports. It
// backs single-node development setups and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/ports"
)

var (
	_ ports.AccountProvider = (*Store)(nil)
	_ ports.AssetResolver   = (*Store)(nil)
	_ ports.SessionStore    = (*Store)(nil)
	_ ports.ActivitySink    = (*Store)(nil)
)

// Account is the quota-relevant profile of an owner.
type Account struct {
	Premium   bool
	LiveCount int
}

type ownedAsset struct {
	owner string
	asset model.Asset
}

// Store keeps accounts, assets, sessions and activity in maps.
type Store struct {
	mu         sync.RWMutex
	accounts   map[string]Account
	assets     map[string]ownedAsset
	sessions   map[string]model.StreamSession
	activities []model.Activity
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]Account),
		assets:   make(map[string]ownedAsset),
		sessions: make(map[string]model.StreamSession),
	}
}

// PutAccount creates or replaces an account.
func (s *Store) PutAccount(owner string, a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[owner] = a
}

// PutAsset registers an asset owned by owner.
func (s *Store) PutAsset(owner string, a model.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.ID] = ownedAsset{owner: owner, asset: a}
}

// IsPremium reports the owner's premium flag. Unknown owners are free.
func (s *Store) IsPremium(_ context.Context, owner string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[owner].Premium, nil
}

// LiveCount returns the owner's cumulative live counter.
func (s *Store) LiveCount(_ context.Context, owner string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[owner].LiveCount, nil
}

// IncrementLiveCount bumps the owner's live counter.
func (s *Store) IncrementLiveCount(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[owner]
	a.LiveCount++
	s.accounts[owner] = a
	return nil
}

// ResolveAsset returns the asset if it exists and belongs to owner.
func (s *Store) ResolveAsset(_ context.Context, assetID, owner string) (model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	oa, ok := s.assets[assetID]
	if !ok || oa.owner != owner {
		return model.Asset{}, model.NewError(model.KindAssetNotFound, fmt.Sprintf("asset %s not found", assetID), nil)
	}
	return oa.asset, nil
}

// InsertSession stores a new session.
func (s *Store) InsertSession(_ context.Context, sess model.StreamSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.sessions[sess.ID]; dup {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// UpdateSessionState overwrites the stored session.
func (s *Store) UpdateSessionState(_ context.Context, sess model.StreamSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("session %s not found", sess.ID)
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// ListSessions returns up to limit of the owner's sessions, newest first.
func (s *Store) ListSessions(_ context.Context, owner string, limit int) ([]model.StreamSession, error) {
	s.mu.RLock()
	out := make([]model.StreamSession, 0)
	for _, sess := range s.sessions {
		if sess.Owner == owner {
			out = append(out, sess.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListNonTerminal returns every session not yet Stopped or Failed.
func (s *Store) ListNonTerminal(_ context.Context) ([]model.StreamSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.StreamSession
	for _, sess := range s.sessions {
		if !sess.State.IsTerminal() {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}

// AppendActivityLog records an activity entry.
func (s *Store) AppendActivityLog(_ context.Context, a model.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, a)
	return nil
}

// Session returns the stored copy of a session.
func (s *Store) Session(id string) (model.StreamSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess.Clone(), ok
}

// Activities returns the owner's activity entries in insertion order.
func (s *Store) Activities(owner string) []model.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Activity
	for _, a := range s.activities {
		if a.Owner == owner {
			out = append(out, a)
		}
	}
	return out
}
