// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cache

import (
	"context"
	"time"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/ports"
)

// Resolver is an AssetResolver that consults a Cache before the wrapped
// resolver. Only successful lookups are cached, keyed by owner and asset so
// ownership checks are never bypassed.
type Resolver struct {
	next  ports.AssetResolver
	cache Cache
	ttl   time.Duration
}

var _ ports.AssetResolver = (*Resolver)(nil)

// NewResolver wraps next. A non-positive ttl disables caching.
func NewResolver(next ports.AssetResolver, c Cache, ttl time.Duration) *Resolver {
	if c == nil || ttl <= 0 {
		c = NewNoOpCache()
	}
	return &Resolver{next: next, cache: c, ttl: ttl}
}

func (r *Resolver) ResolveAsset(ctx context.Context, assetID, owner string) (model.Asset, error) {
	key := owner + "/" + assetID
	if a, ok := r.cache.Get(ctx, key); ok {
		return a, nil
	}
	a, err := r.next.ResolveAsset(ctx, assetID, owner)
	if err != nil {
		return model.Asset{}, err
	}
	r.cache.Set(ctx, key, a, r.ttl)
	return a, nil
}

// Invalidate drops the cached entry for an owner's asset.
func (r *Resolver) Invalidate(ctx context.Context, assetID, owner string) {
	r.cache.Delete(ctx, owner+"/"+assetID)
}
