// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/restream/internal/activity"
	"github.com/ManuGH/restream/internal/cache"
	"github.com/ManuGH/restream/internal/config"
	"github.com/ManuGH/restream/internal/domain/stream/ports"
	"github.com/ManuGH/restream/internal/health"
	"github.com/ManuGH/restream/internal/log"
	"github.com/ManuGH/restream/internal/resilience"
	"github.com/ManuGH/restream/internal/store/memory"
	"github.com/ManuGH/restream/internal/store/postgres"
	"github.com/ManuGH/restream/internal/store/sqlite"
)

// backend bundles the port implementations selected by configuration.
type backend struct {
	accounts ports.AccountProvider
	assets   ports.AssetResolver
	sessions ports.SessionStore
	activity ports.ActivitySink

	checks  []health.Checker
	closers []func(context.Context) error
}

// Close releases resources in reverse order of acquisition.
func (b *backend) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type primaryStore interface {
	ports.AccountProvider
	ports.AssetResolver
	ports.SessionStore
	ports.ActivitySink
}

// openBackend opens the configured store and the optional Redis mirrors.
// On error everything opened so far is closed.
func openBackend(ctx context.Context, cfg config.Config) (_ *backend, err error) {
	logger := log.WithComponent("wiring")
	b := &backend{}
	defer func() {
		if err != nil {
			_ = b.Close(context.Background())
		}
	}()

	var primary primaryStore
	switch cfg.Store.Driver {
	case config.StoreMemory:
		primary = memory.New()
	case config.StoreSQLite:
		st, err := sqlite.New(cfg.Store.SQLitePath, sqlite.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		b.closers = append(b.closers, func(context.Context) error { return st.Close() })
		if cfg.Store.VerifyOnStart {
			issues, err := sqlite.VerifyIntegrity(ctx, st.DB, false)
			if err != nil {
				return nil, fmt.Errorf("verify sqlite store: %w", err)
			}
			if len(issues) > 0 {
				return nil, fmt.Errorf("sqlite store is corrupt: %v", issues)
			}
		}
		b.checks = append(b.checks, health.NewFuncChecker("store", st.Ping))
		primary = st
	case config.StorePostgres:
		st, err := postgres.Open(ctx, cfg.Store.PostgresDSN, int32(cfg.Store.PostgresMaxConns))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		b.closers = append(b.closers, st.Close)
		b.checks = append(b.checks, health.NewFuncChecker("store", st.Ping))
		primary = st
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	logger.Info().Str("driver", cfg.Store.Driver).Msg("session store opened")

	b.accounts = primary
	b.sessions = primary
	b.activity = primary

	assetCache := cache.NewNoOpCache()
	if cfg.Redis.Addr != "" {
		sink, err := activity.NewRedisSink(ctx, activity.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.ActivityStream,
			MaxLen:   cfg.Redis.ActivityMaxLen,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis activity sink: %w", err)
		}
		b.closers = append(b.closers, func(context.Context) error { return sink.Close() })
		b.checks = append(b.checks, health.NewOptionalChecker("redis", sink.HealthCheck))
		b.activity = activity.NewFanout(primary, activity.NewGuarded(sink, resilience.NewCircuitBreaker("redis-activity", 3, 30*time.Second)))

		if cfg.Assets.CacheTTL > 0 {
			rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}, log.WithComponent("asset-cache"))
			if err != nil {
				return nil, fmt.Errorf("open redis asset cache: %w", err)
			}
			assetCache = rc
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis activity stream enabled")
	} else if cfg.Assets.CacheTTL > 0 {
		assetCache = cache.NewMemoryCache(time.Minute)
	}
	b.closers = append(b.closers, func(context.Context) error { return assetCache.Close() })
	b.assets = cache.NewResolver(primary, assetCache, cfg.Assets.CacheTTL)

	return b, nil
}
