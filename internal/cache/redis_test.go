// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupMiniRedis creates a test Redis server using miniredis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, newRedisCache(client, "", zerolog.Nop())
}

func TestRedisCache_SetGet(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	want := asset("a1")
	cache.Set(ctx, "alice/a1", want, 5*time.Minute)

	got, found := cache.Get(ctx, "alice/a1")
	if !found {
		t.Fatal("expected value to be found")
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if !mr.Exists(DefaultKeyPrefix + "alice/a1") {
		t.Error("expected key under the default prefix")
	}

	stats := cache.Stats()
	if stats.Sets != 1 || stats.Hits != 1 || stats.CurrentSize != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRedisCache_GetMissing(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	if _, found := cache.Get(ctx, "nonexistent"); found {
		t.Error("expected value to not be found")
	}
	if stats := cache.Stats(); stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	if err := mr.Set(DefaultKeyPrefix+"bad", "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, found := cache.Get(ctx, "bad"); found {
		t.Error("corrupt entry must not be returned")
	}
}

func TestRedisCache_TTL(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set(ctx, "ttl-key", asset("a1"), 100*time.Millisecond)
	if _, found := cache.Get(ctx, "ttl-key"); !found {
		t.Fatal("expected value to be found immediately")
	}

	mr.FastForward(200 * time.Millisecond)

	if _, found := cache.Get(ctx, "ttl-key"); found {
		t.Error("expected value to be expired")
	}
}

func TestRedisCache_Delete(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set(ctx, "delete-key", asset("a1"), 5*time.Minute)
	cache.Delete(ctx, "delete-key")

	if _, found := cache.Get(ctx, "delete-key"); found {
		t.Error("expected value to be deleted")
	}
}

func TestNewRedisCache_Connects(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(context.Background(), RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.HealthCheck(ctx); err != nil {
		t.Errorf("health check: %v", err)
	}
	c.Set(ctx, "k", asset("a1"), time.Minute)
	if !mr.Exists("test:k") {
		t.Error("expected key under the configured prefix")
	}
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisCache(context.Background(), RedisConfig{Addr: addr}, zerolog.Nop()); err == nil {
		t.Error("expected connection error")
	}
}
