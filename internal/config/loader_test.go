// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/restream/internal/domain/stream/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("").WithLookup(envMap(nil)).Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 7, cfg.Policy().FreeCeiling)
	assert.Equal(t, "rtmp://a.rtmp.youtube.com/live2/", cfg.Catalog().Platforms["youtube"])
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":9090"
store:
  driver: memory
sessions:
  terminateGrace: 3s
  optimisticStop: true
quota:
  freeCeiling: 2
`)
	cfg, err := NewLoader(path).WithLookup(envMap(nil)).Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 3*time.Second, cfg.Sessions.TerminateGrace)
	assert.True(t, cfg.Sessions.OptimisticStop)
	assert.Equal(t, 2, cfg.Quota.FreeCeiling)
	// untouched sections keep defaults
	assert.Equal(t, 10*time.Second, cfg.Sessions.ShutdownWait)
	assert.Equal(t, []string{"2k", "4k"}, cfg.Quota.PremiumTiers)
	assert.Equal(t, model.DefaultTiers(), cfg.Tiers)
}

func TestLoad_FileTablesReplaceDefaults(t *testing.T) {
	path := writeConfig(t, `
platforms:
  twitch: "rtmp://live.twitch.tv/app/"
tiers:
  720p: {width: 1280, height: 720, bitrateK: 2500}
  1080p: {width: 1920, height: 1080, bitrateK: 4500}
quota:
  premiumTiers: ["1080p"]
`)
	cfg, err := NewLoader(path).WithLookup(envMap(nil)).Load()
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"twitch": "rtmp://live.twitch.tv/app/"}, cfg.Platforms)
	assert.Len(t, cfg.Tiers, 2)
	assert.Equal(t, []string{"1080p"}, cfg.Quota.PremiumTiers)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":9090"
`)
	env := envMap(map[string]string{
		"RESTREAM_LISTEN":          ":7070",
		"RESTREAM_STORE_DRIVER":    "memory",
		"RESTREAM_FREE_CEILING":    "3",
		"RESTREAM_PREMIUM_TIERS":   "4k, ,2k",
		"RESTREAM_OPTIMISTIC_STOP": "yes",
		"RESTREAM_SHUTDOWN_WAIT":   "30s",
		"RESTREAM_REDIS_ADDR":      "localhost:6379",
	})
	l := NewLoader(path).WithLookup(env)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Quota.FreeCeiling)
	assert.Equal(t, []string{"4k", "2k"}, cfg.Quota.PremiumTiers)
	assert.True(t, cfg.Sessions.OptimisticStop)
	assert.Equal(t, 30*time.Second, cfg.Sessions.ShutdownWait)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Contains(t, l.ConsumedEnvKeys, "RESTREAM_FFMPEG_BIN")
}

func TestLoad_InvalidEnvValueKeepsPrevious(t *testing.T) {
	env := envMap(map[string]string{
		"RESTREAM_FREE_CEILING":    "lots",
		"RESTREAM_TERMINATE_GRACE": "soon",
		"RESTREAM_OPTIMISTIC_STOP": "maybe",
	})
	cfg, err := NewLoader("").WithLookup(env).Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Quota.FreeCeiling)
	assert.Equal(t, 5*time.Second, cfg.Sessions.TerminateGrace)
	assert.False(t, cfg.Sessions.OptimisticStop)
}

func TestLoad_StrictUnknownField(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: ":8080"
  listne: ":9090"
`)
	_, err := NewLoader(path).WithLookup(envMap(nil)).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), "got %v", err)
}

func TestLoad_RejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n---\nlog:\n  level: debug\n")
	_, err := NewLoader(path).WithLookup(envMap(nil)).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := NewLoader(path).WithLookup(envMap(nil)).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).WithLookup(envMap(nil)).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: postgres
`)
	_, err := NewLoader(path).WithLookup(envMap(nil)).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.postgresDsn")
}
