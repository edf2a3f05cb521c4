// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/restream/internal/log"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
// Use errors.Is(err, ErrUnknownConfigField) instead of string matching.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	lookup     func(string) (string, bool)
	logger     zerolog.Logger
	// ConsumedEnvKeys lists every RESTREAM_ key the last Load looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader for configPath. An empty path means defaults
// and environment only.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		lookup:     os.LookupEnv,
		logger:     log.WithComponent("config"),
	}
}

// WithLookup replaces the environment lookup, for tests.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookup = lookup
	return l
}

// Path returns the config file path.
func (l *Loader) Path() string {
	return l.configPath
}

// Load applies defaults, the file and then the environment, and validates
// the result.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.mergeFile(&cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	env := newEnvReader(l.lookup, l.logger)
	mergeEnv(env, &cfg)
	l.ConsumedEnvKeys = env.consumed

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// mergeFile decodes the YAML file over cfg. Platform and tier tables from
// the file replace the defaults instead of extending them.
func (l *Loader) mergeFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return err
	}

	defaults := *cfg
	cfg.Platforms = nil
	cfg.Tiers = nil
	cfg.Quota.PremiumTiers = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}

	if cfg.Platforms == nil {
		cfg.Platforms = defaults.Platforms
	}
	if cfg.Tiers == nil {
		cfg.Tiers = defaults.Tiers
	}
	if cfg.Quota.PremiumTiers == nil {
		cfg.Quota.PremiumTiers = defaults.Quota.PremiumTiers
	}

	l.logger.Info().
		Str(log.FieldEvent, "config.file_loaded").
		Str(log.FieldPath, l.configPath).
		Msg("configuration file loaded")
	return nil
}

func mergeEnv(e *envReader, cfg *Config) {
	e.string("LISTEN", &cfg.Server.Listen)
	e.duration("READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.duration("WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.duration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	e.bool("TRUST_PROXY", &cfg.Server.TrustProxy)

	e.string("LOG_LEVEL", &cfg.Log.Level)
	e.string("LOG_SERVICE", &cfg.Log.Service)

	e.string("STORE_DRIVER", &cfg.Store.Driver)
	e.string("SQLITE_PATH", &cfg.Store.SQLitePath)
	e.string("POSTGRES_DSN", &cfg.Store.PostgresDSN)
	e.int("POSTGRES_MAX_CONNS", &cfg.Store.PostgresMaxConns)
	e.bool("STORE_VERIFY_ON_START", &cfg.Store.VerifyOnStart)

	e.string("REDIS_ADDR", &cfg.Redis.Addr)
	e.string("REDIS_PASSWORD", &cfg.Redis.Password)
	e.int("REDIS_DB", &cfg.Redis.DB)
	e.string("REDIS_ACTIVITY_STREAM", &cfg.Redis.ActivityStream)
	e.int64("REDIS_ACTIVITY_MAXLEN", &cfg.Redis.ActivityMaxLen)

	e.duration("ASSET_CACHE_TTL", &cfg.Assets.CacheTTL)

	e.string("FFMPEG_BIN", &cfg.FFmpeg.Bin)
	e.string("FFMPEG_PRESET", &cfg.FFmpeg.Preset)
	e.duration("FFMPEG_STARTUP_PROBE", &cfg.FFmpeg.StartupProbe)
	e.float("FFMPEG_SPAWN_RATE", &cfg.FFmpeg.SpawnRate)
	e.int("FFMPEG_SPAWN_BURST", &cfg.FFmpeg.SpawnBurst)
	e.string("FFMPEG_CRASH_DIR", &cfg.FFmpeg.CrashDir)

	e.duration("TERMINATE_GRACE", &cfg.Sessions.TerminateGrace)
	e.duration("KILL_TIMEOUT", &cfg.Sessions.KillTimeout)
	e.duration("SHUTDOWN_WAIT", &cfg.Sessions.ShutdownWait)
	e.bool("OPTIMISTIC_STOP", &cfg.Sessions.OptimisticStop)
	e.int("HISTORY_LIMIT", &cfg.Sessions.HistoryLimit)

	e.int("FREE_CEILING", &cfg.Quota.FreeCeiling)
	e.list("PREMIUM_TIERS", &cfg.Quota.PremiumTiers)

	e.bool("RATELIMIT_ENABLED", &cfg.RateLimit.Enabled)

	e.bool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	e.string("TELEMETRY_EXPORTER", &cfg.Telemetry.Exporter)
	e.string("TELEMETRY_ENDPOINT", &cfg.Telemetry.Endpoint)
	e.float("TELEMETRY_SAMPLING_RATE", &cfg.Telemetry.SamplingRate)
}
