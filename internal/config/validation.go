// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/restream/internal/validate"
)

// Validate checks a loaded configuration.
func Validate(cfg Config) error {
	v := validate.New()

	v.ListenAddr("server.listen", cfg.Server.Listen)
	v.Duration("server.readTimeout", cfg.Server.ReadTimeout, time.Second, 0)
	v.Duration("server.writeTimeout", cfg.Server.WriteTimeout, time.Second, 0)
	v.Duration("server.shutdownTimeout", cfg.Server.ShutdownTimeout, time.Second, 5*time.Minute)

	v.LogLevel("log.level", cfg.Log.Level)

	v.OneOf("store.driver", cfg.Store.Driver, []string{StoreMemory, StoreSQLite, StorePostgres})
	switch cfg.Store.Driver {
	case StoreSQLite:
		v.NotEmpty("store.sqlitePath", cfg.Store.SQLitePath)
	case StorePostgres:
		v.NotEmpty("store.postgresDsn", cfg.Store.PostgresDSN)
		v.Positive("store.postgresMaxConns", cfg.Store.PostgresMaxConns)
	}

	v.NonNegative("redis.db", cfg.Redis.DB)
	if cfg.Redis.ActivityMaxLen < 0 {
		v.AddError("redis.activityMaxLen", "value cannot be negative", cfg.Redis.ActivityMaxLen)
	}
	v.Duration("assets.cacheTtl", cfg.Assets.CacheTTL, 0, time.Hour)

	v.NotEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)
	v.NotEmpty("ffmpeg.preset", cfg.FFmpeg.Preset)
	v.Duration("ffmpeg.startupProbe", cfg.FFmpeg.StartupProbe, 0, time.Minute)
	if cfg.FFmpeg.SpawnRate < 0 {
		v.AddError("ffmpeg.spawnRate", "value cannot be negative", cfg.FFmpeg.SpawnRate)
	}
	v.NonNegative("ffmpeg.spawnBurst", cfg.FFmpeg.SpawnBurst)
	v.Range("ffmpeg.stderrLines", cfg.FFmpeg.StderrLines, 1, 10000)

	v.Duration("sessions.terminateGrace", cfg.Sessions.TerminateGrace, 100*time.Millisecond, 5*time.Minute)
	v.Duration("sessions.killTimeout", cfg.Sessions.KillTimeout, 100*time.Millisecond, time.Minute)
	v.Duration("sessions.shutdownWait", cfg.Sessions.ShutdownWait, 0, 10*time.Minute)
	v.Range("sessions.historyLimit", cfg.Sessions.HistoryLimit, 1, 1000)
	v.Duration("sessions.persistTimeout", cfg.Sessions.PersistTimeout, 100*time.Millisecond, time.Minute)

	v.NonNegative("quota.freeCeiling", cfg.Quota.FreeCeiling)
	for _, tier := range cfg.Quota.PremiumTiers {
		if _, ok := cfg.Tiers[tier]; !ok {
			v.AddError("quota.premiumTiers", fmt.Sprintf("unknown tier %q", tier), tier)
		}
	}

	if len(cfg.Platforms) == 0 {
		v.AddError("platforms", "at least one platform is required", nil)
	}
	for name, base := range cfg.Platforms {
		field := "platforms." + name
		v.URL(field, base, []string{"rtmp", "rtmps"})
		if base != "" && !strings.HasSuffix(base, "/") {
			v.AddError(field, "ingestion URL must end with '/'", base)
		}
	}

	if len(cfg.Tiers) == 0 {
		v.AddError("tiers", "at least one quality tier is required", nil)
	}
	for name, t := range cfg.Tiers {
		field := "tiers." + name
		v.Range(field+".width", t.Width, 16, 7680)
		v.Range(field+".height", t.Height, 16, 7680)
		v.Positive(field+".bitrateK", t.BitrateK)
	}

	if cfg.RateLimit.Enabled {
		for name, l := range map[string]Limit{"general": cfg.RateLimit.General, "control": cfg.RateLimit.Control} {
			v.Positive("rateLimit."+name+".requests", l.Requests)
			v.Duration("rateLimit."+name+".window", l.Window, time.Second, 24*time.Hour)
		}
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("telemetry.samplingRate", "must be between 0 and 1", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}
