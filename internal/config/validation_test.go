// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/validate"
)

func TestValidate_Default(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad listen", func(c *Config) { c.Server.Listen = "8080" }, "server.listen"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"sqlite without path", func(c *Config) { c.Store.SQLitePath = "" }, "store.sqlitePath"},
		{"http platform", func(c *Config) { c.Platforms["youtube"] = "http://example.com/live/" }, "platforms.youtube"},
		{"platform without slash", func(c *Config) { c.Platforms["youtube"] = "rtmp://example.com/live" }, "platforms.youtube"},
		{"no platforms", func(c *Config) { c.Platforms = map[string]string{} }, "platforms"},
		{"no tiers", func(c *Config) { c.Tiers = map[string]model.Tier{} }, "tiers"},
		{"zero bitrate", func(c *Config) { c.Tiers["720p"] = model.Tier{Width: 1280, Height: 720} }, "tiers.720p.bitrateK"},
		{"negative ceiling", func(c *Config) { c.Quota.FreeCeiling = -1 }, "quota.freeCeiling"},
		{"premium tier unknown", func(c *Config) { c.Quota.PremiumTiers = []string{"8k"} }, "quota.premiumTiers"},
		{"zero grace", func(c *Config) { c.Sessions.TerminateGrace = 0 }, "sessions.terminateGrace"},
		{"history zero", func(c *Config) { c.Sessions.HistoryLimit = 0 }, "sessions.historyLimit"},
		{"rate limit zero", func(c *Config) { c.RateLimit.Control.Requests = 0 }, "rateLimit.control.requests"},
		{"telemetry exporter", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Exporter = "zipkin" }, "telemetry.exporter"},
		{"sampling rate", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.SamplingRate = 2 }, "telemetry.samplingRate"},
		{"negative spawn rate", func(c *Config) { c.FFmpeg.SpawnRate = -1 }, "ffmpeg.spawnRate"},
		{"huge cache ttl", func(c *Config) { c.Assets.CacheTTL = 2 * time.Hour }, "assets.cacheTtl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := Validate(cfg)
			require.Error(t, err)

			var ve validate.ValidationError
			require.True(t, errors.As(err, &ve))
			fields := make([]string, 0, len(ve.Errors()))
			for _, e := range ve.Errors() {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_DisabledSectionsSkipped(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.General = Limit{}
	cfg.Telemetry.Exporter = "zipkin"
	require.NoError(t, Validate(cfg))
}
