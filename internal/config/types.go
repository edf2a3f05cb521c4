// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads, validates and hot-reloads the daemon configuration.
//
// Precedence is ENV > YAML file > defaults. The file is parsed strictly:
// unknown keys are errors.
package config

import (
	"time"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/quota"
)

// Config is the complete daemon configuration.
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Log       LogConfig             `yaml:"log"`
	Store     StoreConfig           `yaml:"store"`
	Redis     RedisConfig           `yaml:"redis"`
	Assets    AssetsConfig          `yaml:"assets"`
	FFmpeg    FFmpegConfig          `yaml:"ffmpeg"`
	Sessions  SessionsConfig        `yaml:"sessions"`
	Quota     QuotaConfig           `yaml:"quota"`
	Platforms map[string]string     `yaml:"platforms"`
	Tiers     map[string]model.Tier `yaml:"tiers"`
	RateLimit RateLimitConfig       `yaml:"rateLimit"`
	Telemetry TelemetryConfig       `yaml:"telemetry"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// TrustProxy makes the client IP come from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `yaml:"trustProxy"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type StoreConfig struct {
	Driver           string `yaml:"driver"`
	SQLitePath       string `yaml:"sqlitePath"`
	PostgresDSN      string `yaml:"postgresDsn"`
	PostgresMaxConns int    `yaml:"postgresMaxConns"`
	// VerifyOnStart runs an integrity check on the SQLite file at startup.
	VerifyOnStart bool `yaml:"verifyOnStart"`
}

// RedisConfig enables the activity stream mirror and the shared asset
// cache when Addr is set.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	ActivityStream string `yaml:"activityStream"`
	ActivityMaxLen int64  `yaml:"activityMaxLen"`
}

type AssetsConfig struct {
	// CacheTTL caches successful asset lookups; zero disables the cache.
	CacheTTL time.Duration `yaml:"cacheTtl"`
}

type FFmpegConfig struct {
	Bin          string        `yaml:"bin"`
	Preset       string        `yaml:"preset"`
	StartupProbe time.Duration `yaml:"startupProbe"`
	SpawnRate    float64       `yaml:"spawnRate"`
	SpawnBurst   int           `yaml:"spawnBurst"`
	CrashDir     string        `yaml:"crashDir"`
	StderrLines  int           `yaml:"stderrLines"`
}

type SessionsConfig struct {
	TerminateGrace time.Duration `yaml:"terminateGrace"`
	KillTimeout    time.Duration `yaml:"killTimeout"`
	ShutdownWait   time.Duration `yaml:"shutdownWait"`
	OptimisticStop bool          `yaml:"optimisticStop"`
	HistoryLimit   int           `yaml:"historyLimit"`
	PersistTimeout time.Duration `yaml:"persistTimeout"`
}

type QuotaConfig struct {
	FreeCeiling  int      `yaml:"freeCeiling"`
	PremiumTiers []string `yaml:"premiumTiers"`
}

// Limit is a request budget per client IP.
type Limit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type RateLimitConfig struct {
	Enabled bool  `yaml:"enabled"`
	General Limit `yaml:"general"`
	Control Limit `yaml:"control"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Default returns the built-in configuration.
func Default() Config {
	policy := quota.DefaultPolicy()
	return Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log:   LogConfig{Level: "info", Service: "restream"},
		Store: StoreConfig{Driver: StoreSQLite, SQLitePath: "data/restream.db", PostgresMaxConns: 10},
		Redis: RedisConfig{ActivityStream: "restream:activity", ActivityMaxLen: 100000},
		FFmpeg: FFmpegConfig{
			Bin:          "ffmpeg",
			Preset:       "veryfast",
			StartupProbe: 2 * time.Second,
			SpawnRate:    2,
			SpawnBurst:   4,
			CrashDir:     "data/crashes",
			StderrLines:  200,
		},
		Sessions: SessionsConfig{
			TerminateGrace: 5 * time.Second,
			KillTimeout:    2 * time.Second,
			ShutdownWait:   10 * time.Second,
			HistoryLimit:   10,
			PersistTimeout: 5 * time.Second,
		},
		Quota:     QuotaConfig{FreeCeiling: policy.FreeCeiling, PremiumTiers: policy.PremiumTiers},
		Platforms: model.DefaultPlatforms(),
		Tiers:     model.DefaultTiers(),
		RateLimit: RateLimitConfig{
			Enabled: true,
			General: Limit{Requests: 100, Window: 15 * time.Minute},
			Control: Limit{Requests: 20, Window: 5 * time.Minute},
		},
		Telemetry: TelemetryConfig{Exporter: "grpc", Endpoint: "localhost:4317", SamplingRate: 1.0, Environment: "production"},
	}
}

// Catalog returns the platform and tier tables.
func (c Config) Catalog() model.Catalog {
	return model.Catalog{Platforms: c.Platforms, Tiers: c.Tiers}.Clone()
}

// Policy returns the quota policy.
func (c Config) Policy() quota.Policy {
	return quota.Policy{
		FreeCeiling:  c.Quota.FreeCeiling,
		PremiumTiers: append([]string(nil), c.Quota.PremiumTiers...),
	}
}
