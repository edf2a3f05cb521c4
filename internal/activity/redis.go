// SPDX-License-Identifier: MIT

// Package activity publishes per-account activity log entries to sinks
// beyond the primary store.
package activity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/ports"
	"github.com/ManuGH/restream/internal/log"
)

// DefaultStream is the Redis stream entries are appended to.
const DefaultStream = "restream:activity"

var _ ports.ActivitySink = (*RedisSink)(nil)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // host:port
	Password string
	DB       int
	Stream   string
	// MaxLen caps the stream length (approximate trimming). Zero keeps everything.
	MaxLen int64
}

// RedisSink appends activity entries to a Redis stream with XADD.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
	logger zerolog.Logger
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	s := newRedisSink(client, cfg)
	s.logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Str("stream", s.stream).
		Msg("connected to Redis activity stream")
	return s, nil
}

func newRedisSink(client *redis.Client, cfg RedisConfig) *RedisSink {
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{
		client: client,
		stream: stream,
		maxLen: cfg.MaxLen,
		logger: log.WithComponent("activity"),
	}
}

// AppendActivityLog adds one entry to the stream.
func (s *RedisSink) AppendActivityLog(ctx context.Context, a model.Activity) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"owner":      a.Owner,
			"action":     a.Action,
			"details":    a.Details,
			"session_id": a.SessionID,
			"client_ip":  a.ClientIP,
			"at_ms":      strconv.FormatInt(a.At.UnixMilli(), 10),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// HealthCheck checks if Redis is available.
func (s *RedisSink) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
