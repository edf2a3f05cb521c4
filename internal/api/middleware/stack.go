// SPDX-License-Identifier: MIT

// Package middleware provides the HTTP ingress middleware for the API server.
package middleware

import (
	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/restream/internal/log"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
type StackConfig struct {
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool

	// General rate limit; zero RequestLimit disables it.
	RateLimit RateLimitConfig
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// Recoverer is the outermost safety net.
	r.Use(Recoverer)
	r.Use(RequestID)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(log.Middleware())
	}
	if cfg.RateLimit.RequestLimit > 0 {
		r.Use(RateLimit(cfg.RateLimit))
	}
}
