// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the stream registry over JSON/HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/restream/internal/api/middleware"
	"github.com/ManuGH/restream/internal/domain/stream/model"
	"github.com/ManuGH/restream/internal/domain/stream/quota"
	"github.com/ManuGH/restream/internal/health"
	"github.com/ManuGH/restream/internal/log"
)

// StreamService is the registry surface the API needs.
type StreamService interface {
	Start(ctx context.Context, owner string, req model.StartRequest) (model.Summary, error)
	Stop(ctx context.Context, owner, id string) error
	List(ctx context.Context, owner string) ([]model.Summary, error)
	GetActive(ctx context.Context, owner string) (model.Summary, bool)
	Catalog() model.Catalog
	Policy() quota.Policy
}

// Limit is a per-IP request budget; zero Requests disables it.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Options configure the HTTP surface.
type Options struct {
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// General applies to every API route, Control additionally to start/stop.
	General Limit
	Control Limit
	// TracingService names the otelhttp server spans; empty disables them.
	TracingService string
	Health         *health.Manager
	// MetricsHandler defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

// Server serves the stream API.
type Server struct {
	streams StreamService
	opts    Options
	handler http.Handler
}

// New builds the router.
func New(streams StreamService, opts Options) (*Server, error) {
	if streams == nil {
		return nil, errors.New("api: stream service is required")
	}
	if opts.Health == nil {
		opts.Health = health.NewManager("")
	}
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.Handler()
	}
	s := &Server{streams: streams, opts: opts}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	if s.opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	middleware.ApplyStack(r, middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.opts.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.opts.Health.ServeHealth)
	r.Get("/readyz", s.opts.Health.ServeReady)
	r.Handle("/metrics", s.opts.MetricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		if s.opts.General.Requests > 0 {
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{
				RequestLimit: s.opts.General.Requests,
				WindowSize:   s.opts.General.Window,
			}))
		}
		r.Get("/catalog", s.handleCatalog)

		r.Group(func(r chi.Router) {
			r.Use(requireOwner)
			r.Get("/streams", s.handleListStreams)
			r.Get("/streams/active", s.handleActiveStream)

			r.Group(func(r chi.Router) {
				if s.opts.Control.Requests > 0 {
					r.Use(middleware.RateLimit(middleware.RateLimitConfig{
						RequestLimit: s.opts.Control.Requests,
						WindowSize:   s.opts.Control.Window,
					}))
				}
				r.Post("/streams", s.handleStartStream)
				r.Post("/streams/{id}/stop", s.handleStopStream)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:     "NotFound",
			Message:   "no such route",
			RequestID: log.RequestIDFromContext(r.Context()),
		})
	})
	return r
}
