// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/restream/internal/api"
	"github.com/ManuGH/restream/internal/config"
	"github.com/ManuGH/restream/internal/domain/stream/registry"
	"github.com/ManuGH/restream/internal/health"
	"github.com/ManuGH/restream/internal/infra/ffmpeg"
	"github.com/ManuGH/restream/internal/log"
	"github.com/ManuGH/restream/internal/telemetry"
	"github.com/ManuGH/restream/internal/version"
)

// run loads configuration, wires every component and serves until ctx is
// cancelled. Shutdown drains HTTP first, then live sessions.
func run(ctx context.Context, configPath string) error {
	logger := log.WithComponent("daemon")

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	configureLogging(cfg)

	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	logger.Info().
		Str(log.FieldEvent, "config.loaded").
		Str("source", source).
		Str(log.FieldPath, configPath).
		Msg("configuration loaded")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}

	encoder := ffmpeg.New(ffmpeg.Config{
		Binary:         cfg.FFmpeg.Bin,
		Preset:         cfg.FFmpeg.Preset,
		TerminateGrace: cfg.Sessions.TerminateGrace,
		KillTimeout:    cfg.Sessions.KillTimeout,
		StartupProbe:   cfg.FFmpeg.StartupProbe,
		SpawnRate:      cfg.FFmpeg.SpawnRate,
		SpawnBurst:     cfg.FFmpeg.SpawnBurst,
		CrashDir:       cfg.FFmpeg.CrashDir,
		StderrLines:    cfg.FFmpeg.StderrLines,
	})

	reg, err := registry.New(registry.Deps{
		Accounts: be.accounts,
		Assets:   be.assets,
		Store:    be.sessions,
		Activity: be.activity,
		Encoder:  encoder,
	}, registry.Options{
		Catalog:        cfg.Catalog(),
		Policy:         cfg.Policy(),
		OptimisticStop: cfg.Sessions.OptimisticStop,
		HistoryLimit:   cfg.Sessions.HistoryLimit,
		PersistTimeout: cfg.Sessions.PersistTimeout,
	})
	if err != nil {
		_ = be.Close(context.Background())
		return fmt.Errorf("create registry: %w", err)
	}

	if n, err := reg.Recover(ctx); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "registry.recover_failed").Msg("startup recovery incomplete")
	} else if n > 0 {
		logger.Warn().Int("orphaned", n).Str(log.FieldEvent, "registry.recovered").Msg("failed sessions left by a previous process")
	}

	holder := config.NewHolder(cfg, loader)
	holder.OnReload(func(next config.Config) {
		configureLogging(next)
		reg.Apply(next.Catalog(), next.Policy(), next.Sessions.OptimisticStop)
	})

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewBinaryChecker("ffmpeg", cfg.FFmpeg.Bin))
	for _, c := range be.checks {
		hm.RegisterChecker(c)
	}

	opts := api.Options{
		TrustProxy:     cfg.Server.TrustProxy,
		TracingService: "",
		Health:         hm,
	}
	if tp.Enabled() {
		opts.TracingService = cfg.Log.Service + "-api"
	}
	if cfg.RateLimit.Enabled {
		opts.General = api.Limit{Requests: cfg.RateLimit.General.Requests, Window: cfg.RateLimit.General.Window}
		opts.Control = api.Limit{Requests: cfg.RateLimit.Control.Requests, Window: cfg.RateLimit.Control.Window}
	}
	srv, err := api.New(reg, opts)
	if err != nil {
		_ = be.Close(context.Background())
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str(log.FieldEvent, "startup").
			Str("version", version.Version).
			Str("addr", cfg.Server.Listen).
			Msg("starting restream")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if err := holder.StartWatcher(gctx); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_failed").Msg("config hot reload disabled")
	}

	g.Go(func() error {
		watchSIGHUP(gctx, holder)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return shutdown(httpSrv, reg, be, tp, holder, holder.Get())
	})

	return g.Wait()
}

// shutdown drains the HTTP server, then live sessions, then closes
// backends. Each phase is bounded by its own timeout.
func shutdown(httpSrv *http.Server, reg *registry.Registry, be *backend, tp *telemetry.Provider, holder *config.Holder, cfg config.Config) error {
	logger := log.WithComponent("daemon")
	logger.Info().Str(log.FieldEvent, "shutdown.start").Int("active_sessions", reg.ActiveCount()).Msg("shutting down")

	holder.Stop()

	var errs []error

	httpCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	if err := httpSrv.Shutdown(httpCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	cancel()

	sessCtx, cancel := context.WithTimeout(context.Background(), cfg.Sessions.ShutdownWait)
	if err := reg.Shutdown(sessCtx); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "shutdown.sessions_timeout").Msg("some encoders did not exit in time")
	}
	cancel()

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := be.Close(closeCtx); err != nil {
		errs = append(errs, fmt.Errorf("close backends: %w", err))
	}
	if err := tp.Shutdown(closeCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}

	logger.Info().Str(log.FieldEvent, "shutdown.complete").Msg("shutdown complete")
	return errors.Join(errs...)
}

// watchSIGHUP triggers a config reload on SIGHUP until ctx ends.
func watchSIGHUP(ctx context.Context, holder *config.Holder) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			_ = holder.Reload(ctx)
		}
	}
}

func configureLogging(cfg config.Config) {
	log.Configure(log.Config{
		Level:   cfg.Log.Level,
		Service: cfg.Log.Service,
		Version: version.Version,
	})
}
