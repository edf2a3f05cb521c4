// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/restream/internal/log"
)

const reloadDebounce = 500 * time.Millisecond

// Holder holds configuration with atomic reloading capability.
// Reloads come from the file watcher or a manual trigger.
type Holder struct {
	mu      sync.RWMutex
	current Config
	loader  *Loader
	logger  zerolog.Logger

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}

	listenMu  sync.RWMutex
	listeners []func(Config)
}

// NewHolder creates a holder with an already loaded configuration.
func NewHolder(initial Config, loader *Loader) *Holder {
	return &Holder{
		current: initial,
		loader:  loader,
		logger:  log.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers fn to run after every successful reload. Listeners run
// synchronously in registration order.
func (h *Holder) OnReload(fn func(Config)) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload loads and validates the configuration again. On failure the current
// configuration stays in effect.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(log.FieldEvent, "config.reload_start").Msg("reloading configuration")

	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.reload_failed").
			Msg("new configuration rejected, keeping current")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.mu.Unlock()

	h.logChanges(prev, next)

	h.listenMu.RLock()
	listeners := append(([]func(Config))(nil), h.listeners...)
	h.listenMu.RUnlock()
	for _, fn := range listeners {
		fn(next)
	}

	h.logger.Info().Str(log.FieldEvent, "config.reload_success").Msg("configuration reloaded")
	return nil
}

// StartWatcher reloads whenever the config file changes. It watches the
// parent directory so editors that replace the file are picked up. Without
// a config file it is a no-op.
func (h *Holder) StartWatcher(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().
			Str(log.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (environment-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.watchMu.Lock()
	h.watcher = watcher
	h.done = make(chan struct{})
	done := h.done
	h.watchMu.Unlock()

	h.logger.Info().
		Str(log.FieldEvent, "config.watcher_started").
		Str(log.FieldPath, path).
		Msg("watching config file for changes")

	go h.watchLoop(ctx, watcher, filepath.Clean(path), done)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, w *fsnotify.Watcher, path string, done chan struct{}) {
	defer close(done)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			h.logger.Info().Str(log.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().
				Str(log.FieldEvent, "config.file_changed").
				Str("op", event.Op.String()).
				Msg("config file changed")

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().
						Err(err).
						Str(log.FieldEvent, "config.auto_reload_failed").
						Msg("automatic config reload failed")
				}
			})

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str(log.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}

// Stop closes the watcher and waits for its loop to exit.
func (h *Holder) Stop() {
	h.watchMu.Lock()
	w, done := h.watcher, h.done
	h.watcher, h.done = nil, nil
	h.watchMu.Unlock()

	if w == nil {
		return
	}
	_ = w.Close()
	<-done
}

// logChanges reports which reloadable sections changed. Sections that need a
// restart (server, store, redis, telemetry) are flagged as such.
func (h *Holder) logChanges(prev, next Config) {
	changed := func(section string, a, b any, restart bool) {
		if reflect.DeepEqual(a, b) {
			return
		}
		evt := h.logger.Info()
		if restart {
			evt = h.logger.Warn().Bool("restart_required", true)
		}
		evt.Str("section", section).Msg("config changed")
	}

	changed("platforms", prev.Platforms, next.Platforms, false)
	changed("tiers", prev.Tiers, next.Tiers, false)
	changed("quota", prev.Quota, next.Quota, false)
	changed("sessions", prev.Sessions, next.Sessions, false)
	changed("log", prev.Log, next.Log, false)
	changed("server", prev.Server, next.Server, true)
	changed("store", prev.Store, next.Store, true)
	changed("redis", prev.Redis, next.Redis, true)
	changed("ffmpeg", prev.FFmpeg, next.FFmpeg, true)
	changed("telemetry", prev.Telemetry, next.Telemetry, true)
}
