// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/restream/internal/config"
	"github.com/ManuGH/restream/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts
// accepting streams.
func PerformStartupChecks(_ context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if _, err := exec.LookPath(cfg.FFmpeg.Bin); err != nil {
		return fmt.Errorf("ffmpeg binary not found (%s): %w", cfg.FFmpeg.Bin, err)
	}
	logger.Info().Str("ffmpeg", cfg.FFmpeg.Bin).Msg("encoder binary available")

	if cfg.FFmpeg.CrashDir != "" {
		if err := checkWritableDir(logger, cfg.FFmpeg.CrashDir); err != nil {
			return fmt.Errorf("crash report directory: %w", err)
		}
	}

	switch cfg.Store.Driver {
	case config.StoreSQLite:
		if err := checkWritableDir(logger, filepath.Dir(cfg.Store.SQLitePath)); err != nil {
			return fmt.Errorf("sqlite directory: %w", err)
		}
	case config.StoreMemory:
		logger.Warn().
			Str("store_driver", cfg.Store.Driver).
			Msg("in-memory store; session history and usage counters are lost on restart")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

// checkWritableDir creates path if needed and probes it with a temp file.
func checkWritableDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str(log.FieldPath, path).Msg("directory is writable")
	return nil
}
