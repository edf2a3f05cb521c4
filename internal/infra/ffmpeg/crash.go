// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/restream/internal/domain/stream/ports"
)

// crashReportPath is where the report for sessionID is written.
func crashReportPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+".crash.log")
}

// writeCrashReport atomically replaces the crash report for a session with
// the exit status and the captured stderr tail.
func writeCrashReport(dir, sessionID string, pid int, status ports.ExitStatus, uptime time.Duration, stderr []string) (string, error) {
	// #nosec G301
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	path := crashReportPath(dir, sessionID)

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return "", fmt.Errorf("create pending crash report: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	var b strings.Builder
	fmt.Fprintf(&b, "session: %s\n", sessionID)
	fmt.Fprintf(&b, "pid: %d\n", pid)
	fmt.Fprintf(&b, "exit_code: %d\n", status.Code)
	if status.Signal != "" {
		fmt.Fprintf(&b, "signal: %s\n", status.Signal)
	}
	if status.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", status.Err)
	}
	fmt.Fprintf(&b, "uptime: %s\n", uptime.Round(time.Millisecond))
	fmt.Fprintf(&b, "written_at: %s\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("--- stderr tail ---\n")
	for _, line := range stderr {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if _, err := pending.WriteString(b.String()); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("replace crash report: %w", err)
	}
	return path, nil
}
