// SPDX-License-Identifier: MIT

// Package version carries build metadata injected via ldflags.
package version

import "fmt"

var (
	// Version is the current application version, set with
	// -ldflags "-X github.com/ManuGH/restream/internal/version.Version=...".
	Version = "dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String renders the build metadata for -version output.
func String() string {
	return fmt.Sprintf("restream %s (commit %s, built %s)", Version, Commit, Date)
}
