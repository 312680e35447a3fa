// Package version exposes build metadata for the council binary.
package version

import "fmt"

var (
	// Version is the current version of the council binary.
	// Set at build time using -ldflags.
	Version = "dev"

	// CommitHash is the git commit hash the binary was built from.
	CommitHash = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// String returns the full version string used by `council version`.
func String() string {
	return fmt.Sprintf("socratic-council %s (commit: %s, built: %s)", Version, CommitHash, BuildDate)
}
