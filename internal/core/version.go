package core

// Build information for the shortener binaries.
var (
	// Version is the release version, overridden at build time via
	// -ldflags "-X github.com/shortr-io/shortr/internal/core.Version=...".
	Version = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
