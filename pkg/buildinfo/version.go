// Package buildinfo provides build-time version information.
//
// Variables are set via ldflags during build:
//
//	go build -ldflags "-X github.com/matzehuels/zarrtools/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/zarrtools/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/zarrtools/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import "fmt"

// Repository is the source repository of the tools.
const Repository = "https://github.com/matzehuels/zarrtools"

// ZarrFormat is the Zarr format version written by the array engine.
const ZarrFormat = 3

var (
	// Version is the semantic version (e.g., "v1.2.3").
	// Set via ldflags: -X github.com/matzehuels/zarrtools/pkg/buildinfo.Version=...
	Version = "dev"

	// Commit is the git commit SHA.
	// Set via ldflags: -X github.com/matzehuels/zarrtools/pkg/buildinfo.Commit=...
	Commit = "none"

	// Date is the build timestamp.
	// Set via ldflags: -X github.com/matzehuels/zarrtools/pkg/buildinfo.Date=...
	Date = "unknown"
)

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s\nzarr format: %d", Version, Commit, Date, ZarrFormat)
}

// Short returns the version together with the Zarr format, for embedding
// in written metadata.
func Short() string {
	return fmt.Sprintf("zarrtools %s (zarr v%d)", Version, ZarrFormat)
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\nzarr format: %d\n", Version, Commit, Date, ZarrFormat)
}
