// Package version holds docqa build metadata injected via ldflags:
//
//	go build -ldflags "-X github.com/kailas-cloud/docqa/internal/version.Version=v0.3.0"
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build info printed by `docqa version`.
func String() string {
	return fmt.Sprintf("docqa %s (commit %s, built %s)", Version, Commit, Date)
}
