// Package version holds build-time version information injected via ldflags:
//
//	go build -ldflags "-X github.com/hazz-dev/upnotif/internal/version.Version=v1.2.0"
package version

import "fmt"

// These variables are set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the version line printed by the version command.
func String() string {
	return fmt.Sprintf("upnotif %s (commit %s, built %s)", Version, Commit, Date)
}
