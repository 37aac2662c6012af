// Package version holds build-time version information for the eventgw
// binary. The variables are injected via -ldflags:
//
// -X github.com/dittox/eventgw/internal/version.Version=v1.0.0
// -X github.com/dittox/eventgw/internal/version.Commit=abc1234
// -X github.com/dittox/eventgw/internal/version.Date=2025-10-24T00:00:00Z
//
// so local builds without ldflags still produce sensible output.
package version

import "fmt"

// Variables set at link time. Default to dev values.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns a single-line human-readable version string, e.g.:
//
// v1.0.0 (commit abc1234, built 2025-10-24T12:00:00Z)
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}

// Short returns just the version tag, e.g. "v1.0.0" or "dev".
func Short() string {
	return Version
}

// UserAgent is sent on outgoing CMS requests.
func UserAgent() string {
	return "eventgw/" + Version
}
