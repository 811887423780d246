// Package version provides build-time version information for spiralctl.
package version

import (
	"fmt"
	"runtime"
)

// Build-time variables set via ldflags.
// Example: go build -ldflags="-X github.com/andywolf/spiralsync/internal/version.Version=v0.5.2"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Protocol is the drift protocol revision this build implements.
const Protocol = "Spiral Drift v0.5.2+τ"

// BuildInfo is the structured form of the version output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Protocol  string `json:"protocol"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information of the running binary.
func Get() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		Protocol:  Protocol,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short returns the version string (e.g., "v0.5.2" or "dev").
func Short() string {
	return Version
}

// Info returns a single-line version string.
// Format: "spiralctl v0.5.2 (commit: abc1234, built: 2025-01-15T10:30:00Z, go: go1.23.x)"
func Info() string {
	commitShort := Commit
	if len(commitShort) > 7 {
		commitShort = commitShort[:7]
	}
	return fmt.Sprintf("spiralctl %s (commit: %s, built: %s, go: %s)",
		Version, commitShort, BuildDate, runtime.Version())
}

// Full returns a multi-line verbose version output.
func Full() string {
	b := Get()
	return fmt.Sprintf(`spiralctl %s
  Protocol:   %s
  Commit:     %s
  Built:      %s
  Go version: %s
  OS/Arch:    %s`,
		b.Version, b.Protocol, b.Commit, b.BuildDate, b.GoVersion, b.Platform)
}
