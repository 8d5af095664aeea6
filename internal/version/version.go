// Package version carries the build stamp shared by the tuner and the command-line tools.
package version

import "fmt"

// Set with -ldflags "-X fisheye-stereo/internal/version.GitCommit=..." at build time.
var (
	Version   = "0.3.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the stamp as "0.3.0 (abc1234, built 2026-01-02)".
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitCommit, BuildTime)
}
