package buildinfo

import "fmt"

// Filled in by the linker via -ldflags during release builds.
var (
	// GitCommit is the git commit the binary was built from.
	GitCommit = "n/a"
	// GitBranch is the git branch the binary was built from.
	GitBranch = "n/a"
	// GitState is "clean" or "dirty".
	GitState = "n/a"
	// GitSummary is the output of git describe.
	GitSummary = "n/a"
	// BuildDate is the RFC3339 timestamp of the build.
	BuildDate = "n/a"
	// Version is the semantic version of the release, if any.
	Version = "git"
)

// Summary returns a single-line description of the build.
func Summary() string {
	return fmt.Sprintf("%s (%s %s %s %s)", Version, GitSummary, GitBranch, GitState, BuildDate)
}
