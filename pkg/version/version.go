package version

import "fmt"

// Set at build time with -ldflags "-X github.com/chmdznr/ftpsync/pkg/version.Version=..."
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String returns the version with its build metadata on one line.
func String() string {
	commit := GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s (commit %s, built %s)", Version, commit, BuildTime)
}
