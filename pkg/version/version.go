// Package version derives the build version from -ldflags or VCS metadata.
package version

import "runtime/debug"

// AppName is used in version strings and the service info endpoint.
const AppName = "nestor"

// gitCommitOverride can be injected with -ldflags for container builds
// that have no .git directory.
var gitCommitOverride string

// GitCommit is the short commit hash, or "dev" when no build metadata is
// available (go test, non-git builds).
var GitCommit = resolveCommit()

func resolveCommit() string {
	if gitCommitOverride != "" {
		return short(gitCommitOverride)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return short(s.Value)
			}
		}
	}
	return "dev"
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "nestor/<commit>" for logging and user-agent strings.
func Full() string {
	return AppName + "/" + GitCommit
}
