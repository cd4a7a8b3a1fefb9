// Package version holds the build identity of semhist. Runs and exports
// record it so that rows can be traced back to the binary that wrote them.
package version

import (
	"runtime"
	"runtime/debug"
)

// Overridden at build time:
// go build -ldflags "-X semhist/internal/version.Version=0.5.0 -X semhist/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "0.4.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// revision returns Commit, falling back to the vcs stamp of the module build.
func revision() string {
	if Commit != "unknown" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return Commit
}

// Info is the version plus a short revision, e.g. "0.4.0 (1a2b3c4)".
func Info() string {
	rev := revision()
	if rev != "unknown" && len(rev) > 7 {
		return Version + " (" + rev[:7] + ")"
	}
	return Version
}

// Full is the multi-line form printed by `semhist version`.
func Full() string {
	return "semhist version " + Version + "\n" +
		"Commit: " + revision() + "\n" +
		"Built: " + BuildDate + "\n" +
		"Go: " + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH
}
