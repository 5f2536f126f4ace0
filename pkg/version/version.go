// Package version reports the build of the vfd binaries.
package version

import "runtime/debug"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/vfd/pkg/version.Version=v1.0.0 \
//	  -X github.com/newtron-network/vfd/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/vfd/pkg/version.BuildDate=2026-01-01T00:00:00Z"
//
// Without ldflags the commit and date come from the VCS stamp the go tool
// embeds, when there is one.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string for display.
func Info() string {
	commit, date := GitCommit, BuildDate
	if commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			commit, date = fromBuildInfo(bi, commit, date)
		}
	}
	return Version + " (" + commit + ") built " + date
}

func fromBuildInfo(bi *debug.BuildInfo, commit, date string) (string, string) {
	dirty := false
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
			if len(commit) > 7 {
				commit = commit[:7]
			}
		case "vcs.time":
			date = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && commit != "unknown" {
		commit += "-dirty"
	}
	return commit, date
}
