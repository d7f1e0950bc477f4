// Package version reports the build identity of alpacanet.
//
// Release builds stamp Version and Commit through ldflags:
//
//	go build -ldflags="-X github.com/muurk/alpacanet/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/alpacanet/internal/version.Commit=1a2b3c4"
//
// Anything left unset is filled from the module's VCS stamp, and failing
// that from the start time of the process.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Product is the name reported to instrument servers and in CLI output.
const Product = "alpacanet"

const shortCommitLen = 7

var (
	Version = ""
	Commit  = ""
)

func init() {
	info, _ := debug.ReadBuildInfo()
	Version, Commit = resolve(Version, Commit, info, time.Now())
}

// resolve fills in whichever of version and commit is empty.
func resolve(version, commit string, info *debug.BuildInfo, now time.Time) (string, string) {
	vcs := map[string]string{}
	if info != nil {
		for _, s := range info.Settings {
			vcs[s.Key] = s.Value
		}
	}

	if commit == "" {
		if rev := vcs["vcs.revision"]; rev != "" {
			commit = rev[:min(len(rev), shortCommitLen)]
			if vcs["vcs.modified"] == "true" {
				commit += "-dirty"
			}
		} else {
			commit = "unknown"
		}
	}

	if version == "" {
		stamp := now.Format("20060102-150405")
		if t, err := time.Parse(time.RFC3339, vcs["vcs.time"]); err == nil {
			stamp = t.Format("20060102")
		}
		version = "dev-" + stamp
	}

	return version, commit
}

// Full returns the version together with its commit.
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent is the fixed identification string sent with every endpoint
// poll. It carries no commit so a server sees one value per release.
func UserAgent() string {
	return Product + "/" + Version
}
