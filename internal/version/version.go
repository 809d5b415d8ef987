// Package version reports the ippower build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Name is the binary name printed by the CLI.
const Name = "ippower"

// Version and Commit are set at build time:
//
//	go build -ldflags="-X github.com/muurk/ippower/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/ippower/internal/version.Commit=abc123" ./cmd/ippower
//
// Unset values are filled from VCS build info, then "dev-<time>" and "unknown".
var (
	Version = ""
	Commit  = ""
)

// Info describes the running build.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func init() {
	if Version == "" || Commit == "" {
		fromBuildInfo()
	}
	if Version == "" {
		Version = fmt.Sprintf("dev-%s", time.Now().Format("20060102-150405"))
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

func fromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	Commit, Version = resolve(Commit, Version, info.Main.Version, settings)
}

// resolve fills commit and version from vcs.* build settings. The main
// module version from `go install ...@vX` wins over the commit date.
func resolve(commit, version, moduleVersion string, settings map[string]string) (string, string) {
	if rev := settings["vcs.revision"]; commit == "" && rev != "" {
		if len(rev) > 7 {
			rev = rev[:7]
		}
		commit = rev
		if settings["vcs.modified"] == "true" {
			commit += "-dirty"
		}
	}
	if version == "" {
		if moduleVersion != "" && moduleVersion != "(devel)" {
			version = moduleVersion
		} else if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
			version = fmt.Sprintf("dev-%s", t.Format("20060102"))
		}
	}
	return commit, version
}

// Get returns the build information.
func Get() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit: %s, %s, %s)", i.Name, i.Version, i.Commit, i.GoVersion, i.Platform)
}
