package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/teranos/scholar/version.Version=v0.4.0 -X github.com/teranos/scholar/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "dev"
	Commit    = "dev"
	BuildTime = "unknown"
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Release   bool   `json:"release"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information. Tagged versions are normalized, so
// "v0.4.0" reports as "0.4.0".
func Get() Info {
	v, release := parse(Version)
	return Info{
		Version:   v,
		Commit:    Commit,
		BuildTime: BuildTime,
		Release:   release,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// parse reports a release only for a valid semver tag without prerelease.
func parse(raw string) (string, bool) {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return raw, false
	}
	return v.String(), v.Prerelease() == ""
}

func (i Info) String() string {
	return fmt.Sprintf("scholar %s (commit %s, built %s)", i.Version, i.Short(), i.BuildTime)
}

// Short returns the abbreviated commit hash
func (i Info) Short() string {
	if len(i.Commit) > 7 {
		return i.Commit[:7]
	}
	return i.Commit
}
