package mods

import (
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// set at build time, -ldflags "-X github.com/machbase/neo-append/mods.versionString=v1.0.0"
var (
	versionString  = ""
	versionGitSHA  = ""
	buildTimestamp = ""
)

// BuildInfo describes the running binary. Version is nil for a
// development build or an unparsable version string.
type BuildInfo struct {
	Version   *semver.Version
	GitSHA    string
	Timestamp string
	GoVersion string
}

func GetBuildInfo() BuildInfo {
	bi := BuildInfo{
		GitSHA:    versionGitSHA,
		Timestamp: buildTimestamp,
		GoVersion: runtime.Version(),
	}
	if v, err := semver.NewVersion(versionString); err == nil {
		bi.Version = v
	}
	return bi
}

func (bi BuildInfo) String() string {
	parts := []string{"DEV"}
	if bi.Version != nil {
		parts[0] = "v" + bi.Version.String()
	}
	if bi.GitSHA != "" {
		parts = append(parts, bi.GitSHA)
	}
	if bi.Timestamp != "" {
		parts = append(parts, bi.Timestamp)
	}
	return strings.Join(append(parts, bi.GoVersion), " ")
}

func VersionString() string {
	return GetBuildInfo().String()
}
