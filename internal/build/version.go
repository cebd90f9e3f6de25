package build

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Version information. Commit and RawTags are set at link time via
// -ldflags; everything else is derived.
var (
	// Commit is the full git commit hash the binary was built from.
	Commit string

	// CommitHash is the abbreviated commit hash.
	CommitHash string

	// RawTags is the comma-separated list of build tags.
	RawTags string

	// GoVersion is the Go toolchain version used for the build.
	GoVersion string
)

// Semantic version components.
const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0

	// appPreRelease marks the version as a pre-release. Empty for
	// releases.
	appPreRelease = "beta"
)

func init() {
	if GoVersion == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			GoVersion = info.GoVersion
		}
	}
}

// Version returns the application version as a properly formed string.
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		version = fmt.Sprintf("%s-%s", version, appPreRelease)
	}

	return version
}

// Tags returns the build tags the binary was compiled with.
func Tags() []string {
	if RawTags == "" {
		return nil
	}

	return strings.Split(RawTags, ",")
}
