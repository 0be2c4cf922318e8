// SPDX-License-Identifier: MIT
//
// Package build exposes the name, version, commit and build time linked into
// the binary with -ldflags, for example:
//
//	go build -ldflags "-X spectra/pkg/build.buildName=spectra -X spectra/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run without them and report DevVersion.
package build

import (
	"fmt"
	"strings"
)

const (
	DefaultName = "spectra"
	DevVersion  = "dev"
	Description = "Real-time spectrum visualizer for audio tracks"
)

// Info is the build metadata of the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = devInfo()
)

func devInfo() *Info {
	return &Info{
		Name:        DefaultName,
		Description: Description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     DevVersion,
	}
}

// Initialize validates and copies the ldflags variables. When any is missing
// the development defaults stay in place and the error names the first
// missing flag.
func Initialize() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"BuildName", buildName},
		{"BuildTime", buildTime},
		{"BuildCommit", buildCommit},
		{"BuildVersion", buildVersion},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s is required", strings.Join(missing, ", "))
	}

	buildInfo = &Info{
		Name:        buildName,
		Description: Description,
		Time:        buildTime,
		Commit:      buildCommit,
		Version:     buildVersion,
	}
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildInfo
}

// VersionString formats the version line shown by --version.
func (i *Info) VersionString() string {
	if i.Version == DevVersion {
		return DevVersion
	}
	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("%s (%s, built %s)", i.Version, commit, i.Time)
}
