// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata linked into the binary at compile time:
//
//	go build -ldflags "-X audioviz/internal/build.buildName=audioviz \
//	  -X audioviz/internal/build.buildVersion=0.1.0 ..."
//
// Development builds carry no flags and report "unknown".
package build

import "fmt"

const description = "Real-time audio-reactive spectrum visualizer"

type ldFlags struct {
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
	buildFlags   = defaultFlags()
)

func defaultFlags() *ldFlags {
	return &ldFlags{
		Name:        "audioviz",
		Description: description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "unknown",
	}
}

// Initialize copies the ldflags variables into the build information. It
// returns an error naming the first missing flag; the defaults stay in place
// in that case so callers may treat the error as a warning.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String formats the build information for `audioviz version`.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}
