// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded with -ldflags at link time:
//
//	go build -ldflags "-X iocapture/pkg/build.buildName=iocapture \
//	    -X iocapture/pkg/build.buildVersion=v0.3.0 ..."
//
// Development builds run with the "unknown" defaults.
package build

import (
	"errors"
	"fmt"
)

// Info is the build metadata of the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the info for --version output.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Set by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var info = defaultInfo()

func defaultInfo() Info {
	return Info{
		Name:        "iocapture",
		Description: "Real-time audio capture with recording and loopback",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "unknown",
	}
}

// Initialize copies the ldflags values into the build info. It returns an
// error naming every missing value; values that are present are applied
// regardless, so callers may treat the error as a warning.
func Initialize() error {
	var errs []error
	apply := func(dst *string, val, flag string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", flag))
			return
		}
		*dst = val
	}

	apply(&info.Name, buildName, "BuildName")
	apply(&info.Time, buildTime, "BuildTime")
	apply(&info.Commit, buildCommit, "BuildCommit")
	apply(&info.Version, buildVersion, "BuildVersion")

	return errors.Join(errs...)
}

// Get returns the current build information.
func Get() Info {
	return info
}
