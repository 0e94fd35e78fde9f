package core

import "github.com/coreos/go-semver/semver"

// RawVersion is the unparsed raw version of revcache.
// Release builds override it with -ldflags "-X github.com/thought-machine/revcache/src/core.RawVersion=...".
var RawVersion = "0.1.0"

// Version returns the current version of revcache.
// It panics if RawVersion isn't a valid semantic version, which would be a build problem.
func Version() semver.Version {
	return *semver.New(RawVersion)
}
