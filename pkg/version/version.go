// Package version holds the version reported by reptest binaries and the
// client library.
package version

// Version is set at build time with
// -ldflags "-X github.com/m-lab/reptest/pkg/version.Version=<version>".
var Version = "v0.0.0-dev"
