// Package version exposes the build version of the Strand node daemon.
package version

// Version is the current version of the node daemon. It is overridden at link
// time for release builds.
var Version = "dev"
