// Package version holds the build version, overridable with -ldflags.
package version

// Version is the application version.
var Version = "v0.3.1"
