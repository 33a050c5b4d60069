// Package version holds the symbolic version of the shapebench tools.
package version

// Version is the symbolic version of this code. It can be overridden at
// build time with -ldflags "-X github.com/m-lab/shapebench/pkg/version.Version=..."
var Version = "v0.1.0"
