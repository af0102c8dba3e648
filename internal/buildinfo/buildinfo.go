// Package buildinfo identifies the build in banners and window titles.
package buildinfo

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Commit is stamped at build time via -ldflags.
var Commit = "unknown"

// Short returns a compact identifier for logs and titles.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}
