// Package version reports the build identity stamped at link time
package version

// BuildInfo describes one signalroom build
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Set with -ldflags "-X signalroom/internal/core/version.Version=v0.3.0 -X ...Commit=abcd -X ...Date=2025-12-22"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns the build information for the named service
func Info(service string) BuildInfo {
	return BuildInfo{Service: service, Version: Version, Commit: Commit, Date: Date}
}
