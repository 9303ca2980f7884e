// Package version carries the build stamp reported by `sonar -version`.
// The values are set at link time with -ldflags "-X".
package version

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)
