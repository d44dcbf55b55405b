package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build identity for logs and the debug API.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
