// Package version holds build metadata injected via ldflags.
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// UserAgent identifies the service to Feature Sources.
func UserAgent() string {
	return fmt.Sprintf("surveysearch/%s (%s)", Version, Commit)
}
