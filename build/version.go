package build

import "fmt"

// These are set via linker flags at build time in a production release; the
// zero values below are what a source checkout reports.
var (
	// Commit is the git commit the binary was built from.
	Commit string

	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0
)

// Version returns the application version as a properly formed string.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}
