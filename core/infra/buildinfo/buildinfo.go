package buildinfo

import (
	"fmt"

	"github.com/cordum/packedge/core/infra/logging"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a single-line build summary.
func Info() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", Version, Commit, Date)
}

// UserAgent identifies this build to upstream services.
func UserAgent() string {
	return "packedge/" + Version
}

// Log writes the build summary with the service name.
func Log(service string) {
	logging.Info(service, "build", "version", Version, "commit", Commit, "date", Date)
}
