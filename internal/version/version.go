package version

import (
	"fmt"
	"runtime"
	"time"
)

// Name is the service name reported in logs, traces and /healthz.
const Name = "urldammit"

var (
	Version   = "dev"                           // ex: v0.1.0, set with -ldflags "-X .../version.Version=..."
	Commit    = "none"                          // ex: abcd123
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version()               // go version
)

// String describes the running build on one line.
func String() string {
	return fmt.Sprintf("%s %s (commit=%s, built=%s, go=%s)", Name, Version, Commit, BuildDate, GoVersion)
}
