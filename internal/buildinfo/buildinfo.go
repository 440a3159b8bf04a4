// Package buildinfo carries build identifiers stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X kestrel/internal/buildinfo.Version=v0.3.0"
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns a compact build identifier for logs.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// Banner is the boot line printed by the host binary.
func Banner() string {
	return fmt.Sprintf("kestrel %s (commit %s, built %s)", Version, Commit, Date)
}
