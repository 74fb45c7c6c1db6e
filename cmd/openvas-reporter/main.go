// Command openvas-reporter scans the local subnet with gvmd and mails the
// resulting PDF report.
package main

import "github.com/anstrom/openvas-reporter/cmd/cli"

// Build information, set via -ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
