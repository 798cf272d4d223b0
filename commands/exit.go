package commands

import (
	"github.com/intermedia-net/vault-chef-probe/config"
)

// Process exit statuses.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitFailedReads = 2
)

// Map the outcome of a command to a process exit status.
//
// Failed reads only change the status in strict mode.
func ExitCode(cfg *config.Config, summary *Summary, err error) int {
	if err != nil {
		return ExitFailure
	}

	if summary != nil && !summary.OK() && cfg != nil && cfg.Strict {
		return ExitFailedReads
	}

	return ExitOK
}
