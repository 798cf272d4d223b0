package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const Name = "vault-chef-probe"

// Create the root logger writing to w at the named level.
//
// A nil writer means standard error, so that logs never mix with the report
// written to standard output.
func New(level string, w io.Writer) (hclog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	parsed := hclog.LevelFromString(strings.TrimSpace(level))
	if parsed == hclog.NoLevel {
		return nil, errors.Errorf("unknown log level %q", level)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   Name,
		Level:  parsed,
		Output: w,
	}), nil
}
