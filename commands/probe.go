package commands

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/intermedia-net/vault-chef-probe/config"
	"github.com/intermedia-net/vault-chef-probe/report"
	"github.com/intermedia-net/vault-chef-probe/vault"
)

const defaultRevokeTimeout = 30 * time.Second

// The outcome of a probe run.
type Summary struct {
	Reads   int
	Failed  int
	Revoked bool
}

// Return whether every read succeeded.
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// A logged-in client together with the printer its exchanges go to.
type probeSession struct {
	cfg     *config.Config
	client  *vault.Client
	printer *report.Printer
	logger  hclog.Logger
}

// Read the client key, log in and print the login exchange.
//
// The login response is printed even when the login is rejected.
func startSession(ctx context.Context, cfg *config.Config, out io.Writer, logger hclog.Logger) (*probeSession, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	key, err := vault.ReadKey(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	client, err := vault.New(cfg, logger.Named("vault"))
	if err != nil {
		return nil, err
	}

	printer := report.NewPrinter(out, cfg.Format, cfg.ShowCurl)
	if err = printer.Login(client.URL(client.LoginPath()), cfg.Client); err != nil {
		return nil, err
	}

	result, _, err := client.Login(ctx, cfg.Client, key)
	if result != nil {
		if printErr := printer.Response(result); printErr != nil && err == nil {
			err = printErr
		}
	}

	if err != nil {
		return nil, errors.Wrapf(err, "could not log in as %q", cfg.Client)
	}

	return &probeSession{
		cfg:     cfg,
		client:  client,
		printer: printer,
		logger:  logger,
	}, nil
}

// Print a request, perform it and print the response.
func (s *probeSession) exchange(method, url string, do func() (*vault.Result, error)) (*vault.Result, error) {
	if err := s.printer.Request(method, url); err != nil {
		return nil, err
	}

	result, err := do()
	if err != nil {
		return nil, err
	}

	if err = s.printer.Response(result); err != nil {
		return nil, err
	}

	if !result.OK() {
		s.logger.Warn("request failed", "method", method, "url", url, "status", result.Status)
	}

	return result, nil
}

func (s *probeSession) read(ctx context.Context, path string) (*vault.Result, error) {
	return s.exchange(http.MethodGet, s.client.URL(path), func() (*vault.Result, error) {
		return s.client.Read(ctx, path)
	})
}

// Revoke the session token if configured to.
//
// The caller's context may already be done, so the revocation gets its own
// deadline. A revocation failure becomes the returned error unless there
// already is one.
func (s *probeSession) finish(summary *Summary, err *error) {
	if !s.cfg.RevokeOnExit {
		return
	}

	timeout := time.Duration(s.cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultRevokeTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if revokeErr := s.client.Revoke(ctx); revokeErr != nil {
		s.logger.Error("could not revoke token", "error", revokeErr)

		if *err == nil {
			*err = revokeErr
		}

		return
	}

	summary.Revoked = true
}

// Log in and read every path in order, printing each exchange to out.
//
// When paths is empty the configured paths are read. Reads answered with a
// non-2xx status are counted as failed but do not stop the probe; a transport
// error does. The token is revoked on the way out when `revokeOnExit` is set,
// even if the probe was interrupted.
func Probe(ctx context.Context, cfg *config.Config, paths []string, out io.Writer, logger hclog.Logger) (summary *Summary, err error) {
	if len(paths) == 0 {
		paths = cfg.Paths
	}

	session, err := startSession(ctx, cfg, out, logger)
	if err != nil {
		return nil, err
	}

	summary = &Summary{}
	defer session.finish(summary, &err)

	for _, path := range paths {
		if err = ctx.Err(); err != nil {
			return summary, err
		}

		result, err := session.read(ctx, path)
		if err != nil {
			return summary, err
		}

		summary.Reads++
		if !result.OK() {
			summary.Failed++
		}
	}

	session.logger.Info("probe finished", "reads", summary.Reads, "failed", summary.Failed)
	return summary, nil
}
