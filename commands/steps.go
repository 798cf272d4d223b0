package commands

import (
	"context"
	"io"
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/intermedia-net/vault-chef-probe/config"
	"github.com/intermedia-net/vault-chef-probe/vault"
)

// Log in and print the exchange.
//
// The token is left valid so it can be used afterwards.
func Login(ctx context.Context, cfg *config.Config, out io.Writer, logger hclog.Logger) error {
	session, err := startSession(ctx, cfg, out, logger)
	if err != nil {
		return err
	}

	if s := session.client.Session(); s != nil {
		session.logger.Info("logged in",
			"accessor", s.Accessor,
			"policies", s.Policies,
			"ttl", s.LeaseDuration)
	}

	return nil
}

// Log in and read the given paths.
func Read(ctx context.Context, cfg *config.Config, paths []string, out io.Writer, logger hclog.Logger) (*Summary, error) {
	if len(paths) == 0 {
		return nil, errors.New("no paths to read")
	}

	return Probe(ctx, cfg, paths, out, logger)
}

// Log in and look up the session token.
func WhoAmI(ctx context.Context, cfg *config.Config, out io.Writer, logger hclog.Logger) (*Summary, error) {
	return single(ctx, cfg, out, logger, "auth/token/lookup-self", func(client *vault.Client) (*vault.Result, error) {
		return client.LookupSelf(ctx)
	})
}

// Log in and read the auth plugin's info endpoint.
func Info(ctx context.Context, cfg *config.Config, out io.Writer, logger hclog.Logger) (*Summary, error) {
	return single(ctx, cfg, out, logger, "auth/"+cfg.AuthMount+"/info", func(client *vault.Client) (*vault.Result, error) {
		return client.Info(ctx)
	})
}

// Log in and perform one authenticated GET.
func single(
	ctx context.Context,
	cfg *config.Config,
	out io.Writer,
	logger hclog.Logger,
	path string,
	do func(*vault.Client) (*vault.Result, error),
) (summary *Summary, err error) {
	session, err := startSession(ctx, cfg, out, logger)
	if err != nil {
		return nil, err
	}

	summary = &Summary{}
	defer session.finish(summary, &err)

	result, err := session.exchange(http.MethodGet, session.client.URL(path), func() (*vault.Result, error) {
		return do(session.client)
	})
	if err != nil {
		return summary, err
	}

	summary.Reads = 1
	if !result.OK() {
		summary.Failed = 1
	}

	return summary, nil
}
