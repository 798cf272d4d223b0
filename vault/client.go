// Package vault is a thin client for the endpoints the probe exercises.
//
// Every call hands back the raw response so callers can print it verbatim.
// TLS certificates are never verified.
package vault

import (
	"context"
	"encoding/pem"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/vault/api"
	"github.com/pkg/errors"

	"github.com/intermedia-net/vault-chef-probe/config"
)

var (
	ErrLoginFailed = errors.New("login failed")
	ErrNoToken     = errors.New("login response carries no auth.client_token")
	ErrNoSession   = errors.New("not logged in")
)

// A raw exchange with the server.
type Result struct {
	Method string
	URL    string
	Status int
	Body   []byte
}

// Return whether the server answered with a 2xx status.
func (r *Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

type Client struct {
	api       *api.Client
	authMount string
	session   *Session
	logger    hclog.Logger
}

// Read a Chef client key.
//
// The key is sent as plain text, but it must at least look like a PEM file.
func ReadKey(path string) (string, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "could not read client key")
	}

	if block, _ := pem.Decode(content); block == nil {
		return "", errors.Errorf("client key %q is not PEM encoded", path)
	}

	return string(content), nil
}

// Create a client for the configured server.
func New(cfg *config.Config, logger hclog.Logger) (*Client, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	apiConfig := api.DefaultConfig()
	if apiConfig.Error != nil {
		logger.Debug("ignoring environment configuration", "error", apiConfig.Error)
	}

	apiConfig.Address = cfg.Server
	apiConfig.Timeout = time.Duration(cfg.Timeout)
	apiConfig.MaxRetries = cfg.MaxRetries
	apiConfig.Logger = logger

	if err := apiConfig.ConfigureTLS(&api.TLSConfig{Insecure: true}); err != nil {
		return nil, errors.Wrap(err, "could not configure TLS")
	}

	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create client for %q", cfg.Server)
	}

	// Only the token obtained by logging in is ever used.
	client.ClearToken()

	return &Client{
		api:       client,
		authMount: strings.Trim(cfg.AuthMount, "/"),
		logger:    logger,
	}, nil
}

// Return the URL of a path on the server.
func (c *Client) URL(path string) string {
	return strings.TrimRight(c.api.Address(), "/") + "/v1/" + strings.TrimLeft(path, "/")
}

// Return the path of the login endpoint, without the `/v1` prefix.
func (c *Client) LoginPath() string {
	return "auth/" + c.authMount + "/login/key"
}

// Return the current session, if logged in.
func (c *Client) Session() *Session {
	return c.session
}

// Log in with a Chef client name and private key.
//
// The result is returned whenever the server answered, even when the login
// failed, so that it can be reported.
func (c *Client) Login(ctx context.Context, client, key string) (*Result, *Session, error) {
	c.api.ClearToken()
	c.session = nil

	result, err := c.do(ctx, http.MethodPost, c.LoginPath(), map[string]string{
		"key":    key,
		"client": client,
	})
	if err != nil {
		return result, nil, err
	}

	if !result.OK() {
		return result, nil, errors.Wrapf(ErrLoginFailed, "server answered %d", result.Status)
	}

	session, err := parseSession(result.Body)
	if err != nil {
		return result, nil, err
	}

	c.session = session
	c.api.SetToken(session.ClientToken)

	c.logger.Debug("logged in", "client", client, "accessor", session.Accessor, "policies", session.Policies)
	return result, session, nil
}

// Read a path with the session token.
//
// A non-2xx status is not an error; it is reported through the result.
func (c *Client) Read(ctx context.Context, path string) (*Result, error) {
	if c.session == nil {
		return nil, ErrNoSession
	}

	return c.do(ctx, http.MethodGet, path, nil)
}

// Look up the session token.
func (c *Client) LookupSelf(ctx context.Context) (*Result, error) {
	return c.Read(ctx, "auth/token/lookup-self")
}

// Read the auth plugin's info endpoint.
func (c *Client) Info(ctx context.Context) (*Result, error) {
	return c.Read(ctx, "auth/"+c.authMount+"/info")
}

// Revoke the session token and forget the session.
func (c *Client) Revoke(ctx context.Context) error {
	if c.session == nil {
		return ErrNoSession
	}

	if err := c.api.Auth().Token().RevokeSelfWithContext(ctx, ""); err != nil {
		return errors.Wrap(err, "could not revoke token")
	}

	c.logger.Debug("token revoked", "accessor", c.session.Accessor)
	c.api.ClearToken()
	c.session = nil

	return nil
}

// Perform a request and capture the raw response.
//
// The API client reports non-2xx statuses as errors but still hands back the
// response; those are folded into the result instead.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*Result, error) {
	path = strings.TrimLeft(path, "/")
	request := c.api.NewRequest(method, "/v1/"+path)

	if body != nil {
		if err := request.SetJSONBody(body); err != nil {
			return nil, errors.Wrap(err, "could not encode request body")
		}
	}

	result := Result{
		Method: method,
		URL:    c.URL(path),
	}

	c.logger.Trace("request", "method", method, "url", result.URL)

	response, err := c.api.RawRequestWithContext(ctx, request)
	if response == nil || response.Response == nil {
		if err == nil {
			err = errors.New("no response")
		}

		return nil, errors.Wrapf(err, "%s %s", method, result.URL)
	}
	defer response.Body.Close()

	result.Status = response.StatusCode
	result.Body, err = ioutil.ReadAll(response.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read response of %s %s", method, result.URL)
	}

	c.logger.Trace("response", "method", method, "url", result.URL, "status", result.Status)
	return &result, nil
}
