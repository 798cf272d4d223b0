// Package stub implements a local stand-in for the secret-storage service.
//
// It serves the handful of endpoints the probe talks to: Chef key login, token
// self-lookup and revocation, plugin info, and secret reads from a seed file.
package stub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	auth "github.com/abbot/go-http-auth"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/intermedia-net/vault-chef-probe/config"
	"github.com/intermedia-net/vault-chef-probe/stub/tokens"
)

var (
	// Version information reported by the info endpoint; set at link time.
	Version     = "dev"
	GitCommit   string
	BuildBranch string
	BuildOrigin string
)

type API struct {
	configLock sync.RWMutex
	config     config.StubConfig
	clients    auth.SecretProvider
	secrets    SecretStore

	router     *mux.Router
	tokenStore tokens.TokenStore
	logger     hclog.Logger
}

// Return a new stub service for the given configuration.
func New(cfg config.StubConfig, logger hclog.Logger) (*API, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	api := API{
		router:     mux.NewRouter(),
		tokenStore: tokens.NewStore(),
		logger:     logger,
	}

	if err := api.SetConfig(cfg); err != nil {
		return nil, err
	}

	api.router.Path("/v1/auth/{mount}/login/key").
		Methods("POST", "PUT").
		HandlerFunc(api.login)

	// The following routes all require a token.
	authed := api.router.PathPrefix("/v1").Subrouter()
	authed.Use(api.withTokenRequired)

	routeTable := []struct {
		methods []string
		path    string
		handler http.Handler
	}{
		{[]string{"GET"}, "/auth/token/lookup-self", http.HandlerFunc(api.lookupSelf)},
		{[]string{"POST", "PUT"}, "/auth/token/revoke-self", http.HandlerFunc(api.revokeSelf)},
		{[]string{"GET"}, "/auth/{mount}/info", http.HandlerFunc(api.info)},
		{[]string{"GET"}, "/{path:.+}", http.HandlerFunc(api.readSecret)},
	}

	for _, route := range routeTable {
		authed.Path(route.path).
			Methods(route.methods...).
			Handler(route.handler)
	}

	return &api, nil
}

// Replace the configuration, reloading the client registry and secrets.
//
// Issued tokens survive a reload.
func (api *API) SetConfig(cfg config.StubConfig) error {
	clients, err := newHtpasswdSecretProvider(cfg.HtpasswdPath)
	if err != nil {
		return err
	}

	secrets, err := LoadSecrets(cfg.SecretsPath)
	if err != nil {
		return err
	}

	api.configLock.Lock()
	defer api.configLock.Unlock()

	api.config = cfg
	api.clients = clients
	api.secrets = secrets

	api.logger.Debug("stub configuration loaded", "secrets", len(secrets), "htpasswd", cfg.HtpasswdPath)
	return nil
}

// Start serving in the background.
//
// Errors other than the server being shut down are delivered on the returned
// channel.
func (api *API) Serve() (*http.Server, <-chan error) {
	api.configLock.RLock()
	cfg := api.config
	api.configLock.RUnlock()

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: api,
	}

	errs := make(chan error, 1)

	go func() {
		var err error

		if cfg.UseTLS {
			err = server.ListenAndServeTLS(cfg.SSLCertificate, cfg.SSLKey)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	return &server, errs
}

// Shut the server down, giving in-flight requests a grace period.
func (api *API) Shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pruned := api.tokenStore.Prune()
	api.logger.Debug("pruned expired tokens", "count", pruned)

	return server.Shutdown(ctx)
}

// Serve a request.
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.configLock.RLock()
	defer api.configLock.RUnlock()

	loggingMiddleware(api.logger, api.router).ServeHTTP(w, r)
}

func (api *API) GetTokenStore() tokens.TokenStore {
	return api.tokenStore
}
