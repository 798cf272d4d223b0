package commands

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/intermedia-net/vault-chef-probe/config"
	"github.com/intermedia-net/vault-chef-probe/stub"
)

// Run the stub service until interrupted.
//
// The service is restarted with the new settings whenever the configuration
// file changes or SIGHUP is received.
func StubServe(configPath string, logger hclog.Logger) error {
	signals, stop := notifySignals()
	defer stop()

	return serveLoop(configPath, signals, logger)
}

func serveLoop(configPath string, signals <-chan os.Signal, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	var cfg *config.Config
	configWatcher := config.Watch(configPath)
	defer configWatcher.Close()

	select {
	case cfg = <-configWatcher.NewConfig:
		break

	case err := <-configWatcher.Errors:
		return errors.Wrapf(err, "unable to load configuration file %s", configPath)
	}

	api, err := stub.New(cfg.Stub, logger.Named("stub"))
	if err != nil {
		return errors.Wrap(err, "could not create stub")
	}

	for {
		var newCfg *config.Config
		shouldExit := false

		logger.Info("starting stub server", "port", cfg.Stub.Port, "tls", cfg.Stub.UseTLS)
		logger.Info("quit the server with CONTROL-C")

		server, serveErrors := api.Serve()

		select {
		case newCfg = <-configWatcher.NewConfig:
			logger.Info("detected configuration change, reloading")

		case err := <-configWatcher.Errors:
			shutdown(api, server, logger)
			return errors.Wrap(err, "unexpected error watching configuration")

		case err := <-serveErrors:
			return errors.Wrap(err, "stub server failed")

		case sig := <-signals:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, reloading configuration")

				if newCfg, err = configWatcher.ForceReload(); err != nil {
					shutdown(api, server, logger)
					return errors.Wrap(err, "unexpected error reloading configuration")
				}

			case os.Interrupt:
				shouldExit = true
				signal.Reset(os.Interrupt)
				logger.Info("received SIGINT, shutting down")
				logger.Info("CONTROL-C again to force quit")

			default:
				shouldExit = true
				logger.Info("received signal, shutting down", "signal", sig)
			}
		}

		if err = api.Shutdown(server); err != nil {
			return errors.Wrap(err, "an error occurred while shutting down the server")
		}

		logger.Info("server shut down")

		if shouldExit {
			return nil
		}

		if newCfg != nil {
			if err = api.SetConfig(newCfg.Stub); err != nil {
				logger.Error("failed to reload configuration", "error", err)
			} else {
				cfg = newCfg
				logger.Info("configuration reloaded")
			}
		}
	}
}

// Shut the server down on the way out of an error, logging any failure.
func shutdown(api *stub.API, server *http.Server, logger hclog.Logger) {
	if err := api.Shutdown(server); err != nil {
		logger.Error("an error occurred while shutting down the server", "error", err)
	}
}
