package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/intermedia-net/vault-chef-probe/config"
)

// Subscribe to the signals the long-running commands react to.
func notifySignals() (<-chan os.Signal, func()) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, os.Interrupt, syscall.SIGTERM)

	return signals, func() { signal.Stop(signals) }
}

// Probe repeatedly until interrupted.
//
// A probe runs at startup, whenever the configuration file changes, on SIGHUP
// and every `watchInterval` if one is configured. SIGINT and SIGTERM stop the
// loop.
func Watch(configPath string, out io.Writer, logger hclog.Logger) error {
	signals, stop := notifySignals()
	defer stop()

	return watchLoop(configPath, signals, out, logger)
}

func watchLoop(configPath string, signals <-chan os.Signal, out io.Writer, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	configWatcher := config.Watch(configPath)
	defer configWatcher.Close()

	var cfg *config.Config

	select {
	case cfg = <-configWatcher.NewConfig:
		break

	case err := <-configWatcher.Errors:
		return errors.Wrapf(err, "unable to load configuration file %s", configPath)
	}

	logger.Info("watching", "config", configPath, "interval", time.Duration(cfg.WatchInterval))
	logger.Info("quit with CONTROL-C")

	for {
		runProbe(cfg, out, logger)

		var timer *time.Timer
		var tick <-chan time.Time
		if cfg.WatchInterval > 0 {
			timer = time.NewTimer(time.Duration(cfg.WatchInterval))
			tick = timer.C
		}

		select {
		case newCfg := <-configWatcher.NewConfig:
			logger.Info("detected configuration change, reloading")
			cfg = newCfg

		case err := <-configWatcher.Errors:
			return errors.Wrap(err, "unexpected error watching configuration")

		case <-tick:

		case sig := <-signals:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, reloading configuration")

				newCfg, err := configWatcher.ForceReload()
				if err != nil {
					return errors.Wrap(err, "unexpected error reloading configuration")
				}

				cfg = newCfg

			default:
				logger.Info("received signal, stopping", "signal", sig)
				return nil
			}
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

// Run one probe, logging rather than returning its outcome.
func runProbe(cfg *config.Config, out io.Writer, logger hclog.Logger) {
	summary, err := Probe(context.Background(), cfg, nil, out, logger)
	if err != nil {
		logger.Error("probe failed", "error", err)
		return
	}

	if !summary.OK() {
		logger.Warn("probe finished with failed reads", "reads", summary.Reads, "failed", summary.Failed)
	}
}
