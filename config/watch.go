package config

import (
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"
)

type ConfigWatcher struct {
	NewConfig <-chan *Config
	Errors    <-chan error
	reload    chan<- chan<- *Config
	done      chan struct{}
}

// Watch the configuration file at path.
//
// The configuration is loaded once immediately and again every time the file
// is written, replaced or a reload is forced. The first error ends the watch.
func Watch(path string) *ConfigWatcher {
	configChan := make(chan *Config, 1)
	errorChan := make(chan error, 1)
	reload := make(chan chan<- *Config)
	done := make(chan struct{})

	go func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			errorChan <- err
			return
		}
		defer watcher.Close()

		if err = watcher.Add(path); err != nil {
			errorChan <- err
			return
		}

		// Set while a forced reload is pending; its result goes to the caller
		// that forced it rather than to NewConfig.
		var reply chan<- *Config

		for {
			cfg, err := Load(path)
			if err != nil {
				errorChan <- err
				return
			}

			if reply != nil {
				reply <- cfg
				reply = nil
			} else {
				select {
				case configChan <- cfg:
				case <-done:
					return
				}
			}

			var stop bool
			stop, reply, err = waitForChange(watcher, path, reload, done)
			if err != nil {
				errorChan <- err
				return
			}

			if stop {
				return
			}
		}
	}()

	return &ConfigWatcher{
		NewConfig: configChan,
		Errors:    errorChan,
		reload:    reload,
		done:      done,
	}
}

// Block until the file changes, a reload is requested or the watch is closed.
//
// For a requested reload the channel to deliver the configuration on is
// returned.
func waitForChange(
	watcher *fsnotify.Watcher,
	path string,
	reload <-chan chan<- *Config,
	done <-chan struct{},
) (bool, chan<- *Config, error) {
	for {
		select {
		case evt := <-watcher.Events:
			if evt.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				// Editors often replace the file rather than write it in
				// place, so wait and see if it comes back.
				time.Sleep(100 * time.Millisecond)

				if err := watcher.Add(path); err != nil {
					return false, nil, errors.New("config file was removed")
				}

				return false, nil, nil
			}

			if evt.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return false, nil, nil
			}

		case err := <-watcher.Errors:
			return false, nil, err

		case reply := <-reload:
			return false, reply, nil

		case <-done:
			return true, nil, nil
		}
	}
}

// Reload the configuration now and return it.
//
// A configuration still queued on NewConfig predates the reload and is
// discarded.
func (cw *ConfigWatcher) ForceReload() (*Config, error) {
	reply := make(chan *Config, 1)

	select {
	case cw.reload <- reply:
	case err := <-cw.Errors:
		return nil, err
	}

	select {
	case <-cw.NewConfig:
	default:
	}

	select {
	case cfg := <-reply:
		return cfg, nil

	case err := <-cw.Errors:
		return nil, err
	}
}

// Stop watching.
func (cw *ConfigWatcher) Close() {
	close(cw.done)
}
