package commands

import (
	"os"

	"github.com/foomo/htpasswd"
	"github.com/pkg/errors"

	"github.com/intermedia-net/vault-chef-probe/config"
	"github.com/intermedia-net/vault-chef-probe/stub"
	"github.com/intermedia-net/vault-chef-probe/vault"
)

// Register a client and its key with the stub.
//
// The client name and key path default to the configured ones. The htpasswd
// file is created if it does not exist; an existing entry for the client is
// replaced.
func StubAddClient(cfg *config.Config, client, keyPath string) error {
	if cfg.Stub.HtpasswdPath == "" {
		return errors.New("no stub.htpasswdPath configured")
	}

	if client == "" {
		client = cfg.Client
	}

	if keyPath == "" {
		keyPath = cfg.KeyPath
	}

	key, err := vault.ReadKey(keyPath)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(cfg.Stub.HtpasswdPath, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return errors.Wrap(err, "could not create htpasswd file")
	}

	if err = f.Close(); err != nil {
		return err
	}

	err = htpasswd.SetPassword(cfg.Stub.HtpasswdPath, client, stub.KeyFingerprint(key), htpasswd.HashBCrypt)
	return errors.Wrapf(err, "could not register client %q", client)
}
