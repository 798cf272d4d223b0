package helpers

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/foomo/htpasswd"
	"github.com/stretchr/testify/assert"

	"github.com/intermedia-net/vault-chef-probe/config"
	"github.com/intermedia-net/vault-chef-probe/stub"
)

const (
	TestClient = "devaesc-vx-1.devintermedia.net"
)

// Create a configuration pointing at server, with its files in a fresh
// temporary directory.
//
// The directory is stored as the directory of `KeyPath`; callers should call
// `CleanupConfig` when done.
func CreateTestConfig(t *testing.T, server string) config.Config {
	t.Helper()
	assert := assert.New(t)

	dir, err := ioutil.TempDir("", "vault-chef-probe-test-")
	assert.Nil(err)

	return config.Config{
		Server:    server,
		AuthMount: config.DefaultAuthMount,
		Client:    TestClient,
		KeyPath:   filepath.Join(dir, "client.pem"),
		Paths:     append([]string(nil), config.DefaultPaths...),
		Timeout:   config.Duration(5 * time.Second),
		Format:    config.FormatRaw,
		LogLevel:  "error",
		Stub: config.StubConfig{
			Port:         config.DefaultStubPort,
			HtpasswdPath: filepath.Join(dir, "clients.htpasswd"),
			SecretsPath:  filepath.Join(dir, "secrets.yaml"),
			TokenTTL:     config.Duration(time.Hour),
		},
	}
}

// Write the configuration as JSON to path.
func WriteConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	assert := assert.New(t)

	data, err := cfg.Serialize()
	assert.Nil(err)

	err = ioutil.WriteFile(path, data, 0600)
	assert.Nil(err)
}

// Generate a client key and write it to the configured key path.
//
// The PEM contents are returned.
func CreateTestKeyFile(t *testing.T, cfg *config.Config) string {
	t.Helper()

	key := CreateTestKey(t)
	assert.Nil(t, ioutil.WriteFile(cfg.KeyPath, []byte(key), 0600))

	return key
}

// Register a client and its key in the configured stub htpasswd file.
func CreateTestHtpasswd(t *testing.T, client, key string, cfg *config.Config) {
	t.Helper()
	assert := assert.New(t)

	f, err := os.OpenFile(cfg.Stub.HtpasswdPath, os.O_CREATE|os.O_WRONLY, 0600)
	assert.Nil(err)
	assert.Nil(f.Close())

	err = htpasswd.SetPassword(cfg.Stub.HtpasswdPath, client, stub.KeyFingerprint(key), htpasswd.HashBCrypt)
	assert.Nil(err)
}

// Write the given secrets to the configured stub secrets file.
func WriteTestSecrets(t *testing.T, secrets stub.SecretStore, cfg *config.Config) {
	t.Helper()
	assert := assert.New(t)

	f, err := os.Create(cfg.Stub.SecretsPath)
	assert.Nil(err)

	assert.Nil(secrets.Write(f))
	assert.Nil(f.Close())
}

// Cleanup the temporary directory created by `CreateTestConfig`.
func CleanupConfig(t *testing.T, cfg *config.Config) {
	t.Helper()

	if cfg.KeyPath != "" {
		err := os.RemoveAll(filepath.Dir(cfg.KeyPath))
		assert.Nil(t, err)
	}
}
