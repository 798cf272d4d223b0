package helpers

import (
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"

	"github.com/intermedia-net/vault-chef-probe/config"
	"github.com/intermedia-net/vault-chef-probe/stub"
)

// Secrets seeded into test stubs: two of the default paths exist, two do not.
func TestSecrets() stub.SecretStore {
	return stub.SecretStore{
		"secret/goldfish": {
			"password": "hunter2",
		},
		"aes/vaderetro": {
			"user": "aes",
			"port": 5432,
		},
	}
}

// Start a TLS stub service for cfg with a registered client key.
//
// The stub's URL is stored as the configured server. The caller is responsible
// for closing the server and cleaning up the configuration.
func StartTestStub(t *testing.T, cfg *config.Config) (*stub.API, *httptest.Server, string) {
	t.Helper()
	assert := assert.New(t)

	key := CreateTestKeyFile(t, cfg)
	CreateTestHtpasswd(t, cfg.Client, key, cfg)
	WriteTestSecrets(t, TestSecrets(), cfg)

	api, err := stub.New(cfg.Stub, hclog.NewNullLogger())
	assert.Nil(err)

	server := httptest.NewTLSServer(api)
	cfg.Server = server.URL

	return api, server, key
}
