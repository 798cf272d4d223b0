package chefcreds_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/intermedia-net/vault-chef-probe/chefcreds"
)

func writeCredentials(t *testing.T, content string) (string, func()) {
	t.Helper()
	assert := assert.New(t)

	dir, err := ioutil.TempDir("", "vault-chef-probe-chef-")
	assert.Nil(err)

	path := filepath.Join(dir, "credentials")
	assert.Nil(ioutil.WriteFile(path, []byte(content), 0600))

	return path, func() { os.RemoveAll(dir) }
}

func TestLoadProfile(t *testing.T) {
	assert := assert.New(t)

	path, cleanup := writeCredentials(t, `
[default]
client_name = "devaesc-vx-1.devintermedia.net"
client_key = "client.pem"
chef_server_url = "https://devchef-vx-1.devintermedia.net/organizations/ops"

[prod]
client_name = "prod-node"
client_key = "/etc/chef/client.pem"
`)
	defer cleanup()

	p, err := chefcreds.Load(path, "")
	assert.Nil(err)
	assert.NotNil(p)

	assert.Equal("default", p.Name)
	assert.Equal("devaesc-vx-1.devintermedia.net", p.ClientName)
	assert.Equal(filepath.Join(filepath.Dir(path), "client.pem"), p.ClientKey)
	assert.Equal("https://devchef-vx-1.devintermedia.net:8200", p.VaultAddress())

	p, err = chefcreds.Load(path, "prod")
	assert.Nil(err)
	assert.Equal("prod-node", p.ClientName)
	assert.Equal("/etc/chef/client.pem", p.ClientKey)
	assert.Equal("", p.VaultAddress())
}

func TestLoadProfileMissing(t *testing.T) {
	assert := assert.New(t)

	path, cleanup := writeCredentials(t, "[default]\nclient_name = \"node\"\n")
	defer cleanup()

	p, err := chefcreds.Load(path, "staging")
	assert.NotNil(err)
	assert.Nil(p)
}

func TestLoadProfileWithoutClientName(t *testing.T) {
	assert := assert.New(t)

	path, cleanup := writeCredentials(t, "[default]\nclient_key = \"client.pem\"\n")
	defer cleanup()

	p, err := chefcreds.Load(path, "default")
	assert.NotNil(err)
	assert.Nil(p)
}

func TestLoadMissingFile(t *testing.T) {
	p, err := chefcreds.Load("/nonexistent/credentials", "default")
	assert.NotNil(t, err)
	assert.Nil(t, p)
}
