package stub_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/intermedia-net/vault-chef-probe/config"
	"github.com/intermedia-net/vault-chef-probe/helpers"
	"github.com/intermedia-net/vault-chef-probe/stub"
	"github.com/intermedia-net/vault-chef-probe/stub/tokens"
)

// Common data for routes tests.
type routeTestSetup struct {
	api    *stub.API
	config *config.Config
	key    string
}

func (setup *routeTestSetup) cleanup(t *testing.T) {
	helpers.CleanupConfig(t, setup.config)
}

// Make a request against the stub and return the recorded response.
func (setup *routeTestSetup) request(t *testing.T, method, url, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	request, err := http.NewRequest(method, url, strings.NewReader(body))
	assert.Nil(t, err)

	if token != "" {
		request.Header.Set(tokens.TokenHeader, token)
	}

	response := httptest.NewRecorder()
	setup.api.ServeHTTP(response, request)

	return response
}

// Log in as the registered client and return the issued token.
func (setup *routeTestSetup) login(t *testing.T) string {
	t.Helper()

	response := setup.request(t, "POST", "/v1/auth/chef/login/key", "", loginBody(setup.key, setup.config.Client))
	assert.Equal(t, http.StatusOK, response.Code)

	token := gjson.Get(response.Body.String(), "auth.client_token").String()
	assert.NotEmpty(t, token)

	return token
}

func loginBody(key, client string) string {
	return `{"key": ` + jsonString(key) + `, "client": ` + jsonString(client) + `}`
}

func jsonString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s) + `"`
}

func setupRoutesTest(t *testing.T) routeTestSetup {
	t.Helper()
	assert := assert.New(t)

	cfg := helpers.CreateTestConfig(t, "http://127.0.0.1:8200")
	key := helpers.CreateTestKeyFile(t, &cfg)
	helpers.CreateTestHtpasswd(t, cfg.Client, key, &cfg)
	helpers.WriteTestSecrets(t, helpers.TestSecrets(), &cfg)

	api, err := stub.New(cfg.Stub, hclog.NewNullLogger())
	assert.Nil(err)

	return routeTestSetup{
		api:    api,
		config: &cfg,
		key:    key,
	}
}

func TestLogin(t *testing.T) {
	assert := assert.New(t)
	setup := setupRoutesTest(t)
	defer setup.cleanup(t)

	response := setup.request(t, "POST", "/v1/auth/chef/login/key", "", loginBody(setup.key, setup.config.Client))
	assert.Equal(http.StatusOK, response.Code)
	assert.Equal("application/json", response.Header().Get("Content-Type"))

	body := response.Body.String()
	token := gjson.Get(body, "auth.client_token").String()

	assert.True(strings.HasPrefix(token, tokens.TokenPrefix))
	assert.Equal(setup.config.Client, gjson.Get(body, "auth.metadata.chef_node_name").String())
	assert.Equal("default", gjson.Get(body, "auth.policies.0").String())
	assert.Equal(int64(time.Hour/time.Second), gjson.Get(body, "auth.lease_duration").Int())
	assert.True(gjson.Get(body, "auth.renewable").Bool())

	entry := setup.api.GetTokenStore().Lookup(token)
	assert.NotNil(entry)
	assert.Equal(setup.config.Client, entry.Client)
}

func TestLoginOtherMount(t *testing.T) {
	setup := setupRoutesTest(t)
	defer setup.cleanup(t)

	response := setup.request(t, "PUT", "/v1/auth/chef-prod/login/key", "", loginBody(setup.key, setup.config.Client))
	assert.Equal(t, http.StatusOK, response.Code)
}

func TestLoginMissingFields(t *testing.T) {
	assert := assert.New(t)
	setup := setupRoutesTest(t)
	defer setup.cleanup(t)

	response := setup.request(t, "POST", "/v1/auth/chef/login/key", "", `{"client": "node"}`)
	assert.Equal(http.StatusBadRequest, response.Code)
	assert.Equal("missing key", gjson.Get(response.Body.String(), "errors.0").String())

	response = setup.request(t, "POST", "/v1/auth/chef/login/key", "", `{"key": "abc"}`)
	assert.Equal(http.StatusBadRequest, response.Code)
	assert.Equal("missing client", gjson.Get(response.Body.String(), "errors.0").String())

	response = setup.request(t, "POST", "/v1/auth/chef/login/key", "", `{not json`)
	assert.Equal(http.StatusBadRequest, response.Code)
}

func TestLoginRejected(t *testing.T) {
	assert := assert.New(t)
	setup := setupRoutesTest(t)
	defer setup.cleanup(t)

	otherKey := helpers.CreateTestKey(t)

	response := setup.request(t, "POST", "/v1/auth/chef/login/key", "", loginBody(otherKey, setup.config.Client))
	assert.Equal(http.StatusForbidden, response.Code)
	assert.Equal("permission denied", gjson.Get(response.Body.String(), "errors.0").String())

	response = setup.request(t, "POST", "/v1/auth/chef/login/key", "", loginBody(setup.key, "unknown-node"))
	assert.Equal(http.StatusForbidden, response.Code)
}

func TestReadSecret(t *testing.T) {
	assert := assert.New(t)
	setup := setupRoutesTest(t)
	defer setup.cleanup(t)

	token := setup.login(t)

	response := setup.request(t, "GET", "/v1/secret/goldfish", token, "")
	assert.Equal(http.StatusOK, response.Code)
	assert.Equal("hunter2", gjson.Get(response.Body.String(), "data.password").String())

	response = setup.request(t, "GET", "/v1/aes/vaderetro", token, "")
	assert.Equal(http.StatusOK, response.Code)
	assert.Equal(int64(5432), gjson.Get(response.Body.String(), "data.port").Int())
}

func TestReadSecretNotFound(t *testing.T) {
	assert := assert.New(t)
	setup := setupRoutesTest(t)
	defer setup.cleanup(t)

	token := setup.login(t)

	response := setup.request(t, "GET", "/v1/secret/aes/huinya", token, "")
	assert.Equal(http.StatusNotFound, response.Code)
	assert.JSONEq(`{"errors": []}`, response.Body.String())
}

func TestTokenRequired(t *testing.T) {
	assert := assert.New(t)
	setup := setupRoutesTest(t)
	defer setup.cleanup(t)

	for _, url := range []string{
		"/v1/secret/goldfish",
		"/v1/auth/token/lookup-self",
		"/v1/auth/chef/info",
	} {
		response := setup.request(t, "GET", url, "", "")
		assert.Equal(http.StatusForbidden, response.Code, url)

		response = setup.request(t, "GET", url, "s.000000000000000000000000000000000000000000000000", "")
		assert.Equal(http.StatusForbidden, response.Code, url)
	}
}

func TestLookupSelf(t *testing.T) {
	assert := assert.New(t)
	setup := setupRoutesTest(t)
	defer setup.cleanup(t)

	token := setup.login(t)

	response := setup.request(t, "GET", "/v1/auth/token/lookup-self", token, "")
	assert.Equal(http.StatusOK, response.Code)

	body := response.Body.String()
	assert.Equal(token, gjson.Get(body, "data.id").String())
	assert.Equal("chef-"+setup.config.Client, gjson.Get(body, "data.display_name").String())
	assert.Equal(setup.config.Client, gjson.Get(body, "data.meta.chef_node_name").String())
	assert.True(gjson.Get(body, "data.ttl").Int() > 0)
}

func TestRevokeSelf(t *testing.T) {
	assert := assert.New(t)
	setup := setupRoutesTest(t)
	defer setup.cleanup(t)

	token := setup.login(t)

	response := setup.request(t, "PUT", "/v1/auth/token/revoke-self", token, "")
	assert.Equal(http.StatusNoContent, response.Code)

	response = setup.request(t, "GET", "/v1/secret/goldfish", token, "")
	assert.Equal(http.StatusForbidden, response.Code)
}

func TestInfo(t *testing.T) {
	assert := assert.New(t)
	setup := setupRoutesTest(t)
	defer setup.cleanup(t)

	token := setup.login(t)

	response := setup.request(t, "GET", "/v1/auth/chef/info", token, "")
	assert.Equal(http.StatusOK, response.Code)
	assert.Equal(stub.Version, gjson.Get(response.Body.String(), "data.version").String())
}

func TestSetConfigReloadsSecrets(t *testing.T) {
	assert := assert.New(t)
	setup := setupRoutesTest(t)
	defer setup.cleanup(t)

	token := setup.login(t)

	helpers.WriteTestSecrets(t, stub.SecretStore{
		"secret/aes/huinya": {"value": "now present"},
	}, setup.config)
	assert.Nil(setup.api.SetConfig(setup.config.Stub))

	response := setup.request(t, "GET", "/v1/secret/aes/huinya", token, "")
	assert.Equal(http.StatusOK, response.Code)

	response = setup.request(t, "GET", "/v1/secret/goldfish", token, "")
	assert.Equal(http.StatusNotFound, response.Code)
}

func TestNewWithMissingHtpasswd(t *testing.T) {
	cfg := config.StubConfig{HtpasswdPath: "/nonexistent/clients.htpasswd"}

	api, err := stub.New(cfg, nil)
	assert.NotNil(t, err)
	assert.Nil(t, api)
}
