package report_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"

	"github.com/intermedia-net/vault-chef-probe/config"
	"github.com/intermedia-net/vault-chef-probe/report"
	"github.com/intermedia-net/vault-chef-probe/vault"
)

const secretBody = `{"data":{"password":"hunter2"},"lease_duration":2764800}`

func secretResult() *vault.Result {
	return &vault.Result{
		Method: "GET",
		URL:    "https://vault.example.com:8200/v1/secret/goldfish",
		Status: 200,
		Body:   []byte(secretBody),
	}
}

func TestRawExchange(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	printer := report.NewPrinter(&buf, config.FormatRaw, false)

	assert.Nil(printer.Exchange(secretResult()))
	assert.Equal(
		"GET https://vault.example.com:8200/v1/secret/goldfish\n"+
			secretBody+"\n"+
			"200\n",
		buf.String())
}

func TestRawKeepsTrailingNewline(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	printer := report.NewPrinter(&buf, "", false)

	assert.Nil(printer.Response(&vault.Result{Status: 404, Body: []byte("{\"errors\":[]}\n")}))
	assert.Equal("{\"errors\":[]}\n404\n", buf.String())
}

func TestEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	printer := report.NewPrinter(&buf, config.FormatJSON, false)

	assert.Nil(t, printer.Response(&vault.Result{Status: 204}))
	assert.Equal(t, "204\n", buf.String())
}

func TestJSONFormat(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	printer := report.NewPrinter(&buf, config.FormatJSON, false)

	assert.Nil(printer.Response(secretResult()))
	assert.Equal(`{
  "data": {
    "password": "hunter2"
  },
  "lease_duration": 2764800
}
200
`, buf.String())
}

func TestYAMLFormat(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	printer := report.NewPrinter(&buf, config.FormatYAML, false)

	assert.Nil(printer.Response(secretResult()))
	assert.Equal(`data:
    password: hunter2
lease_duration: 2764800
200
`, buf.String())
}

func TestYAMLFormatNumbers(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	printer := report.NewPrinter(&buf, config.FormatYAML, false)

	body := `{"data":{"port":5432,"ratio":0.5,"ids":[1,2]},"ttl":99999999999}`
	assert.Nil(printer.Response(&vault.Result{Status: 200, Body: []byte(body)}))
	assert.Equal(`data:
    ids:
        - 1
        - 2
    port: 5432
    ratio: 0.5
ttl: 99999999999
200
`, buf.String())
}

func TestNonJSONBodyIsVerbatim(t *testing.T) {
	assert := assert.New(t)

	for _, format := range []string{config.FormatJSON, config.FormatYAML} {
		var buf bytes.Buffer
		printer := report.NewPrinter(&buf, format, false)

		assert.Nil(printer.Response(&vault.Result{Status: 502, Body: []byte("Bad Gateway")}))
		assert.Equal("Bad Gateway\n502\n", buf.String(), format)
	}
}

func TestLoginRedactsKey(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	printer := report.NewPrinter(&buf, config.FormatRaw, true)

	url := "https://vault.example.com:8200/v1/auth/chef/login/key"
	assert.Nil(printer.Login(url, "node"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(2, len(lines))
	assert.Equal(`POST `+url+` data {"client":"node","key":"REDACTED"}`, lines[0])

	args, err := shellquote.Split(lines[1])
	assert.Nil(err)
	assert.Equal([]string{
		"curl", "--insecure", "--request", "POST",
		"--data", `{"client":"node","key":"REDACTED"}`,
		url,
	}, args)
}

func TestCurlRequest(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	printer := report.NewPrinter(&buf, config.FormatRaw, true)

	url := "https://vault.example.com:8200/v1/aes/vaderetro/test/qwwqwwq"
	assert.Nil(printer.Request("GET", url))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(2, len(lines))
	assert.Equal("GET "+url, lines[0])
	assert.Contains(lines[1], `--header "X-Vault-Token: $VAULT_TOKEN"`)

	args, err := shellquote.Split(lines[1])
	assert.Nil(err)
	assert.Equal("curl", args[0])
	assert.Equal(url, args[len(args)-1])
}
