// Package report prints raw exchanges with the server.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/intermedia-net/vault-chef-probe/config"
	"github.com/intermedia-net/vault-chef-probe/vault"
)

const redacted = "REDACTED"

// Writes requests and responses, one after another.
type Printer struct {
	w        io.Writer
	format   string
	showCurl bool
}

func NewPrinter(w io.Writer, format string, showCurl bool) *Printer {
	if format == "" {
		format = config.FormatRaw
	}

	return &Printer{
		w:        w,
		format:   format,
		showCurl: showCurl,
	}
}

// Print the login request line and body with the key redacted.
func (p *Printer) Login(url, client string) error {
	body, err := json.Marshal(map[string]string{
		"key":    redacted,
		"client": client,
	})
	if err != nil {
		return err
	}

	if _, err = fmt.Fprintf(p.w, "%s %s data %s\n", http.MethodPost, url, body); err != nil {
		return err
	}

	if p.showCurl {
		_, err = fmt.Fprintln(p.w, shellquote.Join(
			"curl", "--insecure", "--request", http.MethodPost,
			"--data", string(body),
			url))
	}

	return err
}

// Print a request line.
func (p *Printer) Request(method, url string) error {
	if _, err := fmt.Fprintf(p.w, "%s %s\n", method, url); err != nil {
		return err
	}

	if p.showCurl {
		// The token header stays double-quoted so the shell expands it.
		_, err := fmt.Fprintf(p.w, "%s --header \"X-Vault-Token: $VAULT_TOKEN\" %s\n",
			shellquote.Join("curl", "--insecure", "--request", method),
			shellquote.Join(url))
		return err
	}

	return nil
}

// Print a response body followed by its status code.
func (p *Printer) Response(result *vault.Result) error {
	body, err := p.formatBody(result.Body)
	if err != nil {
		return err
	}

	if len(body) > 0 && body[len(body)-1] != '\n' {
		body = append(body, '\n')
	}

	if _, err = p.w.Write(body); err != nil {
		return err
	}

	_, err = fmt.Fprintln(p.w, result.Status)
	return err
}

// Print a full exchange: request line, body and status code.
func (p *Printer) Exchange(result *vault.Result) error {
	if err := p.Request(result.Method, result.URL); err != nil {
		return err
	}

	return p.Response(result)
}

// Render the body in the configured format.
//
// Bodies that are not JSON are always printed verbatim.
func (p *Printer) formatBody(body []byte) ([]byte, error) {
	switch p.format {
	case config.FormatJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, bytes.TrimSpace(body), "", "  "); err != nil {
			return body, nil
		}

		return buf.Bytes(), nil

	case config.FormatYAML:
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()

		var decoded interface{}
		if err := decoder.Decode(&decoded); err != nil {
			return body, nil
		}

		return yaml.Marshal(plainNumbers(decoded))

	default:
		return body, nil
	}
}

// Replace JSON numbers with integers where they fit and floats otherwise, so
// they are not rendered as quoted strings.
func plainNumbers(v interface{}) interface{} {
	switch value := v.(type) {
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i
		}

		if f, err := value.Float64(); err == nil {
			return f
		}

		return value.String()

	case map[string]interface{}:
		for key, item := range value {
			value[key] = plainNumbers(item)
		}

	case []interface{}:
		for i, item := range value {
			value[i] = plainNumbers(item)
		}
	}

	return v
}
