package stub

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/intermedia-net/vault-chef-probe/stub/tokens"
)

const (
	defaultPolicy       = "default"
	secretLeaseDuration = 768 * time.Hour
	maxLoginBodySize    = 1 << 20
)

// The `auth` block of a login response.
type authResponse struct {
	ClientToken   string            `json:"client_token"`
	Accessor      string            `json:"accessor"`
	Policies      []string          `json:"policies"`
	TokenPolicies []string          `json:"token_policies"`
	Metadata      map[string]string `json:"metadata"`
	LeaseDuration int               `json:"lease_duration"`
	Renewable     bool              `json:"renewable"`
	TokenType     string            `json:"token_type"`
	Orphan        bool              `json:"orphan"`
}

// The envelope every successful response is wrapped in.
type response struct {
	RequestID     string        `json:"request_id"`
	LeaseID       string        `json:"lease_id"`
	Renewable     bool          `json:"renewable"`
	LeaseDuration int           `json:"lease_duration"`
	Data          interface{}   `json:"data"`
	WrapInfo      interface{}   `json:"wrap_info"`
	Warnings      []string      `json:"warnings"`
	Auth          *authResponse `json:"auth"`
}

// Log in with a Chef client key.
//
// URL: `/v1/auth/<mount>/login/key`
func (api *API) login(w http.ResponseWriter, r *http.Request) {
	body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxLoginBodySize))
	if err != nil {
		writeErrors(w, http.StatusBadRequest, "could not read request body")
		return
	}

	if !gjson.ValidBytes(body) {
		writeErrors(w, http.StatusBadRequest, "failed to parse JSON input")
		return
	}

	key := gjson.GetBytes(body, "key").String()
	client := gjson.GetBytes(body, "client").String()

	if key == "" {
		writeErrors(w, http.StatusBadRequest, "missing key")
		return
	} else if client == "" {
		writeErrors(w, http.StatusBadRequest, "missing client")
		return
	}

	if !verifyClient(api.clients, client, key) {
		api.logger.Warn("login rejected", "client", client, "mount", mux.Vars(r)["mount"])
		writeErrors(w, http.StatusForbidden, "permission denied")
		return
	}

	ttl := time.Duration(api.config.TokenTTL)
	entry := tokens.Entry{
		Client:   client,
		Policies: []string{defaultPolicy},
		Metadata: map[string]string{
			"chef_node_name": client,
		},
		TTL: ttl,
	}

	token, err := api.tokenStore.New(entry)
	if err != nil {
		api.logger.Error("could not issue token", "error", err)
		writeErrors(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	issued := api.tokenStore.Lookup(*token)

	writeJSON(w, http.StatusOK, response{
		RequestID: newRequestID(),
		Auth: &authResponse{
			ClientToken:   *token,
			Accessor:      issued.Accessor,
			Policies:      issued.Policies,
			TokenPolicies: issued.Policies,
			Metadata:      issued.Metadata,
			LeaseDuration: int(ttl / time.Second),
			Renewable:     true,
			TokenType:     "service",
		},
	})
}

// Return information about the presented token.
//
// URL: `/v1/auth/token/lookup-self`
func (api *API) lookupSelf(w http.ResponseWriter, r *http.Request) {
	token, entry := requestEntry(r)
	now := time.Now()

	writeJSON(w, http.StatusOK, response{
		RequestID: newRequestID(),
		Data: map[string]interface{}{
			"id":            token,
			"accessor":      entry.Accessor,
			"policies":      entry.Policies,
			"meta":          entry.Metadata,
			"display_name":  Realm + "-" + entry.Client,
			"creation_time": entry.Created.Unix(),
			"creation_ttl":  int(entry.TTL / time.Second),
			"ttl":           int(entry.Remaining(now) / time.Second),
			"renewable":     true,
			"type":          "service",
		},
	})
}

// Revoke the presented token.
//
// URL: `/v1/auth/token/revoke-self`
func (api *API) revokeSelf(w http.ResponseWriter, r *http.Request) {
	token, entry := requestEntry(r)

	api.tokenStore.Revoke(token)
	api.logger.Info("token revoked", "client", entry.Client, "accessor", entry.Accessor)

	w.WriteHeader(http.StatusNoContent)
}

// Return information about the auth plugin.
//
// URL: `/v1/auth/<mount>/info`
func (api *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{
		RequestID: newRequestID(),
		Data: map[string]interface{}{
			"commit":       GitCommit,
			"version":      Version,
			"build_branch": BuildBranch,
			"build_origin": BuildOrigin,
		},
	})
}

// Return a seeded secret.
//
// URL: `/v1/<path>`
func (api *API) readSecret(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]

	data, ok := api.secrets.Get(path)
	if !ok {
		writeErrors(w, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, response{
		RequestID:     newRequestID(),
		LeaseDuration: int(secretLeaseDuration / time.Second),
		Data:          data,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	content, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "An unexpected error occurred.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(content)
	w.Write([]byte("\n"))
}

// Write a service error. No messages produces `{"errors":[]}`.
func writeErrors(w http.ResponseWriter, status int, messages ...string) {
	if messages == nil {
		messages = []string{}
	}

	writeJSON(w, status, map[string][]string{"errors": messages})
}

func newRequestID() string {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return ""
	}

	return fmt.Sprintf("%x-%x-%x-%x-%x", raw[0:4], raw[4:6], raw[6:8], raw[8:10], raw[10:])
}
