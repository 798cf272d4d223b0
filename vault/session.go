package vault

import (
	"time"

	"github.com/tidwall/gjson"
)

// Represents a login session.
//
// Sessions only ever live in memory: the token is neither written to disk nor
// renewed, and is gone when the process exits.
type Session struct {
	ClientToken   string
	Accessor      string
	Policies      []string
	Metadata      map[string]string
	LeaseDuration time.Duration
	Renewable     bool
}

// Extract the session from a login response body.
//
// Only `auth.client_token` is required; the remaining fields are filled in
// when present.
func parseSession(body []byte) (*Session, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrNoToken
	}

	auth := gjson.GetBytes(body, "auth")
	token := auth.Get("client_token").String()
	if token == "" {
		return nil, ErrNoToken
	}

	session := Session{
		ClientToken:   token,
		Accessor:      auth.Get("accessor").String(),
		Metadata:      make(map[string]string),
		LeaseDuration: time.Duration(auth.Get("lease_duration").Int()) * time.Second,
		Renewable:     auth.Get("renewable").Bool(),
	}

	for _, policy := range auth.Get("policies").Array() {
		session.Policies = append(session.Policies, policy.String())
	}

	for key, value := range auth.Get("metadata").Map() {
		session.Metadata[key] = value.String()
	}

	return &session, nil
}
