package tokens

import (
	"net/http"
	"time"
)

const (
	TokenHeader = "X-Vault-Token"
	TokenPrefix = "s."
	TokenSize   = len(TokenPrefix) + 2*rawTokenSize
)

// The state behind an issued token.
type Entry struct {
	Accessor string
	Client   string
	Policies []string
	Metadata map[string]string
	Created  time.Time
	TTL      time.Duration
}

// Return whether the token has outlived its TTL at the given time.
//
// Entries without a TTL never expire.
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.Created.Add(e.TTL))
}

// Return the lifetime left at the given time, rounded down to whole seconds.
func (e *Entry) Remaining(now time.Time) time.Duration {
	if e.TTL <= 0 {
		return 0
	}

	left := e.Created.Add(e.TTL).Sub(now)
	if left < 0 {
		return 0
	}

	return left.Truncate(time.Second)
}

// A generic token store.
type TokenStore interface {
	// Return the entry for the token carried by the request, if any.
	Get(r *http.Request) (string, *Entry)
	// Issue a new, unique token for the entry.
	New(entry Entry) (*string, error)
	// Return the entry for a live token, or nil.
	Lookup(token string) *Entry
	// Revoke a token, returning whether it existed.
	Revoke(token string) bool
	// Drop expired tokens, returning how many were dropped.
	Prune() int
}

// Create a new TokenStore that is safe for concurrent use.
func NewStore() TokenStore {
	return &LockedStore{tokens: make(MemoryStore)}
}
