package tokens

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	maxAttempts     = 10
	rawTokenSize    = 24
	rawAccessorSize = 12
)

// A memory-only token store.
//
// This store is not re-entrant. Wrap it in a LockedStore when it is shared
// between requests.
type MemoryStore map[string]*Entry

// Return the token from the request and its entry, if any.
//
// If there is no token associated with this request or the token is invalid
// or expired, a nil entry will be returned.
func (store MemoryStore) Get(r *http.Request) (string, *Entry) {
	token := r.Header.Get(TokenHeader)
	return token, store.Lookup(token)
}

// Create a new, unique token for the entry.
//
// This may return an error if we cannot read from the OS random device or if we
// cannot generate a unique token after a number of attempts.
func (store MemoryStore) New(entry Entry) (*string, error) {
	var raw [rawTokenSize]byte

	if entry.Created.IsZero() {
		entry.Created = time.Now()
	}

	if entry.Accessor == "" {
		var rawAccessor [rawAccessorSize]byte
		if _, err := rand.Read(rawAccessor[:]); err != nil {
			return nil, fmt.Errorf("could not generate accessor: %s", err.Error())
		}

		entry.Accessor = fmt.Sprintf("%x", rawAccessor)
	}

	for i := 0; i < maxAttempts; i++ {
		if _, err := rand.Read(raw[:]); err != nil {
			return nil, fmt.Errorf("could not generate token: %s", err.Error())
		}

		token := fmt.Sprintf("%s%x", TokenPrefix, raw)
		if _, exists := store[token]; !exists {
			store[token] = &entry
			return &token, nil
		}
	}

	return nil, fmt.Errorf("could not generate token after %d attempts", maxAttempts)
}

// Return the entry of a live token.
func (store MemoryStore) Lookup(token string) *Entry {
	if len(token) != TokenSize {
		return nil
	}

	entry, exists := store[token]
	if !exists || entry.Expired(time.Now()) {
		return nil
	}

	return entry
}

// Remove a token from the store.
func (store MemoryStore) Revoke(token string) bool {
	if _, exists := store[token]; !exists {
		return false
	}

	delete(store, token)
	return true
}

// Remove all expired tokens.
func (store MemoryStore) Prune() int {
	now := time.Now()
	pruned := 0

	for token, entry := range store {
		if entry.Expired(now) {
			delete(store, token)
			pruned++
		}
	}

	return pruned
}

// A MemoryStore guarded by a lock.
type LockedStore struct {
	lock   sync.RWMutex
	tokens MemoryStore
}

func (store *LockedStore) Get(r *http.Request) (string, *Entry) {
	store.lock.RLock()
	defer store.lock.RUnlock()

	return store.tokens.Get(r)
}

func (store *LockedStore) New(entry Entry) (*string, error) {
	store.lock.Lock()
	defer store.lock.Unlock()

	return store.tokens.New(entry)
}

func (store *LockedStore) Lookup(token string) *Entry {
	store.lock.RLock()
	defer store.lock.RUnlock()

	return store.tokens.Lookup(token)
}

func (store *LockedStore) Revoke(token string) bool {
	store.lock.Lock()
	defer store.lock.Unlock()

	return store.tokens.Revoke(token)
}

func (store *LockedStore) Prune() int {
	store.lock.Lock()
	defer store.lock.Unlock()

	return store.tokens.Prune()
}
