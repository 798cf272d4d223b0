package stub

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"strings"

	auth "github.com/abbot/go-http-auth"
)

const Realm = "chef"

// Return the fingerprint under which a client key is registered.
//
// bcrypt only considers the first 72 bytes of a password, which is not enough
// to tell PEM keys apart, so the htpasswd file stores a hash of the key's
// SHA-256 digest instead of the key itself.
func KeyFingerprint(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// Create a new secret provider for htpasswd files mapping Chef client names to
// key fingerprints.
//
// Unlike `auth.HtpasswdFileProvider`, this loads the entire file up front and
// (therefore) does not handle reloads. The one provided by `go-http-auth` does
// not do any I/O upfront and will trigger a `panic` if we attempt to
// authenticate and the file does not exist.
//
// An empty path yields a provider that knows no clients.
func newHtpasswdSecretProvider(path string) (auth.SecretProvider, error) {
	secrets := make(map[string]string)

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		defer f.Close()

		csv := csv.NewReader(f)
		csv.Comma = ':'
		csv.Comment = '#'
		csv.TrimLeadingSpace = true

		records, err := csv.ReadAll()
		if err != nil {
			return nil, err
		}

		for _, record := range records {
			if len(record) != 2 {
				return nil, errors.New("malformed htpasswd file")
			}

			secrets[record[0]] = record[1]
		}
	}

	provider := func(user, realm string) string {
		return secrets[user]
	}

	return provider, nil
}

// Check a client's key against its registered fingerprint.
//
// The client and fingerprint are presented to the basic authenticator as
// credentials, so the hash comparison is the one it does for htpasswd users.
func verifyClient(provider auth.SecretProvider, client, key string) bool {
	if client == "" || strings.Contains(client, ":") {
		return false
	}

	r, err := http.NewRequest(http.MethodPost, "/", nil)
	if err != nil {
		return false
	}

	r.SetBasicAuth(client, KeyFingerprint(key))

	return auth.NewBasicAuthenticator(Realm, provider).CheckAuth(r) == client
}
