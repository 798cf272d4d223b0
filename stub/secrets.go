package stub

import (
	"io"
	"io/ioutil"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Secret data served by the stub, mapped to by path.
//
// Paths are stored without leading or trailing slashes and without the `/v1`
// prefix, e.g. `secret/goldfish`.
type SecretStore map[string]map[string]interface{}

// Load the secrets from the YAML file at path.
//
// A missing or empty file yields an empty store.
func LoadSecrets(path string) (SecretStore, error) {
	if path == "" {
		return make(SecretStore), nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(SecretStore), nil
		}

		return nil, err
	}
	defer f.Close()

	store, err := ReadSecrets(f)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load secrets from %q", path)
	}

	return store, nil
}

// Read secrets from a YAML document of the form:
//
//	secret/goldfish:
//	  password: hunter2
//
// Callers should prefer the higher-level `LoadSecrets` over this function.
func ReadSecrets(r io.Reader) (SecretStore, error) {
	content, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]map[string]interface{})
	if err = yaml.Unmarshal(content, &raw); err != nil {
		return nil, err
	}

	store := make(SecretStore, len(raw))
	for path, data := range raw {
		path = normalizePath(path)
		if path == "" {
			return nil, errors.New("secrets must not be stored at the root path")
		}

		if data == nil {
			data = make(map[string]interface{})
		}

		store[path] = data
	}

	return store, nil
}

// Write the store as YAML.
func (s SecretStore) Write(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()

	return encoder.Encode(map[string]map[string]interface{}(s))
}

// Return the data stored at path.
func (s SecretStore) Get(path string) (map[string]interface{}, bool) {
	data, ok := s[normalizePath(path)]
	return data, ok
}

func normalizePath(path string) string {
	return strings.Trim(path, "/")
}
