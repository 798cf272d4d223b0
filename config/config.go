package config

import (
	"encoding/json"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/intermedia-net/vault-chef-probe/chefcreds"
)

const (
	DefaultConfigPath = "config.json"
	DefaultAuthMount  = "chef"
	DefaultKeyPath    = "client.pem"
	DefaultStubPort   = 8200
)

// Paths read when none are configured.
var DefaultPaths = []string{
	"secret/goldfish",
	"secret/aes/huinya",
	"aes/vaderetro",
	"aes/vaderetro/test/qwwqwwq",
}

// Output formats understood by the report printer.
const (
	FormatRaw  = "raw"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// A time.Duration that (un)marshals as a Go duration string such as "30s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "durations must be strings such as \"30s\"")
	}

	if raw == "" {
		*d = 0
		return nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Settings for the local stub service.
type StubConfig struct {
	Port           uint16   `json:"port"`
	UseTLS         bool     `json:"useTLS"`
	SSLCertificate string   `json:"sslCertificate"`
	SSLKey         string   `json:"sslKey"`
	HtpasswdPath   string   `json:"htpasswdPath"`
	SecretsPath    string   `json:"secretsPath"`
	TokenTTL       Duration `json:"tokenTTL"`
}

type Config struct {
	Server              string     `json:"server"`
	AuthMount           string     `json:"authMount"`
	Client              string     `json:"client"`
	KeyPath             string     `json:"keyPath"`
	ChefCredentialsPath string     `json:"chefCredentialsPath"`
	ChefProfile         string     `json:"chefProfile"`
	Paths               []string   `json:"paths"`
	Timeout             Duration   `json:"timeout"`
	MaxRetries          int        `json:"maxRetries"`
	Format              string     `json:"format"`
	ShowCurl            bool       `json:"showCurl"`
	Strict              bool       `json:"strict"`
	RevokeOnExit        bool       `json:"revokeOnExit"`
	LogLevel            string     `json:"logLevel"`
	WatchInterval       Duration   `json:"watchInterval"`
	Stub                StubConfig `json:"stub"`
}

// Load and validate the configuration at the given path.
//
// Relative file paths in the configuration are resolved against the directory
// containing the configuration file.
func Load(path string) (*Config, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err = json.Unmarshal(content, &config); err != nil {
		return nil, errors.Wrapf(err, "could not parse configuration %q", path)
	}

	if err = config.finish(filepath.Dir(path)); err != nil {
		return nil, err
	}

	return &config, nil
}

// Serialize the configuration as JSON.
func (config *Config) Serialize() ([]byte, error) {
	return json.MarshalIndent(config, "", "  ")
}

// Apply defaults, merge Chef credentials, resolve paths and validate.
func (config *Config) finish(baseDir string) error {
	if config.AuthMount == "" {
		config.AuthMount = DefaultAuthMount
	}

	if config.ChefProfile == "" {
		config.ChefProfile = chefcreds.DefaultProfile
	}

	// Without a client, fall back to the user's Chef credentials if present.
	if config.ChefCredentialsPath == "" && config.Client == "" {
		if path := chefcreds.DefaultPath(); path != "" {
			if _, err := os.Stat(path); err == nil {
				config.ChefCredentialsPath = path
			}
		}
	}

	if config.ChefCredentialsPath != "" {
		credsPath := resolvePath(baseDir, config.ChefCredentialsPath)

		profile, err := chefcreds.Load(credsPath, config.ChefProfile)
		if err != nil {
			return err
		}

		config.ChefCredentialsPath = credsPath

		if config.Client == "" {
			config.Client = profile.ClientName
		}

		if config.KeyPath == "" {
			config.KeyPath = profile.ClientKey
		}

		if config.Server == "" {
			config.Server = os.Getenv("VAULT_ADDR")
		}

		if config.Server == "" {
			config.Server = profile.VaultAddress()
		}
	}

	if config.Server == "" {
		config.Server = os.Getenv("VAULT_ADDR")
	}

	if config.KeyPath == "" {
		config.KeyPath = DefaultKeyPath
	}
	config.KeyPath = resolvePath(baseDir, config.KeyPath)

	if len(config.Paths) == 0 {
		config.Paths = append([]string(nil), DefaultPaths...)
	}

	if config.Timeout == 0 {
		config.Timeout = Duration(30 * time.Second)
	}

	if config.Format == "" {
		config.Format = FormatRaw
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if config.Stub.Port == 0 {
		config.Stub.Port = DefaultStubPort
	}

	if config.Stub.TokenTTL == 0 {
		config.Stub.TokenTTL = Duration(768 * time.Hour)
	}

	if config.Stub.HtpasswdPath != "" {
		config.Stub.HtpasswdPath = resolvePath(baseDir, config.Stub.HtpasswdPath)
	}

	if config.Stub.SecretsPath != "" {
		config.Stub.SecretsPath = resolvePath(baseDir, config.Stub.SecretsPath)
	}

	if config.Stub.UseTLS {
		if config.Stub.SSLCertificate == "" || config.Stub.SSLKey == "" {
			return errors.New("stub.useTLS requires stub.sslCertificate and stub.sslKey")
		}

		config.Stub.SSLCertificate = resolvePath(baseDir, config.Stub.SSLCertificate)
		config.Stub.SSLKey = resolvePath(baseDir, config.Stub.SSLKey)
	}

	return config.Validate()
}

// Check the configuration for values the probe cannot work with.
func (config *Config) Validate() error {
	if config.Client == "" {
		return errors.New("no chef client name configured")
	}

	if config.Server == "" {
		return errors.New("no server configured and VAULT_ADDR is not set")
	}

	u, err := url.Parse(config.Server)
	if err != nil {
		return errors.Wrapf(err, "invalid server %q", config.Server)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("server %q must use http or https", config.Server)
	}

	if u.Host == "" {
		return errors.Errorf("server %q has no host", config.Server)
	}

	switch config.Format {
	case FormatRaw, FormatJSON, FormatYAML:
	default:
		return errors.Errorf("unknown output format %q", config.Format)
	}

	if config.Timeout < 0 || config.WatchInterval < 0 || config.Stub.TokenTTL < 0 {
		return errors.New("durations must not be negative")
	}

	if config.MaxRetries < 0 {
		return errors.New("maxRetries must not be negative")
	}

	return nil
}

func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(baseDir, path)
}
