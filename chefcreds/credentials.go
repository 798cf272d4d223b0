// Package chefcreds reads client settings from a Chef credentials file.
//
// The file is the one knife and chef-client read from `~/.chef/credentials`:
//
//	[default]
//	client_name = "devaesc-vx-1.devintermedia.net"
//	client_key = "client.pem"
//	chef_server_url = "https://devchef-vx-1.devintermedia.net/organizations/ops"
package chefcreds

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
)

const DefaultProfile = "default"

// The client settings of a single profile.
type Profile struct {
	Name          string
	ClientName    string
	ClientKey     string
	ChefServerURL string
}

// Return the default location of the credentials file.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".chef", "credentials")
}

// Load the named profile from the credentials file at path.
//
// A relative `client_key` is resolved against the directory containing the
// credentials file.
func Load(path, profile string) (*Profile, error) {
	if profile == "" {
		profile = DefaultProfile
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read chef credentials %q", path)
	}

	section, err := file.GetSection(profile)
	if err != nil {
		return nil, errors.Errorf("chef credentials %q have no profile %q", path, profile)
	}

	p := Profile{
		Name:          profile,
		ClientName:    strings.TrimSpace(section.Key("client_name").String()),
		ClientKey:     strings.TrimSpace(section.Key("client_key").String()),
		ChefServerURL: strings.TrimSpace(section.Key("chef_server_url").String()),
	}

	if p.ClientName == "" {
		return nil, errors.Errorf("profile %q in %q has no client_name", profile, path)
	}

	if p.ClientKey != "" && !filepath.IsAbs(p.ClientKey) {
		p.ClientKey = filepath.Join(filepath.Dir(path), p.ClientKey)
	}

	return &p, nil
}

// Return the address of the Vault server colocated with the Chef server.
//
// Vault listens on port 8200 of the Chef server host. An empty string is
// returned when the profile has no usable server URL.
func (p *Profile) VaultAddress() string {
	if p.ChefServerURL == "" {
		return ""
	}

	u, err := url.Parse(p.ChefServerURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}

	return (&url.URL{Scheme: "https", Host: u.Hostname() + ":8200"}).String()
}
