// Package config resolves the remote store credentials: an HTTP base URL and
// an anonymous access key.
//
// Resolution order, highest priority first: explicit call-site arguments, the
// persisted workspace override, then environment variables. The environment
// scan checks the plain key plus the framework-prefixed variants the team's
// deploy targets have used over time.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"bpdcentral/internal/db"
)

const (
	EnvURLKey     = "STORE_URL"
	EnvAnonKeyKey = "STORE_ANON_KEY"

	overrideFile = "credentials.yml"
)

var envPrefixes = []string{"", "BPD_", "VITE_", "REACT_APP_", "NEXT_PUBLIC_", "PUBLIC_"}

// Credentials is a store URL / anon key pair.
type Credentials struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anon_key"`
}

// Present reports whether both halves of the pair are set.
func (c Credentials) Present() bool {
	return c.URL != "" && c.AnonKey != ""
}

// LookupEnv scans the prefixed variants of key and returns the first
// non-empty value, trimmed.
func LookupEnv(key string) string {
	for _, prefix := range envPrefixes {
		if v := strings.TrimSpace(os.Getenv(prefix + key)); v != "" {
			return v
		}
	}
	return ""
}

// FromEnv reads credentials from the environment.
func FromEnv() Credentials {
	return Credentials{URL: LookupEnv(EnvURLKey), AnonKey: LookupEnv(EnvAnonKeyKey)}
}

// OverridePath returns the persisted override file path for a workspace.
func OverridePath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".bpd", overrideFile)
}

// LoadOverride reads the persisted override; zero credentials when absent.
func LoadOverride(workspace string) (Credentials, error) {
	data, err := os.ReadFile(OverridePath(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, nil
		}
		return Credentials{}, err
	}
	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Credentials{}, fmt.Errorf("invalid credentials file: %w", err)
	}
	return c, nil
}

// SaveOverride persists the override for the workspace.
func SaveOverride(workspace string, c Credentials) error {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(OverridePath(workspace), data, 0o600)
}

// ClearOverride removes the persisted override; missing files are fine.
func ClearOverride(workspace string) error {
	err := os.Remove(OverridePath(workspace))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Resolve applies the resolution order. Explicit arguments win only as a
// complete pair, matching how the settings form submits them.
func Resolve(workspace, explicitURL, explicitKey string) Credentials {
	explicit := Credentials{URL: strings.TrimSpace(explicitURL), AnonKey: strings.TrimSpace(explicitKey)}
	if explicit.Present() {
		return explicit
	}
	if override, err := LoadOverride(workspace); err == nil && override.Present() {
		return override
	}
	return FromEnv()
}
