package secretstore

import (
	"fmt"
	"strings"
)

// BackendConfig is one entry of the global backends file.
type BackendConfig struct {
	Type       string            `yaml:"type"`
	Profile    string            `yaml:"profile,omitempty"`
	Region     string            `yaml:"region,omitempty"`
	Path       string            `yaml:"path,omitempty"`
	Encryption *EncryptionConfig `yaml:"encryption,omitempty"`
	Extra      map[string]any    `yaml:",inline"`
}

// EncryptionConfig holds the key source of the local-file backend.
type EncryptionConfig struct {
	Type    string `yaml:"type,omitempty"`
	KeyFile string `yaml:"key_file,omitempty"`
	KeyEnv  string `yaml:"key_env,omitempty"`
}

// Destination says where migrated secrets are written: which backend, and
// how env names are turned into secret names.
type Destination struct {
	Backend    string `yaml:"backend"`
	PathPrefix string `yaml:"path_prefix,omitempty"`
	Prefix     string `yaml:"prefix,omitempty"`
}

// QualifiedName builds the backend secret name for an environment variable.
// path_prefix wins over prefix.
func (d Destination) QualifiedName(env string) string {
	if d.PathPrefix != "" {
		return ensureTrailingSlash(d.PathPrefix) + env
	}
	return d.Prefix + env
}

// extraString returns a string field from the inline extras.
func (c BackendConfig) extraString(key string) string {
	if c.Extra == nil {
		return ""
	}
	v, ok := c.Extra[key].(string)
	if !ok {
		return ""
	}
	return v
}

func (c BackendConfig) requireExtra(key string) (string, error) {
	v := c.extraString(key)
	if v == "" {
		return "", fmt.Errorf("%s backend requires %s in config", c.Type, key)
	}
	return v, nil
}

func ensureTrailingSlash(prefix string) string {
	if strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}
