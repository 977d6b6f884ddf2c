// Package config loads the optional on-disk profile a caller can keep
// at ~/.dreamlake/config.yaml instead of passing every option or
// environment variable by hand. Adapted from the teacher's
// internal/config/config.go: the read-YAML shape carries over, though
// Load only reads and parses (it applies no defaults and validates
// nothing); the server/coordinator/storage-engine knobs do not, since
// this SDK has no daemon to configure.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Profile is the optional YAML document at ~/.dreamlake/config.yaml.
// Every field is also settable via an environment variable or a
// functional option, which take precedence over the profile.
type Profile struct {
	LocalPath string `yaml:"local_path"`
	APIURL    string `yaml:"api_url"`
	APIKey    string `yaml:"api_key"`
	Namespace string `yaml:"namespace"`
	Workspace string `yaml:"workspace"`
}

// DefaultPath returns ~/.dreamlake/config.yaml, or an error if the
// user's home directory cannot be resolved.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".dreamlake", "config.yaml"), nil
}

// Load reads and parses the profile at path. A missing file is not an
// error: it returns a zero-value Profile, since the profile is
// entirely optional.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Profile{}, nil
		}
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return &p, nil
}
