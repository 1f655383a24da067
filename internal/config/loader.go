package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".valet"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
	// envPrefix namespaces environment overrides (VALET_*).
	envPrefix = "valet"
)

// HomeDir returns the valet home directory, honoring VALET_HOME.
func HomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("VALET_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir), nil
}

// Path returns the path to the config file, honoring VALET_CONFIG.
func Path() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("VALET_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFile), nil
}

// Load reads the config file (if present), applies environment overrides,
// and fills defaults. A missing file is not an error; environment variables
// alone can configure a working instance.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from an explicit file path.
func LoadFrom(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// fall through to env-only configuration
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// Override with environment variables, one group at a time. Processing
	// the root struct would prefix each key with the group's field name
	// (VALET_TELEGRAM_TELEGRAM_TOKEN), not the documented VALET_* keys.
	// Desktop is file-only; its argv maps don't fit environment variables.
	groups := []any{
		&cfg.Paths,
		&cfg.Telegram,
		&cfg.Model,
		&cfg.API,
		&cfg.Security,
		&cfg.Slack,
		&cfg.SMTP,
		&cfg.Kafka,
	}
	for _, group := range groups {
		if err := envconfig.Process(envPrefix, group); err != nil {
			return nil, fmt.Errorf("process environment: %w", err)
		}
	}

	home, err := HomeDir()
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults(home)
	return &cfg, nil
}

// Save writes the config as indented JSON, creating the directory if needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
