package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/pagekit/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pagekit"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# pagekit configuration
# Run: pagekit --help

# Optional: override the render journal location.
# Can also be set via PAGEKIT_DB_PATH or --db-path.
# db_path: ~/.config/pagekit/journal.db

# debug, info, warn or error. PAGEKIT_LOG_LEVEL wins.
# log_level: info

# Address for "pagekit serve". PAGEKIT_LISTEN wins.
# listen_addr: 127.0.0.1:8080

# HTTP providers.
# http_timeout_seconds: 10
# cache_entries: 64
# cache_ttl_seconds: 30
`
