package app

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath             string `yaml:"db_path"`
	LogLevel           string `yaml:"log_level"`
	ListenAddr         string `yaml:"listen_addr"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds"`
	CacheEntries       int    `yaml:"cache_entries"`
	CacheTTLSeconds    int    `yaml:"cache_ttl_seconds"`
}

// RuntimeSettings are effective values used by page providers and the server.
type RuntimeSettings struct {
	ListenAddr   string        `json:"listen_addr"`
	HTTPTimeout  time.Duration `json:"http_timeout"`
	CacheEntries int           `json:"cache_entries"`
	CacheTTL     time.Duration `json:"cache_ttl"`
}

const (
	defaultListenAddr   = "127.0.0.1:8080"
	defaultHTTPTimeout  = 10 * time.Second
	defaultCacheEntries = 64
	defaultCacheTTL     = 30 * time.Second
)

// EffectiveRuntimeSettings returns validated runtime settings with defaults.
// PAGEKIT_LISTEN overrides listen_addr. Invalid or missing config values fall
// back to safe defaults.
func EffectiveRuntimeSettings() RuntimeSettings {
	cfg := RuntimeSettings{
		ListenAddr:   defaultListenAddr,
		HTTPTimeout:  defaultHTTPTimeout,
		CacheEntries: defaultCacheEntries,
		CacheTTL:     defaultCacheTTL,
	}

	if s, err := LoadSettings(); err == nil {
		if s.ListenAddr != "" {
			cfg.ListenAddr = s.ListenAddr
		}
		if s.HTTPTimeoutSeconds > 0 {
			cfg.HTTPTimeout = time.Duration(s.HTTPTimeoutSeconds) * time.Second
		}
		if s.CacheEntries > 0 {
			cfg.CacheEntries = s.CacheEntries
		}
		if s.CacheTTLSeconds > 0 {
			cfg.CacheTTL = time.Duration(s.CacheTTLSeconds) * time.Second
		}
	}
	if v := os.Getenv("PAGEKIT_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}

	if cfg.HTTPTimeout > 5*time.Minute {
		cfg.HTTPTimeout = 5 * time.Minute
	}
	if cfg.CacheEntries > 4096 {
		cfg.CacheEntries = 4096
	}
	if cfg.CacheTTL > 24*time.Hour {
		cfg.CacheTTL = 24 * time.Hour
	}
	return cfg
}

// LogLevel resolves the slog level from PAGEKIT_LOG_LEVEL, then log_level in
// config.yaml. Unknown values mean info.
func LogLevel() slog.Level {
	raw := os.Getenv("PAGEKIT_LOG_LEVEL")
	if raw == "" {
		if s, err := LoadSettings(); err == nil {
			raw = s.LogLevel
		}
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// dbPathOverrideMu and dbPathOverride implement a mutex-protected process-wide override for CLI --db-path.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// settingsPaths lists config files in lookup order (first found wins):
// 1) ~/.config/pagekit/config.yaml
// 2) /etc/pagekit/config.yaml
// 3) ./config.yaml
func settingsPaths() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(string(os.PathSeparator), "etc", "pagekit", "config.yaml"),
		"config.yaml",
	}, nil
}

// LoadSettings loads configuration once using the documented lookup order.
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		paths, err := settingsPaths()
		if err != nil {
			settingsErr = err
			return
		}
		for _, p := range paths {
			s, err := loadSettingsFile(p)
			if err == nil {
				settings = s
				return
			}
			if !errors.Is(err, os.ErrNotExist) {
				settingsErr = err
				return
			}
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the fixed lookup list
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
