package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	toml "github.com/pelletier/go-toml/v2"
)

// Sync controls the automatic Bokun sync.
type Sync struct {
	Enabled         bool `toml:"enabled"`
	IntervalMinutes int  `toml:"interval_minutes"`
	OnStartupSync   bool `toml:"on_startup_sync"`
	OnFocusSync     bool `toml:"on_focus_sync"`
}

// Interval returns the sync period.
func (s Sync) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Config holds the guidedesk client settings.
type Config struct {
	APIURL          string
	RequestTimeout  time.Duration
	CacheTTL        time.Duration
	RefreshInterval time.Duration
	LogLevel        string
	LogFile         string
	StateFile       string
	Sync            Sync
}

const (
	configFile             = "guidedesk/config.toml"
	defaultAPIURL          = "http://127.0.0.1:8080"
	defaultRequestTimeout  = 10 * time.Second
	defaultCacheTTL        = 60 * time.Second
	defaultRefreshInterval = 30 * time.Second
	defaultIntervalMinutes = 15
)

// DefaultSync returns the sync settings used when none are configured.
func DefaultSync() Sync {
	return Sync{
		Enabled:         true,
		IntervalMinutes: defaultIntervalMinutes,
		OnStartupSync:   true,
		OnFocusSync:     true,
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIURL:          defaultAPIURL,
		RequestTimeout:  defaultRequestTimeout,
		CacheTTL:        defaultCacheTTL,
		RefreshInterval: defaultRefreshInterval,
		LogLevel:        "info",
		Sync:            DefaultSync(),
	}
}

// DefaultPath returns the config file location under XDG_CONFIG_HOME.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, configFile)
}

type rawSync struct {
	Enabled         *bool `toml:"enabled"`
	IntervalMinutes *int  `toml:"interval_minutes"`
	OnStartupSync   *bool `toml:"on_startup_sync"`
	OnFocusSync     *bool `toml:"on_focus_sync"`
}

type rawConfig struct {
	APIURL          string  `toml:"api_url"`
	RequestTimeout  string  `toml:"request_timeout"`
	CacheTTL        string  `toml:"cache_ttl"`
	RefreshInterval string  `toml:"refresh_interval"`
	LogLevel        string  `toml:"log_level"`
	LogFile         string  `toml:"log_file"`
	StateFile       string  `toml:"state_file"`
	Sync            rawSync `toml:"sync"`
}

// Load reads the config at path, falling back to defaults when the file is
// missing. An empty path means DefaultPath.
func Load(path string) (Config, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIURL); v != "" {
		cfg.APIURL = v
	}
	if cfg.RequestTimeout, err = parseDuration("request_timeout", raw.RequestTimeout, cfg.RequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = parseDuration("cache_ttl", raw.CacheTTL, cfg.CacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshInterval, err = parseDuration("refresh_interval", raw.RefreshInterval, cfg.RefreshInterval); err != nil {
		return Config{}, err
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.LogFile); v != "" {
		cfg.LogFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.StateFile); v != "" {
		cfg.StateFile = mustExpand(v)
	}

	if raw.Sync.Enabled != nil {
		cfg.Sync.Enabled = *raw.Sync.Enabled
	}
	if raw.Sync.IntervalMinutes != nil {
		cfg.Sync.IntervalMinutes = *raw.Sync.IntervalMinutes
	}
	if raw.Sync.OnStartupSync != nil {
		cfg.Sync.OnStartupSync = *raw.Sync.OnStartupSync
	}
	if raw.Sync.OnFocusSync != nil {
		cfg.Sync.OnFocusSync = *raw.Sync.OnFocusSync
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	if c.Sync.IntervalMinutes < 1 {
		return fmt.Errorf("sync.interval_minutes must be at least 1, got %d", c.Sync.IntervalMinutes)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	if c.RefreshInterval < time.Second {
		return fmt.Errorf("refresh_interval must be at least 1s")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

// ResolvePath expands path, or returns DefaultPath when it is empty.
func ResolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPath(), nil
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
