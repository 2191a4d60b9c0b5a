// ABOUTME: Engine configuration loaded from TOML at XDG paths with environment overrides
// ABOUTME: Holds OAuth client settings, calendar target, timezone, refresh skew and provider timeout
package sync

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const (
	DefaultCalendarID      = "primary"
	DefaultRefreshSkew     = 10 * time.Minute
	DefaultProviderTimeout = 15 * time.Second
	DefaultRedirectURL     = "http://localhost:8080/oauth/callback"
	DefaultUserID          = "default"
	DefaultTimezone        = "UTC"
)

// Duration wraps time.Duration so it can be written as "10m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config stores calendar provider credentials and sync settings.
type Config struct {
	ClientID        string   `toml:"client_id"`
	ClientSecret    string   `toml:"client_secret"`
	RedirectURL     string   `toml:"redirect_url"`
	UserID          string   `toml:"user_id"`
	CalendarID      string   `toml:"calendar_id"`
	Timezone        string   `toml:"timezone"`
	RefreshSkew     Duration `toml:"refresh_skew"`
	ProviderTimeout Duration `toml:"provider_timeout"`
	LogLevel        string   `toml:"log_level"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		RedirectURL:     DefaultRedirectURL,
		UserID:          DefaultUserID,
		CalendarID:      DefaultCalendarID,
		Timezone:        DefaultTimezone,
		RefreshSkew:     Duration{DefaultRefreshSkew},
		ProviderTimeout: Duration{DefaultProviderTimeout},
		LogLevel:        "info",
	}
}

// ConfigPath returns the XDG-compliant path of the config file.
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "closingcal", "config.toml")
}

// LoadConfig reads the TOML config at path. A missing file yields defaults.
// Environment variables override file values:
// - GOOGLE_CLIENT_ID
// - GOOGLE_CLIENT_SECRET
// - CLOSINGCAL_USER_ID
// - CLOSINGCAL_TIMEZONE
// - CLOSINGCAL_CALENDAR_ID
// - CLOSINGCAL_LOG_LEVEL
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if clientID := os.Getenv("GOOGLE_CLIENT_ID"); clientID != "" {
		cfg.ClientID = clientID
	}
	if secret := os.Getenv("GOOGLE_CLIENT_SECRET"); secret != "" {
		cfg.ClientSecret = secret
	}
	if userID := os.Getenv("CLOSINGCAL_USER_ID"); userID != "" {
		cfg.UserID = userID
	}
	if tz := os.Getenv("CLOSINGCAL_TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}
	if calendarID := os.Getenv("CLOSINGCAL_CALENDAR_ID"); calendarID != "" {
		cfg.CalendarID = calendarID
	}
	if level := os.Getenv("CLOSINGCAL_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
}

// Validate checks values that would otherwise fail deep inside a sync.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id must not be empty")
	}
	if c.CalendarID == "" {
		return fmt.Errorf("calendar_id must not be empty")
	}
	if c.RefreshSkew.Duration < 0 {
		return fmt.Errorf("refresh_skew must not be negative")
	}
	if c.ProviderTimeout.Duration <= 0 {
		return fmt.Errorf("provider_timeout must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured IANA timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IsOAuthConfigured reports whether client credentials are present.
func (c *Config) IsOAuthConfigured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}
