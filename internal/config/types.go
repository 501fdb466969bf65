package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotConfigured marks a missing required setting. Startup fails on it.
var ErrNotConfigured = errors.New("not configured")

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Portal   PortalConfig   `json:"portal"`
	Watch    WatchConfig    `json:"watch"`
	Storage  StorageConfig  `json:"storage"`
	Notify   NotifyConfig   `json:"notify"`
	Logging  LoggingConfig  `json:"logging"`
	Health   HealthConfig   `json:"health"`

	// Holidays are DD.MM.YYYY dates marked in shift digests.
	Holidays []string `json:"holidays,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type PortalConfig struct {
	// LoginURL is the portal login form; also the "Take Shifts" target.
	LoginURL string `json:"login_url"`
	// ShiftsURL is the page carrying the shift tables. Empty means the
	// login landing page already has them.
	ShiftsURL string `json:"shifts_url,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

// WatchConfig controls the polling cadence.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type WatchConfig struct {
	// CheckInterval is the per-user polling period.
	CheckInterval string `json:"check_interval,omitempty"`
	// SweepInterval is the global reconciliation period.
	SweepInterval string `json:"sweep_interval,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type NotifyConfig struct {
	Workers    int `json:"workers,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// HealthConfig controls the small HTTP liveness server.
type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8080"
}

// Validate reports missing required settings. Everything else has a
// default.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token: %w", ErrNotConfigured)
	}
	if strings.TrimSpace(c.Portal.LoginURL) == "" {
		return fmt.Errorf("portal.login_url: %w", ErrNotConfigured)
	}
	for _, d := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"portal.timeout", c.Portal.Timeout},
		{"watch.check_interval", c.Watch.CheckInterval},
		{"watch.sweep_interval", c.Watch.SweepInterval},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	} {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) PollTimeout() time.Duration {
	return durationOr(c.Telegram.PollTimeout, 10*time.Second)
}

func (c *Config) PortalTimeout() time.Duration {
	return durationOr(c.Portal.Timeout, 30*time.Second)
}

func (c *Config) CheckInterval() time.Duration {
	return durationOr(c.Watch.CheckInterval, 5*time.Minute)
}

func (c *Config) SweepInterval() time.Duration {
	return durationOr(c.Watch.SweepInterval, 30*time.Minute)
}

func (c *Config) BusyTimeout() time.Duration {
	return durationOr(c.Storage.BusyTimeout, 5*time.Second)
}

func (c *Config) StoragePath() string {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return "./shiftwatch.db"
	}
	return c.Storage.Path
}

func (c *Config) HealthAddr() string {
	if strings.TrimSpace(c.Health.Addr) == "" {
		return ":8080"
	}
	return c.Health.Addr
}

// durationOr assumes the field already passed Validate.
func durationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
