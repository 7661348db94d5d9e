package config

import (
	"errors"
	"fmt"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Monitor   MonitorConfig   `json:"monitor"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminIDs is the static admin allow-list. A recipient's persisted
	// is_admin flag is computed from this list once, at first contact;
	// admin-menu routing consults the live list on every update.
	AdminIDs []int64 `json:"admin_ids"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig points at the SQLite database file.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// BroadcastConfig tunes the fan-out engine. All durations are Go duration
// strings. Zero values fall back to the defaults noted per field.
type BroadcastConfig struct {
	BatchSize  int    `json:"batch_size,omitempty"`   // default 25
	BatchDelay string `json:"batch_delay,omitempty"`  // default "1s"
	RetryMax   int    `json:"retry_max,omitempty"`    // attempts total, default 3
	RetryBase  string `json:"retry_base,omitempty"`   // default "5s"
	RatePerSec int    `json:"rate_per_sec,omitempty"` // default 25
}

// MonitorConfig tunes the schedule monitor.
type MonitorConfig struct {
	CheckInterval string `json:"check_interval,omitempty"` // default "1m"
	Timezone      string `json:"timezone,omitempty"`       // IANA TZ, default UTC
}

// Validate checks the fields the app cannot start without and that all
// duration strings parse. Called on load and again before committing a
// hot-reloaded config.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Telegram.Token == "" {
		return errors.New("telegram.token is required")
	}
	if c.Storage.Path == "" {
		return errors.New("storage.path is required")
	}
	for _, f := range []struct {
		path string
		raw  string
	}{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"broadcast.batch_delay", c.Broadcast.BatchDelay},
		{"broadcast.retry_base", c.Broadcast.RetryBase},
		{"monitor.check_interval", c.Monitor.CheckInterval},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if tz := c.Monitor.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("monitor.timezone: %w", err)
		}
	}
	return nil
}

// Location resolves the configured timezone (UTC when unset).
func (c *Config) Location() *time.Location {
	if c == nil || c.Monitor.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Monitor.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsAdmin reports whether id is on the static allow-list.
func (c *Config) IsAdmin(id int64) bool {
	if c == nil {
		return false
	}
	for _, a := range c.Telegram.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}
