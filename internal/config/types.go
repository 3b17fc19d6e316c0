package config

import (
	"fmt"
	"net/mail"
	"strings"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Dispatch DispatchConfig `json:"dispatch"`
	Vendor   VendorConfig   `json:"vendor"`

	// Optional integrations. A nil section means the feature is off and the
	// engine falls back gracefully (no polish, no telegram nudges, ...).
	Polish   *PolishConfig   `json:"polish,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	SMTP     *SMTPConfig     `json:"smtp,omitempty"`
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

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// DispatchConfig controls the scheduler loop.
//
// All durations are Go duration strings (e.g. "30s", "5m").
//
// Defaults (when fields are omitted/zero):
//   - tick_interval: "5m"
//   - workers: 4
//   - stale_claim_after: 6 tick intervals
//   - max_consecutive_failures: 5
type DispatchConfig struct {
	Enabled      bool   `json:"enabled"`
	TickInterval string `json:"tick_interval,omitempty"`
	Workers      int    `json:"workers,omitempty"`

	// StaleClaimAfter is the lease age past which a claimed obligation is
	// assumed orphaned (crashed worker) and may be reclaimed.
	StaleClaimAfter string `json:"stale_claim_after,omitempty"`

	MaxConsecutiveFailures int `json:"max_consecutive_failures,omitempty"`
}

type VendorConfig struct {
	BaseURL    string `json:"base_url"`
	Token      string `json:"token"` // bearer token (do not log)
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type PolishConfig struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url"`
	Token   string `json:"token,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// RatePerSec caps outgoing messages; Telegram rejects bursts above ~30/s.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"` // default 587
	Username string `json:"username"`
	Password string `json:"password"` // do not log
	From     string `json:"from"`
}

// Validate rejects configs the engine cannot run with. Optional sections are
// only checked when present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("dispatch.tick_interval", c.Dispatch.TickInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("dispatch.stale_claim_after", c.Dispatch.StaleClaimAfter); err != nil {
		return err
	}
	if c.Dispatch.Workers < 0 {
		return fmt.Errorf("dispatch.workers must be >= 0")
	}
	if c.Dispatch.Enabled && strings.TrimSpace(c.Vendor.BaseURL) == "" {
		return fmt.Errorf("vendor.base_url is required when dispatch is enabled")
	}
	if c.Polish != nil && c.Polish.Enabled && strings.TrimSpace(c.Polish.BaseURL) == "" {
		return fmt.Errorf("polish.base_url is required when polish is enabled")
	}
	if c.Telegram != nil && strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required when the telegram section is present")
	}
	if c.SMTP != nil {
		if strings.TrimSpace(c.SMTP.Host) == "" {
			return fmt.Errorf("smtp.host is required when the smtp section is present")
		}
		if _, err := mail.ParseAddress(c.SMTP.From); err != nil {
			return fmt.Errorf("smtp.from: invalid address %q: %w", c.SMTP.From, err)
		}
	}
	return nil
}
