package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// Minimum sync interval. Failed syncs retry on the next tick, so letting the
// interval shrink below this would hammer an already unhappy backend.
const MinSyncInterval = 5 * time.Second

// DedupWindowTTL is the fixed rollover period for the deduplication window.
const DedupWindowTTL = 5 * time.Minute

var ErrBackendNotConfigured = errors.New("backend_base_url and api_key must be set")

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ArchiveConfig selects the optional archive of synced batches. A nil SQLite
// block disables archiving entirely.
type ArchiveConfig struct {
	SQLite *SQLiteConfig `mapstructure:"sqlite"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type Config struct {
	// Backend collaborator. Required for every command that talks to it.
	BackendBaseURL string `mapstructure:"backend_base_url"`
	APIKey         string `mapstructure:"api_key"`

	// Identifier stamped into every record this unit produces.
	ScannerID string `mapstructure:"scanner_id"`

	// Optional identifier prefix filter, applied before registration checks.
	UUIDPrefix string `mapstructure:"uuid_prefix"`
	// Optional YAML allowlist file with additional prefixes and pinned IDs.
	AllowlistFile string `mapstructure:"allowlist_file"`

	ScanIntervalSeconds int `mapstructure:"scan_interval_seconds"`
	SyncIntervalSeconds int `mapstructure:"sync_interval_seconds"`

	// Append-only JSONL log of records awaiting delivery.
	LogPath string `mapstructure:"log_path"`
	// Tail retained after a successful sync.
	KeepRecords int `mapstructure:"keep_records"`

	RegistrationTTLSeconds int `mapstructure:"registration_ttl_seconds"`

	LogLevel   string `mapstructure:"log_level"`
	ListenAddr string `mapstructure:"listen_addr"`

	// Comma separated list of CIDRs allowed to reach the web surface.
	// Empty means allow all.
	AllowedNetworks string `mapstructure:"allowed_networks"`

	Archive ArchiveConfig `mapstructure:"archive"`

	// Alerting on persistent sync failure. Disabled when alert_to is empty.
	Email              EmailConfig `mapstructure:"email"`
	AlertTo            []string    `mapstructure:"alert_to"`
	AlertAfterFailures int         `mapstructure:"alert_after_failures"`
}

// LoadConfig reads configuration from the config file (if present) and the
// environment. Unknown keys are ignored.
func LoadConfig(configFile ...string) (*Config, error) {
	var cfg Config

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")

	if len(configFile) > 0 && configFile[0] != "" {
		v.SetConfigFile(configFile[0])
	}

	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("unable to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if cfg.SyncIntervalSeconds < int(MinSyncInterval.Seconds()) {
		slog.Warn("sync_interval_seconds below minimum, clamping",
			"actual", cfg.SyncIntervalSeconds, "min", int(MinSyncInterval.Seconds()))
		cfg.SyncIntervalSeconds = int(MinSyncInterval.Seconds())
	}
	if cfg.ScanIntervalSeconds < 1 {
		slog.Warn("scan_interval_seconds below minimum, clamping",
			"actual", cfg.ScanIntervalSeconds, "min", 1)
		cfg.ScanIntervalSeconds = 1
	}
	if cfg.KeepRecords < 0 {
		cfg.KeepRecords = 0
	}

	return &cfg, nil
}

// RequireBackend fails fast when the backend collaborator is not configured.
func (c *Config) RequireBackend() error {
	if c.BackendBaseURL == "" || c.APIKey == "" {
		return ErrBackendNotConfigured
	}
	return nil
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

func (c *Config) RegistrationTTL() time.Duration {
	return time.Duration(c.RegistrationTTLSeconds) * time.Second
}

// AlertingEnabled reports whether sync failure emails are configured.
func (c *Config) AlertingEnabled() bool {
	return len(c.AlertTo) > 0 && c.Email.Host != ""
}
