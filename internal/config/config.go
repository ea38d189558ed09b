// Package config defines the top-level configuration for the poolhouse
// settlement service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POOLHOUSE_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Wallet   WalletConfig   `toml:"wallet"`
	Rates    RatesConfig    `toml:"rates"`
	Engine   EngineConfig   `toml:"engine"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// WalletConfig holds endpoints and credentials for the external funding
// service that issues deposit addresses and streams confirmations.
type WalletConfig struct {
	BaseURL string   `toml:"base_url"`
	WsURL   string   `toml:"ws_url"`
	ApiKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// RatesConfig holds the exchange-rate service endpoint.
type RatesConfig struct {
	BaseURL  string   `toml:"base_url"`
	ApiKey   string   `toml:"api_key"`
	Timeout  duration `toml:"timeout"`
	CacheTTL duration `toml:"cache_ttl"`
}

// EngineConfig holds settlement engine parameters.
type EngineConfig struct {
	// FeePPM is the settlement fee in parts per million of the total pool,
	// charged only on opposed markets with a decisive outcome.
	FeePPM int64 `toml:"fee_ppm"`
	// Currency is the settlement currency code stakes are denominated in.
	Currency string `toml:"currency"`
	// FundingTTL caps how long a funding target stays payable. The wallet
	// service may return a shorter expiry; the earlier one wins.
	FundingTTL duration `toml:"funding_ttl"`
	// ExpiryInterval is how often the expiry worker sweeps awaiting-deposit
	// bets whose funding window has closed.
	ExpiryInterval duration `toml:"expiry_interval"`
	// PruneInterval is how often draft slips are swept for legs whose
	// market has resolved void or stopped accepting bets.
	PruneInterval duration `toml:"prune_interval"`
	// UndoTTL bounds how long a removed draft leg can be re-inserted
	// without re-validating market state.
	UndoTTL duration `toml:"undo_ttl"`
	// LockTTL is the per-entity mutation lock lifetime.
	LockTTL duration `toml:"lock_ttl"`
	// SnapshotTTL is the read-path pool snapshot cache lifetime.
	SnapshotTTL duration `toml:"snapshot_ttl"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	ApiKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values
// suitable for local development.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "poolhouse",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "poolhouse-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Wallet: WalletConfig{
			BaseURL: "http://localhost:8100",
			WsURL:   "ws://localhost:8100/ws/deposits",
			Timeout: duration{10 * time.Second},
		},
		Rates: RatesConfig{
			BaseURL:  "http://localhost:8101",
			Timeout:  duration{5 * time.Second},
			CacheTTL: duration{30 * time.Second},
		},
		Engine: EngineConfig{
			FeePPM:         4000, // 0.4%
			Currency:       "XMR",
			FundingTTL:     duration{30 * time.Minute},
			ExpiryInterval: duration{time.Minute},
			PruneInterval:  duration{time.Minute},
			UndoTTL:        duration{2 * time.Minute},
			LockTTL:        duration{15 * time.Second},
			SnapshotTTL:    duration{5 * time.Second},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "bet_settled", "slip_settled", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":     true,
	"reconcile": true,
	"archive":   true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, reconcile, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only needed when archival is on.
	if c.Archive.Enabled || c.Mode == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Wallet — required for any mode that takes bets.
	if c.Mode == "serve" || c.Mode == "full" {
		if c.Wallet.BaseURL == "" {
			errs = append(errs, "wallet: base_url must not be empty for mode "+c.Mode)
		}
		if c.Wallet.WsURL == "" {
			errs = append(errs, "wallet: ws_url must not be empty for mode "+c.Mode)
		}
		if c.Rates.BaseURL == "" {
			errs = append(errs, "rates: base_url must not be empty for mode "+c.Mode)
		}
	}

	// Engine
	if c.Engine.FeePPM < 0 || c.Engine.FeePPM >= 1_000_000 {
		errs = append(errs, fmt.Sprintf("engine: fee_ppm must be in [0, 1000000), got %d", c.Engine.FeePPM))
	}
	if c.Engine.Currency == "" {
		errs = append(errs, "engine: currency must not be empty")
	}
	if c.Engine.FundingTTL.Duration <= 0 {
		errs = append(errs, "engine: funding_ttl must be > 0")
	}
	if c.Engine.ExpiryInterval.Duration <= 0 {
		errs = append(errs, "engine: expiry_interval must be > 0")
	}
	if c.Engine.PruneInterval.Duration <= 0 {
		errs = append(errs, "engine: prune_interval must be > 0")
	}
	if c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
