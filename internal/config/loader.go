package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POOLHOUSE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POOLHOUSE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "POOLHOUSE_DATABASE_DSN")
	setStr(&cfg.Database.Host, "POOLHOUSE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "POOLHOUSE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "POOLHOUSE_DATABASE_NAME")
	setStr(&cfg.Database.User, "POOLHOUSE_DATABASE_USER")
	setStr(&cfg.Database.Password, "POOLHOUSE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "POOLHOUSE_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "POOLHOUSE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "POOLHOUSE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "POOLHOUSE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POOLHOUSE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POOLHOUSE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POOLHOUSE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POOLHOUSE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POOLHOUSE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POOLHOUSE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POOLHOUSE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POOLHOUSE_S3_REGION")
	setStr(&cfg.S3.Bucket, "POOLHOUSE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POOLHOUSE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POOLHOUSE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POOLHOUSE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POOLHOUSE_S3_FORCE_PATH_STYLE")

	// ── Wallet ──
	setStr(&cfg.Wallet.BaseURL, "POOLHOUSE_WALLET_BASE_URL")
	setStr(&cfg.Wallet.WsURL, "POOLHOUSE_WALLET_WS_URL")
	setStr(&cfg.Wallet.ApiKey, "POOLHOUSE_WALLET_API_KEY")
	setDuration(&cfg.Wallet.Timeout, "POOLHOUSE_WALLET_TIMEOUT")

	// ── Rates ──
	setStr(&cfg.Rates.BaseURL, "POOLHOUSE_RATES_BASE_URL")
	setStr(&cfg.Rates.ApiKey, "POOLHOUSE_RATES_API_KEY")
	setDuration(&cfg.Rates.Timeout, "POOLHOUSE_RATES_TIMEOUT")
	setDuration(&cfg.Rates.CacheTTL, "POOLHOUSE_RATES_CACHE_TTL")

	// ── Engine ──
	setInt64(&cfg.Engine.FeePPM, "POOLHOUSE_ENGINE_FEE_PPM")
	setStr(&cfg.Engine.Currency, "POOLHOUSE_ENGINE_CURRENCY")
	setDuration(&cfg.Engine.FundingTTL, "POOLHOUSE_ENGINE_FUNDING_TTL")
	setDuration(&cfg.Engine.ExpiryInterval, "POOLHOUSE_ENGINE_EXPIRY_INTERVAL")
	setDuration(&cfg.Engine.PruneInterval, "POOLHOUSE_ENGINE_PRUNE_INTERVAL")
	setDuration(&cfg.Engine.UndoTTL, "POOLHOUSE_ENGINE_UNDO_TTL")
	setDuration(&cfg.Engine.LockTTL, "POOLHOUSE_ENGINE_LOCK_TTL")
	setDuration(&cfg.Engine.SnapshotTTL, "POOLHOUSE_ENGINE_SNAPSHOT_TTL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "POOLHOUSE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "POOLHOUSE_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POOLHOUSE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POOLHOUSE_SERVER_PORT")
	setStr(&cfg.Server.ApiKey, "POOLHOUSE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "POOLHOUSE_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POOLHOUSE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POOLHOUSE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POOLHOUSE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POOLHOUSE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POOLHOUSE_MODE")
	setStr(&cfg.LogLevel, "POOLHOUSE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
