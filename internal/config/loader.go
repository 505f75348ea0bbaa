package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, then applies the
// environment. An empty path skips the file. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Overrides are the command-line values that win over file and environment.
type Overrides struct {
	Mode          string
	Symbol        string
	TriggerSymbol string
}

// Apply copies every non-empty override into cfg.
func (o Overrides) Apply(cfg *Config) {
	if o.Mode != "" {
		cfg.Mode = strings.ToLower(o.Mode)
	}
	if o.Symbol != "" {
		cfg.Engine.Symbol = strings.ToUpper(o.Symbol)
	}
	if o.TriggerSymbol != "" {
		cfg.Taker.TriggerSymbol = strings.ToUpper(o.TriggerSymbol)
	}
}

// applyEnvOverrides honours the bare STUDIO_* and POLYGON_API_KEY names
// first, then STUDIOBOT_* for everything.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Studio.URL, "STUDIO_URL")
	setStr(&cfg.Studio.Auth, "STUDIO_AUTH")
	setStr(&cfg.Studio.Account, "STUDIO_ACCOUNT")
	setStr(&cfg.Polygon.APIKey, "POLYGON_API_KEY")

	// ── Studio ──
	setStr(&cfg.Studio.URL, "STUDIOBOT_STUDIO_URL")
	setStr(&cfg.Studio.Auth, "STUDIOBOT_STUDIO_AUTH")
	setStr(&cfg.Studio.Account, "STUDIOBOT_STUDIO_ACCOUNT")
	setDuration(&cfg.Studio.Timeout, "STUDIOBOT_STUDIO_TIMEOUT")

	// ── Polygon ──
	setStr(&cfg.Polygon.APIKey, "STUDIOBOT_POLYGON_API_KEY")
	setStr(&cfg.Polygon.WSURL, "STUDIOBOT_POLYGON_WS_URL")

	// ── Engine ──
	setStr(&cfg.Engine.Symbol, "STUDIOBOT_ENGINE_SYMBOL")
	setInt64(&cfg.Engine.MaxPosition, "STUDIOBOT_ENGINE_MAX_POSITION")
	setInt64(&cfg.Engine.MinSize, "STUDIOBOT_ENGINE_MIN_SIZE")
	setInt64(&cfg.Engine.MaxSize, "STUDIOBOT_ENGINE_MAX_SIZE")
	setFloat64(&cfg.Engine.MinTick, "STUDIOBOT_ENGINE_MIN_TICK")
	setInt(&cfg.Engine.MaxRejects, "STUDIOBOT_ENGINE_MAX_REJECTS")
	setDuration(&cfg.Engine.EvalInterval, "STUDIOBOT_ENGINE_EVAL_INTERVAL")

	// ── Strategies ──
	setInt(&cfg.Maker.NumLevels, "STUDIOBOT_MAKER_NUM_LEVELS")
	setFloat64(&cfg.Maker.MinEdge, "STUDIOBOT_MAKER_MIN_EDGE")
	setStr(&cfg.Taker.TriggerSymbol, "STUDIOBOT_TAKER_TRIGGER_SYMBOL")
	setFloat64(&cfg.Taker.MinEdge, "STUDIOBOT_TAKER_MIN_EDGE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "STUDIOBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "STUDIOBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STUDIOBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STUDIOBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "STUDIOBOT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "STUDIOBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "STUDIOBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "STUDIOBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STUDIOBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STUDIOBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STUDIOBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STUDIOBOT_POSTGRES_PASSWORD")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "STUDIOBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STUDIOBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STUDIOBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "STUDIOBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STUDIOBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STUDIOBOT_S3_SECRET_KEY")

	// ── Notify ──
	setBool(&cfg.Notify.Enabled, "STUDIOBOT_NOTIFY_ENABLED")
	setStr(&cfg.Notify.TelegramToken, "STUDIOBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STUDIOBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STUDIOBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STUDIOBOT_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "STUDIOBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "STUDIOBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "STUDIOBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "STUDIOBOT_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "STUDIOBOT_MODE")
	setStr(&cfg.LogLevel, "STUDIOBOT_LOG_LEVEL")
}

// Typed env helpers. Each mutates the target only when the variable is set
// and parses.

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
