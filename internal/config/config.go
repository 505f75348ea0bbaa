// Package config defines the studiobot configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// Modes.
const (
	ModeMaker = "maker"
	ModeTaker = "taker"
)

// DefaultStudioURL is the production Studio API.
const DefaultStudioURL = "https://api.co.clearstreet.io/studio"

// Config is the root configuration. Fields are populated from a TOML file,
// then from the environment, then from command-line flags.
type Config struct {
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	Studio   StudioConfig   `toml:"studio"`
	Polygon  PolygonConfig  `toml:"polygon"`
	Engine   EngineConfig   `toml:"engine"`
	Maker    MakerConfig    `toml:"maker"`
	Taker    TakerConfig    `toml:"taker"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
}

// StudioConfig holds the order gateway and account feed credentials.
type StudioConfig struct {
	URL               string   `toml:"url"`
	Auth              string   `toml:"auth"`
	Account           string   `toml:"account"`
	Timeout           duration `toml:"timeout"`
	ReconnectDelay    duration `toml:"reconnect_delay"`
	MaxReconnectDelay duration `toml:"max_reconnect_delay"`
}

// PolygonConfig holds the market-data feed settings.
type PolygonConfig struct {
	APIKey string `toml:"api_key"`
	WSURL  string `toml:"ws_url"`
}

// EngineConfig holds the traded symbol, risk limits and loop settings.
type EngineConfig struct {
	Symbol          string   `toml:"symbol"`
	MaxPosition     int64    `toml:"max_position"`
	MinSize         int64    `toml:"min_size"`
	MaxSize         int64    `toml:"max_size"`
	MinTick         float64  `toml:"min_tick"`
	MaxRejects      int      `toml:"max_rejects"`
	EvalInterval    duration `toml:"eval_interval"`
	QueueSize       int      `toml:"queue_size"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// MakerConfig holds the quoting strategy parameters.
type MakerConfig struct {
	NumLevels     int     `toml:"num_levels"`
	MinEdge       float64 `toml:"min_edge"`
	TheoThreshold float64 `toml:"theo_threshold"`
}

// TakerConfig holds the trend-following strategy parameters.
type TakerConfig struct {
	TriggerSymbol string  `toml:"trigger_symbol"`
	MinEdge       float64 `toml:"min_edge"`
	MinBars       int     `toml:"min_bars"`
	EMAWindow     int     `toml:"ema_window"`
	OrderSize     int64   `toml:"order_size"`
}

// GatewayConfig controls retries of transient gateway failures.
type GatewayConfig struct {
	MaxRetries int      `toml:"max_retries"`
	RetryBase  duration `toml:"retry_base"`
	RetryMax   duration `toml:"retry_max"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	QuoteTTL   duration `toml:"quote_ttl"`
	LockTTL    duration `toml:"lock_ttl"`
}

// PostgresConfig holds the audit and order store connection.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds alert channel credentials. Events filters which
// engine events are sent; empty sends all.
type NotifyConfig struct {
	Enabled           bool     `toml:"enabled"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds the ops HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration lets TOML carry strings like "5m" or "250ms".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with every default applied.
func Defaults() Config {
	return Config{
		Mode:     ModeMaker,
		LogLevel: "info",
		Studio: StudioConfig{
			URL:               DefaultStudioURL,
			Timeout:           duration{10 * time.Second},
			ReconnectDelay:    duration{2 * time.Second},
			MaxReconnectDelay: duration{60 * time.Second},
		},
		Engine: EngineConfig{
			MaxPosition:     100,
			MinSize:         1,
			MaxSize:         10,
			MinTick:         0.05,
			MaxRejects:      4,
			EvalInterval:    duration{time.Second},
			QueueSize:       1024,
			ShutdownTimeout: duration{10 * time.Second},
		},
		Maker: MakerConfig{
			NumLevels:     5,
			MinEdge:       0.50,
			TheoThreshold: 0.01,
		},
		Taker: TakerConfig{
			MinEdge:   1.00,
			MinBars:   32,
			EMAWindow: 15,
			OrderSize: 1,
		},
		Gateway: GatewayConfig{
			MaxRetries: 2,
			RetryBase:  duration{200 * time.Millisecond},
			RetryMax:   duration{2 * time.Second},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			QuoteTTL: duration{time.Minute},
			LockTTL:  duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  5,
			RunMigrations: true,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Notify: NotifyConfig{
			Events: []string{"halt", "ready", "reject"},
		},
		Server: ServerConfig{
			Port: 8000,
		},
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Mode != ModeMaker && c.Mode != ModeTaker {
		add("unknown mode %q (valid: maker, taker)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.Studio.URL == "" {
		add("studio: url must not be empty")
	}
	if c.Studio.Auth == "" {
		add("studio: auth is required")
	}
	if c.Studio.Account == "" {
		add("studio: account is required")
	}
	if c.Polygon.APIKey == "" {
		add("polygon: api_key is required")
	}

	e := c.Engine
	if e.Symbol == "" {
		add("engine: symbol is required")
	}
	if e.MinTick < 0 {
		add("engine: min_tick must be >= 0")
	}
	if e.MaxPosition < 0 {
		add("engine: max_position must be >= 0")
	}
	if e.MinSize < 1 {
		add("engine: min_size must be >= 1")
	}
	if e.MinSize > e.MaxSize {
		add("engine: min_size (%d) must not exceed max_size (%d)", e.MinSize, e.MaxSize)
	}
	if e.MaxRejects < 1 {
		add("engine: max_rejects must be >= 1")
	}
	if e.EvalInterval.Duration <= 0 {
		add("engine: eval_interval must be > 0")
	}

	switch c.Mode {
	case ModeMaker:
		if c.Maker.NumLevels < 1 {
			add("maker: num_levels must be >= 1")
		}
		checkEdge(add, "maker", c.Maker.MinEdge, e.MinTick)
		if c.Maker.TheoThreshold < 0 {
			add("maker: theo_threshold must be >= 0")
		}
	case ModeTaker:
		if c.Taker.TriggerSymbol == "" {
			add("taker: trigger_symbol is required")
		}
		checkEdge(add, "taker", c.Taker.MinEdge, e.MinTick)
		if c.Taker.MinBars < 1 {
			add("taker: min_bars must be >= 1")
		}
		if c.Taker.EMAWindow < 1 {
			add("taker: ema_window must be >= 1")
		}
		if c.Taker.OrderSize < 1 {
			add("taker: order_size must be >= 1")
		}
	}

	if c.Gateway.MaxRetries < 0 {
		add("gateway: max_retries must be >= 0")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.LockTTL.Duration < time.Second {
			add("redis: lock_ttl must be >= 1s")
		}
	}
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			add("postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Database == "" {
			add("postgres: database must not be empty")
		}
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}
	if c.Notify.Enabled && c.Notify.TelegramToken == "" && c.Notify.DiscordWebhookURL == "" {
		add("notify: telegram_token or discord_webhook_url is required when enabled")
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		add("notify: telegram_chat_id is required with telegram_token")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w\n  - %s", domain.ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// checkEdge requires a non-negative edge of at least one tick.
func checkEdge(add func(string, ...any), section string, edge, tick float64) {
	if edge < 0 {
		add("%s: min_edge must be >= 0", section)
	} else if edge < tick {
		add("%s: min_edge (%g) must be >= engine.min_tick (%g)", section, edge, tick)
	}
}

