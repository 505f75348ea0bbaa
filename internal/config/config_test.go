package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Studio.Auth = "token"
	cfg.Studio.Account = "100000"
	cfg.Polygon.APIKey = "pk"
	cfg.Engine.Symbol = "AAPL"
	return cfg
}

func TestDefaultsNeedCredentials(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	for _, want := range []string{"studio: auth", "studio: account", "polygon: api_key", "engine: symbol"} {
		assert.Contains(t, err.Error(), want)
	}

	cfg = validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "arb" }, `unknown mode "arb"`},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"min above max", func(c *Config) { c.Engine.MinSize = 20 }, "min_size (20) must not exceed max_size (10)"},
		{"zero min size", func(c *Config) { c.Engine.MinSize = 0 }, "min_size must be >= 1"},
		{"negative tick", func(c *Config) { c.Engine.MinTick = -1 }, "min_tick"},
		{"zero rejects", func(c *Config) { c.Engine.MaxRejects = 0 }, "max_rejects"},
		{"edge below tick", func(c *Config) { c.Maker.MinEdge = 0.01 }, "maker: min_edge (0.01) must be >= engine.min_tick (0.05)"},
		{"no levels", func(c *Config) { c.Maker.NumLevels = 0 }, "num_levels"},
		{"taker trigger", func(c *Config) { c.Mode = ModeTaker }, "taker: trigger_symbol is required"},
		{"taker bars", func(c *Config) {
			c.Mode = ModeTaker
			c.Taker.TriggerSymbol = "SPY"
			c.Taker.MinBars = 0
		}, "min_bars"},
		{"redis lock ttl", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.LockTTL.Duration = 0
		}, "lock_ttl"},
		{"postgres host", func(c *Config) { c.Postgres.Enabled = true }, "postgres: host"},
		{"s3 bucket", func(c *Config) { c.S3.Enabled = true }, "s3: bucket"},
		{"notify channel", func(c *Config) { c.Notify.Enabled = true }, "notify:"},
		{"server port", func(c *Config) {
			c.Server.Enabled = true
			c.Server.Port = 0
		}, "server: port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateTakerIgnoresMakerSection(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = ModeTaker
	cfg.Taker.TriggerSymbol = "SPY"
	cfg.Maker.NumLevels = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "taker"

[engine]
symbol = "AAPL"
max_position = 50
eval_interval = "250ms"

[taker]
trigger_symbol = "SPY"
min_edge = 2.5
`), 0o600))

	t.Setenv("STUDIO_AUTH", "bare-token")
	t.Setenv("STUDIOBOT_STUDIO_AUTH", "prefixed-token")
	t.Setenv("STUDIO_ACCOUNT", "100000")
	t.Setenv("POLYGON_API_KEY", "pk")
	t.Setenv("STUDIOBOT_ENGINE_MAX_SIZE", "7")
	t.Setenv("STUDIOBOT_NOTIFY_EVENTS", "halt, reject,")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeTaker, cfg.Mode)
	assert.Equal(t, "AAPL", cfg.Engine.Symbol)
	assert.Equal(t, int64(50), cfg.Engine.MaxPosition)
	assert.Equal(t, int64(7), cfg.Engine.MaxSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.EvalInterval.Duration)
	assert.Equal(t, 2.5, cfg.Taker.MinEdge)
	assert.Equal(t, "prefixed-token", cfg.Studio.Auth)
	assert.Equal(t, "100000", cfg.Studio.Account)
	assert.Equal(t, []string{"halt", "reject"}, cfg.Notify.Events)
	assert.Equal(t, DefaultStudioURL, cfg.Studio.URL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModeMaker, cfg.Mode)
	assert.Equal(t, 5, cfg.Maker.NumLevels)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[engine]
eval_interval = "soon"`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestOverridesApply(t *testing.T) {
	cfg := Defaults()
	Overrides{Mode: "TAKER", Symbol: "aapl", TriggerSymbol: "spy"}.Apply(&cfg)
	assert.Equal(t, ModeTaker, cfg.Mode)
	assert.Equal(t, "AAPL", cfg.Engine.Symbol)
	assert.Equal(t, "SPY", cfg.Taker.TriggerSymbol)

	Overrides{}.Apply(&cfg)
	assert.Equal(t, "AAPL", cfg.Engine.Symbol)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Server.APIKey = "secret"
	cfg.Notify.Events = []string{"halt"}

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Studio.Auth)
	assert.Equal(t, "***", red.Polygon.APIKey)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Empty(t, red.Redis.Password)
	assert.Equal(t, "100000", red.Studio.Account)

	red.Notify.Events[0] = "changed"
	assert.Equal(t, "halt", cfg.Notify.Events[0])
	assert.Equal(t, "token", cfg.Studio.Auth)
}
