package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbtrader/internal/market"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Strategy.OpeningRangeMinutes)
	assert.Equal(t, market.TimeOfDay{Hour: 10, Minute: 30}, cfg.Strategy.WindowEnd)
	assert.Equal(t, 2, cfg.Risk.MaxTradesPerDay)
	assert.Equal(t, -0.08, cfg.Risk.MaxDailyLossPct)
	assert.Zero(t, cfg.Risk.MaxPositionPct)
	assert.True(t, cfg.Broker.DryRun)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Strategy, cfg.Strategy)
}

func TestLoadOverridesAndEnv(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "key-from-env")
	t.Setenv("ALPACA_SECRET_KEY", "secret-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
strategy:
  window_end: "11:30"
  volume_multiplier: 2
  use_trailing_stop: true
risk:
  starting_capital: 1000
  max_trades_per_day: 3
live:
  poll_interval: 30s
data:
  provider: csv
  csv_dir: /tmp/bars
broker:
  kind: alpaca
  dry_run: false
  alpaca:
    key_id: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, market.TimeOfDay{Hour: 11, Minute: 30}, cfg.Strategy.WindowEnd)
	assert.Equal(t, market.TimeOfDay{Hour: 9, Minute: 35}, cfg.Strategy.WindowStart, "unset keys keep defaults")
	assert.Equal(t, 2.0, cfg.Strategy.VolumeMultiplier)
	assert.True(t, cfg.Strategy.UseTrailingStop)
	assert.Equal(t, 1000.0, cfg.Risk.StartingCapital)
	assert.Equal(t, 3, cfg.Risk.MaxTradesPerDay)
	assert.True(t, cfg.Risk.StopAfterFirstLoss)
	assert.Equal(t, 30*time.Second, cfg.Live.PollInterval)
	assert.Equal(t, "csv", cfg.Data.Provider)

	assert.Equal(t, "key-from-env", cfg.Broker.Alpaca.KeyID, "env wins over file")
	assert.Equal(t, "secret-from-env", cfg.Broker.Alpaca.SecretKey)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategy:\n  window_start: \"9am\"\n"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad window", func(c *Config) { c.Strategy.WindowEnd = market.TimeOfDay{Hour: 9} }},
		{"positive loss limit", func(c *Config) { c.Risk.MaxDailyLossPct = 0.1 }},
		{"fast poll", func(c *Config) { c.Live.PollInterval = time.Millisecond }},
		{"unknown provider", func(c *Config) { c.Data.Provider = "bloomberg" }},
		{"csv without dir", func(c *Config) { c.Data.Provider = "csv" }},
		{"no workers", func(c *Config) { c.Scanner.Workers = 0 }},
		{"unknown broker", func(c *Config) { c.Broker.Kind = "ib" }},
		{"alpaca without keys", func(c *Config) {
			c.Broker.Kind = "alpaca"
			c.Broker.DryRun = false
			c.Broker.Alpaca = AlpacaConfig{}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestJournalPath(t *testing.T) {
	j := JournalConfig{Dir: "/data"}
	assert.Equal(t, filepath.Join("/data", "trades.json"), j.Path("trades.json"))
	assert.Equal(t, "/abs/state.json", j.Path("/abs/state.json"))
	assert.Equal(t, "", j.Path(""))
}
