package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbtrader/internal/backtest"
	"orbtrader/internal/config"
	"orbtrader/internal/market"
	"orbtrader/internal/risk"
)

func closed(symbol string, entry, exit float64, at time.Time, reason string) *risk.Trade {
	exitTime := at.Add(5 * time.Minute)
	return &risk.Trade{
		Symbol:     symbol,
		EntryPrice: entry,
		EntryTime:  at,
		Quantity:   1,
		ExitPrice:  &exit,
		ExitTime:   &exitTime,
		ExitReason: reason,
		PnL:        exit - entry,
		PnLPct:     (exit/entry - 1) * 100,
	}
}

func TestFilterTrades(t *testing.T) {
	d1 := time.Date(2024, 3, 4, 14, 40, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	open := &risk.Trade{Symbol: "OPEN", EntryPrice: 10, EntryTime: d2, Quantity: 1}

	trades := []*risk.Trade{
		closed("AAPL", 100, 102, d1, "take profit"),
		closed("nvda", 50, 49, d2, "stop loss"),
		open,
	}

	assert.Len(t, filterTrades(trades, time.Time{}, ""), 2, "open trades are dropped")
	assert.Len(t, filterTrades(trades, d2, ""), 1)
	got := filterTrades(trades, time.Time{}, "NVDA")
	require.Len(t, got, 1)
	assert.Equal(t, "nvda", got[0].Symbol)
}

func TestNewBarSource(t *testing.T) {
	dir := t.TempDir()

	fp, err := newBarSource(config.DataConfig{Provider: "csv", CSVDir: dir})
	require.NoError(t, err)
	require.Len(t, fp.Sources(), 1)
	assert.Equal(t, "csv", fp.Sources()[0].Name())

	fp, err = newBarSource(config.DataConfig{Provider: "yahoo", CSVDir: dir, RateLimit: 60, Timeout: time.Second})
	require.NoError(t, err)
	assert.Len(t, fp.Sources(), 2, "csv files back up yahoo")

	_, err = newBarSource(config.DataConfig{Provider: "csv", CSVDir: filepath.Join(dir, "missing")})
	assert.Error(t, err)

	_, err = newBarSource(config.DataConfig{Provider: "bloomberg"})
	assert.Error(t, err)
}

func TestNewBroker(t *testing.T) {
	b, err := newBroker(config.BrokerConfig{Kind: "paper"})
	require.NoError(t, err)
	assert.Equal(t, "paper", b.Name())

	_, err = newBroker(config.BrokerConfig{Kind: "alpaca"})
	assert.Error(t, err, "live alpaca orders need keys")

	b, err = newBroker(config.BrokerConfig{Kind: "alpaca", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "alpaca", b.Name())

	_, err = newBroker(config.BrokerConfig{Kind: "ib"})
	assert.Error(t, err)
}

func TestScannerConfig(t *testing.T) {
	sc := scannerConfig(config.ScannerConfig{Workers: 3, MinGapPct: 0.05, Limit: 20})
	assert.Equal(t, 3, sc.Workers)
	assert.Equal(t, 0.05, sc.MinGapPct)
	assert.Equal(t, 20, sc.Limit)
	assert.Equal(t, 5, sc.LookbackDays, "default lookback kept")

	sc = scannerConfig(config.ScannerConfig{Workers: 1, LookbackDays: 10})
	assert.Equal(t, 10, sc.LookbackDays)
}

func TestOpenJournal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	cfg := config.JournalConfig{
		Dir:           dir,
		TradesFile:    "trades.json",
		DecisionsFile: "decisions.csv",
		StateFile:     "state.json",
		SQLiteFile:    "orb.db",
	}

	j, err := openJournal(cfg, market.NewClock(nil), true, false)
	require.NoError(t, err)
	assert.NotNil(t, j.State)
	assert.Len(t, j.Observers(), 2)
	require.NoError(t, j.Close())

	assert.FileExists(t, filepath.Join(dir, "decisions.csv"))
	assert.FileExists(t, filepath.Join(dir, "orb.db"))

	cfg.DecisionsFile = ""
	cfg.SQLiteFile = ""
	j, err = openJournal(cfg, market.NewClock(nil), false, false)
	require.NoError(t, err)
	assert.Nil(t, j.State)
	assert.Len(t, j.Observers(), 1)
	require.NoError(t, j.Close())
}

func TestPrintStats(t *testing.T) {
	at := time.Date(2024, 3, 4, 14, 40, 0, 0, time.UTC)
	trades := []*risk.Trade{
		closed("AAPL", 100, 102, at, "take profit"),
		closed("MSFT", 50, 49, at, "stop loss"),
	}

	var buf bytes.Buffer
	printStats(&buf, "=== Test ===", backtest.CalculateStats(trades, 40))
	out := buf.String()
	assert.Contains(t, out, "=== Test ===")
	assert.Contains(t, out, "take profit")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "50.0%")

	buf.Reset()
	printTrades(&buf, trades, market.GetETLocation())
	assert.Contains(t, buf.String(), "2024-03-04 09:40")

	buf.Reset()
	printTrades(&buf, nil, time.UTC)
	assert.Equal(t, "No trades.\n", buf.String())
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	old := cfgFile
	t.Cleanup(func() { cfgFile = old })
	cfgFile = filepath.Join(t.TempDir(), "none.yaml")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "yahoo", cfg.Data.Provider)

	require.NoError(t, os.WriteFile(cfgFile, []byte("data: ["), 0644))
	_, err = loadConfig()
	assert.Error(t, err)
}
