package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"orbtrader/internal/risk"
	"orbtrader/internal/session"
	"orbtrader/internal/strategy"
)

// Config represents the application configuration
type Config struct {
	Strategy strategy.Config    `yaml:"strategy"`
	Risk     risk.Config        `yaml:"risk"`
	Live     session.LiveConfig `yaml:"live"`
	Data     DataConfig         `yaml:"data"`
	Scanner  ScannerConfig      `yaml:"scanner"`
	Broker   BrokerConfig       `yaml:"broker"`
	Journal  JournalConfig      `yaml:"journal"`
	Metrics  MetricsConfig      `yaml:"metrics"`
	Daemon   DaemonConfig       `yaml:"daemon"`
}

// DataConfig selects the bar source
type DataConfig struct {
	Provider     string        `yaml:"provider"`   // "yahoo" or "csv"
	CSVDir       string        `yaml:"csv_dir"`    // SYMBOL.csv files for the csv provider
	RateLimit    int           `yaml:"rate_limit"` // requests per minute
	Timeout      time.Duration `yaml:"timeout"`
	BacktestDays int           `yaml:"backtest_days"`
}

// ScannerConfig holds gap scanner settings
type ScannerConfig struct {
	Workers       int      `yaml:"workers"`
	MinGapPct     float64  `yaml:"min_gap_pct"`    // 0.03 = gap up at least 3%
	Limit         int      `yaml:"limit"`          // max universe symbols scanned, 0 = all
	MaxCandidates int      `yaml:"max_candidates"` // symbols watched by a live session
	LookbackDays  int      `yaml:"lookback_days"`  // calendar days of bars to find the previous close
	Universe      []string `yaml:"universe"`
	UniverseFile  string   `yaml:"universe_file"` // one symbol per line
}

// BrokerConfig holds order routing settings
type BrokerConfig struct {
	Kind   string       `yaml:"kind"`    // "paper" or "alpaca"
	DryRun bool         `yaml:"dry_run"` // log orders without submitting
	Alpaca AlpacaConfig `yaml:"alpaca"`
}

// AlpacaConfig holds Alpaca trading API credentials
type AlpacaConfig struct {
	BaseURL   string `yaml:"base_url"`
	KeyID     string `yaml:"key_id"`
	SecretKey string `yaml:"secret_key"`
}

// JournalConfig holds output file locations, relative to Dir
type JournalConfig struct {
	Dir           string `yaml:"dir"`
	TradesFile    string `yaml:"trades_file"`
	DecisionsFile string `yaml:"decisions_file"`
	StateFile     string `yaml:"state_file"`
	SQLiteFile    string `yaml:"sqlite_file"` // empty disables the SQLite sink
}

// Path joins name onto the journal directory
func (j JournalConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(j.Dir, name)
}

// MetricsConfig holds the Prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr"` // e.g. ":9102", empty disables
}

// DaemonConfig holds the scheduled session settings
type DaemonConfig struct {
	Schedule string `yaml:"schedule"` // cron with seconds, exchange-local time
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Strategy: strategy.DefaultConfig(),
		Risk:     risk.DefaultConfig(),
		Live:     session.DefaultLiveConfig(),
		Data: DataConfig{
			Provider:     "yahoo",
			RateLimit:    60,
			Timeout:      30 * time.Second,
			BacktestDays: 5,
		},
		Scanner: ScannerConfig{
			Workers:       10,
			MinGapPct:     0.03,
			Limit:         100,
			MaxCandidates: 5,
			LookbackDays:  5,
			Universe:      []string{"nasdaq100"},
		},
		Broker: BrokerConfig{
			Kind:   "paper",
			DryRun: true,
			Alpaca: AlpacaConfig{
				BaseURL:   "https://paper-api.alpaca.markets",
				KeyID:     os.Getenv("ALPACA_API_KEY"),
				SecretKey: os.Getenv("ALPACA_SECRET_KEY"),
			},
		},
		Journal: JournalConfig{
			Dir:           filepath.Join(home, ".orbtrader"),
			TradesFile:    "trades.json",
			DecisionsFile: "decisions.csv",
			StateFile:     "state.json",
		},
		Daemon: DaemonConfig{
			Schedule: "0 25 9 * * 1-5",
		},
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil // Use defaults if file doesn't exist
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// Override with environment variables if set
func applyEnv(cfg *Config) {
	if key := os.Getenv("ALPACA_API_KEY"); key != "" {
		cfg.Broker.Alpaca.KeyID = key
	}
	if key := os.Getenv("ALPACA_SECRET_KEY"); key != "" {
		cfg.Broker.Alpaca.SecretKey = key
	}
	if url := os.Getenv("ALPACA_BASE_URL"); url != "" {
		cfg.Broker.Alpaca.BaseURL = url
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if c.Live.PollInterval < time.Second {
		return fmt.Errorf("live.poll_interval must be at least 1s")
	}

	switch c.Data.Provider {
	case "yahoo":
	case "csv":
		if c.Data.CSVDir == "" {
			return fmt.Errorf("data.csv_dir is required for the csv provider")
		}
	default:
		return fmt.Errorf("unknown data.provider %q", c.Data.Provider)
	}
	if c.Data.RateLimit < 1 {
		return fmt.Errorf("data.rate_limit must be at least 1")
	}

	if c.Scanner.Workers < 1 {
		return fmt.Errorf("scanner.workers must be at least 1")
	}

	switch c.Broker.Kind {
	case "paper":
	case "alpaca":
		if !c.Broker.DryRun && (c.Broker.Alpaca.KeyID == "" || c.Broker.Alpaca.SecretKey == "") {
			return fmt.Errorf("ALPACA_API_KEY and ALPACA_SECRET_KEY are required for live alpaca orders")
		}
	default:
		return fmt.Errorf("unknown broker.kind %q", c.Broker.Kind)
	}
	return nil
}
