package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"orbtrader/internal/config"
	"orbtrader/internal/market"
	"orbtrader/internal/provider"
	"orbtrader/pkg/logger"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "orbtrader",
		Short: "Opening range breakout day trader for US stocks",
		Long: `orbtrader trades a long-only opening range breakout on 1-minute bars
with a small-account risk engine (risk-based sizing, max trades per day,
stop after first loss, max daily loss).

Examples:
  orbtrader scan --universe nasdaq100
  orbtrader backtest AAPL NVDA --days 5
  orbtrader live --dry-run
  orbtrader daemon
  orbtrader summary`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(verbose)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging")

	rootCmd.AddCommand(
		newBacktestCmd(),
		newLiveCmd(),
		newDaemonCmd(),
		newScanCmd(),
		newSummaryCmd(),
		newFetchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(msg string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Println("\n" + msg)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// newBarSource builds the configured bar source behind a fallback wrapper
func newBarSource(cfg config.DataConfig) (*provider.FallbackProvider, error) {
	var sources []provider.BarSource
	switch cfg.Provider {
	case "csv":
		sources = append(sources, provider.NewCSVProvider(cfg.CSVDir, market.GetETLocation()))
	case "yahoo", "":
		sources = append(sources, provider.NewYahooProvider(cfg.RateLimit, cfg.Timeout))
		if cfg.CSVDir != "" {
			sources = append(sources, provider.NewCSVProvider(cfg.CSVDir, market.GetETLocation()))
		}
	default:
		return nil, fmt.Errorf("unknown data provider %q", cfg.Provider)
	}

	fp := provider.NewFallbackProvider(sources...)
	if !fp.IsAvailable() {
		return nil, fmt.Errorf("no available data providers")
	}
	return fp, nil
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]█[reset]",
			SaucerHead:    "[green]█[reset]",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
