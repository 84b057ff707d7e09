package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"orbtrader/internal/backtest"
	"orbtrader/internal/market"
	"orbtrader/internal/session"
	"orbtrader/internal/symbols"
)

func newBacktestCmd() *cobra.Command {
	var (
		days      int
		shared    bool
		csvDir    string
		universe  []string
		record    bool
		showTrade bool
		format    string
	)

	cmd := &cobra.Command{
		Use:   "backtest [SYMBOL...]",
		Short: "Replay recent 1-minute bars through the strategy and risk engine",
		Long: `Replay recent 1-minute bars day by day. Without arguments the configured
scanner universe is used.

By default every symbol trades on its own fresh account (--shared puts all
symbols on one account with one set of daily kill switches).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("days") {
				cfg.Data.BacktestDays = days
			}
			if cmd.Flags().Changed("csv-dir") {
				cfg.Data.Provider = "csv"
				cfg.Data.CSVDir = csvDir
			}
			if cmd.Flags().Changed("universe") {
				cfg.Scanner.Universe = universe
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			syms, err := symbols.Resolve(args, "")
			if err != nil {
				return err
			}
			if len(syms) == 0 {
				syms, err = symbols.Resolve(cfg.Scanner.Universe, cfg.Scanner.UniverseFile)
				if err != nil {
					return err
				}
			}
			if len(syms) == 0 {
				return fmt.Errorf("no symbols to backtest")
			}

			source, err := newBarSource(cfg.Data)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext("Interrupted. Stopping backtest...")
			defer cancel()

			clock := market.NewClock(nil)
			observers := []session.Observer{session.LogObserver{Verbose: verbose}}
			if record {
				j, err := openJournal(cfg.Journal, clock, false, false)
				if err != nil {
					return err
				}
				defer j.Close()
				observers = append(observers, j.Observers()...)
			}

			btCfg := backtest.Config{
				Strategy: cfg.Strategy,
				Risk:     cfg.Risk,
				Isolated: !shared,
			}
			runner := backtest.NewRunner(btCfg, source, clock, observers...)

			end := clock.Now()
			start := end.AddDate(0, 0, -cfg.Data.BacktestDays)

			fmt.Printf("Backtesting %d symbols over %d days...\n\n", len(syms), cfg.Data.BacktestDays)

			bar := newProgressBar(len(syms), "Loading")
			result, err := runner.RunWithProgress(ctx, syms, start, end, func(loaded, total int, symbol string) {
				bar.Describe(symbol)
				bar.Set(loaded)
			})
			bar.Finish()
			fmt.Println()
			if err != nil {
				return fmt.Errorf("backtest: %w", err)
			}

			if format == "json" {
				return writeJSON(os.Stdout, result)
			}

			printStats(os.Stdout, fmt.Sprintf("=== Backtest %s (%d symbols, %d skipped) ===",
				result.Period, len(result.Symbols), len(result.Skipped)), result.Stats)

			fmt.Println("\n--- Days ---")
			printDays(os.Stdout, result.Days)

			if showTrade {
				fmt.Println("\n--- Trades ---")
				printTrades(os.Stdout, result.Trades, clock.Location())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 5, "calendar days of history (Yahoo keeps about 30 days of 1m bars)")
	cmd.Flags().BoolVar(&shared, "shared", false, "one account for all symbols instead of one per symbol")
	cmd.Flags().StringVar(&csvDir, "csv-dir", "", "read SYMBOL.csv files from this directory instead of Yahoo")
	cmd.Flags().StringSliceVar(&universe, "universe", nil, "universe names or symbols when no arguments are given")
	cmd.Flags().BoolVar(&record, "record", false, "write trades and decisions to the journal")
	cmd.Flags().BoolVar(&showTrade, "trades", false, "list every trade")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	return cmd
}
