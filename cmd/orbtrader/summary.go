package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orbtrader/internal/backtest"
	"orbtrader/internal/journal"
	"orbtrader/internal/market"
	"orbtrader/internal/risk"
)

func newSummaryCmd() *cobra.Command {
	var (
		fromSQLite bool
		since      string
		symbol     string
		showTrades bool
		format     string
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Statistics over the recorded trade history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var trades []*risk.Trade
			if fromSQLite {
				if cfg.Journal.SQLiteFile == "" {
					return fmt.Errorf("journal.sqlite_file is not set")
				}
				db, err := journal.NewSQLiteSink(cfg.Journal.Path(cfg.Journal.SQLiteFile))
				if err != nil {
					return err
				}
				defer db.Close()
				if trades, err = db.Trades(context.Background()); err != nil {
					return err
				}
			} else {
				if trades, err = journal.LoadTrades(cfg.Journal.Path(cfg.Journal.TradesFile)); err != nil {
					return err
				}
			}

			clock := market.NewClock(nil)
			var from time.Time
			if since != "" {
				if from, err = time.ParseInLocation("2006-01-02", since, clock.Location()); err != nil {
					return fmt.Errorf("invalid --since %q: %w", since, err)
				}
			}
			trades = filterTrades(trades, from, symbol)

			stats := backtest.CalculateStats(trades, cfg.Risk.StartingCapital)
			if format == "json" {
				return writeJSON(os.Stdout, stats)
			}

			if len(trades) == 0 {
				fmt.Println("No trades recorded.")
				return nil
			}
			printStats(os.Stdout, fmt.Sprintf("=== Trading Summary (%d trades) ===", len(trades)), stats)
			if showTrades {
				fmt.Println("\n--- Trades ---")
				printTrades(os.Stdout, trades, clock.Location())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromSQLite, "sqlite", false, "read the SQLite journal instead of trades.json")
	cmd.Flags().StringVar(&since, "since", "", "only trades entered on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "only trades of this symbol")
	cmd.Flags().BoolVar(&showTrades, "trades", false, "list every trade")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	return cmd
}

// filterTrades keeps closed trades entered at or after from for symbol (empty = all)
func filterTrades(trades []*risk.Trade, from time.Time, symbol string) []*risk.Trade {
	out := make([]*risk.Trade, 0, len(trades))
	for _, t := range trades {
		if t.IsOpen() {
			continue
		}
		if !from.IsZero() && t.EntryTime.Before(from) {
			continue
		}
		if symbol != "" && !strings.EqualFold(t.Symbol, symbol) {
			continue
		}
		out = append(out, t)
	}
	return out
}
