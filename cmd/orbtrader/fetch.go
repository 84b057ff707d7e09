package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orbtrader/internal/market"
	"orbtrader/internal/provider"
	"orbtrader/internal/symbols"
	"orbtrader/pkg/logger"
)

func newFetchCmd() *cobra.Command {
	var (
		days int
		dir  string
	)

	cmd := &cobra.Command{
		Use:   "fetch SYMBOL...",
		Short: "Download 1-minute bars from Yahoo into SYMBOL.csv files for offline backtests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Data.CSVDir
			}
			if dir == "" {
				return fmt.Errorf("--dir or data.csv_dir is required")
			}

			syms, err := symbols.Resolve(args, "")
			if err != nil {
				return err
			}

			ctx, cancel := signalContext("Interrupted. Stopping download...")
			defer cancel()

			clock := market.NewClock(nil)
			yahoo := provider.NewYahooProvider(cfg.Data.RateLimit, cfg.Data.Timeout)
			store := provider.NewCSVProvider(dir, clock.Location())

			end := clock.Now()
			start := end.AddDate(0, 0, -days)

			bar := newProgressBar(len(syms), "Fetching")
			var saved, failed int
			for i, sym := range syms {
				if ctx.Err() != nil {
					break
				}
				bars, err := yahoo.GetBars(ctx, sym, start, end)
				if err == nil && len(bars) > 0 {
					err = store.SaveBars(sym, bars)
				}
				if err != nil || len(bars) == 0 {
					logger.Warn("[DATA] %s: %d bars, %v", sym, len(bars), err)
					failed++
				} else {
					saved++
				}
				bar.Set(i + 1)
			}
			bar.Finish()
			fmt.Println()

			fmt.Printf("Saved %d symbols to %s (%d failed)\n", saved, dir, failed)
			return ctx.Err()
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "calendar days of history")
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default data.csv_dir)")
	return cmd
}
