package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"orbtrader/internal/config"
	"orbtrader/internal/market"
	"orbtrader/internal/scanner"
	"orbtrader/internal/symbols"
)

func newScanCmd() *cobra.Command {
	var (
		universe []string
		file     string
		workers  int
		minGap   float64
		format   string
	)

	cmd := &cobra.Command{
		Use:   "scan [SYMBOL...]",
		Short: "Rank today's gap-up candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Scanner.Universe = args
				cfg.Scanner.UniverseFile = ""
			}
			if cmd.Flags().Changed("universe") {
				cfg.Scanner.Universe = universe
			}
			if cmd.Flags().Changed("file") {
				cfg.Scanner.UniverseFile = file
			}
			if cmd.Flags().Changed("workers") {
				cfg.Scanner.Workers = workers
			}
			if cmd.Flags().Changed("min-gap") {
				cfg.Scanner.MinGapPct = minGap / 100
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signalContext("Interrupted. Stopping scan...")
			defer cancel()

			result, err := runScan(ctx, cfg, market.NewClock(nil), true)
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(os.Stdout, result)
			}
			printCandidates(os.Stdout, result, cfg.Scanner.MinGapPct)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&universe, "universe", nil, "universe names (test, nasdaq100) or symbols")
	cmd.Flags().StringVar(&file, "file", "", "file with one symbol per line")
	cmd.Flags().IntVar(&workers, "workers", 10, "number of parallel workers")
	cmd.Flags().Float64Var(&minGap, "min-gap", 3, "minimum gap up in percent")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json")
	return cmd
}

func scannerConfig(cfg config.ScannerConfig) scanner.Config {
	sc := scanner.DefaultConfig()
	sc.Workers = cfg.Workers
	sc.MinGapPct = cfg.MinGapPct
	sc.Limit = cfg.Limit
	if cfg.LookbackDays > 0 {
		sc.LookbackDays = cfg.LookbackDays
	}
	return sc
}

// runScan ranks the configured universe by opening gap
func runScan(ctx context.Context, cfg *config.Config, clock *market.Clock, progress bool) (*scanner.Result, error) {
	universe, err := symbols.Resolve(cfg.Scanner.Universe, cfg.Scanner.UniverseFile)
	if err != nil {
		return nil, err
	}
	if len(universe) == 0 {
		return nil, fmt.Errorf("no symbols to scan: set scanner.universe or scanner.universe_file")
	}

	source, err := newBarSource(cfg.Data)
	if err != nil {
		return nil, err
	}

	s := scanner.NewScanner(source, clock, scannerConfig(cfg.Scanner))

	total := len(universe)
	if cfg.Scanner.Limit > 0 && total > cfg.Scanner.Limit {
		total = cfg.Scanner.Limit
	}
	if progress {
		fmt.Printf("Scanning %d stocks for opening gaps...\n\n", total)
		bar := newProgressBar(total, "Scanning")
		s.SetProgressCallback(func(scanned, _ int) {
			bar.Set(scanned)
		})
		defer func() {
			bar.Finish()
			fmt.Println()
		}()
	}

	result, err := s.Scan(ctx, universe)
	if err != nil {
		return nil, fmt.Errorf("scanning: %w", err)
	}
	return result, nil
}
