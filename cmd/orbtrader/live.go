package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"orbtrader/internal/broker"
	"orbtrader/internal/config"
	"orbtrader/internal/market"
	"orbtrader/internal/metrics"
	"orbtrader/internal/risk"
	"orbtrader/internal/scanner"
	"orbtrader/internal/session"
	"orbtrader/internal/symbols"
	"orbtrader/pkg/logger"
)

func newLiveCmd() *cobra.Command {
	var (
		dryRun     bool
		brokerKind string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "live [SYMBOL...]",
		Short: "Run today's session: scan at the open, then trade until the window closes",
		Long: `Run one live session. Candidates are the top gap-up stocks of the scanner
universe at the open, or the symbols given as arguments. Symbols already
traded today are skipped. Before the open the command waits for the first
bar; on a closed market it exits unless --force is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dry-run") {
				cfg.Broker.DryRun = dryRun
			}
			if cmd.Flags().Changed("broker") {
				cfg.Broker.Kind = brokerKind
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var fixed []string
			if len(args) > 0 {
				if fixed, err = symbols.Resolve(args, ""); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext("Interrupted. Closing positions...")
			defer cancel()

			clock := market.NewClock(nil)
			status := clock.Status(market.DefaultMarketSchedule())
			if !status.IsOpen && status.Reason != "pre-market" && !force {
				return fmt.Errorf("market is closed (%s), opens in %s", status.Reason, market.FormatDuration(status.TimeToOpen))
			}

			runner := &liveRunner{cfg: cfg, clock: clock, symbols: fixed}
			if cfg.Metrics.Addr != "" {
				runner.metrics = startMetrics(ctx, cfg.Metrics.Addr)
			}

			summary, err := runner.Run(ctx, clock.Now())
			printSessionSummary(summary)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "log orders without sending them to the broker")
	cmd.Flags().StringVar(&brokerKind, "broker", "paper", "broker: paper, alpaca")
	cmd.Flags().BoolVar(&force, "force", false, "run even when the market is closed")
	return cmd
}

// startMetrics serves the session metrics on addr until ctx is done
func startMetrics(ctx context.Context, addr string) *metrics.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	go func() {
		if err := metrics.Serve(ctx, addr, reg); err != nil {
			logger.Error("[METRICS] %v", err)
		}
	}()
	return m
}

// liveRunner runs one trading day; the daemon calls Run once per day
type liveRunner struct {
	cfg     *config.Config
	clock   *market.Clock
	metrics *metrics.Metrics
	symbols []string // fixed candidates; empty means scan at the open
}

func (r *liveRunner) Run(ctx context.Context, day time.Time) (risk.Summary, error) {
	cfg := r.cfg

	if err := waitForOpen(ctx, r.clock); err != nil {
		return risk.Summary{}, err
	}

	source, err := newBarSource(cfg.Data)
	if err != nil {
		return risk.Summary{}, err
	}

	candidates := r.symbols
	if len(candidates) == 0 {
		result, err := runScan(ctx, cfg, r.clock, false)
		if err != nil {
			return risk.Summary{}, err
		}
		candidates = scanner.Symbols(result.Candidates, cfg.Scanner.MaxCandidates)
	}

	j, err := openJournal(cfg.Journal, r.clock, true, verbose)
	if err != nil {
		return risk.Summary{}, err
	}
	defer func() {
		if err := j.Close(); err != nil {
			logger.Warn("[JOURNAL] %v", err)
		}
	}()

	if j.State != nil {
		before := len(candidates)
		candidates = j.State.Filter(candidates, day)
		if skipped := before - len(candidates); skipped > 0 {
			logger.Info("[STATE] skipping %d symbols already traded today", skipped)
		}
	}
	if len(candidates) == 0 {
		logger.Info("[LIVE] no candidates for %s", r.clock.DateKey(day))
		return risk.Summary{TradingDate: r.clock.TradingDate(day)}, nil
	}

	b, err := newBroker(cfg.Broker)
	if err != nil {
		return risk.Summary{}, err
	}
	executor := broker.NewExecutor(ctx, b, cfg.Broker.DryRun)

	observers := []session.Observer{session.LogObserver{Verbose: verbose}}
	observers = append(observers, j.Observers()...)
	observers = append(observers, executor)

	// each session starts from risk.starting_capital
	driver := session.NewDriver(cfg.Strategy, risk.NewEngine(cfg.Risk), r.clock, observers...)
	if r.metrics != nil {
		r.metrics.StartDay(cfg.Risk.StartingCapital)
		driver.AddObserver(r.metrics)
		driver.AddObserver(session.ObserverFuncs{
			Outcome: func(session.Outcome) error {
				r.metrics.SetKillSwitch(driver.Halted())
				return nil
			},
		})
	}

	logger.Info("[LIVE] candidates %v | broker %s (dry-run %v) | capital $%.2f",
		candidates, b.Name(), cfg.Broker.DryRun, cfg.Risk.StartingCapital)

	return session.NewLive(driver, source, cfg.Live, candidates).Run(ctx)
}

// waitForOpen blocks until the first bar of a pre-market day exists
func waitForOpen(ctx context.Context, clock *market.Clock) error {
	status := clock.Status(market.DefaultMarketSchedule())
	if status.Reason != "pre-market" {
		return nil
	}

	wait := status.TimeToOpen + time.Minute
	logger.Info("[LIVE] market opens in %s, waiting", market.FormatDuration(status.TimeToOpen))

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newBroker(cfg config.BrokerConfig) (broker.Broker, error) {
	switch cfg.Kind {
	case "alpaca":
		b := broker.NewAlpacaBroker(broker.AlpacaCredentials{
			BaseURL:   cfg.Alpaca.BaseURL,
			KeyID:     cfg.Alpaca.KeyID,
			SecretKey: cfg.Alpaca.SecretKey,
		})
		if !b.IsReady() && !cfg.DryRun {
			return nil, fmt.Errorf("alpaca broker is not configured")
		}
		return b, nil
	case "paper", "":
		return broker.NewPaperBroker(), nil
	default:
		return nil, fmt.Errorf("unknown broker %q", cfg.Kind)
	}
}

func printSessionSummary(s risk.Summary) {
	if s.TradingDate.IsZero() {
		return
	}
	fmt.Println()
	printDays(os.Stdout, []risk.Summary{s})
}
