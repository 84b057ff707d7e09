package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"orbtrader/internal/daemon"
	"orbtrader/internal/market"
	"orbtrader/pkg/logger"
)

func newDaemonCmd() *cobra.Command {
	var (
		schedule   string
		runOnStart bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the live session every trading day on a cron schedule",
		Long: `Start the live session on schedule (cron with seconds, US Eastern time).
Weekends and NYSE holidays are skipped. Stop with Ctrl+C; an active session
closes its positions first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("schedule") {
				cfg.Daemon.Schedule = schedule
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signalContext("Interrupted. Stopping daemon...")
			defer cancel()

			clock := market.NewClock(nil)
			runner := &liveRunner{cfg: cfg, clock: clock}
			if cfg.Metrics.Addr != "" {
				runner.metrics = startMetrics(ctx, cfg.Metrics.Addr)
			}

			d := daemon.New(daemon.Config{Schedule: cfg.Daemon.Schedule, RunOnStart: runOnStart}, clock, runner.Run)
			if err := d.Start(ctx); err != nil {
				return err
			}

			fmt.Printf("Daemon started (%s). Next session: %s\n",
				cfg.Daemon.Schedule, d.Next().In(clock.Location()).Format("Mon 2006-01-02 15:04 MST"))

			<-ctx.Done()
			d.Stop()

			for _, res := range d.History() {
				switch {
				case res.Skipped != "":
					logger.Info("[DAEMON] %s skipped (%s)", res.Date, res.Skipped)
				case res.Err != nil:
					logger.Warn("[DAEMON] %s failed: %v", res.Date, res.Err)
				default:
					logger.Info("[DAEMON] %s pnl $%+.2f, %d trades", res.Date, res.Summary.DailyPnL, res.Summary.TradesCount)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "0 25 9 * * 1-5", "cron schedule with seconds, Eastern time")
	cmd.Flags().BoolVar(&runOnStart, "now", false, "also run a session right away on a trading day")
	return cmd
}
