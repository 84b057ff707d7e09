package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"orbtrader/internal/market"
	"orbtrader/internal/risk"
	"orbtrader/pkg/logger"
)

// SessionFunc runs one trading day's live session to completion
type SessionFunc func(ctx context.Context, day time.Time) (risk.Summary, error)

// Config holds the daemon schedule
type Config struct {
	// Schedule is a cron spec with seconds, in exchange-local time.
	// "0 25 9 * * 1-5" starts at 09:25 ET on weekdays.
	Schedule string

	// RunOnStart also starts a session immediately when today is a trading day
	RunOnStart bool
}

// DefaultConfig starts a session at 09:25 ET every weekday
func DefaultConfig() Config {
	return Config{Schedule: "0 25 9 * * 1-5"}
}

// DayResult is the outcome of one scheduled session
type DayResult struct {
	Date    string
	Skipped string // non-empty when no session ran: "weekend", "holiday", "busy"
	Summary risk.Summary
	Err     error
}

// Daemon launches the live session on schedule and skips market holidays
type Daemon struct {
	config Config
	clock  *market.Clock
	run    SessionFunc
	cron   *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	history []DayResult
	wg      sync.WaitGroup
}

// New creates a daemon; a nil clock means US Eastern wall time
func New(cfg Config, clock *market.Clock, run SessionFunc) *Daemon {
	if clock == nil {
		clock = market.NewClock(nil)
	}
	return &Daemon{
		config: cfg,
		clock:  clock,
		run:    run,
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(clock.Location())),
	}
}

// Start registers the schedule and starts the scheduler. Sessions get a
// context derived from ctx.
func (d *Daemon) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	if _, err := d.cron.AddFunc(d.config.Schedule, func() { d.Trigger() }); err != nil {
		d.cancel()
		return fmt.Errorf("register session schedule %q: %w", d.config.Schedule, err)
	}
	d.cron.Start()
	logger.Info("[DAEMON] scheduler started (%s), next session %s",
		d.config.Schedule, d.Next().Format("2006-01-02 15:04 MST"))

	if d.config.RunOnStart {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.Trigger()
		}()
	}
	return nil
}

// Stop stops scheduling, cancels a running session and waits for it
func (d *Daemon) Stop() {
	stopCtx := d.cron.Stop()
	if d.cancel != nil {
		d.cancel()
	}
	<-stopCtx.Done()
	d.wg.Wait()
	logger.Info("[DAEMON] scheduler stopped")
}

// Next returns the next scheduled start, zero if not started
func (d *Daemon) Next() time.Time {
	entries := d.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Trigger runs today's session unless the market is closed today or a
// session is already running
func (d *Daemon) Trigger() DayResult {
	now := d.clock.Now()
	res := DayResult{Date: d.clock.DateKey(now)}

	switch {
	case now.Weekday() == time.Saturday || now.Weekday() == time.Sunday:
		res.Skipped = "weekend"
	case market.IsUSHoliday(now):
		res.Skipped = "holiday"
	}
	if res.Skipped != "" {
		logger.Info("[DAEMON] %s: market closed (%s), no session", res.Date, res.Skipped)
		return d.record(res)
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		res.Skipped = "busy"
		logger.Warn("[DAEMON] %s: previous session still running, skipping", res.Date)
		return d.record(res)
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	logger.Info("[DAEMON] %s: starting session", res.Date)
	res.Summary, res.Err = d.run(ctx, d.clock.TradingDate(now))
	if res.Err != nil {
		logger.Error("[DAEMON] %s: session failed: %v", res.Date, res.Err)
	} else {
		logger.Info("[DAEMON] %s: session done, capital $%.2f (PnL $%+.2f)",
			res.Date, res.Summary.EndingCapital, res.Summary.DailyPnL)
	}
	return d.record(res)
}

// History returns the results of every trigger so far
func (d *Daemon) History() []DayResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DayResult, len(d.history))
	copy(out, d.history)
	return out
}

func (d *Daemon) record(res DayResult) DayResult {
	d.mu.Lock()
	d.history = append(d.history, res)
	d.mu.Unlock()
	return res
}
