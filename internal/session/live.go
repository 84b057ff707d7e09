package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"orbtrader/internal/market"
	"orbtrader/internal/risk"
	"orbtrader/pkg/logger"
	"orbtrader/pkg/model"
)

// LatestBarSource returns the most recent bars for a symbol, oldest first
type LatestBarSource interface {
	GetLatestBars(ctx context.Context, symbol string, n int) ([]model.Bar, error)
}

// LiveConfig controls the polling loop
type LiveConfig struct {
	PollInterval time.Duration    `yaml:"poll_interval"`
	LookbackBars int              `yaml:"lookback_bars"`
	StopAt       market.TimeOfDay `yaml:"stop_at"` // usually the trading window end
}

// DefaultLiveConfig polls once a minute until 10:30
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		PollInterval: time.Minute,
		LookbackBars: 390,
		StopAt:       market.TimeOfDay{Hour: 10, Minute: 30},
	}
}

// Live polls a bar source for a fixed candidate list and drives d with
// the newest bar of each symbol.
type Live struct {
	driver  *Driver
	source  LatestBarSource
	config  LiveConfig
	symbols []string

	bars          map[string][]model.Bar
	lastProcessed map[string]time.Time
	polls         int
}

// NewLive creates a live session. Candidates are fixed for the whole day.
func NewLive(d *Driver, source LatestBarSource, cfg LiveConfig, symbols []string) *Live {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.LookbackBars <= 0 {
		cfg.LookbackBars = DefaultLiveConfig().LookbackBars
	}
	return &Live{
		driver:        d,
		source:        source,
		config:        cfg,
		symbols:       uniqueSymbols(symbols),
		bars:          make(map[string][]model.Bar),
		lastProcessed: make(map[string]time.Time),
	}
}

// Polls returns how many polling rounds ran
func (l *Live) Polls() int {
	return l.polls
}

// Run polls until the stop time passes, the context is cancelled or a kill
// switch trips, then force-closes open positions at the last price.
func (l *Live) Run(ctx context.Context) (risk.Summary, error) {
	clock := l.driver.Clock()
	today := clock.Now()
	if err := l.driver.BeginDay(today); err != nil {
		return risk.Summary{}, err
	}

	logger.Info("[LIVE] session %s started: %d candidates, poll every %s until %s",
		l.driver.DateKey(), len(l.symbols), l.config.PollInterval, l.config.StopAt)

	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		if ctx.Err() != nil {
			logger.Info("[LIVE] stopped: %v", ctx.Err())
			break
		}
		if l.windowClosed() {
			logger.Info("[LIVE] trading window closed")
			break
		}
		if err := l.poll(ctx); err != nil {
			runErr = err
			break
		}
		if l.driver.Halted() {
			logger.Info("[LIVE] kill switch tripped, stopping")
			break
		}

		select {
		case <-ctx.Done():
			logger.Info("[LIVE] stopped: %v", ctx.Err())
			break loop
		case <-ticker.C:
		}
	}

	if runErr != nil {
		return l.driver.Engine().Summary(), runErr
	}

	// one more fetch for a fresh closing price; cancelled contexts keep the last bars
	if ctx.Err() == nil {
		l.refresh(ctx)
	}

	last := make(map[string]model.Bar, len(l.bars))
	for sym, b := range l.bars {
		if bar, ok := model.LastBar(b); ok {
			last[sym] = bar
		}
	}
	_, summary, err := l.driver.EndDay(last)
	return summary, err
}

func (l *Live) windowClosed() bool {
	clock := l.driver.Clock()
	now := clock.Now()
	if clock.DateKey(now) != l.driver.DateKey() {
		return true
	}
	tod, _ := clock.SinceMidnight(now)
	return tod > l.config.StopAt.Offset()
}

// poll fetches and steps every candidate once. Only driver errors are returned.
func (l *Live) poll(ctx context.Context) error {
	l.polls++
	for _, sym := range l.symbols {
		if ctx.Err() != nil {
			return nil
		}
		if !l.fetch(ctx, sym) {
			continue
		}

		bars := l.bars[sym]
		latest := bars[len(bars)-1]
		if !latest.Time.After(l.lastProcessed[sym]) {
			continue
		}
		l.lastProcessed[sym] = latest.Time

		if _, err := l.driver.Step(sym, bars); err != nil {
			return fmt.Errorf("live %s: %w", sym, err)
		}
		if l.driver.Halted() {
			return nil
		}
	}
	return nil
}

// refresh updates the cached bars of every symbol with an open position
func (l *Live) refresh(ctx context.Context) {
	for _, t := range l.driver.Engine().OpenTrades() {
		l.fetch(ctx, t.Symbol)
	}
}

// fetch stores today's bars for sym. A failed fetch keeps the previous bars
// and reports false.
func (l *Live) fetch(ctx context.Context, sym string) bool {
	bars, err := l.source.GetLatestBars(ctx, sym, l.config.LookbackBars)
	if err != nil {
		logger.Warn("[LIVE] %s: fetch failed: %v", sym, err)
		return false
	}

	clock := l.driver.Clock()
	todays := make([]model.Bar, 0, len(bars))
	for _, b := range bars {
		if !b.Time.IsZero() && clock.DateKey(b.Time) == l.driver.DateKey() {
			todays = append(todays, b)
		}
	}
	if len(todays) == 0 {
		return false
	}
	sort.SliceStable(todays, func(i, j int) bool { return todays[i].Time.Before(todays[j].Time) })

	l.bars[sym] = todays
	return true
}
