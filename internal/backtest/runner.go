package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"orbtrader/internal/market"
	"orbtrader/internal/risk"
	"orbtrader/internal/session"
	"orbtrader/internal/strategy"
	"orbtrader/pkg/logger"
	"orbtrader/pkg/model"
)

// HistorySource returns historical intraday bars in [start, end)
type HistorySource interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error)
}

// Config holds backtest parameters
type Config struct {
	Strategy strategy.Config
	Risk     risk.Config

	// Isolated gives every symbol its own account, as if it were the only
	// candidate. Otherwise all symbols share one account and one set of
	// daily kill switches.
	Isolated bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Strategy: strategy.DefaultConfig(),
		Risk:     risk.DefaultConfig(),
		Isolated: true,
	}
}

// SymbolResult is the per-symbol slice of a backtest
type SymbolResult struct {
	Symbol string
	Bars   int
	Stats  Stats
}

// Result contains the complete backtest results
type Result struct {
	Period  string
	Symbols []string // symbols with data
	Skipped []string // symbols whose data could not be loaded

	Stats     Stats
	PerSymbol []SymbolResult
	Days      []risk.Summary
	Trades    []*risk.Trade
}

// ProgressCallback reports loading progress
type ProgressCallback func(loaded, total int, symbol string)

// Runner replays historical bars through the session driver
type Runner struct {
	config    Config
	source    HistorySource
	clock     *market.Clock
	observers []session.Observer
}

// NewRunner creates a runner. Observers receive every decision of every replay.
func NewRunner(cfg Config, source HistorySource, clock *market.Clock, observers ...session.Observer) *Runner {
	if clock == nil {
		clock = market.NewClock(nil)
	}
	return &Runner{
		config:    cfg,
		source:    source,
		clock:     clock,
		observers: observers,
	}
}

// Run loads bars for symbols and replays them
func (r *Runner) Run(ctx context.Context, symbols []string, start, end time.Time) (*Result, error) {
	return r.RunWithProgress(ctx, symbols, start, end, nil)
}

// RunWithProgress executes the backtest with a loading progress callback
func (r *Runner) RunWithProgress(ctx context.Context, symbols []string, start, end time.Time, progress ProgressCallback) (*Result, error) {
	result := &Result{
		Period: fmt.Sprintf("%s ~ %s", start.In(r.clock.Location()).Format("2006-01-02"),
			end.In(r.clock.Location()).Format("2006-01-02")),
	}

	data := make(map[string][]model.Bar)
	for i, sym := range symbols {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		bars, err := r.source.GetBars(ctx, sym, start, end)
		if err != nil || len(bars) == 0 {
			if err != nil {
				logger.Warn("[BACKTEST] %s: %v", sym, err)
			}
			result.Skipped = append(result.Skipped, sym)
			if progress != nil {
				progress(i+1, len(symbols), sym+" (skipped)")
			}
			continue
		}

		data[sym] = bars
		result.Symbols = append(result.Symbols, sym)
		if progress != nil {
			progress(i+1, len(symbols), sym)
		}
	}

	if len(result.Symbols) == 0 {
		return result, fmt.Errorf("no data for any of %d symbols", len(symbols))
	}

	if r.config.Isolated {
		return result, r.runIsolated(ctx, result, data)
	}
	return result, r.runShared(ctx, result, data)
}

// Replay runs the already loaded bars without fetching
func (r *Runner) Replay(ctx context.Context, symbols []string, data map[string][]model.Bar) (*Result, error) {
	result := &Result{}
	for _, sym := range symbols {
		if len(data[sym]) == 0 {
			result.Skipped = append(result.Skipped, sym)
			continue
		}
		result.Symbols = append(result.Symbols, sym)
	}
	if r.config.Isolated {
		return result, r.runIsolated(ctx, result, data)
	}
	return result, r.runShared(ctx, result, data)
}

func (r *Runner) newDriver() *session.Driver {
	return session.NewDriver(r.config.Strategy, risk.NewEngine(r.config.Risk), r.clock, r.observers...)
}

func (r *Runner) runIsolated(ctx context.Context, result *Result, data map[string][]model.Bar) error {
	for _, sym := range result.Symbols {
		d := r.newDriver()
		replay, err := session.Replay(ctx, d, []string{sym}, map[string][]model.Bar{sym: data[sym]})
		if err != nil {
			return fmt.Errorf("backtest %s: %w", sym, err)
		}

		trades := d.Engine().ClosedTrades()
		stats := CalculateStats(trades, r.config.Risk.StartingCapital)

		result.PerSymbol = append(result.PerSymbol, SymbolResult{Symbol: sym, Bars: len(data[sym]), Stats: stats})
		result.Days = append(result.Days, replay.Days...)
		result.Trades = append(result.Trades, trades...)

		logger.Debug("[BACKTEST] %s: %d trades, pnl $%.2f", sym, stats.TotalTrades, stats.TotalPnL)
	}

	// the combined view treats the isolated runs as one account of the same size
	result.Stats = CalculateStats(sortedByExit(result.Trades), r.config.Risk.StartingCapital)
	return nil
}

func (r *Runner) runShared(ctx context.Context, result *Result, data map[string][]model.Bar) error {
	d := r.newDriver()
	replay, err := session.Replay(ctx, d, result.Symbols, data)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	result.Days = replay.Days
	result.Trades = d.Engine().ClosedTrades()
	result.Stats = CalculateStats(result.Trades, r.config.Risk.StartingCapital)

	for _, s := range result.Stats.BySymbol {
		bars := len(data[s.Symbol])
		per := make([]*risk.Trade, 0, s.Trades)
		for _, t := range result.Trades {
			if t.Symbol == s.Symbol {
				per = append(per, t)
			}
		}
		result.PerSymbol = append(result.PerSymbol, SymbolResult{
			Symbol: s.Symbol,
			Bars:   bars,
			Stats:  CalculateStats(per, r.config.Risk.StartingCapital),
		})
	}
	return nil
}

func sortedByExit(trades []*risk.Trade) []*risk.Trade {
	out := make([]*risk.Trade, len(trades))
	copy(out, trades)
	exitTime := func(t *risk.Trade) time.Time {
		if t.ExitTime == nil {
			return t.EntryTime
		}
		return *t.ExitTime
	}
	sort.SliceStable(out, func(i, j int) bool { return exitTime(out[i]).Before(exitTime(out[j])) })
	return out
}
