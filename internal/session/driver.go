package session

import (
	"errors"
	"fmt"
	"time"

	"orbtrader/internal/market"
	"orbtrader/internal/risk"
	"orbtrader/internal/strategy"
	"orbtrader/pkg/logger"
	"orbtrader/pkg/model"
)

// ErrDayNotStarted is returned by Step and EndDay before BeginDay
var ErrDayNotStarted = errors.New("trading day not started")

type arenaKey struct {
	symbol string
	date   string
}

// Driver applies bars to the strategy and the risk engine. Replay and
// Live both feed it; the per-bar logic lives only here.
type Driver struct {
	config    strategy.Config
	clock     *market.Clock
	engine    *risk.Engine
	observers []Observer

	date    time.Time
	dateKey string
	arena   map[arenaKey]*strategy.OpeningRangeBreakout

	lastTime     map[string]time.Time
	lastBar      map[string]model.Bar
	closedBefore int
}

// NewDriver creates a driver. A nil clock means US Eastern.
func NewDriver(cfg strategy.Config, engine *risk.Engine, clock *market.Clock, observers ...Observer) *Driver {
	if clock == nil {
		clock = market.NewClock(nil)
	}
	return &Driver{
		config:    cfg,
		clock:     clock,
		engine:    engine,
		observers: observers,
	}
}

// AddObserver registers an observer for subsequent outcomes
func (d *Driver) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

func (d *Driver) Engine() *risk.Engine  { return d.engine }
func (d *Driver) Clock() *market.Clock  { return d.clock }
func (d *Driver) DateKey() string       { return d.dateKey }

// BeginDay resets the daily limits and discards every strategy instance of
// the previous date. Positions must not survive a date boundary.
func (d *Driver) BeginDay(date time.Time) error {
	if open := d.engine.OpenTrades(); len(open) > 0 {
		return fmt.Errorf("begin %s: %d trade(s) still open from %s", d.clock.DateKey(date), len(open), d.dateKey)
	}

	d.date = d.clock.TradingDate(date)
	d.dateKey = d.clock.DateKey(date)
	d.arena = make(map[arenaKey]*strategy.OpeningRangeBreakout)
	d.lastTime = make(map[string]time.Time)
	d.lastBar = make(map[string]model.Bar)
	d.closedBefore = len(d.engine.ClosedTrades())
	d.engine.ResetDailyLimits(d.date)

	logger.Debug("[SESSION] begin %s capital=$%.2f", d.dateKey, d.engine.Account().CurrentCapital)
	return nil
}

// Halted reports whether a kill switch ended entries for today
func (d *Driver) Halted() bool {
	return d.engine.KillSwitchTripped()
}

// Strategy returns the symbol's strategy for the current date, if created
func (d *Driver) Strategy(symbol string) (*strategy.OpeningRangeBreakout, bool) {
	s, ok := d.arena[arenaKey{symbol, d.dateKey}]
	return s, ok
}

func (d *Driver) strategyFor(symbol string) *strategy.OpeningRangeBreakout {
	key := arenaKey{symbol, d.dateKey}
	s, ok := d.arena[key]
	if !ok {
		s = strategy.NewOpeningRangeBreakout(d.config, d.clock, symbol)
		d.arena[key] = s
	}
	return s
}

// Step runs range, entry and exit for the newest bar in barsSoFar. Only an
// invalid close is returned as an error; everything else is an outcome.
func (d *Driver) Step(symbol string, barsSoFar []model.Bar) ([]Outcome, error) {
	if d.arena == nil {
		return nil, ErrDayNotStarted
	}

	latest, ok := model.LastBar(barsSoFar)
	if !ok {
		return d.emit(Outcome{Kind: KindNoSetup, Symbol: symbol, Reason: "no bars"}), nil
	}
	if latest.Time.IsZero() {
		return d.emit(Outcome{Kind: KindNoSetup, Symbol: symbol, Reason: "bar has no timestamp"}), nil
	}
	if key := d.clock.DateKey(latest.Time); key != d.dateKey {
		return d.emit(Outcome{Kind: KindNoSetup, Symbol: symbol, Time: latest.Time,
			Reason: fmt.Sprintf("bar from %s outside trading date %s", key, d.dateKey)}), nil
	}
	if last, seen := d.lastTime[symbol]; seen && !latest.Time.After(last) {
		return d.emit(Outcome{Kind: KindNoSetup, Symbol: symbol, Time: latest.Time, Reason: "stale bar"}), nil
	}
	d.lastTime[symbol] = latest.Time
	d.lastBar[symbol] = latest

	s := d.strategyFor(symbol)
	if !s.HasRange() {
		s.ComputeOpeningRange(barsSoFar)
	}

	var outcomes []Outcome

	trade, inPosition := d.engine.OpenPosition(symbol)
	if !inPosition {
		entry, err := d.tryEnter(s, symbol, latest)
		if err != nil {
			return d.emit(outcomes...), err
		}
		outcomes = append(outcomes, entry)
		if entry.Kind != KindEntered {
			return d.emit(outcomes...), nil
		}
		trade = entry.Trade
	}

	exit, err := d.checkExit(s, trade, latest)
	if err != nil {
		return d.emit(outcomes...), err
	}
	// a hold right after an entry adds nothing
	if inPosition || exit.Kind == KindExited {
		outcomes = append(outcomes, exit)
	}
	return d.emit(outcomes...), nil
}

func (d *Driver) tryEnter(s *strategy.OpeningRangeBreakout, symbol string, bar model.Bar) (Outcome, error) {
	sig := s.CheckBreakout(bar, d.config.VolumeMultiplier)
	if sig.Type != strategy.SignalLongBreakout {
		return Outcome{Kind: KindNoSetup, Symbol: symbol, Time: bar.Time, Reason: sig.Reason}, nil
	}

	levels, ok := s.DeriveLevels(sig.EntryPrice)
	if !ok {
		return Outcome{Kind: KindNoSetup, Symbol: symbol, Time: bar.Time, Reason: "no opening range"}, nil
	}

	trade, err := d.engine.OpenTrade(symbol, sig.EntryPrice, levels.StopLoss, levels.TakeProfit, bar.Time)
	if err != nil {
		var admission *risk.AdmissionError
		if errors.As(err, &admission) {
			return Outcome{Kind: KindNoSetup, Symbol: symbol, Time: bar.Time, Price: sig.EntryPrice,
				Reason: "setup ready but " + admission.Reason}, nil
		}
		return Outcome{}, err
	}
	s.OnEntry(levels)

	return Outcome{
		Kind:       KindEntered,
		Symbol:     symbol,
		Time:       bar.Time,
		Price:      trade.EntryPrice,
		Quantity:   trade.Quantity,
		StopLoss:   trade.StopLoss,
		TakeProfit: trade.TakeProfit,
		Reason:     sig.Reason,
		TradeID:    trade.ID,
		Trade:      trade,
	}, nil
}

func (d *Driver) checkExit(s *strategy.OpeningRangeBreakout, trade *risk.Trade, bar model.Bar) (Outcome, error) {
	trailing := s.UpdateTrailing(bar.Close)
	sig := s.EvaluateExit(bar.Close, trade.StopLoss, trade.TakeProfit, trailing)
	if sig.Hold() {
		return Outcome{Kind: KindHold, Symbol: trade.Symbol, Time: bar.Time, Price: bar.Close,
			Reason: sig.Reason, TradeID: trade.ID, Trade: trade}, nil
	}
	return d.close(s, trade, sig.ExitPrice, sig.Reason, bar.Time)
}

func (d *Driver) close(s *strategy.OpeningRangeBreakout, trade *risk.Trade, price float64, reason string, at time.Time) (Outcome, error) {
	if err := d.engine.CloseTrade(trade, price, reason, at); err != nil {
		return Outcome{}, fmt.Errorf("session %s: %w", d.dateKey, err)
	}
	if s != nil {
		s.OnExit()
	}
	return Outcome{
		Kind:     KindExited,
		Symbol:   trade.Symbol,
		Time:     at,
		Price:    price,
		Quantity: trade.Quantity,
		Reason:   reason,
		PnL:      trade.PnL,
		TradeID:  trade.ID,
		Trade:    trade,
	}, nil
}

// EndDay force-closes every open position at the close of the symbol's
// bar in lastBars, falling back to the last bar the driver saw for it.
func (d *Driver) EndDay(lastBars map[string]model.Bar) ([]Outcome, risk.Summary, error) {
	if d.arena == nil {
		return nil, risk.Summary{}, ErrDayNotStarted
	}

	var outcomes []Outcome
	for _, trade := range d.engine.OpenTrades() {
		bar, ok := lastBars[trade.Symbol]
		if !ok || bar.Time.IsZero() {
			bar, ok = d.lastBar[trade.Symbol]
		}
		if !ok {
			bar = model.Bar{Time: trade.EntryTime, Close: trade.EntryPrice}
			logger.Warn("[SESSION] no closing price for %s, using entry $%.2f", trade.Symbol, trade.EntryPrice)
		}

		s, _ := d.Strategy(trade.Symbol)
		o, err := d.close(s, trade, bar.Close, strategy.ReasonEndOfDay, bar.Time)
		if err != nil {
			return d.emit(outcomes...), d.engine.Summary(), err
		}
		outcomes = append(outcomes, o)
	}
	d.emit(outcomes...)

	summary := d.engine.Summary()
	closed := d.engine.ClosedTrades()
	report := DayReport{
		Date:    d.date,
		Summary: summary,
		Trades:  closed[d.closedBefore:],
	}
	for _, obs := range d.observers {
		if err := obs.OnDayEnd(report); err != nil {
			logger.Warn("[SESSION] observer day end: %v", err)
		}
	}
	d.closedBefore = len(closed)
	return outcomes, summary, nil
}

func (d *Driver) emit(outcomes ...Outcome) []Outcome {
	for _, o := range outcomes {
		for _, obs := range d.observers {
			if err := obs.OnOutcome(o); err != nil {
				logger.Warn("[SESSION] observer %s %s: %v", o.Symbol, o.Kind, err)
			}
		}
	}
	return outcomes
}
