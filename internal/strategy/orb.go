package strategy

import (
	"fmt"
	"time"

	"orbtrader/internal/market"
	"orbtrader/pkg/model"
)

// Config holds configuration for the opening range breakout strategy
type Config struct {
	MarketOpen          market.TimeOfDay `yaml:"market_open"`
	OpeningRangeMinutes int              `yaml:"opening_range_minutes"`
	WindowStart         market.TimeOfDay `yaml:"window_start"`
	WindowEnd           market.TimeOfDay `yaml:"window_end"`
	VolumeMultiplier    float64          `yaml:"volume_multiplier"` // breakout volume vs opening range average

	ConservativeTargetPct float64 `yaml:"target_pct_conservative"` // e.g. 0.08 = +8%
	AggressiveTargetPct   float64 `yaml:"target_pct_aggressive"`

	UseTrailingStop     bool    `yaml:"use_trailing_stop"`
	TrailingTriggerPct  float64 `yaml:"trailing_trigger_pct"`  // start trailing after +6%
	TrailingDistancePct float64 `yaml:"trailing_distance_pct"` // 2% below the high
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		MarketOpen:          market.TimeOfDay{Hour: 9, Minute: 30},
		OpeningRangeMinutes: 5,
		WindowStart:         market.TimeOfDay{Hour: 9, Minute: 35},
		WindowEnd:           market.TimeOfDay{Hour: 10, Minute: 30},
		VolumeMultiplier:    1.5,

		ConservativeTargetPct: 0.08,
		AggressiveTargetPct:   0.12,

		UseTrailingStop:     false,
		TrailingTriggerPct:  0.06,
		TrailingDistancePct: 0.02,
	}
}

// Validate checks the window ordering and percentages
func (c Config) Validate() error {
	if c.OpeningRangeMinutes < 1 {
		return fmt.Errorf("opening_range_minutes must be at least 1")
	}
	if c.WindowEnd.Offset() < c.WindowStart.Offset() {
		return fmt.Errorf("window_end %s is before window_start %s", c.WindowEnd, c.WindowStart)
	}
	if c.VolumeMultiplier < 0 {
		return fmt.Errorf("volume_multiplier must not be negative")
	}
	if c.ConservativeTargetPct <= 0 {
		return fmt.Errorf("target_pct_conservative must be positive")
	}
	if c.UseTrailingStop && (c.TrailingDistancePct <= 0 || c.TrailingDistancePct >= 1) {
		return fmt.Errorf("trailing_distance_pct must be in (0, 1)")
	}
	return nil
}

// OpeningRangeBreakout is the per-(symbol, trading date) state machine.
// A fresh instance is created for every symbol on every date.
type OpeningRangeBreakout struct {
	config Config
	clock  *market.Clock
	symbol string

	state        State
	openingRange *OpeningRange

	// trailing stop bookkeeping for the current position
	highWater float64
	trailing  *float64
	levels    Levels
}

// NewOpeningRangeBreakout creates the strategy for one symbol and date
func NewOpeningRangeBreakout(cfg Config, clock *market.Clock, symbol string) *OpeningRangeBreakout {
	return &OpeningRangeBreakout{
		config: cfg,
		clock:  clock,
		symbol: symbol,
		state:  StateAwaitingRange,
	}
}

// Name returns the strategy name
func (s *OpeningRangeBreakout) Name() string {
	return "opening-range-breakout"
}

// Description returns the strategy description
func (s *OpeningRangeBreakout) Description() string {
	return fmt.Sprintf("ORB - Buy breaks above the first %dm range on volume, %s-%s ET",
		s.config.OpeningRangeMinutes, s.config.WindowStart, s.config.WindowEnd)
}

func (s *OpeningRangeBreakout) Symbol() string { return s.symbol }
func (s *OpeningRangeBreakout) State() State   { return s.state }

// OpeningRange returns a copy of the range, or nil while it is unset
func (s *OpeningRangeBreakout) OpeningRange() *OpeningRange {
	if s.openingRange == nil {
		return nil
	}
	r := *s.openingRange
	return &r
}

// HasRange reports whether the opening range has been computed
func (s *OpeningRangeBreakout) HasRange() bool {
	return s.openingRange != nil
}

// ComputeOpeningRange builds the range from bars inside
// [open, open+OpeningRangeMinutes). It is a no-op once the range is set.
func (s *OpeningRangeBreakout) ComputeOpeningRange(bars []model.Bar) *OpeningRange {
	if s.openingRange != nil {
		return s.OpeningRange()
	}

	start := s.config.MarketOpen.Offset()
	end := start + time.Duration(s.config.OpeningRangeMinutes)*time.Minute

	var (
		r        OpeningRange
		totalVol int64
	)
	for _, b := range bars {
		tod, ok := s.clock.SinceMidnight(b.Time)
		if !ok || tod < start || tod >= end {
			continue
		}
		if r.Bars == 0 || b.High > r.High {
			r.High = b.High
		}
		if r.Bars == 0 || b.Low < r.Low {
			r.Low = b.Low
		}
		totalVol += b.Volume
		r.Bars++
	}

	if r.Bars == 0 {
		return nil
	}

	r.Width = r.High - r.Low
	r.AvgVolume = float64(totalVol) / float64(r.Bars)
	s.openingRange = &r
	s.state = StateRangeReady
	return s.OpeningRange()
}

// CheckBreakout checks whether bar breaks above the opening range high on volume.
// The decision uses the bar's high; the fill is the bar's close.
func (s *OpeningRangeBreakout) CheckBreakout(bar model.Bar, volumeMultiplier float64) EntrySignal {
	if s.openingRange == nil {
		return noSetup("no opening range")
	}
	if s.state == StateInPosition {
		return noSetup("position already open")
	}
	if s.state == StateRangeReady {
		s.state = StateAwaitingBreakout
	}
	if s.openingRange.Width <= 0 {
		return noSetup("zero-width opening range")
	}

	tod, ok := s.clock.SinceMidnight(bar.Time)
	if !ok {
		return noSetup("bar has no timestamp")
	}
	if tod < s.config.WindowStart.Offset() || tod > s.config.WindowEnd.Offset() {
		return noSetup("outside trading window")
	}

	minVolume := s.openingRange.AvgVolume * volumeMultiplier
	if float64(bar.Volume) < minVolume {
		return noSetup(fmt.Sprintf("volume too low (%d < %.0f)", bar.Volume, minVolume))
	}

	if bar.High > s.openingRange.High {
		return EntrySignal{
			Type:       SignalLongBreakout,
			EntryPrice: bar.Close,
			Reason: fmt.Sprintf("breakout above range high $%.2f on volume, entry at $%.2f",
				s.openingRange.High, bar.Close),
		}
	}

	return noSetup("no breakout yet")
}

// DeriveLevels computes stop and targets for an entry. Pure.
func (s *OpeningRangeBreakout) DeriveLevels(entryPrice float64) (Levels, bool) {
	if s.openingRange == nil {
		return Levels{}, false
	}
	return Levels{
		StopLoss:           s.openingRange.Low,
		TakeProfit:         entryPrice * (1 + s.config.ConservativeTargetPct),
		AggressiveTarget:   entryPrice * (1 + s.config.AggressiveTargetPct),
		TrailingActivation: entryPrice * (1 + s.config.TrailingTriggerPct),
		RiskPerShare:       entryPrice - s.openingRange.Low,
	}, true
}

// OnEntry moves the machine into a position after the risk engine admitted it
func (s *OpeningRangeBreakout) OnEntry(levels Levels) {
	s.state = StateInPosition
	s.levels = levels
	s.highWater = 0
	s.trailing = nil
}

// OnExit returns the machine to waiting for the next breakout
func (s *OpeningRangeBreakout) OnExit() {
	s.state = StateAwaitingBreakout
	s.levels = Levels{}
	s.highWater = 0
	s.trailing = nil
}

// UpdateTrailing records price against the position's high-water mark and
// returns the active trailing stop level, or nil when trailing is disabled
// or not yet activated. The level never moves down.
func (s *OpeningRangeBreakout) UpdateTrailing(price float64) *float64 {
	if !s.config.UseTrailingStop || s.state != StateInPosition {
		return nil
	}
	if price > s.highWater {
		s.highWater = price
	}
	if s.highWater < s.levels.TrailingActivation {
		return s.trailing
	}

	level := s.highWater * (1 - s.config.TrailingDistancePct)
	if s.trailing == nil || level > *s.trailing {
		s.trailing = &level
	}
	v := *s.trailing
	return &v
}

// EvaluateExit checks exit conditions in priority order: stop loss, take
// profit, trailing stop. A price through both stop and target exits at the stop.
func (s *OpeningRangeBreakout) EvaluateExit(currentPrice, stopLoss, takeProfit float64, trailingStop *float64) ExitSignal {
	return EvaluateExit(currentPrice, stopLoss, takeProfit, trailingStop)
}

// EvaluateExit is the stateless exit rule
func EvaluateExit(currentPrice, stopLoss, takeProfit float64, trailingStop *float64) ExitSignal {
	if currentPrice <= stopLoss {
		return ExitSignal{
			Type:      SignalExitLoss,
			ExitPrice: stopLoss,
			Reason:    ReasonStopLoss,
			Detail:    fmt.Sprintf("stop loss hit at $%.2f", stopLoss),
		}
	}

	if currentPrice >= takeProfit {
		return ExitSignal{
			Type:      SignalExitProfit,
			ExitPrice: takeProfit,
			Reason:    ReasonTakeProfit,
			Detail:    fmt.Sprintf("take profit hit at $%.2f", takeProfit),
		}
	}

	if trailingStop != nil && currentPrice <= *trailingStop {
		return ExitSignal{
			Type:      SignalExitProfit,
			ExitPrice: currentPrice,
			Reason:    ReasonTrailingStop,
			Detail:    fmt.Sprintf("trailing stop $%.2f hit, exit at $%.2f", *trailingStop, currentPrice),
		}
	}

	return ExitSignal{Type: SignalHold, Reason: "no exit condition"}
}

func noSetup(reason string) EntrySignal {
	return EntrySignal{Type: SignalNoSetup, Reason: reason}
}
