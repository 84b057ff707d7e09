package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"orbtrader/pkg/logger"
)

var (
	// ErrAdmissionDenied is wrapped by every AdmissionError
	ErrAdmissionDenied = errors.New("trade admission denied")
	// ErrTradeNotOpen is returned when closing a trade that is not in the open set
	ErrTradeNotOpen = errors.New("trade is not open")
)

// AdmissionError explains why OpenTrade refused a trade.
// It is a normal decision outcome, not a fault.
type AdmissionError struct {
	Symbol string
	Reason string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("cannot open %s: %s", e.Symbol, e.Reason)
}

func (e *AdmissionError) Unwrap() error {
	return ErrAdmissionDenied
}

// Config holds kill switch and sizing parameters
type Config struct {
	StartingCapital    float64 `yaml:"starting_capital"`
	RiskPerTradePct    float64 `yaml:"risk_per_trade_pct"`   // 0.02 = risk 2% of capital per trade
	MaxTradesPerDay    int     `yaml:"max_trades_per_day"`
	StopAfterFirstLoss bool    `yaml:"stop_after_first_loss"`
	MaxDailyLossPct    float64 `yaml:"max_daily_loss_pct"`   // negative, -0.08 = -8%
	MaxPositionPct     float64 `yaml:"max_position_pct"`     // notional cap as share of capital, 0 = uncapped
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		StartingCapital:    40.0,
		RiskPerTradePct:    0.02,
		MaxTradesPerDay:    2,
		StopAfterFirstLoss: true,
		MaxDailyLossPct:    -0.08,
		MaxPositionPct:     0,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.StartingCapital <= 0 {
		return fmt.Errorf("starting_capital must be positive")
	}
	if c.RiskPerTradePct <= 0 || c.RiskPerTradePct > 1 {
		return fmt.Errorf("risk_per_trade_pct must be in (0, 1]")
	}
	if c.MaxTradesPerDay < 1 {
		return fmt.Errorf("max_trades_per_day must be at least 1")
	}
	if c.MaxDailyLossPct >= 0 {
		return fmt.Errorf("max_daily_loss_pct must be negative")
	}
	if c.MaxPositionPct < 0 {
		return fmt.Errorf("max_position_pct must not be negative")
	}
	return nil
}

// Trade is a single long position. Only the Engine mutates it.
type Trade struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	EntryPrice float64    `json:"entry_price"`
	EntryTime  time.Time  `json:"entry_time"`
	Quantity   float64    `json:"quantity"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	ExitPrice  *float64   `json:"exit_price"`
	ExitTime   *time.Time `json:"exit_time"`
	ExitReason string     `json:"exit_reason,omitempty"`
	PnL        float64    `json:"pnl"`
	PnLPct     float64    `json:"pnl_pct"`
}

// IsOpen reports whether the trade has not been closed yet
func (t *Trade) IsOpen() bool {
	return t.ExitPrice == nil
}

// Notional is the entry value of the position
func (t *Trade) Notional() float64 {
	return t.EntryPrice * t.Quantity
}

func (t *Trade) close(exitPrice float64, exitTime time.Time, reason string) {
	t.ExitPrice = &exitPrice
	t.ExitTime = &exitTime
	t.ExitReason = reason
	t.PnL = (exitPrice - t.EntryPrice) * t.Quantity
	t.PnLPct = (exitPrice/t.EntryPrice - 1) * 100
}

// Account is the capital ledger
type Account struct {
	StartingCapital float64 `json:"starting_capital"`
	CurrentCapital  float64 `json:"current_capital"`
}

// DailySession holds the per-date kill switch counters
type DailySession struct {
	TradingDate    time.Time `json:"trading_date"`
	TradesToday    int       `json:"trades_today"`
	LosingTradeHit bool      `json:"losing_trade_hit"`
	DailyPnL       float64   `json:"daily_pnl"`
}

// Summary is the daily/session report
type Summary struct {
	TradingDate       time.Time `json:"trading_date"`
	StartingCapital   float64   `json:"starting_capital"`
	EndingCapital     float64   `json:"ending_capital"`
	DailyPnL          float64   `json:"daily_pnl"`
	DailyPnLPct       float64   `json:"daily_pnl_pct"`
	TradesCount       int       `json:"trades_count"`
	KillSwitchTripped bool      `json:"kill_switch_tripped"`
	OpenTrades        int       `json:"open_trades"`
	ClosedTrades      int       `json:"closed_trades"`
}

// Engine owns the account, the daily session and the trade ledger.
// It is not safe for concurrent use; the session driver is single-threaded.
type Engine struct {
	config  Config
	account Account
	daily   DailySession

	open   []*Trade
	closed []*Trade

	newID func() string
}

// NewEngine creates an engine funded with cfg.StartingCapital
func NewEngine(cfg Config) *Engine {
	return &Engine{
		config: cfg,
		account: Account{
			StartingCapital: cfg.StartingCapital,
			CurrentCapital:  cfg.StartingCapital,
		},
		newID: uuid.NewString,
	}
}

func (e *Engine) Config() Config             { return e.config }
func (e *Engine) Account() Account           { return e.account }
func (e *Engine) DailySession() DailySession { return e.daily }

// ResetDailyLimits starts a new trading date. Open trades are untouched;
// the driver closes them at the end of every date.
func (e *Engine) ResetDailyLimits(date time.Time) {
	e.daily = DailySession{TradingDate: date}
}

// CanOpenTrade evaluates the kill switches in fixed order
func (e *Engine) CanOpenTrade() (bool, string) {
	if e.daily.TradesToday >= e.config.MaxTradesPerDay {
		return false, fmt.Sprintf("max trades per day reached (%d)", e.config.MaxTradesPerDay)
	}

	if e.config.StopAfterFirstLoss && e.daily.LosingTradeHit {
		return false, "stopped after losing trade"
	}

	lossPct := e.daily.DailyPnL / e.account.StartingCapital
	if lossPct <= e.config.MaxDailyLossPct {
		return false, fmt.Sprintf("max daily loss reached (%.2f%% <= %.2f%%)",
			lossPct*100, e.config.MaxDailyLossPct*100)
	}

	return true, "ok"
}

// KillSwitchTripped reports whether no further entries are possible today
// because of a loss. The trade count limit alone does not trip it.
func (e *Engine) KillSwitchTripped() bool {
	if e.config.StopAfterFirstLoss && e.daily.LosingTradeHit {
		return true
	}
	return e.daily.DailyPnL/e.account.StartingCapital <= e.config.MaxDailyLossPct
}

// SizePosition returns the risk-based share quantity (fractional).
// Zero when the stop is not below the entry.
func (e *Engine) SizePosition(entryPrice, stopLoss float64) float64 {
	riskPerShare := entryPrice - stopLoss
	if riskPerShare <= 0 {
		return 0
	}

	qty := e.account.CurrentCapital * e.config.RiskPerTradePct / riskPerShare

	if e.config.MaxPositionPct > 0 && entryPrice > 0 {
		maxQty := e.account.CurrentCapital * e.config.MaxPositionPct / entryPrice
		if qty > maxQty {
			qty = maxQty
		}
	}
	return qty
}

// OpenTrade admits, sizes and records a new trade. Capital is unchanged
// until the trade closes.
func (e *Engine) OpenTrade(symbol string, entryPrice, stopLoss, takeProfit float64, entryTime time.Time) (*Trade, error) {
	if ok, reason := e.CanOpenTrade(); !ok {
		return nil, &AdmissionError{Symbol: symbol, Reason: reason}
	}

	qty := e.SizePosition(entryPrice, stopLoss)
	if qty <= 0 {
		return nil, &AdmissionError{Symbol: symbol, Reason: "position size <= 0"}
	}

	trade := &Trade{
		ID:         e.newID(),
		Symbol:     symbol,
		EntryPrice: entryPrice,
		EntryTime:  entryTime,
		Quantity:   qty,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}
	e.open = append(e.open, trade)
	e.daily.TradesToday++

	logger.Debug("[RISK] opened %s qty=%.4f @ $%.2f stop=$%.2f target=$%.2f",
		symbol, qty, entryPrice, stopLoss, takeProfit)
	return trade, nil
}

// CloseTrade realizes the trade's PnL. It fails with ErrTradeNotOpen for a
// trade that is not in the open set, including a second close of the same trade.
func (e *Engine) CloseTrade(trade *Trade, exitPrice float64, reason string, exitTime time.Time) error {
	idx := -1
	for i, t := range e.open {
		if t == trade {
			idx = i
			break
		}
	}
	if idx < 0 || trade == nil || !trade.IsOpen() {
		sym := ""
		if trade != nil {
			sym = trade.Symbol
		}
		return fmt.Errorf("closing %s: %w", sym, ErrTradeNotOpen)
	}

	trade.close(exitPrice, exitTime, reason)

	e.open = append(e.open[:idx], e.open[idx+1:]...)
	e.closed = append(e.closed, trade)

	e.daily.DailyPnL += trade.PnL
	e.account.CurrentCapital += trade.PnL
	if trade.PnL < 0 {
		e.daily.LosingTradeHit = true
	}

	logger.Debug("[RISK] closed %s @ $%.2f (%s) pnl=$%.4f capital=$%.4f",
		trade.Symbol, exitPrice, reason, trade.PnL, e.account.CurrentCapital)
	return nil
}

// OpenPosition returns the open trade for symbol, if any
func (e *Engine) OpenPosition(symbol string) (*Trade, bool) {
	for _, t := range e.open {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return nil, false
}

// OpenTrades returns the open trades in opening order
func (e *Engine) OpenTrades() []*Trade {
	out := make([]*Trade, len(e.open))
	copy(out, e.open)
	return out
}

// ClosedTrades returns every closed trade in closing order
func (e *Engine) ClosedTrades() []*Trade {
	out := make([]*Trade, len(e.closed))
	copy(out, e.closed)
	return out
}

// Summary reports the current trading date. DailyPnLPct is measured against
// the account's starting capital, the same base the daily loss limit uses;
// StartingCapital is the capital the day opened with.
func (e *Engine) Summary() Summary {
	var pct float64
	if e.account.StartingCapital > 0 {
		pct = e.daily.DailyPnL / e.account.StartingCapital * 100
	}
	return Summary{
		TradingDate:       e.daily.TradingDate,
		StartingCapital:   e.account.CurrentCapital - e.daily.DailyPnL,
		EndingCapital:     e.account.CurrentCapital,
		DailyPnL:          e.daily.DailyPnL,
		DailyPnLPct:       pct,
		TradesCount:       e.daily.TradesToday,
		KillSwitchTripped: e.KillSwitchTripped(),
		OpenTrades:        len(e.open),
		ClosedTrades:      len(e.closed),
	}
}
