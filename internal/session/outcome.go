package session

import (
	"fmt"
	"time"

	"orbtrader/internal/risk"
	"orbtrader/pkg/logger"
)

// Kind is the per-bar decision
type Kind string

const (
	KindNoSetup Kind = "NO_SETUP"
	KindEntered Kind = "ENTERED"
	KindHold    Kind = "HOLD"
	KindExited  Kind = "EXITED"
)

// Outcome is the decision for one symbol on one bar.
// Entered carries price/qty/stop/target; Exited carries price/reason/pnl.
type Outcome struct {
	Kind       Kind      `json:"kind"`
	Symbol     string    `json:"symbol"`
	Time       time.Time `json:"time"`
	Price      float64   `json:"price,omitempty"`
	Quantity   float64   `json:"quantity,omitempty"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Reason     string    `json:"reason"`
	PnL        float64   `json:"pnl,omitempty"`
	TradeID    string    `json:"trade_id,omitempty"`

	Trade *risk.Trade `json:"-"`
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindEntered:
		return fmt.Sprintf("%s LONG %.4f @ $%.2f | SL $%.2f | TP $%.2f",
			o.Symbol, o.Quantity, o.Price, o.StopLoss, o.TakeProfit)
	case KindExited:
		return fmt.Sprintf("%s EXIT @ $%.2f (%s) | PnL $%+.2f", o.Symbol, o.Price, o.Reason, o.PnL)
	default:
		return fmt.Sprintf("%s %s: %s", o.Symbol, o.Kind, o.Reason)
	}
}

// DayReport is handed to observers after the end-of-day close
type DayReport struct {
	Date    time.Time
	Summary risk.Summary
	Trades  []*risk.Trade // trades closed on this date
}

// Observer receives decisions as the driver makes them. Errors are logged
// and never stop the session.
type Observer interface {
	OnOutcome(o Outcome) error
	OnDayEnd(r DayReport) error
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped
type ObserverFuncs struct {
	Outcome func(Outcome) error
	DayEnd  func(DayReport) error
}

func (f ObserverFuncs) OnOutcome(o Outcome) error {
	if f.Outcome == nil {
		return nil
	}
	return f.Outcome(o)
}

func (f ObserverFuncs) OnDayEnd(r DayReport) error {
	if f.DayEnd == nil {
		return nil
	}
	return f.DayEnd(r)
}

// LogObserver writes entries and exits to the process logger
type LogObserver struct {
	// Verbose also logs NO_SETUP and HOLD decisions
	Verbose bool
}

func (l LogObserver) OnOutcome(o Outcome) error {
	switch o.Kind {
	case KindEntered, KindExited:
		logger.Info("[SESSION] %s", o)
	default:
		if l.Verbose {
			logger.Debug("[SESSION] %s", o)
		}
	}
	return nil
}

func (l LogObserver) OnDayEnd(r DayReport) error {
	s := r.Summary
	logger.Info("[SESSION] %s done: capital $%.2f | PnL $%+.2f (%+.2f%%) | trades %d | halted %v",
		r.Date.Format("2006-01-02"), s.EndingCapital, s.DailyPnL, s.DailyPnLPct, s.TradesCount, s.KillSwitchTripped)
	return nil
}
