package strategy

// SignalType represents the type of trading signal
type SignalType string

const (
	SignalNoSetup      SignalType = "NO_SETUP"
	SignalLongBreakout SignalType = "LONG_BREAKOUT"
	SignalExitProfit   SignalType = "EXIT_PROFIT"
	SignalExitLoss     SignalType = "EXIT_LOSS"
	SignalHold         SignalType = "HOLD"
)

// State is the per-day lifecycle of one symbol's strategy
type State int

const (
	StateAwaitingRange State = iota
	StateRangeReady
	StateAwaitingBreakout
	StateInPosition
)

func (s State) String() string {
	switch s {
	case StateAwaitingRange:
		return "awaiting_range"
	case StateRangeReady:
		return "range_ready"
	case StateAwaitingBreakout:
		return "awaiting_breakout"
	case StateInPosition:
		return "in_position"
	}
	return "unknown"
}

// Exit reasons recorded on closed trades
const (
	ReasonStopLoss     = "stop loss"
	ReasonTakeProfit   = "take profit"
	ReasonTrailingStop = "trailing stop"
	ReasonEndOfDay     = "end of day"
)

// OpeningRange is the high/low band of the first minutes after the open
type OpeningRange struct {
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Width     float64 `json:"range_width"`
	AvgVolume float64 `json:"avg_volume"`
	Bars      int     `json:"bars"`
}

// EntrySignal is the result of a breakout check
type EntrySignal struct {
	Type       SignalType `json:"signal"`
	EntryPrice float64    `json:"entry_price,omitempty"`
	Reason     string     `json:"reason"`
}

// Levels are the stop and target prices derived from an entry
type Levels struct {
	StopLoss           float64 `json:"stop_loss"`
	TakeProfit         float64 `json:"take_profit"`           // conservative target
	AggressiveTarget   float64 `json:"take_profit_aggressive"`
	TrailingActivation float64 `json:"trailing_stop_start"`
	RiskPerShare       float64 `json:"risk_per_share"`
}

// ExitSignal is the result of an exit evaluation
type ExitSignal struct {
	Type      SignalType `json:"signal"`
	ExitPrice float64    `json:"exit_price,omitempty"`
	Reason    string     `json:"reason"`
	Detail    string     `json:"detail,omitempty"`
}

// Hold reports whether the position stays open
func (e ExitSignal) Hold() bool {
	return e.Type == SignalHold
}
