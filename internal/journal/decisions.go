package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"orbtrader/internal/session"
)

var decisionHeader = []string{
	"timestamp_utc", "bar_time", "symbol", "decision", "price",
	"quantity", "stop_loss", "take_profit", "pnl", "reason", "trade_id",
}

// DecisionLog appends every session outcome to a CSV file (decisions.csv)
type DecisionLog struct {
	mu     sync.Mutex
	f      *os.File
	w      *csv.Writer
	now    func() time.Time
	skipNo bool
}

// NewDecisionLog opens path for appending, writing the header to a new file.
// With skipNoSetup, NO_SETUP rows are left out.
func NewDecisionLog(path string, skipNoSetup bool) (*DecisionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening decision log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	l := &DecisionLog{f: f, w: csv.NewWriter(f), now: time.Now, skipNo: skipNoSetup}
	if info.Size() == 0 {
		if err := l.w.Write(decisionHeader); err != nil {
			f.Close()
			return nil, err
		}
		l.w.Flush()
	}
	return l, l.w.Error()
}

func (l *DecisionLog) OnOutcome(o session.Outcome) error {
	if l.skipNo && o.Kind == session.KindNoSetup {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var barTime string
	if !o.Time.IsZero() {
		barTime = o.Time.UTC().Format(time.RFC3339)
	}
	pnl := num(o.PnL)
	if o.Kind == session.KindExited {
		pnl = strconv.FormatFloat(o.PnL, 'f', -1, 64)
	}
	rec := []string{
		l.now().UTC().Format(time.RFC3339),
		barTime,
		o.Symbol,
		string(o.Kind),
		num(o.Price),
		num(o.Quantity),
		num(o.StopLoss),
		num(o.TakeProfit),
		pnl,
		o.Reason,
		o.TradeID,
	}
	if err := l.w.Write(rec); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *DecisionLog) OnDayEnd(session.DayReport) error {
	return nil
}

func (l *DecisionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

func num(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
