package journal

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbtrader/internal/market"
	"orbtrader/internal/risk"
	"orbtrader/internal/session"
)

func et(day, h, m int) time.Time {
	return time.Date(2024, 1, day, h, m, 0, 0, market.GetETLocation())
}

func closed(id, symbol string, entry, exit, qty float64, at time.Time) *risk.Trade {
	exitTime := at.Add(10 * time.Minute)
	return &risk.Trade{
		ID: id, Symbol: symbol, EntryPrice: entry, EntryTime: at, Quantity: qty,
		StopLoss: entry * 0.98, TakeProfit: entry * 1.08,
		ExitPrice: &exit, ExitTime: &exitTime, ExitReason: "take profit",
		PnL: (exit - entry) * qty, PnLPct: (exit/entry - 1) * 100,
	}
}

func report(day int, trades ...*risk.Trade) session.DayReport {
	var pnl float64
	for _, t := range trades {
		pnl += t.PnL
	}
	return session.DayReport{
		Date:    time.Date(2024, 1, day, 0, 0, 0, 0, market.GetETLocation()),
		Trades:  trades,
		Summary: risk.Summary{StartingCapital: 40, EndingCapital: 40 + pnl, DailyPnL: pnl, TradesCount: len(trades)},
	}
}

func TestJSONSinkAppendsAcrossDays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trades.json")
	sink := NewJSONSink(path)

	a := closed("a", "AAPL", 102, 110.16, 0.4, et(11, 9, 40))
	require.NoError(t, sink.RecordDay(report(11, a)))
	require.NoError(t, sink.RecordDay(report(11, a)), "same trade twice is stored once")
	require.NoError(t, sink.RecordDay(report(12)))
	require.NoError(t, sink.RecordDay(report(12, closed("b", "TSLA", 200, 196, 0.2, et(12, 9, 45)))))

	trades, err := LoadTrades(path)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "AAPL", trades[0].Symbol)
	require.NotNil(t, trades[0].ExitPrice)
	assert.Equal(t, 110.16, *trades[0].ExitPrice)
	assert.True(t, trades[0].EntryTime.Equal(a.EntryTime))
	assert.InDelta(t, -0.8, trades[1].PnL, 1e-9)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"exit_reason": "take profit"`)
	assert.Contains(t, string(raw), `"pnl_pct"`)
}

func TestLoadTradesMissingFile(t *testing.T) {
	trades, err := LoadTrades(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestLoadTradesCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := LoadTrades(path)
	assert.Error(t, err)
}

func TestSQLiteSink(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "orb.db"))
	require.NoError(t, err)
	defer sink.Close()

	a := closed("a", "AAPL", 102, 110.16, 0.4, et(11, 9, 40))
	b := closed("b", "TSLA", 200, 196, 0.2, et(12, 9, 45))
	require.NoError(t, sink.RecordDay(report(11, a)))
	require.NoError(t, sink.RecordDay(report(11, a)))
	require.NoError(t, sink.RecordDay(report(12, b)))

	trades, err := sink.Trades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "a", trades[0].ID)
	assert.Equal(t, 0.4, trades[0].Quantity)
	require.NotNil(t, trades[0].ExitTime)
	assert.True(t, trades[0].ExitTime.Equal(*a.ExitTime))
	assert.Equal(t, "take profit", trades[0].ExitReason)
	assert.InDelta(t, b.PnL, trades[1].PnL, 1e-9)

	n, err := sink.SessionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStateStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStateStore(path, nil)

	assert.False(t, store.AlreadyTradedToday("AAPL", et(11, 9, 0)))
	require.NoError(t, store.MarkTraded("aapl", et(11, 9, 40)))

	// 23:30 ET on Jan 11 is already Jan 12 in UTC; the exchange date counts
	assert.True(t, store.AlreadyTradedToday("AAPL", et(11, 23, 30)))
	assert.False(t, store.AlreadyTradedToday("AAPL", et(12, 9, 0)))
	assert.Equal(t, []string{"TSLA"}, store.Filter([]string{"AAPL", "TSLA"}, et(11, 10, 0)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"AAPL_last_trade_date":"2024-01-11"}`, string(raw))

	reopened := NewStateStore(path, nil)
	assert.True(t, reopened.AlreadyTradedToday("AAPL", et(11, 15, 0)))

	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))
	require.NoError(t, reopened.Reload())
	assert.False(t, reopened.AlreadyTradedToday("AAPL", et(11, 15, 0)))
}

func TestStateStoreCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("null"), 0644))
	store := NewStateStore(path, nil)
	require.NoError(t, store.MarkTraded("AAPL", et(11, 9, 40)))

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	store = NewStateStore(path, nil)
	assert.False(t, store.AlreadyTradedToday("AAPL", et(11, 9, 40)))
}

func TestDecisionLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.csv")
	log, err := NewDecisionLog(path, true)
	require.NoError(t, err)
	log.now = func() time.Time { return et(11, 9, 41) }

	require.NoError(t, log.OnOutcome(session.Outcome{Kind: session.KindNoSetup, Symbol: "AAPL", Reason: "no breakout yet"}))
	require.NoError(t, log.OnOutcome(session.Outcome{Kind: session.KindEntered, Symbol: "AAPL", Time: et(11, 9, 40),
		Price: 102, Quantity: 0.4, StopLoss: 99.96, TakeProfit: 110.16, Reason: "breakout", TradeID: "t1"}))
	require.NoError(t, log.OnOutcome(session.Outcome{Kind: session.KindExited, Symbol: "AAPL", Time: et(11, 9, 50),
		Price: 102, Quantity: 0.4, Reason: "end of day", TradeID: "t1"}))
	require.NoError(t, log.Close())

	// reopening appends without a second header
	log, err = NewDecisionLog(path, false)
	require.NoError(t, err)
	require.NoError(t, log.OnOutcome(session.Outcome{Kind: session.KindNoSetup, Symbol: "TSLA", Reason: "outside trading window"}))
	require.NoError(t, log.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, decisionHeader, rows[0])
	assert.Equal(t, []string{"2024-01-11T14:41:00Z", "2024-01-11T14:40:00Z", "AAPL", "ENTERED", "102",
		"0.4", "99.96", "110.16", "", "breakout", "t1"}, rows[1])
	assert.Equal(t, "0", rows[2][8], "zero pnl on an exit is written")
	assert.Equal(t, "TSLA", rows[3][2])
	assert.Equal(t, "", rows[3][1])
}

type memSink struct {
	days   []session.DayReport
	closed bool
}

func (m *memSink) RecordDay(r session.DayReport) error {
	m.days = append(m.days, r)
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func TestRecorder(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), "state.json"), nil)
	sink := &memSink{}
	rec := NewRecorder(store, sink)

	require.NoError(t, rec.OnOutcome(session.Outcome{Kind: session.KindNoSetup, Symbol: "TSLA", Time: et(11, 9, 40)}))
	require.NoError(t, rec.OnOutcome(session.Outcome{Kind: session.KindEntered, Symbol: "AAPL", Time: et(11, 9, 40)}))
	assert.True(t, store.AlreadyTradedToday("AAPL", et(11, 12, 0)))
	assert.False(t, store.AlreadyTradedToday("TSLA", et(11, 12, 0)))

	require.NoError(t, rec.OnDayEnd(report(11)))
	assert.Len(t, sink.days, 1)
	require.NoError(t, rec.Close())
	assert.True(t, sink.closed)
}
