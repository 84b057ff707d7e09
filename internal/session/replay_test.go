package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbtrader/internal/market"
	"orbtrader/internal/risk"
	"orbtrader/internal/strategy"
	"orbtrader/pkg/model"
)

func newReplayDriver(cfg risk.Config, obs ...Observer) *Driver {
	return NewDriver(strategy.DefaultConfig(), risk.NewEngine(cfg), market.NewClock(nil), obs...)
}

func TestReplayTwoDays(t *testing.T) {
	rec := &recorder{}
	d := newReplayDriver(risk.DefaultConfig(), rec)

	// day 1 ends flat at 103.5, day 2 hits the target
	bars := append(orbDay(jan11, 102.5, 103, 103.5), orbDay(jan12, 105, 111)...)

	result, err := Replay(context.Background(), d, []string{"ABC"}, map[string][]model.Bar{"ABC": bars})
	require.NoError(t, err)
	require.Len(t, result.Days, 2)

	closed := d.Engine().ClosedTrades()
	require.Len(t, closed, 2)
	assert.Equal(t, strategy.ReasonEndOfDay, closed[0].ExitReason)
	assert.Equal(t, 103.5, *closed[0].ExitPrice)
	assert.Equal(t, strategy.ReasonTakeProfit, closed[1].ExitReason)

	assert.Equal(t, 1, result.Days[0].TradesCount)
	assert.Equal(t, 1, result.Days[1].TradesCount)
	assert.InDelta(t, result.Days[0].EndingCapital, result.Days[1].StartingCapital, 1e-9)

	require.Len(t, rec.days, 2)
	assert.Equal(t, "2024-01-11", rec.days[0].Date.Format("2006-01-02"))
	assert.Equal(t, "2024-01-12", rec.days[1].Date.Format("2006-01-02"))

	// ledger
	var sum float64
	for _, tr := range closed {
		sum += tr.PnL
	}
	assert.InDelta(t, 40+sum, d.Engine().Account().CurrentCapital, 1e-9)
}

func TestReplayHaltStopsTheDay(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxTradesPerDay = 5
	rec := &recorder{}
	d := newReplayDriver(cfg, rec)

	// AAA stops out at 09:42; BBB would break out at 09:45
	aaa := orbDay(jan11, 101, 99)
	bbb := append(orbDay(jan11)[:10], mkBar(et(jan11, 9, 45), 102.5, 101.2, 102.0, 1500))

	result, err := Replay(context.Background(), d, []string{"AAA", "BBB"},
		map[string][]model.Bar{"AAA": aaa, "BBB": bbb})
	require.NoError(t, err)
	require.Len(t, result.Days, 1)
	assert.True(t, result.Days[0].KillSwitchTripped)

	for _, o := range rec.outcomes {
		assert.False(t, o.Time.After(et(jan11, 9, 42)), "%s stepped after the halt", o)
	}
	assert.Len(t, d.Engine().ClosedTrades(), 1)
}

func TestReplayHaltClosesOpenPositionsAtHaltPrice(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxTradesPerDay = 5
	d := newReplayDriver(cfg)

	// BBB enters at 09:40 (stop 100); AAA enters at 09:41 and stops out at 09:42.
	// BBB then collapses through its stop, which must not reach the ledger.
	bbb := orbDay(jan11, 103, 103, 99, 95, 90)
	aaa := orbDay(jan11)
	for i := range aaa {
		aaa[i].Time = aaa[i].Time.Add(time.Minute)
	}
	aaa = append(aaa, mkBar(et(jan11, 9, 42), 99.1, 98.9, 99, 900))

	result, err := Replay(context.Background(), d, []string{"AAA", "BBB"},
		map[string][]model.Bar{"AAA": aaa, "BBB": bbb})
	require.NoError(t, err)

	closed := d.Engine().ClosedTrades()
	require.Len(t, closed, 2)
	assert.Equal(t, "AAA", closed[0].Symbol)
	assert.Equal(t, strategy.ReasonStopLoss, closed[0].ExitReason)

	assert.Equal(t, "BBB", closed[1].Symbol)
	assert.Equal(t, strategy.ReasonEndOfDay, closed[1].ExitReason)
	assert.Equal(t, 103.0, *closed[1].ExitPrice, "closed at the halt-time bar")
	assert.True(t, closed[1].ExitTime.Equal(et(jan11, 9, 42)))
	assert.Greater(t, closed[1].PnL, 0.0)
	assert.Empty(t, d.Engine().OpenTrades())

	require.Len(t, result.Days, 1)
	assert.InDelta(t, closed[0].PnL+closed[1].PnL, result.Days[0].DailyPnL, 1e-9)
}

func TestLastBarAt(t *testing.T) {
	bars := orbDay(jan11, 103, 104)

	b, ok := lastBarAt(bars, time.Time{})
	require.True(t, ok)
	assert.Equal(t, 104.0, b.Close)

	b, ok = lastBarAt(bars, et(jan11, 9, 41))
	require.True(t, ok)
	assert.Equal(t, 103.0, b.Close)

	_, ok = lastBarAt(bars, et(jan11, 9, 0))
	assert.False(t, ok)
}

func TestReplaySymbolOrderDecidesLastSlot(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.MaxTradesPerDay = 1

	bars := map[string][]model.Bar{"AAA": orbDay(jan11), "BBB": orbDay(jan11)}

	for _, order := range [][]string{{"AAA", "BBB"}, {"BBB", "AAA"}} {
		rec := &recorder{}
		d := newReplayDriver(cfg, rec)
		_, err := Replay(context.Background(), d, order, bars)
		require.NoError(t, err)

		assert.Len(t, rec.kinds(order[0], KindEntered), 1, "order %v", order)
		assert.Empty(t, rec.kinds(order[1], KindEntered), "order %v", order)
	}
}

func TestReplayUnsortedInput(t *testing.T) {
	d := newReplayDriver(risk.DefaultConfig())
	bars := orbDay(jan11, 104, 111)
	reversed := make([]model.Bar, len(bars))
	for i, b := range bars {
		reversed[len(bars)-1-i] = b
	}

	_, err := Replay(context.Background(), d, []string{"ABC"}, map[string][]model.Bar{"ABC": reversed})
	require.NoError(t, err)
	closed := d.Engine().ClosedTrades()
	require.Len(t, closed, 1)
	assert.Equal(t, strategy.ReasonTakeProfit, closed[0].ExitReason)
}

func TestReplayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newReplayDriver(risk.DefaultConfig())
	result, err := Replay(ctx, d, []string{"ABC"}, map[string][]model.Bar{"ABC": orbDay(jan11)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Days)
}
