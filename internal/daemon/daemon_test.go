package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orbtrader/internal/market"
	"orbtrader/internal/risk"
)

func clockAt(t time.Time) *market.Clock {
	return market.NewClock(nil).WithNow(func() time.Time { return t })
}

func et(y int, m time.Month, d, h, mi int) time.Time {
	return time.Date(y, m, d, h, mi, 0, 0, market.GetETLocation())
}

func TestTriggerRunsOnTradingDays(t *testing.T) {
	var got time.Time
	run := func(_ context.Context, day time.Time) (risk.Summary, error) {
		got = day
		return risk.Summary{EndingCapital: 41}, nil
	}

	d := New(DefaultConfig(), clockAt(et(2024, 1, 11, 9, 25)), run)
	res := d.Trigger()

	assert.Empty(t, res.Skipped)
	assert.Equal(t, "2024-01-11", res.Date)
	assert.Equal(t, 41.0, res.Summary.EndingCapital)
	assert.True(t, got.Equal(et(2024, 1, 11, 0, 0)))
	assert.Len(t, d.History(), 1)
}

func TestTriggerSkipsClosedDays(t *testing.T) {
	calls := 0
	run := func(context.Context, time.Time) (risk.Summary, error) {
		calls++
		return risk.Summary{}, nil
	}

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"saturday", et(2024, 1, 13, 9, 25), "weekend"},
		{"sunday", et(2024, 1, 14, 9, 25), "weekend"},
		{"mlk day", et(2024, 1, 15, 9, 25), "holiday"},
		{"good friday", et(2025, 4, 18, 9, 25), "holiday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(DefaultConfig(), clockAt(tt.now), run).Trigger()
			assert.Equal(t, tt.want, res.Skipped)
		})
	}
	assert.Zero(t, calls)
}

func TestTriggerReportsSessionErrors(t *testing.T) {
	run := func(context.Context, time.Time) (risk.Summary, error) {
		return risk.Summary{}, errors.New("feed down")
	}
	res := New(DefaultConfig(), clockAt(et(2024, 1, 11, 9, 25)), run).Trigger()
	assert.EqualError(t, res.Err, "feed down")
}

func TestTriggerSkipsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	run := func(context.Context, time.Time) (risk.Summary, error) {
		close(started)
		<-release
		return risk.Summary{}, nil
	}
	d := New(DefaultConfig(), clockAt(et(2024, 1, 11, 9, 25)), run)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.Trigger()
	}()
	<-started

	assert.Equal(t, "busy", d.Trigger().Skipped)
	close(release)
	wg.Wait()
	assert.Len(t, d.History(), 2)
}

func TestStartStop(t *testing.T) {
	sessionCtx := make(chan context.Context, 1)
	run := func(ctx context.Context, _ time.Time) (risk.Summary, error) {
		sessionCtx <- ctx
		<-ctx.Done()
		return risk.Summary{}, ctx.Err()
	}

	cfg := DefaultConfig()
	cfg.RunOnStart = true
	d := New(cfg, clockAt(et(2024, 1, 11, 9, 25)), run)
	require.NoError(t, d.Start(context.Background()))
	assert.False(t, d.Next().IsZero())

	select {
	case <-sessionCtx:
	case <-time.After(5 * time.Second):
		t.Fatal("run-on-start session did not start")
	}

	d.Stop()
	hist := d.History()
	require.Len(t, hist, 1)
	assert.ErrorIs(t, hist[0].Err, context.Canceled)
}

func TestStartInvalidSchedule(t *testing.T) {
	d := New(Config{Schedule: "every morning"}, nil, nil)
	assert.Error(t, d.Start(context.Background()))
}
