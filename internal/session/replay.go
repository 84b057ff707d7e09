package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"orbtrader/internal/risk"
	"orbtrader/pkg/logger"
	"orbtrader/pkg/model"
)

// ReplayResult collects the per-date summaries of a replay
type ReplayResult struct {
	Days []risk.Summary
}

type dayBars struct {
	date time.Time
	bars map[string][]model.Bar
}

// Replay drives d over historical bars. Dates are processed in order; within
// a date, bars are merged by timestamp and symbols stepped in the order given.
// Once a kill switch trips no further bars of that date are applied and open
// positions are closed at their last bar up to the halt, as a live session
// does when it stops polling.
func Replay(ctx context.Context, d *Driver, symbols []string, bars map[string][]model.Bar) (*ReplayResult, error) {
	result := &ReplayResult{}
	symbols = uniqueSymbols(symbols)

	for _, day := range groupByDate(d, symbols, bars) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := d.BeginDay(day.date); err != nil {
			return result, err
		}

		haltedAt, err := replayDay(d, symbols, day.bars)
		if err != nil {
			return result, fmt.Errorf("replay %s: %w", d.DateKey(), err)
		}

		last := make(map[string]model.Bar, len(day.bars))
		for sym, b := range day.bars {
			if bar, ok := lastBarAt(b, haltedAt); ok {
				last[sym] = bar
			}
		}
		_, summary, err := d.EndDay(last)
		if err != nil {
			return result, fmt.Errorf("replay %s: %w", d.DateKey(), err)
		}
		result.Days = append(result.Days, summary)
	}

	return result, nil
}

// replayDay steps the date's bars and returns the timestamp of the bar that
// tripped a kill switch, or the zero time when the day ran to the end
func replayDay(d *Driver, symbols []string, bars map[string][]model.Bar) (time.Time, error) {
	var stamps []time.Time
	seen := make(map[int64]bool)
	for _, b := range bars {
		for _, bar := range b {
			if k := bar.Time.UnixNano(); !seen[k] {
				seen[k] = true
				stamps = append(stamps, bar.Time)
			}
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	next := make(map[string]int, len(symbols))
	for _, ts := range stamps {
		for _, sym := range symbols {
			b := bars[sym]
			i := next[sym]
			if i >= len(b) || !b[i].Time.Equal(ts) {
				continue
			}
			// duplicates of the same timestamp are consumed together
			for i < len(b) && b[i].Time.Equal(ts) {
				i++
			}
			next[sym] = i

			if _, err := d.Step(sym, b[:i]); err != nil {
				return time.Time{}, err
			}
			if d.Halted() {
				logger.Info("[SESSION] %s kill switch tripped at %s, no more bars today",
					d.DateKey(), ts.In(d.Clock().Location()).Format("15:04"))
				return ts, nil
			}
		}
	}
	return time.Time{}, nil
}

// lastBarAt returns the last bar at or before at; a zero at means the last bar
func lastBarAt(bars []model.Bar, at time.Time) (model.Bar, bool) {
	for i := len(bars) - 1; i >= 0; i-- {
		if at.IsZero() || !bars[i].Time.After(at) {
			return bars[i], true
		}
	}
	return model.Bar{}, false
}

// groupByDate splits every symbol's bars by exchange-local trading date,
// sorted ascending. Symbols not in the candidate list are ignored.
func groupByDate(d *Driver, symbols []string, bars map[string][]model.Bar) []dayBars {
	days := make(map[string]*dayBars)
	for _, sym := range symbols {
		sorted := make([]model.Bar, 0, len(bars[sym]))
		for _, b := range bars[sym] {
			if !b.Time.IsZero() {
				sorted = append(sorted, b)
			}
		}
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

		for _, b := range sorted {
			key := d.Clock().DateKey(b.Time)
			day, ok := days[key]
			if !ok {
				day = &dayBars{date: d.Clock().TradingDate(b.Time), bars: make(map[string][]model.Bar)}
				days[key] = day
			}
			day.bars[sym] = append(day.bars[sym], b)
		}
	}

	out := make([]dayBars, 0, len(days))
	for _, day := range days {
		out = append(out, *day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out
}

func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
