package model

import "time"

// Bar represents a single fixed-interval price bar (OHLCV data)
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Candidate is a symbol selected for the day's session, ranked by gap
type Candidate struct {
	Symbol    string  `json:"symbol"`
	GapPct    float64 `json:"gap_pct"` // e.g. 0.05 = +5%
	PrevClose float64 `json:"prev_close"`
	TodayOpen float64 `json:"today_open"`
}

// LastBar returns the most recent bar, or false if there are none
func LastBar(bars []Bar) (Bar, bool) {
	if len(bars) == 0 {
		return Bar{}, false
	}
	return bars[len(bars)-1], true
}
