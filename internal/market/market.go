package market

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeOfDay is a wall-clock time in the exchange's local zone (e.g. 09:35)
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// MustTimeOfDay is ParseTimeOfDay for constants
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Offset returns the time elapsed since local midnight
func (t TimeOfDay) Offset() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns this time of day on the given date in loc
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
}

func (t *TimeOfDay) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseTimeOfDay(node.Value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

var (
	etOnce sync.Once
	etLoc  *time.Location
)

// GetETLocation US Eastern Time location.
// DST transitions come from the tz database, so this never falls back to a
// fixed offset silently: a missing tzdata is reported by LoadLocation below.
func GetETLocation() *time.Location {
	etOnce.Do(func() {
		loc, err := LoadLocation("America/New_York")
		if err != nil {
			panic(err)
		}
		etLoc = loc
	})
	return etLoc
}

// LoadLocation wraps time.LoadLocation with a clearer error
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %s (is tzdata installed?): %w", name, err)
	}
	return loc, nil
}

// Clock converts timestamps to exchange-local time of day and trading date
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock creates a clock for loc; a nil loc means US Eastern
func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = GetETLocation()
	}
	return &Clock{loc: loc, now: time.Now}
}

// WithNow returns a copy of the clock that reads the current time from now
func (c *Clock) WithNow(now func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: now}
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current time in the exchange zone
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// SinceMidnight returns the local wall-clock offset of t from midnight.
// It reads the wall clock rather than subtracting instants, so 09:30 is
// 9h30m on DST transition days too. ok is false for a zero timestamp.
func (c *Clock) SinceMidnight(t time.Time) (d time.Duration, ok bool) {
	if t.IsZero() {
		return 0, false
	}
	h, m, s := t.In(c.loc).Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second, true
}

// TradingDate returns local midnight of the calendar date containing t
func (c *Clock) TradingDate(t time.Time) time.Time {
	l := t.In(c.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, c.loc)
}

// DateKey formats the local trading date as YYYY-MM-DD
func (c *Clock) DateKey(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// MarketSchedule regular session hours in exchange-local time
type MarketSchedule struct {
	Open  TimeOfDay
	Close TimeOfDay
}

// DefaultMarketSchedule NYSE/NASDAQ regular hours
func DefaultMarketSchedule() MarketSchedule {
	return MarketSchedule{
		Open:  TimeOfDay{Hour: 9, Minute: 30},
		Close: TimeOfDay{Hour: 16, Minute: 0},
	}
}

// MarketStatus market state at a point in time
type MarketStatus struct {
	IsOpen      bool
	CurrentTime time.Time
	OpenTime    time.Time
	CloseTime   time.Time
	TimeToOpen  time.Duration
	TimeToClose time.Duration
	Reason      string // "open", "weekend", "holiday", "pre-market", "after-hours"
}

// Status reports the market state for the clock's current time
func (c *Clock) Status(schedule MarketSchedule) MarketStatus {
	now := c.Now()
	status := MarketStatus{
		CurrentTime: now,
		OpenTime:    schedule.Open.On(now, c.loc),
		CloseTime:   schedule.Close.On(now, c.loc),
	}

	switch {
	case now.Weekday() == time.Saturday || now.Weekday() == time.Sunday:
		status.Reason = "weekend"
		status.TimeToOpen = c.nextOpen(now, schedule).Sub(now)
	case IsUSHoliday(now):
		status.Reason = "holiday"
		status.TimeToOpen = c.nextOpen(now, schedule).Sub(now)
	case now.Before(status.OpenTime):
		status.Reason = "pre-market"
		status.TimeToOpen = status.OpenTime.Sub(now)
	case !now.Before(status.CloseTime):
		status.Reason = "after-hours"
		status.TimeToOpen = c.nextOpen(now, schedule).Sub(now)
	default:
		status.IsOpen = true
		status.Reason = "open"
		status.TimeToClose = status.CloseTime.Sub(now)
	}
	return status
}

// nextOpen finds the next weekday, non-holiday open strictly after today
func (c *Clock) nextOpen(now time.Time, schedule MarketSchedule) time.Time {
	day := c.TradingDate(now)
	for i := 0; i < 10; i++ {
		day = day.AddDate(0, 0, 1)
		if IsTradingDay(day) {
			break
		}
	}
	return schedule.Open.On(day, c.loc)
}

// IsTradingDay weekday and not a US market holiday
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !IsUSHoliday(t)
}

// FormatDuration formats d as "1h 5m" / "12m"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "0s"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// NYSE full-day closures
var usHolidays = map[string]string{
	"2024-01-01": "New Year's Day",
	"2024-01-15": "MLK Day",
	"2024-02-19": "Presidents Day",
	"2024-03-29": "Good Friday",
	"2024-05-27": "Memorial Day",
	"2024-06-19": "Juneteenth",
	"2024-07-04": "Independence Day",
	"2024-09-02": "Labor Day",
	"2024-11-28": "Thanksgiving",
	"2024-12-25": "Christmas",

	"2025-01-01": "New Year's Day",
	"2025-01-09": "National Day of Mourning",
	"2025-01-20": "MLK Day",
	"2025-02-17": "Presidents Day",
	"2025-04-18": "Good Friday",
	"2025-05-26": "Memorial Day",
	"2025-06-19": "Juneteenth",
	"2025-07-04": "Independence Day",
	"2025-09-01": "Labor Day",
	"2025-11-27": "Thanksgiving",
	"2025-12-25": "Christmas",

	"2026-01-01": "New Year's Day",
	"2026-01-19": "MLK Day",
	"2026-02-16": "Presidents Day",
	"2026-04-03": "Good Friday",
	"2026-05-25": "Memorial Day",
	"2026-06-19": "Juneteenth",
	"2026-07-03": "Independence Day (observed)",
	"2026-09-07": "Labor Day",
	"2026-11-26": "Thanksgiving",
	"2026-12-25": "Christmas",
}

// IsUSHoliday reports whether the ET calendar date of t is a market holiday
func IsUSHoliday(t time.Time) bool {
	_, ok := usHolidays[t.In(GetETLocation()).Format("2006-01-02")]
	return ok
}
