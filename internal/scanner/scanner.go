package scanner

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"orbtrader/internal/market"
	"orbtrader/pkg/logger"
	"orbtrader/pkg/model"
)

// BarFetcher is the part of a bar source the scanner needs
type BarFetcher interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error)
}

// ProgressCallback is called with progress updates
type ProgressCallback func(scanned, total int)

// Config holds gap scan parameters
type Config struct {
	Workers      int
	MinGapPct    float64       // 0.03 = today's open at least 3% above yesterday's close
	Limit        int           // scan only the first Limit symbols, 0 = all
	LookbackDays int           // calendar days of 1m bars fetched per symbol
	Timeout      time.Duration // whole scan
}

// DefaultConfig returns the default gap scan settings
func DefaultConfig() Config {
	return Config{
		Workers:      10,
		MinGapPct:    0.03,
		Limit:        50,
		LookbackDays: 5,
		Timeout:      2 * time.Minute,
	}
}

// Result of a gap scan
type Result struct {
	TotalScanned int
	Failed       int
	Candidates   []model.Candidate // gap >= MinGapPct, largest gap first
	ScanTime     time.Duration
}

// Scanner finds gap-up candidates in parallel
type Scanner struct {
	source       BarFetcher
	clock        *market.Clock
	config       Config
	progressFunc ProgressCallback
}

// NewScanner creates a new scanner; a nil clock means US Eastern wall time
func NewScanner(source BarFetcher, clock *market.Clock, cfg Config) *Scanner {
	if clock == nil {
		clock = market.NewClock(nil)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.LookbackDays < 2 {
		cfg.LookbackDays = 2
	}
	return &Scanner{source: source, clock: clock, config: cfg}
}

// SetProgressCallback sets the progress callback function
func (s *Scanner) SetProgressCallback(fn ProgressCallback) {
	s.progressFunc = fn
}

// Scan computes the opening gap of every symbol and keeps those gapping up
// at least MinGapPct
func (s *Scanner) Scan(ctx context.Context, symbols []string) (*Result, error) {
	startTime := time.Now()

	if s.config.Limit > 0 && len(symbols) > s.config.Limit {
		symbols = symbols[:s.config.Limit]
	}
	result := &Result{TotalScanned: len(symbols)}
	if len(symbols) == 0 {
		return result, nil
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	end := s.clock.Now()
	start := end.AddDate(0, 0, -s.config.LookbackDays)

	jobChan := make(chan string, len(symbols))
	resultChan := make(chan model.Candidate, len(symbols))
	for _, sym := range symbols {
		jobChan <- sym
	}
	close(jobChan)

	var scannedCount, failedCount int64

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobChan {
				if ctx.Err() != nil {
					return
				}

				bars, err := s.source.GetBars(ctx, sym, start, end)
				if err != nil {
					atomic.AddInt64(&failedCount, 1)
					logger.Debug("[SCAN] %s: %v", sym, err)
				} else if c, ok := OpenGap(sym, bars, s.clock); ok && c.GapPct >= s.config.MinGapPct {
					resultChan <- c
				}

				count := atomic.AddInt64(&scannedCount, 1)
				if s.progressFunc != nil {
					s.progressFunc(int(count), len(symbols))
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for c := range resultChan {
		result.Candidates = append(result.Candidates, c)
	}

	sort.SliceStable(result.Candidates, func(i, j int) bool {
		if result.Candidates[i].GapPct != result.Candidates[j].GapPct {
			return result.Candidates[i].GapPct > result.Candidates[j].GapPct
		}
		return result.Candidates[i].Symbol < result.Candidates[j].Symbol
	})

	result.Failed = int(atomic.LoadInt64(&failedCount))
	result.ScanTime = time.Since(startTime)

	logger.Info("[SCAN] %d/%d symbols gap up >= %.1f%% (%d failed) in %s",
		len(result.Candidates), len(symbols), s.config.MinGapPct*100, result.Failed, result.ScanTime.Round(time.Millisecond))
	return result, ctx.Err()
}

// OpenGap compares the first open of the latest trading date in bars with
// the last close of the date before it. ok is false with fewer than two
// dates or a non-positive previous close.
func OpenGap(symbol string, bars []model.Bar, clock *market.Clock) (model.Candidate, bool) {
	if len(bars) == 0 {
		return model.Candidate{}, false
	}

	sorted := make([]model.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	today := clock.DateKey(sorted[len(sorted)-1].Time)

	var prevClose, todayOpen float64
	var haveToday, havePrev bool
	for i := len(sorted) - 1; i >= 0; i-- {
		key := clock.DateKey(sorted[i].Time)
		if key == today {
			todayOpen = sorted[i].Open
			haveToday = true
			continue
		}
		prevClose = sorted[i].Close
		havePrev = true
		break
	}

	if !haveToday || !havePrev || prevClose <= 0 {
		return model.Candidate{}, false
	}
	return model.Candidate{
		Symbol:    symbol,
		GapPct:    (todayOpen - prevClose) / prevClose,
		PrevClose: prevClose,
		TodayOpen: todayOpen,
	}, true
}

// Symbols returns the candidate symbols in rank order, at most n (0 = all)
func Symbols(candidates []model.Candidate, n int) []string {
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Symbol
	}
	return out
}
