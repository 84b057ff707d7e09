package journal

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"orbtrader/internal/market"
	"orbtrader/pkg/logger"
)

const lastTradeSuffix = "_last_trade_date"

// StateStore remembers the last trading date each symbol was entered, so a
// restarted session does not trade the same symbol twice in one day.
// Persisted as {"AAPL_last_trade_date": "2024-01-11"}.
type StateStore struct {
	mu    sync.RWMutex
	path  string
	clock *market.Clock
	state map[string]string
}

// NewStateStore loads path if it exists; a corrupt file starts fresh
func NewStateStore(path string, clock *market.Clock) *StateStore {
	if clock == nil {
		clock = market.NewClock(nil)
	}
	s := &StateStore{
		path:  path,
		clock: clock,
		state: make(map[string]string),
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("[STATE] could not load %s: %v", path, err)
		s.state = make(map[string]string)
	}
	return s
}

// AlreadyTradedToday reports whether symbol was entered on the trading date of day
func (s *StateStore) AlreadyTradedToday(symbol string, day time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state[key(symbol)] == s.clock.DateKey(day)
}

// MarkTraded records an entry for symbol on the trading date of at
func (s *StateStore) MarkTraded(symbol string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state[key(symbol)] = s.clock.DateKey(at)
	return writeJSONAtomic(s.path, s.state)
}

// Filter drops the symbols already traded on day, keeping order
func (s *StateStore) Filter(symbols []string, day time.Time) []string {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if s.AlreadyTradedToday(sym, day) {
			logger.Info("[STATE] %s already traded %s, skipping", sym, s.clock.DateKey(day))
			continue
		}
		out = append(out, sym)
	}
	return out
}

// Reload re-reads the file, picking up writes from other processes
func (s *StateStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = make(map[string]string)
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *StateStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return err
	}
	if s.state == nil {
		s.state = make(map[string]string)
	}
	return nil
}

func key(symbol string) string {
	return strings.ToUpper(symbol) + lastTradeSuffix
}
