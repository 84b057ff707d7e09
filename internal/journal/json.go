package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"orbtrader/internal/risk"
	"orbtrader/internal/session"
)

// JSONSink keeps every closed trade in one indented JSON array
// (trades.json), appending each day's trades to what is already there
type JSONSink struct {
	mu   sync.Mutex
	path string
}

func NewJSONSink(path string) *JSONSink {
	return &JSONSink{path: path}
}

func (s *JSONSink) Path() string {
	return s.path
}

func (s *JSONSink) RecordDay(r session.DayReport) error {
	if len(r.Trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := LoadTrades(s.path)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		if t.ID != "" {
			seen[t.ID] = true
		}
	}
	for _, t := range r.Trades {
		if t.ID == "" || !seen[t.ID] {
			existing = append(existing, t)
		}
	}
	return writeJSONAtomic(s.path, existing)
}

func (s *JSONSink) Close() error {
	return nil
}

// LoadTrades reads a trades.json file; a missing file is an empty history
func LoadTrades(path string) ([]*risk.Trade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading trades: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var trades []*risk.Trade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return trades, nil
}

// writeJSONAtomic writes v through a temp file so readers never see a
// half-written document
func writeJSONAtomic(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
