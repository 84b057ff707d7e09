package journal

import (
	"errors"
	"fmt"

	"orbtrader/internal/session"
	"orbtrader/pkg/logger"
)

// TradeSink persists the closed trades of each finished session day
type TradeSink interface {
	RecordDay(r session.DayReport) error
	Close() error
}

// Recorder is the session observer that feeds the sinks at end of day and
// marks symbols as traded when a position opens
type Recorder struct {
	state *StateStore
	sinks []TradeSink
}

// NewRecorder creates a recorder; state may be nil
func NewRecorder(state *StateStore, sinks ...TradeSink) *Recorder {
	return &Recorder{state: state, sinks: sinks}
}

func (r *Recorder) OnOutcome(o session.Outcome) error {
	if o.Kind != session.KindEntered || r.state == nil {
		return nil
	}
	return r.state.MarkTraded(o.Symbol, o.Time)
}

func (r *Recorder) OnDayEnd(report session.DayReport) error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.RecordDay(report); err != nil {
			errs = append(errs, err)
		}
	}
	if len(report.Trades) > 0 {
		logger.Info("[JOURNAL] recorded %d trades for %s", len(report.Trades), report.Date.Format("2006-01-02"))
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (r *Recorder) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing sink: %w", err))
		}
	}
	return errors.Join(errs...)
}
