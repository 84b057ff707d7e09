package main

import (
	"errors"
	"fmt"
	"os"

	"orbtrader/internal/config"
	"orbtrader/internal/journal"
	"orbtrader/internal/market"
	"orbtrader/internal/session"
)

// journalSet bundles the journal observers of one run
type journalSet struct {
	State     *journal.StateStore
	Recorder  *journal.Recorder
	Decisions *journal.DecisionLog
}

// Observers returns the journal observers in attach order
func (j *journalSet) Observers() []session.Observer {
	obs := []session.Observer{j.Recorder}
	if j.Decisions != nil {
		obs = append(obs, j.Decisions)
	}
	return obs
}

func (j *journalSet) Close() error {
	var errs []error
	if err := j.Recorder.Close(); err != nil {
		errs = append(errs, err)
	}
	if j.Decisions != nil {
		if err := j.Decisions.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openJournal opens the trade sinks and decision log under cfg.Dir.
// withState also tracks already-traded symbols, which only live runs need.
func openJournal(cfg config.JournalConfig, clock *market.Clock, withState, logNoSetup bool) (*journalSet, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating journal dir: %w", err)
	}

	var sinks []journal.TradeSink
	if cfg.TradesFile != "" {
		sinks = append(sinks, journal.NewJSONSink(cfg.Path(cfg.TradesFile)))
	}
	if cfg.SQLiteFile != "" {
		db, err := journal.NewSQLiteSink(cfg.Path(cfg.SQLiteFile))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, db)
	}

	set := &journalSet{}
	if withState && cfg.StateFile != "" {
		set.State = journal.NewStateStore(cfg.Path(cfg.StateFile), clock)
	}
	set.Recorder = journal.NewRecorder(set.State, sinks...)

	if cfg.DecisionsFile != "" {
		log, err := journal.NewDecisionLog(cfg.Path(cfg.DecisionsFile), !logNoSetup)
		if err != nil {
			set.Recorder.Close()
			return nil, err
		}
		set.Decisions = log
	}
	return set, nil
}
