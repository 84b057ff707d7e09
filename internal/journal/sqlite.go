package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"orbtrader/internal/risk"
	"orbtrader/internal/session"
)

// SQLiteSink stores trades and per-day session summaries in SQLite
type SQLiteSink struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteSink opens (or creates) the database and runs migrations
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id           TEXT PRIMARY KEY,
			trading_date TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			entry_price  REAL NOT NULL,
			entry_time   INTEGER NOT NULL,
			quantity     REAL NOT NULL,
			stop_loss    REAL,
			take_profit  REAL,
			exit_price   REAL,
			exit_time    INTEGER,
			exit_reason  TEXT,
			pnl          REAL,
			pnl_pct      REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_date ON trades(trading_date)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			trading_date     TEXT PRIMARY KEY,
			starting_capital REAL,
			ending_capital   REAL,
			daily_pnl        REAL,
			daily_pnl_pct    REAL,
			trades_count     INTEGER,
			kill_switch      INTEGER
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordDay upserts the day's trades and summary in one transaction
func (s *SQLiteSink) RecordDay(r session.DayReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := r.Date.Format("2006-01-02")

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range r.Trades {
		var exitPrice sql.NullFloat64
		var exitTime sql.NullInt64
		if t.ExitPrice != nil {
			exitPrice = sql.NullFloat64{Float64: *t.ExitPrice, Valid: true}
		}
		if t.ExitTime != nil {
			exitTime = sql.NullInt64{Int64: t.ExitTime.Unix(), Valid: true}
		}

		_, err := tx.Exec(`INSERT OR REPLACE INTO trades
			(id, trading_date, symbol, entry_price, entry_time, quantity, stop_loss, take_profit,
			 exit_price, exit_time, exit_reason, pnl, pnl_pct)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, date, t.Symbol, t.EntryPrice, t.EntryTime.Unix(), t.Quantity, t.StopLoss, t.TakeProfit,
			exitPrice, exitTime, t.ExitReason, t.PnL, t.PnLPct)
		if err != nil {
			return fmt.Errorf("insert trade %s: %w", t.ID, err)
		}
	}

	sum := r.Summary
	_, err = tx.Exec(`INSERT OR REPLACE INTO sessions
		(trading_date, starting_capital, ending_capital, daily_pnl, daily_pnl_pct, trades_count, kill_switch)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		date, sum.StartingCapital, sum.EndingCapital, sum.DailyPnL, sum.DailyPnLPct, sum.TradesCount, sum.KillSwitchTripped)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", date, err)
	}

	return tx.Commit()
}

// Trades returns every stored trade ordered by exit time
func (s *SQLiteSink) Trades(ctx context.Context) ([]*risk.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, entry_price, entry_time, quantity, stop_loss,
		take_profit, exit_price, exit_time, exit_reason, pnl, pnl_pct
		FROM trades ORDER BY exit_time, entry_time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*risk.Trade
	for rows.Next() {
		var (
			t         risk.Trade
			entryUnix int64
			exitPrice sql.NullFloat64
			exitUnix  sql.NullInt64
			reason    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &t.EntryPrice, &entryUnix, &t.Quantity, &t.StopLoss,
			&t.TakeProfit, &exitPrice, &exitUnix, &reason, &t.PnL, &t.PnLPct); err != nil {
			return nil, err
		}
		t.EntryTime = time.Unix(entryUnix, 0).UTC()
		if exitPrice.Valid {
			p := exitPrice.Float64
			t.ExitPrice = &p
		}
		if exitUnix.Valid {
			et := time.Unix(exitUnix.Int64, 0).UTC()
			t.ExitTime = &et
		}
		t.ExitReason = reason.String
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

// SessionCount returns the number of recorded session days
func (s *SQLiteSink) SessionCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
