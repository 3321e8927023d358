package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nosark/polygon-io-playground/market"
)

// sqlStore is the database/sql implementation behind SQLite and Postgres.
type sqlStore struct {
	db   *sql.DB
	name string

	// placeholder returns the driver's bind variable for the n-th argument.
	placeholder func(n int) string
}

func dollar(n int) string { return "$" + strconv.Itoa(n) }

func (s *sqlStore) Close() error { return s.db.Close() }

// bind rewrites ? placeholders in q for the driver.
func (s *sqlStore) bind(q string) string {
	if s.placeholder == nil {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString(s.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%s: create schema: %w", s.name, err)
	}
	return nil
}

func (s *sqlStore) SaveTrades(ctx context.Context, run Run, trades []market.Trade) (err error) {
	if err := validateRun(run); err != nil {
		return err
	}
	created := run.Created
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", s.name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		s.bind(`INSERT INTO runs (run_id, ticker, created_at) VALUES (?, ?, ?) ON CONFLICT (run_id) DO NOTHING`),
		run.ID, run.Ticker, created.UnixNano(),
	); err != nil {
		return fmt.Errorf("%s: insert run: %w", s.name, err)
	}

	var next int64
	if err = tx.QueryRowContext(ctx,
		s.bind(`SELECT COALESCE(MAX(seq) + 1, 0) FROM trades WHERE run_id = ?`), run.ID,
	).Scan(&next); err != nil {
		return fmt.Errorf("%s: next seq: %w", s.name, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.bind(`
		INSERT INTO trades
		(run_id, seq, trade_id, exchange, conditions, ts, price, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("%s: prepare: %w", s.name, err)
	}
	defer stmt.Close()

	for i, t := range trades {
		if _, err = stmt.ExecContext(ctx,
			run.ID, next+int64(i), t.ID, t.Exchange, market.JoinConditions(t.Conditions),
			int64(t.Timestamp), t.Price.String(), t.Size.String(),
		); err != nil {
			return fmt.Errorf("%s: insert trade %d: %w", s.name, i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.name, err)
	}
	return nil
}

func (s *sqlStore) LoadTrades(ctx context.Context, runID string) ([]market.Trade, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, s.bind(`SELECT COUNT(*) FROM runs WHERE run_id = ?`), runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%s: lookup run: %w", s.name, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT trade_id, exchange, conditions, ts, price, size
		FROM trades WHERE run_id = ? ORDER BY seq`), runID)
	if err != nil {
		return nil, fmt.Errorf("%s: query trades: %w", s.name, err)
	}
	defer rows.Close()

	var out []market.Trade
	for rows.Next() {
		var (
			t                  market.Trade
			conds, price, size string
			ts                 int64
		)
		if err := rows.Scan(&t.ID, &t.Exchange, &conds, &ts, &price, &size); err != nil {
			return nil, fmt.Errorf("%s: scan trade: %w", s.name, err)
		}
		if t.Conditions, err = market.SplitConditions(conds); err != nil {
			return nil, fmt.Errorf("%s: trade %s: %w", s.name, t.ID, err)
		}
		t.Timestamp = market.Timestamp(ts)
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("%s: trade %s: bad price %q: %w", s.name, t.ID, price, err)
		}
		if t.Size, err = decimal.NewFromString(size); err != nil {
			return nil, fmt.Errorf("%s: trade %s: bad size %q: %w", s.name, t.ID, size, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: read trades: %w", s.name, err)
	}
	return out, nil
}

func (s *sqlStore) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.ticker, r.created_at, COUNT(t.seq)
		FROM runs r LEFT JOIN trades t ON t.run_id = r.run_id
		GROUP BY r.run_id, r.ticker, r.created_at
		ORDER BY r.created_at DESC, r.run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: query runs: %w", s.name, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Ticker, &created, &r.Trades); err != nil {
			return nil, fmt.Errorf("%s: scan run: %w", s.name, err)
		}
		r.Created = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: read runs: %w", s.name, err)
	}
	return out, nil
}
