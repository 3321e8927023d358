// Package store keeps downloaded trades so candles can be rebuilt offline.
// Candles themselves are never stored.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nosark/polygon-io-playground/config"
	"github.com/nosark/polygon-io-playground/market"
)

// ErrRunNotFound is returned by LoadTrades for an unknown run id.
var ErrRunNotFound = errors.New("store: run not found")

// Run is one trades download.
type Run struct {
	ID      string
	Ticker  string
	Created time.Time
	Trades  int // filled in by Runs
}

// Store persists the trades of a run in the order they were fetched.
type Store interface {
	// SaveTrades appends trades to run, creating the run on first use.
	SaveTrades(ctx context.Context, run Run, trades []market.Trade) error
	// LoadTrades returns a run's trades in the order they were saved.
	LoadTrades(ctx context.Context, runID string) ([]market.Trade, error)
	// Runs lists stored runs, newest first.
	Runs(ctx context.Context) ([]Run, error)
	Close() error
}

// Open returns the store selected by cfg.Type.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "csv":
		return NewCSVDir(cfg.Path)
	case "sqlite":
		return NewSQLite(ctx, cfg.Path)
	case "postgres":
		return NewPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unknown type %q", cfg.Type)
	}
}

func validateRun(run Run) error {
	if run.ID == "" {
		return fmt.Errorf("store: run id is required")
	}
	if run.Ticker == "" {
		return fmt.Errorf("store: run ticker is required")
	}
	return nil
}
