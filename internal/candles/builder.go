// Package candles drives the window aggregator over a paged trade source,
// carrying the open window across page seams.
package candles

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nosark/polygon-io-playground/market"
	"github.com/nosark/polygon-io-playground/market/window"
)

// TradeSource yields pages of newest-first trades.
// Implementations return (nil, false, nil) once exhausted.
type TradeSource interface {
	Next(ctx context.Context) (trades []market.Trade, ok bool, err error)
}

// Builder turns the pages of a TradeSource into candles.
type Builder struct {
	Window time.Duration

	// Finalize closes the trailing window once the source is exhausted.
	// Otherwise its trades are returned as Result.Pending.
	Finalize bool

	// Emit, when set, receives each candle as soon as its window closes and
	// Result.Candles stays empty.
	Emit func(market.Candle) error

	Logger *slog.Logger
}

// Result summarizes one Build.
type Result struct {
	Candles    []market.Candle
	Pending    []market.Trade
	Pages      int
	TradesSeen int
	Emitted    int
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Build reads src until it is exhausted or ctx is done.
func (b *Builder) Build(ctx context.Context, src TradeSource) (Result, error) {
	if src == nil {
		return Result{}, fmt.Errorf("candles: source is required")
	}

	w, err := window.NewWindower(b.Window)
	if err != nil {
		return Result{}, fmt.Errorf("candles: %w", err)
	}

	log := b.logger()
	var res Result

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, ok, err := src.Next(ctx)
		if err != nil {
			return res, fmt.Errorf("candles: page %d: %w", res.Pages+1, err)
		}
		if !ok {
			break
		}
		res.Pages++

		closed := 0
		for _, t := range page {
			c, done, err := w.Add(t)
			if err != nil {
				return res, fmt.Errorf("candles: page %d: %w", res.Pages, err)
			}
			if !done {
				continue
			}
			closed++
			if err := b.emit(&res, c); err != nil {
				return res, err
			}
		}

		log.Debug("page aggregated",
			"page", res.Pages,
			"trades", len(page),
			"closed", closed,
			"pending", len(w.Pending()),
		)
	}

	res.TradesSeen = w.Seen()

	if !b.Finalize {
		res.Pending = w.Pending()
		return res, nil
	}

	c, ok, err := w.Flush()
	if err != nil {
		return res, fmt.Errorf("candles: finalize: %w", err)
	}
	if ok {
		if err := b.emit(&res, c); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (b *Builder) emit(res *Result, c market.Candle) error {
	res.Emitted++
	if b.Emit == nil {
		res.Candles = append(res.Candles, c)
		return nil
	}
	if err := b.Emit(c); err != nil {
		return fmt.Errorf("candles: emit: %w", err)
	}
	return nil
}
