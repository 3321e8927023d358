// Package window partitions newest-first trade streams into fixed-duration
// windows and summarizes each closed window as an OHLC candle.
//
// Input must be ordered by timestamp, newest first (non-increasing), which is
// the order the upstream trades API returns by default. Equal timestamps are
// allowed. A window is anchored on its first trade; a trade belongs to the
// window while anchor-timestamp <= duration. The first trade past that bound
// closes the window and anchors the next one.
//
// The trailing window is never closed automatically. It is handed back as
// pending so the caller can prepend it to the next page of trades, finalize
// it, or drop it.
//
// Everything in this package is pure. Functions hold no package state and
// may be called concurrently on independent inputs. A Windower is not safe
// for concurrent use.
package window

import (
	"errors"
	"fmt"
	"time"

	"github.com/nosark/polygon-io-playground/market"
)

var (
	// ErrOrderingViolation is returned when a trade is newer than the trade
	// before it.
	ErrOrderingViolation = errors.New("window: trades not in newest-first order")

	// ErrEmptyWindow is returned when a candle is requested for zero trades.
	ErrEmptyWindow = errors.New("window: empty window")

	// ErrNegativeWindow is returned for a negative window duration.
	ErrNegativeWindow = errors.New("window: negative duration")
)

// OrderingError describes the trade that broke newest-first ordering.
type OrderingError struct {
	Index     int              // position of the offending trade in the stream
	Previous  market.Timestamp // timestamp of the trade before it
	Anchor    market.Timestamp // anchor of the open window
	Timestamp market.Timestamp // offending timestamp
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("%v: trade %d at %d is newer than previous trade at %d (anchor %d)",
		ErrOrderingViolation, e.Index, e.Timestamp, e.Previous, e.Anchor)
}

func (e *OrderingError) Unwrap() error { return ErrOrderingViolation }

// CandleFromWindow summarizes one window of trades. Open and Close are the
// prices of the first and last trade in slice order.
func CandleFromWindow(trades []market.Trade) (market.Candle, error) {
	if len(trades) == 0 {
		return market.Candle{}, ErrEmptyWindow
	}

	first, last := trades[0], trades[len(trades)-1]
	c := market.Candle{
		Open:   first.Price,
		High:   first.Price,
		Low:    first.Price,
		Close:  last.Price,
		Volume: first.Size,
		First:  first.Timestamp,
		Last:   last.Timestamp,
		Trades: len(trades),
	}

	for _, t := range trades[1:] {
		if t.Price.GreaterThan(c.High) {
			c.High = t.Price
		}
		if t.Price.LessThan(c.Low) {
			c.Low = t.Price
		}
		c.Volume = c.Volume.Add(t.Size)
	}
	return c, nil
}

// Result is the outcome of one Aggregate call.
type Result struct {
	Candles []market.Candle
	Pending []market.Trade
}

// Finalize closes the pending window and returns every candle, including
// the one built from pending trades. Use it once no more pages will arrive.
func (r Result) Finalize() ([]market.Candle, error) {
	out := make([]market.Candle, 0, len(r.Candles)+1)
	out = append(out, r.Candles...)
	if len(r.Pending) == 0 {
		return out, nil
	}
	c, err := CandleFromWindow(r.Pending)
	if err != nil {
		return nil, err
	}
	return append(out, c), nil
}

// Aggregate splits newest-first trades into windows of duration d and
// returns the closed windows as candles plus the trailing open window.
//
// Empty input returns an empty Result. A duration of zero puts every
// distinct timestamp in its own window.
func Aggregate(trades []market.Trade, d time.Duration) (Result, error) {
	w, err := NewWindower(d)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, t := range trades {
		c, closed, err := w.Add(t)
		if err != nil {
			return Result{}, err
		}
		if closed {
			res.Candles = append(res.Candles, c)
		}
	}
	res.Pending = w.Pending()
	return res, nil
}

// Continue aggregates the next page of trades after a previous call
// returned pending. pending is not modified.
func Continue(pending, page []market.Trade, d time.Duration) (Result, error) {
	all := make([]market.Trade, 0, len(pending)+len(page))
	all = append(all, pending...)
	all = append(all, page...)
	return Aggregate(all, d)
}
