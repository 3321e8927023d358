package window

import (
	"time"

	"github.com/nosark/polygon-io-playground/market"
)

// Windower is the trade-by-trade form of Aggregate. It keeps one open
// window across calls, so a caller reading paginated trades can feed each
// page in turn without stitching slices together.
type Windower struct {
	d      time.Duration
	anchor market.Timestamp
	last   market.Timestamp
	open   []market.Trade
	seen   int
}

func NewWindower(d time.Duration) (*Windower, error) {
	if d < 0 {
		return nil, ErrNegativeWindow
	}
	return &Windower{d: d}, nil
}

func (w *Windower) Duration() time.Duration { return w.d }

// Add appends t to the open window, or closes the open window and starts a
// new one anchored on t. When a window closes its candle is returned with
// closed set to true. A trade newer than its predecessor is rejected with an
// *OrderingError and leaves the Windower unchanged.
func (w *Windower) Add(t market.Trade) (c market.Candle, closed bool, err error) {
	// Flush closes the window but not the stream; only Reset forgets w.last.
	if w.seen > 0 && t.Timestamp > w.last {
		return market.Candle{}, false, &OrderingError{
			Index:     w.seen,
			Previous:  w.last,
			Anchor:    w.anchor,
			Timestamp: t.Timestamp,
		}
	}

	if len(w.open) == 0 {
		w.start(t)
		return market.Candle{}, false, nil
	}

	// anchor >= last >= t.Timestamp here, so the unsigned difference is the
	// exact elapsed time even when the signed one would overflow.
	elapsed := uint64(w.anchor) - uint64(t.Timestamp)
	if elapsed <= uint64(w.d) {
		w.open = append(w.open, t)
		w.last = t.Timestamp
		w.seen++
		return market.Candle{}, false, nil
	}

	c, err = CandleFromWindow(w.open)
	if err != nil {
		return market.Candle{}, false, err
	}
	w.start(t)
	return c, true, nil
}

func (w *Windower) start(t market.Trade) {
	// fresh slice so pending copies handed out earlier never alias
	w.open = []market.Trade{t}
	w.anchor = t.Timestamp
	w.last = t.Timestamp
	w.seen++
}

// Anchor returns the timestamp of the open window's first trade.
func (w *Windower) Anchor() (market.Timestamp, bool) {
	if len(w.open) == 0 {
		return 0, false
	}
	return w.anchor, true
}

// Pending returns a copy of the open window's trades.
func (w *Windower) Pending() []market.Trade {
	if len(w.open) == 0 {
		return nil
	}
	out := make([]market.Trade, len(w.open))
	copy(out, w.open)
	return out
}

// Seen is the number of trades accepted so far.
func (w *Windower) Seen() int { return w.seen }

// Flush closes the open window into a candle. ok is false when no window
// is open. Later trades must still be no newer than the last one added.
func (w *Windower) Flush() (c market.Candle, ok bool, err error) {
	if len(w.open) == 0 {
		return market.Candle{}, false, nil
	}
	c, err = CandleFromWindow(w.open)
	if err != nil {
		return market.Candle{}, false, err
	}
	w.open = nil
	return c, true, nil
}

// Reset drops the open window. The ordering check starts over.
func (w *Windower) Reset() {
	w.open = nil
	w.anchor = 0
	w.last = 0
	w.seen = 0
}
