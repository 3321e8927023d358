package candles

import (
	"context"

	"github.com/nosark/polygon-io-playground/market"
)

// SliceSource serves in-memory pages in order.
type SliceSource struct {
	pages [][]market.Trade
	next  int
}

func NewSliceSource(pages ...[]market.Trade) *SliceSource {
	return &SliceSource{pages: pages}
}

// Paginate splits trades into pages of at most size trades, the way a
// stored download is replayed as if it came from the API. size <= 0 yields
// one page.
func Paginate(trades []market.Trade, size int) *SliceSource {
	if len(trades) == 0 {
		return NewSliceSource()
	}
	if size <= 0 || size >= len(trades) {
		return NewSliceSource(trades)
	}

	pages := make([][]market.Trade, 0, (len(trades)+size-1)/size)
	for start := 0; start < len(trades); start += size {
		end := min(start+size, len(trades))
		pages = append(pages, trades[start:end])
	}
	return NewSliceSource(pages...)
}

func (s *SliceSource) Next(ctx context.Context) ([]market.Trade, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.next >= len(s.pages) {
		return nil, false, nil
	}
	p := s.pages[s.next]
	s.next++
	return p, true, nil
}

// Recorder wraps a TradeSource and keeps a copy of every trade it yields.
// trades fetch uses it to store a download while it is being aggregated.
type Recorder struct {
	Source TradeSource
	Trades []market.Trade
}

func (r *Recorder) Next(ctx context.Context) ([]market.Trade, bool, error) {
	page, ok, err := r.Source.Next(ctx)
	if ok {
		r.Trades = append(r.Trades, page...)
	}
	return page, ok, err
}
