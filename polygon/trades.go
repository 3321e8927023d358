package polygon

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nosark/polygon-io-playground/market"
)

// Order is the sort direction of a trades query.
type Order string

const (
	Desc Order = "desc" // newest first, the order market/window expects
	Asc  Order = "asc"
)

// MaxTradesLimit is the largest page size the trades endpoint accepts.
const MaxTradesLimit = 50000

// TradesRequest represents parameters for fetching trades for one ticker
type TradesRequest struct {
	Ticker string    // Required: e.g. "X:BTC-USD" or "AAPL"
	Date   string    // Optional: a single day, YYYY-MM-DD (timestamp=)
	From   time.Time // Optional: timestamp.gte
	To     time.Time // Optional: timestamp.lt
	Order  Order     // default Desc
	Limit  int       // results per page (default 1000, max 50000)

	// SkipInvalid drops trades that fail validation instead of failing the page.
	SkipInvalid bool
}

// TradesPage is one page of trades plus the cursor to the next page.
type TradesPage struct {
	Trades    []market.Trade
	NextURL   string
	RequestID string
	Status    string
	Skipped   int
}

type wireTrade struct {
	Conditions           []int           `json:"conditions"`
	Exchange             int             `json:"exchange"`
	ID                   string          `json:"id"`
	ParticipantTimestamp int64           `json:"participant_timestamp"`
	SIPTimestamp         int64           `json:"sip_timestamp"`
	Price                decimal.Decimal `json:"price"`
	Size                 decimal.Decimal `json:"size"`
}

type tradesResponse struct {
	Results   []wireTrade `json:"results"`
	Status    string      `json:"status"`
	RequestID string      `json:"request_id"`
	NextURL   string      `json:"next_url"`
}

func (r TradesRequest) query() (url.Values, error) {
	params := url.Values{}

	if r.Date != "" {
		if _, err := time.Parse(time.DateOnly, r.Date); err != nil {
			return nil, fmt.Errorf("bad date %q: %w", r.Date, err)
		}
		params.Set("timestamp", r.Date)
	}
	if !r.From.IsZero() {
		params.Set("timestamp.gte", strconv.FormatInt(r.From.UnixNano(), 10))
	}
	if !r.To.IsZero() {
		params.Set("timestamp.lt", strconv.FormatInt(r.To.UnixNano(), 10))
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return nil, fmt.Errorf("from must be before to")
	}

	order := r.Order
	if order == "" {
		order = Desc
	}
	if order != Desc && order != Asc {
		return nil, fmt.Errorf("unknown order %q", order)
	}
	params.Set("order", string(order))
	params.Set("sort", "timestamp")

	limit := r.Limit
	if limit == 0 {
		limit = 1000
	}
	if limit < 0 || limit > MaxTradesLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d", MaxTradesLimit)
	}
	params.Set("limit", strconv.Itoa(limit))

	return params, nil
}

// Trades fetches the first page of trades matching req.
func (c *Client) Trades(ctx context.Context, req TradesRequest) (*TradesPage, error) {
	if req.Ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	params, err := req.query()
	if err != nil {
		return nil, err
	}

	u, err := c.endpoint("/v3/trades/"+req.Ticker, params)
	if err != nil {
		return nil, err
	}
	return c.tradesPage(ctx, u, req.SkipInvalid)
}

// NextTrades follows a next_url cursor returned with a previous page.
func (c *Client) NextTrades(ctx context.Context, nextURL string, skipInvalid bool) (*TradesPage, error) {
	if nextURL == "" {
		return nil, fmt.Errorf("empty next url")
	}
	u, err := url.Parse(nextURL)
	if err != nil {
		return nil, fmt.Errorf("bad next url: %w", err)
	}
	return c.tradesPage(ctx, u, skipInvalid)
}

func (c *Client) tradesPage(ctx context.Context, u *url.URL, skipInvalid bool) (*TradesPage, error) {
	var resp tradesResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("trades: %w", err)
	}

	page := &TradesPage{
		Trades:    make([]market.Trade, 0, len(resp.Results)),
		NextURL:   resp.NextURL,
		RequestID: resp.RequestID,
		Status:    resp.Status,
	}

	for i, wt := range resp.Results {
		t := wt.trade()
		if err := t.Validate(); err != nil {
			if skipInvalid {
				page.Skipped++
				c.logger().Warn("skipping invalid trade", "id", wt.ID, "error", err)
				continue
			}
			return nil, fmt.Errorf("trades: result %d (id %q): %w", i, wt.ID, err)
		}
		page.Trades = append(page.Trades, t)
	}
	return page, nil
}

func (wt wireTrade) trade() market.Trade {
	ts := wt.ParticipantTimestamp
	if ts == 0 {
		ts = wt.SIPTimestamp
	}
	return market.Trade{
		ID:         wt.ID,
		Exchange:   wt.Exchange,
		Conditions: wt.Conditions,
		Timestamp:  market.Timestamp(ts),
		Price:      wt.Price,
		Size:       wt.Size,
	}
}

// TradeIterator walks the pages of a trades query by following next_url.
type TradeIterator struct {
	client   *Client
	req      TradesRequest
	maxPages int

	next    string
	started bool
	done    bool
	pages   int
}

// NewTradeIterator pages through req. maxPages <= 0 means no cap.
func NewTradeIterator(c *Client, req TradesRequest, maxPages int) *TradeIterator {
	return &TradeIterator{client: c, req: req, maxPages: maxPages}
}

// Next returns the next page of trades. ok is false once there are no more pages.
func (it *TradeIterator) Next(ctx context.Context) (trades []market.Trade, ok bool, err error) {
	if it.done {
		return nil, false, nil
	}

	var page *TradesPage
	if !it.started {
		page, err = it.client.Trades(ctx, it.req)
	} else {
		page, err = it.client.NextTrades(ctx, it.next, it.req.SkipInvalid)
	}
	if err != nil {
		return nil, false, err
	}

	it.started = true
	it.pages++
	it.next = page.NextURL
	if it.next == "" || (it.maxPages > 0 && it.pages >= it.maxPages) {
		it.done = true
	}
	return page.Trades, true, nil
}

// Pages is the number of pages fetched so far.
func (it *TradeIterator) Pages() int { return it.pages }

// More reports whether the API had more pages when iteration stopped.
func (it *TradeIterator) More() bool { return it.next != "" }
