package polygon

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nosark/polygon-io-playground/market"
)

// Timespan is the unit of an aggregate bar.
type Timespan string

const (
	Minute  Timespan = "minute"
	Hour    Timespan = "hour"
	Day     Timespan = "day"
	Week    Timespan = "week"
	Month   Timespan = "month"
	Quarter Timespan = "quarter"
	Year    Timespan = "year"
)

func ParseTimespan(s string) (Timespan, error) {
	switch ts := Timespan(strings.ToLower(strings.TrimSpace(s))); ts {
	case Minute, Hour, Day, Week, Month, Quarter, Year:
		return ts, nil
	default:
		return "", fmt.Errorf("unknown timespan %q (want minute|hour|day|week|month|quarter|year)", s)
	}
}

// Bar is an aggregate bar computed by polygon.io.
type Bar struct {
	Ticker       string           `json:"ticker"`
	Open         decimal.Decimal  `json:"open"`
	High         decimal.Decimal  `json:"high"`
	Low          decimal.Decimal  `json:"low"`
	Close        decimal.Decimal  `json:"close"`
	Volume       decimal.Decimal  `json:"volume"`
	VWAP         decimal.Decimal  `json:"vwap"`
	Start        market.Timestamp `json:"start"`
	Transactions int              `json:"transactions"`
}

type wireBar struct {
	Ticker       string          `json:"T"`
	Open         decimal.Decimal `json:"o"`
	High         decimal.Decimal `json:"h"`
	Low          decimal.Decimal `json:"l"`
	Close        decimal.Decimal `json:"c"`
	Volume       decimal.Decimal `json:"v"`
	VWAP         decimal.Decimal `json:"vw"`
	Timestamp    int64           `json:"t"` // unix milliseconds
	Transactions int             `json:"n"`
}

type aggsResponse struct {
	Ticker       string    `json:"ticker"`
	Adjusted     bool      `json:"adjusted"`
	ResultsCount int       `json:"resultsCount"`
	Results      []wireBar `json:"results"`
	Status       string    `json:"status"`
	RequestID    string    `json:"request_id"`
}

func (wb wireBar) bar(ticker string) Bar {
	if wb.Ticker != "" {
		ticker = wb.Ticker
	}
	return Bar{
		Ticker:       ticker,
		Open:         wb.Open,
		High:         wb.High,
		Low:          wb.Low,
		Close:        wb.Close,
		Volume:       wb.Volume,
		VWAP:         wb.VWAP,
		Start:        market.TimestampFromTime(time.UnixMilli(wb.Timestamp)),
		Transactions: wb.Transactions,
	}
}

func (r aggsResponse) bars() []Bar {
	out := make([]Bar, 0, len(r.Results))
	for _, wb := range r.Results {
		out = append(out, wb.bar(r.Ticker))
	}
	return out
}

// PreviousClose fetches the previous trading day's bar for ticker.
func (c *Client) PreviousClose(ctx context.Context, ticker string, adjusted bool) ([]Bar, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}

	params := url.Values{}
	params.Set("adjusted", strconv.FormatBool(adjusted))

	u, err := c.endpoint("/v2/aggs/ticker/"+ticker+"/prev", params)
	if err != nil {
		return nil, err
	}

	var resp aggsResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("previous close: %w", err)
	}
	return resp.bars(), nil
}

// AggregatesRequest represents parameters for fetching aggregate bars
type AggregatesRequest struct {
	Ticker     string   // Required
	Multiplier int      // Size of the timespan multiplier (default 1)
	Timespan   Timespan // default Day
	From       string   // Required: YYYY-MM-DD or unix milliseconds
	To         string   // Required: YYYY-MM-DD or unix milliseconds
	Adjusted   bool
	Order      Order // sort by timestamp, default Asc
	Limit      int   // default 5000, max 50000
}

// Aggregates fetches bars for a ticker over a date range.
func (c *Client) Aggregates(ctx context.Context, req AggregatesRequest) ([]Bar, error) {
	if req.Ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	if req.From == "" || req.To == "" {
		return nil, fmt.Errorf("from and to are required")
	}
	if req.Multiplier == 0 {
		req.Multiplier = 1
	}
	if req.Multiplier < 0 {
		return nil, fmt.Errorf("multiplier must be positive")
	}
	if req.Timespan == "" {
		req.Timespan = Day
	}
	if _, err := ParseTimespan(string(req.Timespan)); err != nil {
		return nil, err
	}
	if req.Order == "" {
		req.Order = Asc
	}
	if req.Limit == 0 {
		req.Limit = 5000
	}
	if req.Limit < 0 || req.Limit > 50000 {
		return nil, fmt.Errorf("limit must be between 1 and 50000")
	}

	params := url.Values{}
	params.Set("adjusted", strconv.FormatBool(req.Adjusted))
	params.Set("sort", string(req.Order))
	params.Set("limit", strconv.Itoa(req.Limit))

	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		req.Ticker, req.Multiplier, req.Timespan, req.From, req.To)
	u, err := c.endpoint(path, params)
	if err != nil {
		return nil, err
	}

	var resp aggsResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("aggregates: %w", err)
	}
	return resp.bars(), nil
}
