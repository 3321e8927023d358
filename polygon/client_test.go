package polygon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nosark/polygon-io-playground/market"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient("test-key",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
	), srv
}

func TestNewClient(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := NewClient("k")
		assert.Equal(t, DefaultBaseURL, c.BaseURL)
		assert.Equal(t, "k", c.APIKey)
		assert.NotNil(t, c.HTTP)
		assert.Nil(t, c.Limiter)
	})

	t.Run("options", func(t *testing.T) {
		c := NewClient("k", WithBaseURL("http://example.com/"), WithRateLimit(5))
		assert.Equal(t, "http://example.com", c.BaseURL)
		require.NotNil(t, c.Limiter)
		assert.InDelta(t, 5.0/60.0, float64(c.Limiter.Limit()), 1e-9)

		c = NewClient("k", WithRateLimit(5), WithRateLimit(0))
		assert.Nil(t, c.Limiter)

		c = NewClient("k", WithTimeout(time.Second))
		assert.Equal(t, time.Second, c.HTTP.Timeout)
	})
}

func TestTrades_Success(t *testing.T) {
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/trades/X:BTC-USD", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("apiKey"))
		assert.Equal(t, "desc", q.Get("order"))
		assert.Equal(t, "timestamp", q.Get("sort"))
		assert.Equal(t, "2", q.Get("limit"))
		assert.Equal(t, fmt.Sprint(from.UnixNano()), q.Get("timestamp.gte"))
		assert.Empty(t, q.Get("timestamp.lt"))

		// prices as bare JSON numbers with more digits than a float64 holds
		fmt.Fprint(w, `{
			"status": "OK",
			"request_id": "req-1",
			"next_url": "https://api.polygon.io/v3/trades/X:BTC-USD?cursor=abc",
			"results": [
				{"conditions": [1], "exchange": 1, "id": "t2",
				 "participant_timestamp": 1704153600000000002,
				 "price": 43012.12345678901234, "size": 0.015},
				{"conditions": [2], "exchange": 2, "id": "t1",
				 "participant_timestamp": 0, "sip_timestamp": 1704153600000000001,
				 "price": "43012.1", "size": "1"}
			]
		}`)
	})

	page, err := client.Trades(context.Background(), TradesRequest{
		Ticker: "X:BTC-USD",
		From:   from,
		Limit:  2,
	})
	require.NoError(t, err)

	assert.Equal(t, "req-1", page.RequestID)
	assert.Equal(t, "OK", page.Status)
	assert.Equal(t, "https://api.polygon.io/v3/trades/X:BTC-USD?cursor=abc", page.NextURL)
	require.Len(t, page.Trades, 2)

	first := page.Trades[0]
	assert.Equal(t, "t2", first.ID)
	assert.Equal(t, []int{1}, first.Conditions)
	assert.Equal(t, market.Timestamp(1704153600000000002), first.Timestamp)
	assert.Equal(t, "43012.12345678901234", first.Price.String())
	assert.Equal(t, "0.015", first.Size.String())

	// participant timestamp missing: fall back to the SIP timestamp
	assert.Equal(t, market.Timestamp(1704153600000000001), page.Trades[1].Timestamp)
}

func TestTrades_InvalidRequest(t *testing.T) {
	t.Parallel()

	client := NewClient("k", WithBaseURL("http://example.invalid"))
	ctx := context.Background()

	tests := []struct {
		name string
		req  TradesRequest
		want string
	}{
		{name: "missing ticker", req: TradesRequest{}, want: "ticker is required"},
		{name: "bad date", req: TradesRequest{Ticker: "AAPL", Date: "01/02/2024"}, want: "bad date"},
		{name: "bad order", req: TradesRequest{Ticker: "AAPL", Order: "sideways"}, want: "unknown order"},
		{name: "limit too large", req: TradesRequest{Ticker: "AAPL", Limit: MaxTradesLimit + 1}, want: "limit must be"},
		{
			name: "empty range",
			req: TradesRequest{
				Ticker: "AAPL",
				From:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
				To:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			want: "from must be before to",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Trades(ctx, tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTrades_MissingAPIKey(t *testing.T) {
	t.Parallel()

	client := NewClient("", WithBaseURL("http://example.invalid"))
	_, err := client.Trades(context.Background(), TradesRequest{Ticker: "AAPL"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing api key")
}

func TestTrades_InvalidTrade(t *testing.T) {
	body := `{"status":"OK","results":[
		{"id":"ok","participant_timestamp":2,"price":1,"size":1},
		{"id":"bad","participant_timestamp":1,"price":1,"size":0}
	]}`
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	})

	_, err := client.Trades(context.Background(), TradesRequest{Ticker: "AAPL"})
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrInvalidTrade)
	assert.Contains(t, err.Error(), `"bad"`)

	page, err := client.Trades(context.Background(), TradesRequest{Ticker: "AAPL", SkipInvalid: true})
	require.NoError(t, err)
	assert.Len(t, page.Trades, 1)
	assert.Equal(t, 1, page.Skipped)
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMsg     string
		wantReqID   string
		rateLimited bool
	}{
		{
			name:      "polygon error body",
			status:    http.StatusForbidden,
			body:      `{"status":"NOT_AUTHORIZED","request_id":"r-9","message":"Unknown API Key"}`,
			wantMsg:   "Unknown API Key",
			wantReqID: "r-9",
		},
		{
			name:        "rate limited",
			status:      http.StatusTooManyRequests,
			body:        `{"status":"ERROR","error":"You've exceeded the maximum requests per minute"}`,
			wantMsg:     "exceeded the maximum requests",
			rateLimited: true,
		},
		{
			name:    "plain text body",
			status:  http.StatusBadGateway,
			body:    "upstream down",
			wantMsg: "upstream down",
		},
		{
			name:    "empty body",
			status:  http.StatusInternalServerError,
			wantMsg: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := client.Trades(context.Background(), TradesRequest{Ticker: "AAPL"})
			require.Error(t, err)

			var ae *APIError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.status, ae.StatusCode)
			assert.Contains(t, ae.Message, tt.wantMsg)
			assert.Equal(t, tt.wantReqID, ae.RequestID)
			assert.Equal(t, tt.rateLimited, IsRateLimited(err))
		})
	}
}

func TestTransportErrorRedactsKey(t *testing.T) {
	t.Parallel()

	client := NewClient("super-secret", WithBaseURL("http://127.0.0.1:1"))
	_, err := client.Trades(context.Background(), TradesRequest{Ticker: "AAPL"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret")
}

func TestTradeIterator(t *testing.T) {
	var calls atomic.Int32

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		base := "http://" + r.Host
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))

		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprintf(w, `{"status":"OK","next_url":"%s/v3/trades/AAPL?cursor=p2","results":[
				{"id":"3","participant_timestamp":30,"price":3,"size":1},
				{"id":"2","participant_timestamp":20,"price":2,"size":1}]}`, base)
		case "p2":
			fmt.Fprintf(w, `{"status":"OK","next_url":"%s/v3/trades/AAPL?cursor=p3","results":[
				{"id":"1","participant_timestamp":10,"price":1,"size":1}]}`, base)
		case "p3":
			fmt.Fprint(w, `{"status":"OK","results":[
				{"id":"0","participant_timestamp":5,"price":1,"size":1}]}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	})

	t.Run("all pages", func(t *testing.T) {
		calls.Store(0)
		it := NewTradeIterator(client, TradesRequest{Ticker: "AAPL"}, 0)
		ctx := context.Background()

		var ids []string
		for {
			trades, ok, err := it.Next(ctx)
			require.NoError(t, err)
			if !ok {
				break
			}
			for _, tr := range trades {
				ids = append(ids, tr.ID)
			}
		}

		assert.Equal(t, []string{"3", "2", "1", "0"}, ids)
		assert.Equal(t, 3, it.Pages())
		assert.Equal(t, int32(3), calls.Load())
		assert.False(t, it.More())
	})

	t.Run("page cap", func(t *testing.T) {
		calls.Store(0)
		it := NewTradeIterator(client, TradesRequest{Ticker: "AAPL"}, 2)
		ctx := context.Background()

		pages := 0
		for {
			_, ok, err := it.Next(ctx)
			require.NoError(t, err)
			if !ok {
				break
			}
			pages++
		}
		assert.Equal(t, 2, pages)
		assert.Equal(t, int32(2), calls.Load())
		assert.True(t, it.More())
	})
}

func TestLastCryptoTrade(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/last/crypto/BTC/USD", r.URL.Path)
		fmt.Fprint(w, `{
			"last": {"conditions":[1],"exchange":4,"price":16835.42,"size":0.006909,"timestamp":1605560885027},
			"request_id":"d2d779df",
			"status":"success",
			"symbol":"BTC-USD"
		}`)
	})

	last, err := client.LastCryptoTrade(context.Background(), "btc", "usd")
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", last.Symbol)
	assert.Equal(t, "d2d779df", last.RequestID)
	assert.Equal(t, 4, last.Trade.Exchange)
	assert.Equal(t, "16835.42", last.Trade.Price.String())
	assert.Equal(t, "0.006909", last.Trade.Size.String())
	assert.Equal(t, time.UnixMilli(1605560885027).UTC(), last.Trade.Timestamp.Time())

	_, err = client.LastCryptoTrade(context.Background(), "", "USD")
	assert.Error(t, err)
}

func TestPreviousClose(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/aggs/ticker/X:BTCUSD/prev", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("adjusted"))
		fmt.Fprint(w, `{
			"ticker":"X:BTCUSD","adjusted":true,"resultsCount":1,"status":"OK","request_id":"r",
			"results":[{"T":"X:BTCUSD","v":95045.16897951,"vw":15805.8335,"o":16035.9,"c":16057.11,"h":16180,"l":15639.2,"t":1605830399999,"n":1}]
		}`)
	})

	bars, err := client.PreviousClose(context.Background(), "X:BTCUSD", true)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	b := bars[0]
	assert.Equal(t, "X:BTCUSD", b.Ticker)
	assert.Equal(t, "16035.9", b.Open.String())
	assert.Equal(t, "16180", b.High.String())
	assert.Equal(t, "15639.2", b.Low.String())
	assert.Equal(t, "16057.11", b.Close.String())
	assert.Equal(t, "95045.16897951", b.Volume.String())
	assert.Equal(t, time.UnixMilli(1605830399999).UTC(), b.Start.Time())
}

func TestAggregates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/aggs/ticker/AAPL/range/5/minute/2024-01-02/2024-01-03", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "false", q.Get("adjusted"))
		assert.Equal(t, "asc", q.Get("sort"))
		assert.Equal(t, "5000", q.Get("limit"))
		fmt.Fprint(w, `{"ticker":"AAPL","status":"OK","results":[
			{"o":1.5,"h":2,"l":1,"c":1.75,"v":100,"t":1704200400000,"n":3}]}`)
	})

	bars, err := client.Aggregates(context.Background(), AggregatesRequest{
		Ticker:     "AAPL",
		Multiplier: 5,
		Timespan:   Minute,
		From:       "2024-01-02",
		To:         "2024-01-03",
	})
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "AAPL", bars[0].Ticker)
	assert.Equal(t, 3, bars[0].Transactions)

	_, err = client.Aggregates(context.Background(), AggregatesRequest{Ticker: "AAPL", From: "2024-01-02", To: "2024-01-03", Timespan: "fortnight"})
	assert.Error(t, err)
	_, err = client.Aggregates(context.Background(), AggregatesRequest{Ticker: "AAPL"})
	assert.Error(t, err)
}

func TestParseTimespan(t *testing.T) {
	t.Parallel()

	ts, err := ParseTimespan(" Hour ")
	require.NoError(t, err)
	assert.Equal(t, Hour, ts)

	_, err = ParseTimespan("second")
	assert.Error(t, err)
}
