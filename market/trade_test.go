package market

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		price   string
		size    string
		ts      Timestamp
		wantErr string
	}{
		{name: "valid", price: "43012.57", size: "0.0015", ts: 1},
		{name: "whitespace", price: " 1.10 ", size: " 2 ", ts: 1},
		{name: "bad price", price: "1.2.3", size: "1", ts: 1, wantErr: "bad price"},
		{name: "bad size", price: "1", size: "abc", ts: 1, wantErr: "bad size"},
		{name: "zero size", price: "1", size: "0", ts: 1, wantErr: "size must be positive"},
		{name: "negative size", price: "1", size: "-2", ts: 1, wantErr: "size must be positive"},
		{name: "zero price", price: "0", size: "1", ts: 1, wantErr: "price must be positive"},
		{name: "negative timestamp", price: "1", size: "1", ts: -1, wantErr: "negative timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := ParseTrade("id", 1, []int{2}, tt.ts, tt.price, tt.size)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTrade)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "id", tr.ID)
			assert.Equal(t, []int{2}, tr.Conditions)
		})
	}
}

func TestTradeJSONRoundTrip(t *testing.T) {
	t.Parallel()

	in := Trade{
		ID:         "abc",
		Exchange:   4,
		Conditions: []int{1, 2},
		Timestamp:  1_700_000_000_123_456_789,
		Price:      decimal.RequireFromString("43012.123456789012345678"),
		Size:       decimal.RequireFromString("0.00000001"),
	}

	b, err := json.Marshal(in)
	require.NoError(t, err)
	// decimals travel as strings, never as JSON numbers
	assert.Contains(t, string(b), `"price":"43012.123456789012345678"`)

	var out Trade
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, in.Price.Equal(out.Price))
	assert.True(t, in.Size.Equal(out.Size))
	assert.Equal(t, in.Timestamp, out.Timestamp)
	assert.Equal(t, in.Conditions, out.Conditions)
}

func TestCandleJSONRoundTrip(t *testing.T) {
	t.Parallel()

	in := Candle{
		Open:   decimal.RequireFromString("0.1"),
		High:   decimal.RequireFromString("0.30000000000000000001"),
		Low:    decimal.RequireFromString("0.1"),
		Close:  decimal.RequireFromString("0.2"),
		Volume: decimal.RequireFromString("12.5"),
		First:  20,
		Last:   10,
		Trades: 3,
	}

	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Candle
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, in.High.Equal(out.High))
	assert.Equal(t, "0.30000000000000000001", out.High.String())
	assert.Equal(t, in.First, out.First)
	assert.Equal(t, in.Trades, out.Trades)
	assert.True(t, out.Valid())
}

func TestCandleValid(t *testing.T) {
	t.Parallel()

	d := decimal.RequireFromString
	assert.True(t, Candle{Open: d("2"), High: d("3"), Low: d("1"), Close: d("2")}.Valid())
	assert.False(t, Candle{Open: d("4"), High: d("3"), Low: d("1"), Close: d("2")}.Valid())
	assert.False(t, Candle{Open: d("2"), High: d("3"), Low: d("1"), Close: d("0.5")}.Valid())
	assert.False(t, Candle{Open: d("2"), High: d("1"), Low: d("3"), Close: d("2")}.Valid())
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	ts, err := ParseTimestamp("1700000000000000001")
	require.NoError(t, err)
	assert.Equal(t, Timestamp(1700000000000000001), ts)

	ts, err = ParseTimestamp("2024-01-01T00:00:00.5Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 500_000_000, time.UTC), ts.Time())
	assert.Equal(t, "2024-01-01T00:00:00.5Z", ts.String())

	_, err = ParseTimestamp("")
	assert.Error(t, err)
	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}
