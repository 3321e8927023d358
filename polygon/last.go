package polygon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nosark/polygon-io-playground/market"
)

// LastTrade is the most recent trade for a crypto pair.
type LastTrade struct {
	Symbol    string
	RequestID string
	Trade     market.Trade
}

type lastCryptoResponse struct {
	Last struct {
		Conditions []int           `json:"conditions"`
		Exchange   int             `json:"exchange"`
		Price      decimal.Decimal `json:"price"`
		Size       decimal.Decimal `json:"size"`
		Timestamp  int64           `json:"timestamp"` // unix milliseconds
	} `json:"last"`
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Symbol    string `json:"symbol"`
}

// LastCryptoTrade fetches the last trade for the from/to pair, e.g. BTC/USD.
func (c *Client) LastCryptoTrade(ctx context.Context, from, to string) (*LastTrade, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return nil, fmt.Errorf("from and to symbols are required")
	}

	u, err := c.endpoint("/v1/last/crypto/"+from+"/"+to, nil)
	if err != nil {
		return nil, err
	}

	var resp lastCryptoResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("last crypto trade: %w", err)
	}

	symbol := resp.Symbol
	if symbol == "" {
		symbol = from + "-" + to
	}
	return &LastTrade{
		Symbol:    symbol,
		RequestID: resp.RequestID,
		Trade: market.Trade{
			Exchange:   resp.Last.Exchange,
			Conditions: resp.Last.Conditions,
			Timestamp:  market.TimestampFromTime(time.UnixMilli(resp.Last.Timestamp)),
			Price:      resp.Last.Price,
			Size:       resp.Last.Size,
		},
	}, nil
}
