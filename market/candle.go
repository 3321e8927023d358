package market

import "github.com/shopspring/decimal"

// Candle is the OHLC summary of one closed window of trades.
//
// First and Last are the timestamps of the first and last contributing
// trades in input order. For newest-first input First is the later of the two.
type Candle struct {
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
	First  Timestamp       `json:"first"`
	Last   Timestamp       `json:"last"`
	Trades int             `json:"trades"`
}

// Valid reports whether low <= open, close <= high.
func (c Candle) Valid() bool {
	if c.Low.GreaterThan(c.High) {
		return false
	}
	for _, p := range []decimal.Decimal{c.Open, c.Close} {
		if p.LessThan(c.Low) || p.GreaterThan(c.High) {
			return false
		}
	}
	return true
}
