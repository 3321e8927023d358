package market

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidTrade is returned for trades that fail validation.
var ErrInvalidTrade = errors.New("invalid trade")

// Trade is a single executed trade as reported by the exchange.
// ID, Exchange and Conditions are carried through untouched.
type Trade struct {
	ID         string          `json:"id,omitempty"`
	Exchange   int             `json:"exchange"`
	Conditions []int           `json:"conditions,omitempty"`
	Timestamp  Timestamp       `json:"timestamp"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
}

func (t Trade) Validate() error {
	if t.Timestamp < 0 {
		return fmt.Errorf("%w: negative timestamp %d", ErrInvalidTrade, t.Timestamp)
	}
	if !t.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive (got %s)", ErrInvalidTrade, t.Price)
	}
	if !t.Size.IsPositive() {
		return fmt.Errorf("%w: size must be positive (got %s)", ErrInvalidTrade, t.Size)
	}
	return nil
}

// ParseTrade builds a Trade from decimal text and validates it.
func ParseTrade(id string, exchange int, conditions []int, ts Timestamp, price, size string) (Trade, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return Trade{}, fmt.Errorf("%w: bad price %q: %v", ErrInvalidTrade, price, err)
	}
	s, err := decimal.NewFromString(strings.TrimSpace(size))
	if err != nil {
		return Trade{}, fmt.Errorf("%w: bad size %q: %v", ErrInvalidTrade, size, err)
	}

	t := Trade{
		ID:         id,
		Exchange:   exchange,
		Conditions: conditions,
		Timestamp:  ts,
		Price:      p,
		Size:       s,
	}
	if err := t.Validate(); err != nil {
		return Trade{}, err
	}
	return t, nil
}
