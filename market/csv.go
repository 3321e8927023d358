package market

import (
	"fmt"
	"strconv"
	"strings"
)

// Canonical trade CSV:
// timestamp,id,exchange,conditions,price,size
// timestamp is integer nanoseconds, conditions are ';' separated.
var TradeCSVHeader = []string{"timestamp", "id", "exchange", "conditions", "price", "size"}

// Canonical candle CSV:
// first,last,open,high,low,close,volume,trades
var CandleCSVHeader = []string{"first", "last", "open", "high", "low", "close", "volume", "trades"}

// JoinConditions encodes condition codes as "1;12;37".
func JoinConditions(conds []int) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, strconv.Itoa(c))
	}
	return strings.Join(parts, ";")
}

// SplitConditions decodes the output of JoinConditions. Empty text is no
// conditions.
func SplitConditions(s string) ([]int, error) {
	var conds []int
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad condition %q", part)
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func (t Trade) CSVRecord() []string {
	return []string{
		strconv.FormatInt(int64(t.Timestamp), 10),
		t.ID,
		strconv.Itoa(t.Exchange),
		JoinConditions(t.Conditions),
		t.Price.String(),
		t.Size.String(),
	}
}

// ParseTradeRecord parses one row written by Trade.CSVRecord.
func ParseTradeRecord(row []string) (Trade, error) {
	if len(row) < len(TradeCSVHeader) {
		return Trade{}, fmt.Errorf("%w: want %d columns, got %d", ErrInvalidTrade, len(TradeCSVHeader), len(row))
	}

	ts, err := ParseTimestamp(row[0])
	if err != nil {
		return Trade{}, fmt.Errorf("%w: %v", ErrInvalidTrade, err)
	}

	exchange := 0
	if s := strings.TrimSpace(row[2]); s != "" {
		exchange, err = strconv.Atoi(s)
		if err != nil {
			return Trade{}, fmt.Errorf("%w: bad exchange %q", ErrInvalidTrade, row[2])
		}
	}

	conds, err := SplitConditions(row[3])
	if err != nil {
		return Trade{}, fmt.Errorf("%w: %v", ErrInvalidTrade, err)
	}

	return ParseTrade(strings.TrimSpace(row[1]), exchange, conds, ts, row[4], row[5])
}

func (c Candle) CSVRecord() []string {
	return []string{
		c.First.String(),
		c.Last.String(),
		c.Open.String(),
		c.High.String(),
		c.Low.String(),
		c.Close.String(),
		c.Volume.String(),
		strconv.Itoa(c.Trades),
	}
}
