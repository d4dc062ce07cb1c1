package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote holds the latest known state of one instrument.
// Optional numbers use decimal.NullDecimal: Valid=false means the field has never been seen.
type Quote struct {
	Symbol          string              `json:"symbol"`
	BuyPrice        decimal.NullDecimal `json:"buy_price"`
	SellPrice       decimal.NullDecimal `json:"sell_price"`
	BuyPriceChange  decimal.NullDecimal `json:"buy_price_change"`
	SellPriceChange decimal.NullDecimal `json:"sell_price_change"`
	Value           decimal.NullDecimal `json:"value"`
	LastUpdate      time.Time           `json:"last_update"`
}

// Apply merges one update into the quote.
//
// fields[0] is the buy price, fields[1] the sell price and fields[2], when present,
// a single value. Empty or unparseable fields leave the previous value untouched.
// The single value is only taken while the quote has never had a buy or sell price.
func (q *Quote) Apply(fields []string, now time.Time) {
	q.LastUpdate = now

	if len(fields) > 0 {
		if buy, ok := ParseDecimal(fields[0]); ok {
			q.BuyPriceChange = priceChange(q.BuyPrice, buy)
			q.BuyPrice = decimal.NewNullDecimal(buy)
		}
	}
	if len(fields) > 1 {
		if sell, ok := ParseDecimal(fields[1]); ok {
			q.SellPriceChange = priceChange(q.SellPrice, sell)
			q.SellPrice = decimal.NewNullDecimal(sell)
		}
	}

	if q.BuyPrice.Valid || q.SellPrice.Valid || len(fields) < 3 {
		return
	}
	if v, ok := ParseDecimal(fields[2]); ok {
		q.Value = decimal.NewNullDecimal(v)
	}
}

// HasPrice reports whether any price-like field is known.
func (q Quote) HasPrice() bool {
	return q.BuyPrice.Valid || q.SellPrice.Valid || q.Value.Valid
}

// Spread returns sell - buy when both sides are known.
func (q Quote) Spread() (decimal.Decimal, bool) {
	if !q.BuyPrice.Valid || !q.SellPrice.Valid {
		return decimal.Zero, false
	}
	return q.SellPrice.Decimal.Sub(q.BuyPrice.Decimal), true
}

// signed delta against the previous price, zero on first observation
func priceChange(prev decimal.NullDecimal, next decimal.Decimal) decimal.NullDecimal {
	if !prev.Valid {
		return decimal.NewNullDecimal(decimal.Zero)
	}
	return decimal.NewNullDecimal(next.Sub(prev.Decimal))
}

// ParseDecimal parses a locale-invariant number: '.' is the decimal point and
// ',' a group separator. Surrounding whitespace and a leading '+' are accepted.
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
