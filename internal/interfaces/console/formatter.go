package console

import (
	"strings"

	"canlidoviz/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

func colorize(s, c string) string { return c + s + ansiReset }

type Formatter struct {
	Color bool
}

func NewFormatter(color bool) *Formatter {
	return &Formatter{Color: color}
}

// Format renders one quote. Two-sided quotes show both sides with their
// changes and the spread; single-valued ones show the value. ok is false when
// the quote has no price at all.
func (f *Formatter) Format(q domain.Quote) (string, bool) {
	var sb strings.Builder
	sb.WriteString(f.paint("[CANLIDOVIZ] ", ansiDim))
	sb.WriteString(q.Symbol)

	switch {
	case q.BuyPrice.Valid && q.SellPrice.Valid:
		f.side(&sb, "Buy", q.BuyPrice.Decimal, q.BuyPriceChange)
		f.side(&sb, "Sell", q.SellPrice.Decimal, q.SellPriceChange)
		spread, _ := q.Spread()
		sb.WriteString(" Spread: ")
		sb.WriteString(spread.StringFixed(4))
	case q.Value.Valid:
		sb.WriteString(" Value: ")
		sb.WriteString(q.Value.Decimal.StringFixed(2))
	case q.BuyPrice.Valid:
		f.side(&sb, "Buy", q.BuyPrice.Decimal, q.BuyPriceChange)
	case q.SellPrice.Valid:
		f.side(&sb, "Sell", q.SellPrice.Decimal, q.SellPriceChange)
	default:
		return "", false
	}
	return sb.String(), true
}

func (f *Formatter) side(sb *strings.Builder, label string, price decimal.Decimal, change decimal.NullDecimal) {
	sb.WriteString(" ")
	sb.WriteString(label)
	sb.WriteString(": ")
	sb.WriteString(price.StringFixed(4))

	if !change.Valid {
		return
	}
	d := change.Decimal
	txt := d.StringFixed(4)
	col := ansiYellow
	switch d.Sign() {
	case 1:
		txt = "+" + txt
		col = ansiGreen
	case -1:
		col = ansiRed
	}
	sb.WriteString(" (")
	sb.WriteString(f.paint(txt, col))
	sb.WriteString(")")
}

func (f *Formatter) paint(s, c string) string {
	if !f.Color {
		return s
	}
	return colorize(s, c)
}
