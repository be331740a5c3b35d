package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var hundred = decimal.NewFromInt(100)

// PercentOf returns pct percent of base without rounding.
func PercentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}

// ValidPercent reports whether pct lies in [0, 100].
func ValidPercent(pct decimal.Decimal) bool {
	return !pct.IsNegative() && pct.LessThanOrEqual(hundred)
}

// Round rounds a currency value to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Fixed encodes a currency amount as a JSON number with exactly two decimals.
func Fixed(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

// Rate encodes a percentage as a JSON number without padding.
func Rate(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// Parse decodes a JSON number produced by Fixed or Rate. Empty input is zero.
func Parse(n json.Number) (decimal.Decimal, error) {
	raw := strings.TrimSpace(n.String())
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// Format renders an amount in rupees with grouped digits, e.g. ₹1,234.50.
func Format(d decimal.Decimal) string {
	r := d.Round(2)
	sign := ""
	if r.IsNegative() {
		sign = "-"
		r = r.Neg()
	}
	whole := r.Truncate(0)
	paise := r.Sub(whole).Shift(2).IntPart()
	p := message.NewPrinter(language.English)
	return fmt.Sprintf("%s₹%s.%02d", sign, p.Sprintf("%d", whole.IntPart()), paise)
}

// FormatPercent renders a percentage the way people type it: 10, 12.5.
func FormatPercent(d decimal.Decimal) string {
	return d.String() + "%"
}
