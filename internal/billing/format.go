package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/invoice-assistant/internal/money"
)

// FormatCurrency renders an amount as ₹1,234.50.
func FormatCurrency(d decimal.Decimal) string {
	return money.Format(d)
}

// RenderText renders a plain-text invoice summary. Ancillary totals and the
// overall discount only appear when non-zero.
func RenderText(inv Invoice) string {
	s := inv.Summary
	var b strings.Builder
	b.WriteString("Invoice Summary\n")
	fmt.Fprintf(&b, "Items: %d\n", inv.ItemCount())
	fmt.Fprintf(&b, "Subtotal: %s\n", FormatCurrency(s.Subtotal))
	for _, extra := range []struct {
		label  string
		amount decimal.Decimal
	}{
		{"Installation", s.TotalInstallation},
		{"Service", s.TotalService},
		{"Shipping", s.TotalShipping},
		{"Handling", s.TotalHandling},
	} {
		if !extra.amount.IsZero() {
			fmt.Fprintf(&b, "%s: %s\n", extra.label, FormatCurrency(extra.amount))
		}
	}
	fmt.Fprintf(&b, "GST: %s\n", FormatCurrency(s.TotalTax))
	if !s.OverallDiscount.IsZero() {
		fmt.Fprintf(&b, "Overall Discount (%s): -%s\n", money.FormatPercent(s.OverallDiscountPercent), FormatCurrency(s.OverallDiscount))
	}
	fmt.Fprintf(&b, "Grand Total: %s\n", FormatCurrency(s.GrandTotal))
	return b.String()
}
