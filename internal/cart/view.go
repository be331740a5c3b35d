package cart

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/invoice-assistant/internal/money"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

// Line is one cart line with its discount applied. Ancillary charges and tax
// are left to the breakdown and the invoice.
type Line struct {
	Name            string
	Quantity        int
	UnitPrice       decimal.Decimal
	Discount        decimal.Decimal
	DiscountedPrice decimal.Decimal
	Subtotal        decimal.Decimal
}

// View is the cart preview shown to shoppers. The overall discount preview is
// taken from the discounted product subtotal.
type View struct {
	Lines                  []Line
	ItemCount              int
	Subtotal               decimal.Decimal
	OverallDiscountPercent decimal.Decimal
	OverallDiscount        decimal.Decimal
	Total                  decimal.Decimal
}

// Empty reports whether the cart has no lines.
func (v View) Empty() bool {
	return len(v.Lines) == 0
}

// NewView builds the preview for a session cart.
func NewView(sess *session.Session) View {
	v := View{
		Lines:                  make([]Line, 0, len(sess.Cart)),
		OverallDiscountPercent: sess.OverallDiscount,
	}
	subtotal := decimal.Zero
	for _, it := range sess.Cart {
		discounted := it.UnitPrice.Sub(money.PercentOf(it.UnitPrice, it.Discount))
		lineTotal := discounted.Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		v.ItemCount += it.Quantity
		v.Lines = append(v.Lines, Line{
			Name:            it.Name,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			Discount:        it.Discount,
			DiscountedPrice: money.Round(discounted),
			Subtotal:        money.Round(lineTotal),
		})
	}
	overall := money.PercentOf(subtotal, sess.OverallDiscount)
	v.Subtotal = money.Round(subtotal)
	v.OverallDiscount = money.Round(overall)
	v.Total = money.Round(subtotal.Sub(overall))
	return v
}

type lineJSON struct {
	Name            string      `json:"name"`
	Quantity        int         `json:"quantity"`
	UnitPrice       json.Number `json:"unit_price"`
	Discount        json.Number `json:"discount"`
	DiscountedPrice json.Number `json:"discounted_price"`
	Subtotal        json.Number `json:"subtotal"`
}

type viewJSON struct {
	Items                  []lineJSON  `json:"items"`
	LineCount              int         `json:"line_count"`
	ItemCount              int         `json:"item_count"`
	Subtotal               json.Number `json:"subtotal"`
	OverallDiscountPercent json.Number `json:"overall_discount_percent"`
	OverallDiscount        json.Number `json:"overall_discount"`
	Total                  json.Number `json:"total"`
}

// MarshalJSON emits currency fields as numbers with two decimals.
func (v View) MarshalJSON() ([]byte, error) {
	out := viewJSON{
		Items:                  make([]lineJSON, 0, len(v.Lines)),
		LineCount:              len(v.Lines),
		ItemCount:              v.ItemCount,
		Subtotal:               money.Fixed(v.Subtotal),
		OverallDiscountPercent: money.Rate(v.OverallDiscountPercent),
		OverallDiscount:        money.Fixed(v.OverallDiscount),
		Total:                  money.Fixed(v.Total),
	}
	for _, l := range v.Lines {
		out.Items = append(out.Items, lineJSON{
			Name:            l.Name,
			Quantity:        l.Quantity,
			UnitPrice:       money.Fixed(l.UnitPrice),
			Discount:        money.Rate(l.Discount),
			DiscountedPrice: money.Fixed(l.DiscountedPrice),
			Subtotal:        money.Fixed(l.Subtotal),
		})
	}
	return json.Marshal(out)
}
