package billing

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/invoice-assistant/internal/money"
)

// OrderLine is one cart line handed to the calculator.
type OrderLine struct {
	Reference string
	Quantity  int
}

// Request is the calculator input. Order keeps cart order; Discounts is keyed
// by the same reference used in Order.
type Request struct {
	Order           []OrderLine
	Discounts       map[string]decimal.Decimal
	OverallDiscount decimal.Decimal
}

// LineItem is a priced cart line. Currency fields are rounded to two places.
type LineItem struct {
	Name                  string
	Quantity              int
	UnitPrice             decimal.Decimal
	DiscountPercent       decimal.Decimal
	DiscountedPrice       decimal.Decimal
	Subtotal              decimal.Decimal
	TaxRate               decimal.Decimal
	TaxAmount             decimal.Decimal
	InstallationCharge    decimal.Decimal
	ServiceCharge         decimal.Decimal
	ShippingCharge        decimal.Decimal
	HandlingFee           decimal.Decimal
	CalculatedTotal       decimal.Decimal
	RecordedTotal         *decimal.Decimal
	DiscrepancyVsRecorded *decimal.Decimal
}

// Summary aggregates every priced line.
type Summary struct {
	Subtotal                   decimal.Decimal
	TotalTax                   decimal.Decimal
	TotalInstallation          decimal.Decimal
	TotalService               decimal.Decimal
	TotalShipping              decimal.Decimal
	TotalHandling              decimal.Decimal
	TotalBeforeOverallDiscount decimal.Decimal
	OverallDiscountPercent     decimal.Decimal
	OverallDiscount            decimal.Decimal
	GrandTotal                 decimal.Decimal
}

// SkippedLine records a cart line that could not be priced.
type SkippedLine struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// Skip reasons.
const (
	ReasonNotFound    = "product not found"
	ReasonNonPositive = "price is not positive"
)

// Invoice is the calculator output.
type Invoice struct {
	Items   []LineItem    `json:"items"`
	Summary Summary       `json:"summary"`
	Skipped []SkippedLine `json:"skipped,omitempty"`
}

// Priced reports whether at least one line could be billed.
func (inv Invoice) Priced() bool {
	return len(inv.Items) > 0
}

// ItemCount sums line quantities.
func (inv Invoice) ItemCount() int {
	n := 0
	for _, it := range inv.Items {
		n += it.Quantity
	}
	return n
}

type lineItemJSON struct {
	Name                  string       `json:"name"`
	Quantity              int          `json:"qty"`
	UnitPrice             json.Number  `json:"unit_price"`
	DiscountPercent       json.Number  `json:"discount_percent"`
	DiscountedPrice       json.Number  `json:"discounted_price"`
	Subtotal              json.Number  `json:"line_subtotal"`
	TaxRate               json.Number  `json:"tax_rate"`
	TaxAmount             json.Number  `json:"tax_amount"`
	InstallationCharge    json.Number  `json:"installation_charge"`
	ServiceCharge         json.Number  `json:"service_charge"`
	ShippingCharge        json.Number  `json:"shipping_charge"`
	HandlingFee           json.Number  `json:"handling_fee"`
	CalculatedTotal       json.Number  `json:"calculated_total"`
	RecordedTotal         *json.Number `json:"recorded_total_price,omitempty"`
	DiscrepancyVsRecorded *json.Number `json:"discrepancy_vs_recorded,omitempty"`
}

// MarshalJSON emits currency fields as numbers with two decimals.
func (l LineItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineItemJSON{
		Name:                  l.Name,
		Quantity:              l.Quantity,
		UnitPrice:             money.Fixed(l.UnitPrice),
		DiscountPercent:       money.Rate(l.DiscountPercent),
		DiscountedPrice:       money.Fixed(l.DiscountedPrice),
		Subtotal:              money.Fixed(l.Subtotal),
		TaxRate:               money.Rate(l.TaxRate),
		TaxAmount:             money.Fixed(l.TaxAmount),
		InstallationCharge:    money.Fixed(l.InstallationCharge),
		ServiceCharge:         money.Fixed(l.ServiceCharge),
		ShippingCharge:        money.Fixed(l.ShippingCharge),
		HandlingFee:           money.Fixed(l.HandlingFee),
		CalculatedTotal:       money.Fixed(l.CalculatedTotal),
		RecordedTotal:         fixedPtr(l.RecordedTotal),
		DiscrepancyVsRecorded: fixedPtr(l.DiscrepancyVsRecorded),
	})
}

// UnmarshalJSON restores a line stored by MarshalJSON.
func (l *LineItem) UnmarshalJSON(data []byte) error {
	var raw lineItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		src json.Number
		dst *decimal.Decimal
	}{
		{raw.UnitPrice, &l.UnitPrice},
		{raw.DiscountPercent, &l.DiscountPercent},
		{raw.DiscountedPrice, &l.DiscountedPrice},
		{raw.Subtotal, &l.Subtotal},
		{raw.TaxRate, &l.TaxRate},
		{raw.TaxAmount, &l.TaxAmount},
		{raw.InstallationCharge, &l.InstallationCharge},
		{raw.ServiceCharge, &l.ServiceCharge},
		{raw.ShippingCharge, &l.ShippingCharge},
		{raw.HandlingFee, &l.HandlingFee},
		{raw.CalculatedTotal, &l.CalculatedTotal},
	}
	for _, f := range fields {
		v, err := money.Parse(f.src)
		if err != nil {
			return fmt.Errorf("line item %q: %w", raw.Name, err)
		}
		*f.dst = v
	}
	var err error
	if l.RecordedTotal, err = parsePtr(raw.RecordedTotal); err != nil {
		return err
	}
	if l.DiscrepancyVsRecorded, err = parsePtr(raw.DiscrepancyVsRecorded); err != nil {
		return err
	}
	l.Name = raw.Name
	l.Quantity = raw.Quantity
	return nil
}

type summaryJSON struct {
	Subtotal                   json.Number `json:"subtotal"`
	TotalTax                   json.Number `json:"total_tax"`
	TotalInstallation          json.Number `json:"total_installation"`
	TotalService               json.Number `json:"total_service"`
	TotalShipping              json.Number `json:"total_shipping"`
	TotalHandling              json.Number `json:"total_handling"`
	TotalBeforeOverallDiscount json.Number `json:"total_before_overall_discount"`
	OverallDiscountPercent     json.Number `json:"overall_discount_percent"`
	OverallDiscount            json.Number `json:"overall_discount"`
	GrandTotal                 json.Number `json:"grand_total"`
}

// MarshalJSON emits currency fields as numbers with two decimals.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		Subtotal:                   money.Fixed(s.Subtotal),
		TotalTax:                   money.Fixed(s.TotalTax),
		TotalInstallation:          money.Fixed(s.TotalInstallation),
		TotalService:               money.Fixed(s.TotalService),
		TotalShipping:              money.Fixed(s.TotalShipping),
		TotalHandling:              money.Fixed(s.TotalHandling),
		TotalBeforeOverallDiscount: money.Fixed(s.TotalBeforeOverallDiscount),
		OverallDiscountPercent:     money.Rate(s.OverallDiscountPercent),
		OverallDiscount:            money.Fixed(s.OverallDiscount),
		GrandTotal:                 money.Fixed(s.GrandTotal),
	})
}

// UnmarshalJSON restores a summary stored by MarshalJSON.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw summaryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := []struct {
		src json.Number
		dst *decimal.Decimal
	}{
		{raw.Subtotal, &s.Subtotal},
		{raw.TotalTax, &s.TotalTax},
		{raw.TotalInstallation, &s.TotalInstallation},
		{raw.TotalService, &s.TotalService},
		{raw.TotalShipping, &s.TotalShipping},
		{raw.TotalHandling, &s.TotalHandling},
		{raw.TotalBeforeOverallDiscount, &s.TotalBeforeOverallDiscount},
		{raw.OverallDiscountPercent, &s.OverallDiscountPercent},
		{raw.OverallDiscount, &s.OverallDiscount},
		{raw.GrandTotal, &s.GrandTotal},
	}
	for _, f := range fields {
		v, err := money.Parse(f.src)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		*f.dst = v
	}
	return nil
}

func fixedPtr(d *decimal.Decimal) *json.Number {
	if d == nil {
		return nil
	}
	n := money.Fixed(*d)
	return &n
}

func parsePtr(n *json.Number) (*decimal.Decimal, error) {
	if n == nil {
		return nil, nil
	}
	d, err := money.Parse(*n)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
