package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/invoice-assistant/internal/money"
)

// ErrEmptyCatalog is returned when a catalog holds no records.
var ErrEmptyCatalog = errors.New("catalog is empty")

// ErrMalformedCatalog is returned when catalog records are not usable.
var ErrMalformedCatalog = errors.New("catalog is malformed")

// Record is one catalog entry as supplied by the catalog source. Keys vary
// between catalog exports, so values are resolved through the alias table.
type Record map[string]any

// Field describes a canonical numeric field and the keys it may be stored under.
type Field struct {
	Name    string
	Aliases []string
}

// Alias table, highest priority first.
var (
	PriceField         = Field{Name: "price", Aliases: []string{"price", "base_price", "Price", "Base Price", "rate", "amount", "cost"}}
	TaxRateField       = Field{Name: "tax_rate", Aliases: []string{"gst_rate", "GST Rate", "tax_rate"}}
	InstallationField  = Field{Name: "installation_charge", Aliases: []string{"Installation Charge", "installation_charge"}}
	ServiceField       = Field{Name: "service_charge", Aliases: []string{"Service Charge", "service_charge", "service_fee"}}
	ShippingField      = Field{Name: "shipping_charge", Aliases: []string{"Shipping Charge", "shipping_charge"}}
	HandlingField      = Field{Name: "handling_fee", Aliases: []string{"Handling Fee", "handling_fee"}}
	RecordedTotalField = Field{Name: "total_price", Aliases: []string{"Total Price", "total_price"}}
)

var (
	alternateNameKeys = []string{"Product Name", "product_name", "title", "description"}
	containmentKeys   = []string{"name", "Product Name", "product_name"}
	displayNameKeys   = []string{"name", "Product Name", "product_name", "title"}
)

// DefaultTaxRate applies when a record carries no usable tax rate.
var DefaultTaxRate = decimal.NewFromInt(18)

// Defaults holds the fallback values used by Resolve. A nil TaxRate means
// DefaultTaxRate.
type Defaults struct {
	TaxRate *decimal.Decimal
}

// WithTaxRate returns Defaults using rate as the fallback tax rate.
func WithTaxRate(rate decimal.Decimal) Defaults {
	return Defaults{TaxRate: &rate}
}

func (d Defaults) taxRate() decimal.Decimal {
	if d.TaxRate == nil || d.TaxRate.IsNegative() {
		return DefaultTaxRate
	}
	return *d.TaxRate
}

// Product is the canonical view of a record after alias resolution.
type Product struct {
	Name          string
	UnitPrice     decimal.Decimal
	TaxRate       decimal.Decimal
	Installation  decimal.Decimal
	Service       decimal.Decimal
	Shipping      decimal.Decimal
	Handling      decimal.Decimal
	RecordedTotal *decimal.Decimal
}

type productJSON struct {
	Name               string       `json:"name"`
	Price              json.Number  `json:"price"`
	TaxRate            json.Number  `json:"tax_rate"`
	InstallationCharge json.Number  `json:"installation_charge"`
	ServiceCharge      json.Number  `json:"service_charge"`
	ShippingCharge     json.Number  `json:"shipping_charge"`
	HandlingFee        json.Number  `json:"handling_fee"`
	RecordedTotal      *json.Number `json:"recorded_total_price,omitempty"`
}

// MarshalJSON emits currency fields as numbers with two decimals.
func (p Product) MarshalJSON() ([]byte, error) {
	out := productJSON{
		Name:               p.Name,
		Price:              money.Fixed(p.UnitPrice),
		TaxRate:            money.Rate(p.TaxRate),
		InstallationCharge: money.Fixed(p.Installation),
		ServiceCharge:      money.Fixed(p.Service),
		ShippingCharge:     money.Fixed(p.Shipping),
		HandlingFee:        money.Fixed(p.Handling),
	}
	if p.RecordedTotal != nil {
		n := money.Fixed(*p.RecordedTotal)
		out.RecordedTotal = &n
	}
	return json.Marshal(out)
}

// Resolve applies the alias table to a record.
func Resolve(r Record, defaults Defaults) Product {
	p := Product{
		Name:         r.DisplayName(),
		UnitPrice:    r.Number(PriceField, decimal.Zero),
		TaxRate:      r.Number(TaxRateField, defaults.taxRate()),
		Installation: r.Number(InstallationField, decimal.Zero),
		Service:      r.Number(ServiceField, decimal.Zero),
		Shipping:     r.Number(ShippingField, decimal.Zero),
		Handling:     r.Number(HandlingField, decimal.Zero),
	}
	if total, ok := r.lookup(RecordedTotalField); ok {
		p.RecordedTotal = &total
	}
	return p
}

// Number returns the first alias holding a non-negative number, or def.
func (r Record) Number(f Field, def decimal.Decimal) decimal.Decimal {
	if v, ok := r.lookup(f); ok {
		return v
	}
	return def
}

// Has reports whether any alias of f is present, usable or not.
func (r Record) Has(f Field) bool {
	for _, key := range f.Aliases {
		if _, ok := r[key]; ok {
			return true
		}
	}
	return false
}

func (r Record) lookup(f Field) (decimal.Decimal, bool) {
	for _, key := range f.Aliases {
		raw, ok := r[key]
		if !ok {
			continue
		}
		if d, ok := coerce(raw); ok {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

// Name returns the canonical name field.
func (r Record) Name() string {
	return r.text("name")
}

// DisplayName returns the best available name for the record.
func (r Record) DisplayName() string {
	for _, key := range displayNameKeys {
		if v := r.text(key); v != "" {
			return v
		}
	}
	return ""
}

func (r Record) text(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

func coerce(v any) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch n := v.(type) {
	case decimal.Decimal:
		d = n
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		d = decimal.NewFromFloat(n)
	case float32:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Decimal{}, false
		}
		d = decimal.NewFromFloat32(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	case int32:
		d = decimal.NewFromInt32(n)
	case int64:
		d = decimal.NewFromInt(n)
	case json.Number:
		parsed, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		d = parsed
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Decimal{}, false
		}
		d = parsed
	default:
		return decimal.Decimal{}, false
	}
	if d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Validate checks that records form a usable catalog: at least one record,
// and every record carries a name and a price-like field.
func Validate(records []Record) error {
	if len(records) == 0 {
		return ErrEmptyCatalog
	}
	for i, r := range records {
		if r == nil {
			return fmt.Errorf("record %d is not an object: %w", i, ErrMalformedCatalog)
		}
		if r.DisplayName() == "" {
			return fmt.Errorf("record %d has no name: %w", i, ErrMalformedCatalog)
		}
		if !r.Has(PriceField) {
			return fmt.Errorf("record %d (%s) has no price: %w", i, r.DisplayName(), ErrMalformedCatalog)
		}
	}
	return nil
}

// CheckResolvable is the structural check applied before invoicing: the
// catalog must be non-empty and at least one record must carry a name.
func CheckResolvable(records []Record) error {
	if len(records) == 0 {
		return ErrEmptyCatalog
	}
	for _, r := range records {
		if r.DisplayName() != "" {
			return nil
		}
	}
	return fmt.Errorf("no record carries a name: %w", ErrMalformedCatalog)
}
