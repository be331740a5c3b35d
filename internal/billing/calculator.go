package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/money"
)

var (
	// ErrEmptyCart is returned when the request has no order lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidQuantity is returned when an order line has a quantity below one.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrDiscountOutOfRange is returned when a percentage lies outside [0, 100].
	ErrDiscountOutOfRange = errors.New("discount must be between 0 and 100")
)

// Calculator prices a cart against a catalog snapshot. It holds no state
// between calls and is safe for concurrent use.
type Calculator struct {
	Logger   *zerolog.Logger
	Defaults catalog.Defaults
}

type totals struct {
	subtotal     decimal.Decimal
	tax          decimal.Decimal
	installation decimal.Decimal
	service      decimal.Decimal
	shipping     decimal.Decimal
	handling     decimal.Decimal
}

// Calculate prices every order line in order. Lines that cannot be resolved
// or carry a non-positive price are skipped and reported in Invoice.Skipped.
// Structural problems with the request or catalog fail the whole call.
func (c Calculator) Calculate(req Request, records []catalog.Record) (Invoice, error) {
	if err := validate(req); err != nil {
		return Invoice{}, err
	}
	if err := catalog.CheckResolvable(records); err != nil {
		return Invoice{}, err
	}
	logger := c.logger()

	inv := Invoice{Items: make([]LineItem, 0, len(req.Order))}
	var sum totals
	for _, line := range req.Order {
		rec, ok := catalog.Find(records, line.Reference)
		if !ok {
			logger.Warn().Str("reference", line.Reference).Msg("cart line skipped: product not found")
			inv.Skipped = append(inv.Skipped, SkippedLine{Reference: line.Reference, Reason: ReasonNotFound})
			continue
		}
		product := catalog.Resolve(rec, c.Defaults)
		if !product.UnitPrice.IsPositive() {
			logger.Warn().Str("reference", line.Reference).Str("price", product.UnitPrice.String()).Msg("cart line skipped: price is not positive")
			inv.Skipped = append(inv.Skipped, SkippedLine{Reference: line.Reference, Reason: ReasonNonPositive})
			continue
		}
		inv.Items = append(inv.Items, priceLine(line, product, discountFor(req.Discounts, line.Reference), &sum))
	}

	before := sum.subtotal.Add(sum.tax).Add(sum.installation).Add(sum.service).Add(sum.shipping).Add(sum.handling)
	overall := money.PercentOf(before, req.OverallDiscount)
	inv.Summary = Summary{
		Subtotal:                   money.Round(sum.subtotal),
		TotalTax:                   money.Round(sum.tax),
		TotalInstallation:          money.Round(sum.installation),
		TotalService:               money.Round(sum.service),
		TotalShipping:              money.Round(sum.shipping),
		TotalHandling:              money.Round(sum.handling),
		TotalBeforeOverallDiscount: money.Round(before),
		OverallDiscountPercent:     req.OverallDiscount,
		OverallDiscount:            money.Round(overall),
		GrandTotal:                 money.Round(before.Sub(overall)),
	}
	return inv, nil
}

func priceLine(line OrderLine, p catalog.Product, discount decimal.Decimal, sum *totals) LineItem {
	qty := decimal.NewFromInt(int64(line.Quantity))
	discounted := p.UnitPrice.Sub(money.PercentOf(p.UnitPrice, discount))
	subtotal := discounted.Mul(qty)
	tax := money.PercentOf(subtotal, p.TaxRate)
	installation := p.Installation.Mul(qty)
	service := p.Service.Mul(qty)
	shipping := p.Shipping.Mul(qty)
	handling := p.Handling.Mul(qty)
	total := subtotal.Add(tax).Add(installation).Add(service).Add(shipping).Add(handling)

	sum.subtotal = sum.subtotal.Add(subtotal)
	sum.tax = sum.tax.Add(tax)
	sum.installation = sum.installation.Add(installation)
	sum.service = sum.service.Add(service)
	sum.shipping = sum.shipping.Add(shipping)
	sum.handling = sum.handling.Add(handling)

	name := p.Name
	if name == "" {
		name = line.Reference
	}
	item := LineItem{
		Name:               name,
		Quantity:           line.Quantity,
		UnitPrice:          money.Round(p.UnitPrice),
		DiscountPercent:    discount,
		DiscountedPrice:    money.Round(discounted),
		Subtotal:           money.Round(subtotal),
		TaxRate:            p.TaxRate,
		TaxAmount:          money.Round(tax),
		InstallationCharge: money.Round(installation),
		ServiceCharge:      money.Round(service),
		ShippingCharge:     money.Round(shipping),
		HandlingFee:        money.Round(handling),
		CalculatedTotal:    money.Round(total),
	}
	if p.RecordedTotal != nil && !p.RecordedTotal.IsZero() {
		expected := p.RecordedTotal.Mul(qty)
		recorded := money.Round(expected)
		diff := money.Round(expected.Sub(total))
		item.RecordedTotal = &recorded
		item.DiscrepancyVsRecorded = &diff
	}
	return item
}

func validate(req Request) error {
	if len(req.Order) == 0 {
		return ErrEmptyCart
	}
	for _, line := range req.Order {
		if line.Quantity < 1 {
			return fmt.Errorf("%q: %w", line.Reference, ErrInvalidQuantity)
		}
	}
	for ref, pct := range req.Discounts {
		if !money.ValidPercent(pct) {
			return fmt.Errorf("%q discount %s: %w", ref, pct, ErrDiscountOutOfRange)
		}
	}
	if !money.ValidPercent(req.OverallDiscount) {
		return fmt.Errorf("overall discount %s: %w", req.OverallDiscount, ErrDiscountOutOfRange)
	}
	return nil
}

// discountFor finds the discount for reference, falling back to a
// case-insensitive key match.
func discountFor(discounts map[string]decimal.Decimal, reference string) decimal.Decimal {
	if d, ok := discounts[reference]; ok {
		return d
	}
	for key, d := range discounts {
		if strings.EqualFold(strings.TrimSpace(key), strings.TrimSpace(reference)) {
			return d
		}
	}
	return decimal.Zero
}

func (c Calculator) logger() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	nop := zerolog.Nop()
	return &nop
}
