package assistant

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/invoice-assistant/internal/billing"
	"github.com/noah-isme/invoice-assistant/internal/cart"
	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/money"
)

// Replies are rendered as HTML fragments with <br> line breaks.
const lineBreak = "<br>"

const productPreview = 10

var textPolicy = bluemonday.StrictPolicy()

// esc strips markup from text that did not originate here, such as catalog
// names and model output.
func esc(s string) string {
	return textPolicy.Sanitize(s)
}

func join(lines ...string) string {
	return strings.Join(lines, lineBreak)
}

func rupees(d decimal.Decimal) string {
	return money.Format(d)
}

func pct(d decimal.Decimal) string {
	return money.FormatPercent(d)
}

func bullets(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, "• "+esc(n))
	}
	return out
}

func addedReply(res cart.AddResult) string {
	it := res.Item
	lines := []string{
		"✅ Added to cart!",
		"",
		"📦 " + esc(it.Name),
		fmt.Sprintf("🔢 Quantity: %d units (added %d)", it.Quantity, res.Added),
		fmt.Sprintf("💰 Price: %s each", rupees(it.UnitPrice)),
	}
	discounted := it.UnitPrice
	if it.Discount.IsPositive() {
		discounted = it.UnitPrice.Sub(money.PercentOf(it.UnitPrice, it.Discount))
		lines = append(lines,
			"🏷️ Discount: "+pct(it.Discount),
			fmt.Sprintf("💸 Discounted Price: %s each", rupees(discounted)),
		)
	}
	lines = append(lines,
		"💳 Item Total: "+rupees(discounted.Mul(decimal.NewFromInt(int64(it.Quantity)))),
		"",
		fmt.Sprintf("🛒 Cart now has %d different items", res.Lines),
	)
	if res.OverallDiscount.IsPositive() {
		lines = append(lines, fmt.Sprintf("🏷️ Overall Cart Discount: %s (applied at checkout)", pct(res.OverallDiscount)))
	}
	lines = append(lines,
		"",
		"💡 Additional charges (installation, service, etc.) will be calculated in final invoice",
		"📋 Say 'show cart breakdown' for detailed pricing",
	)
	return join(lines...)
}

func productNotFoundReply(reference string, candidates []string) string {
	lines := []string{fmt.Sprintf("❌ I couldn't find '%s' in our catalog.", esc(reference)), ""}
	if len(candidates) > 0 {
		lines = append(lines, "📋 Available products:")
		lines = append(lines, bullets(candidates)...)
	}
	return join(lines...)
}

func nonPositiveQuantityReply(reference string) string {
	return join(
		"❌ Cannot add zero or negative quantity products to cart.",
		"",
		fmt.Sprintf("💡 Please specify a positive quantity like 'add 2 %s'", esc(reference)),
	)
}

const invalidDiscountReply = "❌ Invalid discount percentage. Please use a value between 0 and 100."

func discountReply(res cart.DiscountResult) string {
	it := res.Item
	discounted := it.UnitPrice.Sub(money.PercentOf(it.UnitPrice, it.Discount))
	return join(
		"✅ Discount applied!",
		"",
		"📦 "+esc(it.Name),
		fmt.Sprintf("🏷️ Discount updated: %s → %s", pct(res.Previous), pct(it.Discount)),
		fmt.Sprintf("💰 Original Price: %s each", rupees(it.UnitPrice)),
		fmt.Sprintf("💸 New Price: %s each", rupees(discounted)),
		fmt.Sprintf("🔢 Quantity: %d units", it.Quantity),
		"💳 New Item Total: "+rupees(discounted.Mul(decimal.NewFromInt(int64(it.Quantity)))),
		"",
		"📋 Say 'show cart' to see updated cart",
	)
}

func notInCartReply(reference string, names []string) string {
	lines := []string{fmt.Sprintf("❌ I couldn't find '%s' in your cart.", esc(reference))}
	if len(names) > 0 {
		lines = append(lines, "", "🛒 Current cart items:")
		lines = append(lines, bullets(names)...)
	}
	return join(lines...)
}

func overallReply(v cart.View) string {
	return join(
		"✅ Overall cart discount applied!",
		"",
		fmt.Sprintf("🛒 Cart Items: %d different products", len(v.Lines)),
		"💰 Cart Subtotal: "+rupees(v.Subtotal),
		"🏷️ Overall Discount: "+pct(v.OverallDiscountPercent),
		"💸 Discount Amount: "+rupees(v.OverallDiscount),
		"💳 New Cart Total: "+rupees(v.Total),
		"",
		"💡 This discount applies to the entire cart total",
		"📋 Say 'show cart breakdown' for detailed pricing",
		"🧾 Say 'generate invoice' to create final bill with all discounts",
	)
}

const overallEmptyCartReply = "❌ Cannot apply overall discount - your cart is empty!<br><br>🛒 Add some products first."

const noOverallDiscountReply = "💡 No overall discount is currently applied to your cart."

func clearedOverallReply(res cart.OverallResult) string {
	return join(
		"✅ Overall discount removed!",
		"",
		fmt.Sprintf("🛒 Cart Items: %d different products", len(res.View.Lines)),
		fmt.Sprintf("🏷️ Overall Discount: %s → 0%%", pct(res.Previous)),
		"💳 New Cart Total: "+rupees(res.View.Total),
		"",
		"💡 Individual item discounts are still applied",
		"📋 Say 'show cart' to see updated totals",
	)
}

func removedReply(res cart.RemoveResult) string {
	if res.Deleted {
		return join(
			fmt.Sprintf("✅ Removed all %s from cart", esc(res.Name)),
			fmt.Sprintf("🛒 Cart now has %d items", res.Lines),
		)
	}
	return join(
		fmt.Sprintf("✅ Removed %dx %s", res.Removed, esc(res.Name)),
		fmt.Sprintf("🔢 %d remaining", res.Remaining),
		fmt.Sprintf("🛒 Cart has %d items", res.Lines),
	)
}

func removeMissReply(reference string) string {
	return fmt.Sprintf("❌ Couldn't find '%s' in your cart", esc(reference))
}

const emptyCartReply = "🛒 Your cart is empty<br><br>💡 Try adding some products! Say something like 'I want 2 cameras' or 'add 3 doorbells with 15% discount'"

func cartReply(v cart.View) string {
	if v.Empty() {
		return emptyCartReply
	}
	lines := []string{fmt.Sprintf("🛒 Your Shopping Cart (%d items)", len(v.Lines)), ""}
	for i, l := range v.Lines {
		lines = append(lines,
			fmt.Sprintf("%d. %s", i+1, esc(l.Name)),
			fmt.Sprintf("   • Quantity: %d units", l.Quantity),
			fmt.Sprintf("   • Price: %s each", rupees(l.UnitPrice)),
		)
		if l.Discount.IsPositive() {
			lines = append(lines,
				"   • Discount: "+pct(l.Discount),
				fmt.Sprintf("   • Discounted Price: %s each", rupees(l.DiscountedPrice)),
			)
		}
		lines = append(lines, "   • Subtotal: "+rupees(l.Subtotal), "")
	}
	lines = append(lines, "💰 Cart Subtotal: "+rupees(v.Subtotal))
	if v.OverallDiscountPercent.IsPositive() {
		lines = append(lines,
			fmt.Sprintf("🏷️ Overall Cart Discount (%s): -%s", pct(v.OverallDiscountPercent), rupees(v.OverallDiscount)),
			"💳 Cart Total after Discount: "+rupees(v.Total),
		)
	}
	lines = append(lines,
		"",
		"💡 Additional charges (installation, service, GST, etc.) will be added during checkout",
		"🏷️ Say 'apply 10% discount to [product]' to add discounts to existing items",
		"🏷️ Say 'add 25% discount to cart' to apply overall discount to entire cart",
		"📋 Say 'show cart breakdown' for detailed pricing with all charges",
		"🧾 Say 'generate invoice' to create final bill with complete breakdown",
	)
	return join(lines...)
}

const emptyBreakdownReply = "🛒 Your cart is empty<br><br>💡 Try adding some products first!"

type chargeRow struct {
	label string
	unit  func(billing.LineItem) decimal.Decimal
	total func(billing.Summary) decimal.Decimal
}

var chargeRows = []chargeRow{
	{"Installation", func(l billing.LineItem) decimal.Decimal { return l.InstallationCharge }, func(s billing.Summary) decimal.Decimal { return s.TotalInstallation }},
	{"Service", func(l billing.LineItem) decimal.Decimal { return l.ServiceCharge }, func(s billing.Summary) decimal.Decimal { return s.TotalService }},
	{"Shipping", func(l billing.LineItem) decimal.Decimal { return l.ShippingCharge }, func(s billing.Summary) decimal.Decimal { return s.TotalShipping }},
	{"Handling", func(l billing.LineItem) decimal.Decimal { return l.HandlingFee }, func(s billing.Summary) decimal.Decimal { return s.TotalHandling }},
}

func breakdownReply(inv billing.Invoice) string {
	if !inv.Priced() {
		return emptyBreakdownReply
	}
	lines := []string{fmt.Sprintf("🛒 Detailed Cart Breakdown (%d items)", len(inv.Items)), ""}
	for i, it := range inv.Items {
		qty := decimal.NewFromInt(int64(it.Quantity))
		lines = append(lines,
			fmt.Sprintf("%d. %s", i+1, esc(it.Name)),
			fmt.Sprintf("   📦 Quantity: %d units", it.Quantity),
			fmt.Sprintf("   💰 Base Price: %s each", rupees(it.UnitPrice)),
		)
		if it.DiscountPercent.IsPositive() {
			lines = append(lines,
				"   🏷️ Discount: "+pct(it.DiscountPercent),
				fmt.Sprintf("   💸 Discounted Price: %s each", rupees(it.DiscountedPrice)),
			)
		}
		lines = append(lines, "   📊 Price Breakdown:", "      • Product Subtotal: "+rupees(it.Subtotal))
		for _, row := range chargeRows {
			charge := row.unit(it)
			if charge.IsZero() {
				continue
			}
			unit := charge.Div(qty)
			lines = append(lines, fmt.Sprintf("      • %s (%s × %d): %s", row.label, rupees(unit), it.Quantity, rupees(charge)))
		}
		lines = append(lines,
			fmt.Sprintf("      • GST (%s): %s", pct(it.TaxRate), rupees(it.TaxAmount)),
			fmt.Sprintf("   💳 **Item Total: %s**", rupees(it.CalculatedTotal)),
			"",
		)
	}
	s := inv.Summary
	lines = append(lines, "📊 CART SUMMARY:", "   • Products Subtotal: "+rupees(s.Subtotal))
	for _, row := range chargeRows {
		if total := row.total(s); !total.IsZero() {
			lines = append(lines, fmt.Sprintf("   • Total %s: %s", row.label, rupees(total)))
		}
	}
	lines = append(lines,
		"   • Total GST: "+rupees(s.TotalTax),
		"",
		"💰 SUBTOTAL: "+rupees(s.TotalBeforeOverallDiscount),
	)
	if s.OverallDiscount.IsPositive() {
		lines = append(lines, fmt.Sprintf("🏷️ Overall Cart Discount (%s): -%s", pct(s.OverallDiscountPercent), rupees(s.OverallDiscount)))
	}
	lines = append(lines,
		"",
		"💰 GRAND TOTAL: "+rupees(s.GrandTotal),
		"",
		"💡 This matches what you'll see in your final invoice",
		"🏷️ Say 'add X% discount to cart' to apply overall discount",
		"🧾 Say 'generate invoice' to create the official document",
	)
	return join(lines...)
}

const noProductsReply = "📋 No products available. Please upload a catalog."

func productsReply(products []catalog.Product) string {
	if len(products) == 0 {
		return noProductsReply
	}
	lines := []string{fmt.Sprintf("📋 Product Catalog (%d items)", len(products)), ""}
	for i, p := range products {
		lines = append(lines, fmt.Sprintf("%2d. %s - %s", i+1, esc(p.Name), rupees(p.UnitPrice)))
	}
	lines = append(lines,
		"",
		"💡 To add products, just tell me naturally:",
		"• 'I want 3 cameras with 10% discount'",
		"• 'Add 5 doorbells to my cart'",
		"• 'Buy 2 Smart TVs'",
		"",
		"🏷️ To add discounts to cart items:",
		"• 'Apply 10% discount to smart doorbell'",
		"• 'Add 15% off to the cameras in my cart'",
		"• 'Add 50% discount to cart' for overall discount",
	)
	return join(lines...)
}

const emptyInvoiceReply = "❌ Cannot generate invoice - your cart is empty!<br><br>🛒 Add some products first, then I can create your invoice."

func invoiceReply(lines int) string {
	return join(
		"🔄 Generating your invoice...",
		"",
		fmt.Sprintf("📋 Processing %d different products", lines),
		"💰 Calculating totals with discounts and taxes",
		"📄 Creating professional invoice document",
		"📥 Download will be available shortly",
	)
}

// modelReply turns free model text into a reply fragment.
func modelReply(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return HelpText
	}
	parts := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, p := range parts {
		parts[i] = esc(p)
	}
	return join(parts...)
}
