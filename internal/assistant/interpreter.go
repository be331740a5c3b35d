package assistant

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/noah-isme/invoice-assistant/internal/session"
)

const (
	promptHistory      = 8
	promptMessageRunes = 150
)

// Interpreter turns a shopper message into an Intent.
type Interpreter interface {
	Interpret(ctx context.Context, message string, pc PromptContext) (Intent, error)
}

// PromptContext is the state an interpreter may consult.
type PromptContext struct {
	Cart     []session.CartItem
	Overall  string
	History  []session.Message
	Products []string
}

// NewPromptContext collects the prompt state for a session. Only the most
// recent history is kept and each message is truncated.
func NewPromptContext(sess *session.Session, products []string) PromptContext {
	pc := PromptContext{
		Cart:     append([]session.CartItem(nil), sess.Cart...),
		Products: products,
	}
	if sess.OverallDiscount.IsPositive() {
		pc.Overall = sess.OverallDiscount.String()
	}
	history := sess.History
	if len(history) > promptHistory {
		history = history[len(history)-promptHistory:]
	}
	for _, m := range history {
		m.Content = truncateRunes(m.Content, promptMessageRunes)
		pc.History = append(pc.History, m)
	}
	return pc
}

// CartSummary renders the cart for the prompt, one line per item.
func (pc PromptContext) CartSummary() string {
	if len(pc.Cart) == 0 {
		return "Cart is empty."
	}
	var b strings.Builder
	for _, it := range pc.Cart {
		fmt.Fprintf(&b, "- %s x%d", it.Name, it.Quantity)
		if it.Discount.IsPositive() {
			fmt.Fprintf(&b, " (%s%% off)", it.Discount.String())
		}
		b.WriteByte('\n')
	}
	if pc.Overall != "" {
		fmt.Fprintf(&b, "Overall cart discount: %s%%\n", pc.Overall)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func systemPrompt(pc PromptContext) string {
	var b strings.Builder
	b.WriteString(`You are a shopping assistant for an electronics store. You help shoppers build a cart and create invoices.
Choose exactly one action for the latest shopper message:
- add: put a product in the cart (quantity defaults to 1, optional discount percentage)
- remove: take units of a product out of the cart (quantity 0 removes one unit)
- apply_discount: set the discount percentage of a product already in the cart
- overall_discount: set a discount percentage on the whole cart
- clear_overall_discount: remove the whole-cart discount
- show_cart, show_breakdown, show_products, generate_invoice
- none: anything else; answer in reply
Use product names exactly as they appear in the catalog. Discounts are between 0 and 100.
Examples:
"I want 3 cameras with 10% off" -> add, product "AI Security Camera 4K", quantity 3, discount 10
"apply 15% discount to the doorbell" -> apply_discount, product "Smart Doorbell Pro Max", discount 15
"add 25% discount to cart" -> overall_discount, discount 25
`)
	b.WriteString("\nCatalog:\n")
	if len(pc.Products) == 0 {
		b.WriteString("(no products loaded)\n")
	}
	for _, name := range pc.Products {
		b.WriteString("- " + name + "\n")
	}
	b.WriteString("\nCurrent cart:\n")
	b.WriteString(pc.CartSummary())
	b.WriteString("\n")
	if len(pc.History) > 0 {
		b.WriteString("\nRecent conversation:\n")
		for _, m := range pc.History {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	return b.String()
}
