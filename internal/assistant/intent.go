package assistant

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Action is what a chat turn asks the assistant to do.
type Action string

// Supported actions.
const (
	ActionAdd                  Action = "add"
	ActionRemove               Action = "remove"
	ActionApplyDiscount        Action = "apply_discount"
	ActionUpdateDiscount       Action = "update_discount"
	ActionOverallDiscount      Action = "overall_discount"
	ActionClearOverallDiscount Action = "clear_overall_discount"
	ActionShowCart             Action = "show_cart"
	ActionShowProducts         Action = "show_products"
	ActionGenerateInvoice      Action = "generate_invoice"
	ActionShowBreakdown        Action = "show_breakdown"
	ActionNone                 Action = "none"
)

var knownActions = map[Action]bool{
	ActionAdd: true, ActionRemove: true, ActionApplyDiscount: true, ActionUpdateDiscount: true,
	ActionOverallDiscount: true, ActionClearOverallDiscount: true, ActionShowCart: true,
	ActionShowProducts: true, ActionGenerateInvoice: true, ActionShowBreakdown: true, ActionNone: true,
}

// Intent is the structured interpretation of one shopper message.
type Intent struct {
	Action   Action  `json:"action" jsonschema:"enum=add,enum=remove,enum=apply_discount,enum=update_discount,enum=overall_discount,enum=clear_overall_discount,enum=show_cart,enum=show_products,enum=generate_invoice,enum=show_breakdown,enum=none" jsonschema_description:"The single cart action the shopper asked for, or none for conversation."`
	Product  string  `json:"product" jsonschema_description:"Exact catalog product name for add, remove, apply_discount and update_discount. Empty otherwise."`
	Quantity int     `json:"quantity" jsonschema_description:"Units to add or remove. 0 when not stated."`
	Discount float64 `json:"discount" jsonschema_description:"Discount percentage between 0 and 100. 0 when not stated."`
	Reply    string  `json:"reply" jsonschema_description:"Short friendly plain-text answer for the shopper when action is none. Empty otherwise."`
}

// Normalize trims fields and maps unknown actions to ActionNone.
func (i Intent) Normalize() Intent {
	i.Action = Action(strings.ToLower(strings.TrimSpace(string(i.Action))))
	if !knownActions[i.Action] {
		i.Action = ActionNone
	}
	if i.Action == ActionUpdateDiscount {
		i.Action = ActionApplyDiscount
	}
	i.Product = strings.TrimSpace(i.Product)
	i.Reply = strings.TrimSpace(i.Reply)
	return i
}

// DiscountPercent returns the discount as a decimal rounded to two places.
func (i Intent) DiscountPercent() decimal.Decimal {
	return decimal.NewFromFloat(i.Discount).Round(2)
}
