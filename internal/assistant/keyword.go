package assistant

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// HelpText is the reply used when a message maps to no action.
const HelpText = "💬 I can help you shop, manage your cart, and create invoices. Try asking me to show products or add items to your cart!"

var (
	clearOverallRe = regexp.MustCompile(`\b(?:remove|clear|cancel|delete|drop)\b.*\b(?:overall|cart)\s+discount\b`)
	overallRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%.*\b(?:to|on|off)\s+(?:the\s+|my\s+)?(?:cart|order|total|everything)\b|\boverall\b.*?(\d+(?:\.\d+)?)\s*%`)
	itemDiscountRe = regexp.MustCompile(`^(?:please\s+)?(?:apply|add|give|set)\s+(?:a\s+)?(\d+(?:\.\d+)?)\s*%\s*(?:discount|off)?\s*(?:to|on|for)\s+(?:the\s+|my\s+)?(.+?)(?:\s+in\s+(?:my\s+|the\s+)?cart)?$`)
	breakdownRe    = regexp.MustCompile(`\bbreakdown\b|\bdetailed\b`)
	invoiceRe      = regexp.MustCompile(`\b(?:invoice|bill|checkout|check\s+out)\b`)
	removeRe       = regexp.MustCompile(`^(?:please\s+)?(?:remove|delete|drop|take\s+out)\s+(?:(\d+)\s+)?(?:the\s+)?(.+?)(?:\s+from\s+(?:my\s+|the\s+)?cart)?$`)
	addRe          = regexp.MustCompile(`^(?:please\s+)?(?:i\s+)?(?:(?:would\s+like|'d\s+like)\s+(?:to\s+)?(?:buy\s+|order\s+)?|add|buy|want|need|get|order)\s+(?:(\d+)\s+)?(.+?)(?:\s+with\s+(?:a\s+)?(\d+(?:\.\d+)?)\s*%\s*(?:discount|off))?(?:\s+to\s+(?:my\s+|the\s+)?cart)?$`)
	cartRe         = regexp.MustCompile(`\b(?:cart|basket)\b`)
	productsRe     = regexp.MustCompile(`\b(?:products?|catalog(?:ue)?|list)\b`)
)

// KeywordInterpreter maps messages to intents with fixed phrase patterns. It
// needs no external service and backs the model interpreter.
type KeywordInterpreter struct{}

// Interpret implements Interpreter.
func (KeywordInterpreter) Interpret(_ context.Context, message string, _ PromptContext) (Intent, error) {
	msg := strings.ToLower(strings.Join(strings.Fields(message), " "))
	msg = strings.TrimRight(msg, ".!?")

	switch {
	case clearOverallRe.MatchString(msg):
		return Intent{Action: ActionClearOverallDiscount}, nil
	case overallRe.MatchString(msg):
		m := overallRe.FindStringSubmatch(msg)
		pct := m[1]
		if pct == "" {
			pct = m[2]
		}
		return Intent{Action: ActionOverallDiscount, Discount: parseFloat(pct)}, nil
	case itemDiscountRe.MatchString(msg):
		m := itemDiscountRe.FindStringSubmatch(msg)
		return Intent{Action: ActionApplyDiscount, Product: singular(m[2]), Discount: parseFloat(m[1])}, nil
	case breakdownRe.MatchString(msg):
		return Intent{Action: ActionShowBreakdown}, nil
	case invoiceRe.MatchString(msg):
		return Intent{Action: ActionGenerateInvoice}, nil
	case removeRe.MatchString(msg):
		m := removeRe.FindStringSubmatch(msg)
		return Intent{Action: ActionRemove, Product: singular(m[2]), Quantity: parseInt(m[1])}, nil
	case addRe.MatchString(msg):
		m := addRe.FindStringSubmatch(msg)
		qty := parseInt(m[1])
		if qty == 0 {
			qty = 1
		}
		return Intent{Action: ActionAdd, Product: singular(m[2]), Quantity: qty, Discount: parseFloat(m[3])}, nil
	case cartRe.MatchString(msg):
		return Intent{Action: ActionShowCart}, nil
	case productsRe.MatchString(msg):
		return Intent{Action: ActionShowProducts}, nil
	default:
		return Intent{Action: ActionNone, Reply: HelpText}, nil
	}
}

// singular drops a plural "s" from the last word so "cameras" finds "Camera".
func singular(term string) string {
	term = strings.TrimSpace(term)
	words := strings.Fields(term)
	if len(words) == 0 {
		return term
	}
	last := words[len(words)-1]
	if len(last) > 3 && strings.HasSuffix(last, "s") && !strings.HasSuffix(last, "ss") {
		words[len(words)-1] = strings.TrimSuffix(last, "s")
	}
	return strings.Join(words, " ")
}

func parseInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
