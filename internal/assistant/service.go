package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/invoice-assistant/internal/cart"
	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/events"
	"github.com/noah-isme/invoice-assistant/internal/money"
	"github.com/noah-isme/invoice-assistant/internal/obs"
	"github.com/noah-isme/invoice-assistant/internal/resilience"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

// Message roles kept in session history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyMessage is returned for blank chat messages.
var ErrEmptyMessage = errors.New("message is required")

// ActionData describes the cart action a reply performed.
type ActionData struct {
	Type     string          `json:"type"`
	Product  string          `json:"product,omitempty"`
	Quantity int             `json:"quantity,omitempty"`
	Discount decimal.Decimal `json:"-"`
}

// MarshalJSON renders the discount as a plain percentage number.
func (a ActionData) MarshalJSON() ([]byte, error) {
	type alias ActionData
	out := struct {
		alias
		Discount *json.Number `json:"discount,omitempty"`
	}{alias: alias(a)}
	if a.Discount.IsPositive() {
		n := money.Rate(a.Discount)
		out.Discount = &n
	}
	return json.Marshal(out)
}

// Reply is the outcome of one chat turn.
type Reply struct {
	Response        string          `json:"response"`
	Action          *ActionData     `json:"action_data"`
	CartCount       int             `json:"cart_count"`
	HasProducts     bool            `json:"has_products"`
	ProductCount    int             `json:"product_count"`
	SessionID       string          `json:"session_id"`
	OverallDiscount decimal.Decimal `json:"-"`
}

// MarshalJSON renders the overall discount as a number.
func (r Reply) MarshalJSON() ([]byte, error) {
	type alias Reply
	return json.Marshal(struct {
		alias
		OverallDiscount json.Number `json:"overall_discount"`
	}{alias: alias(r), OverallDiscount: money.Rate(r.OverallDiscount)})
}

// Service runs chat turns against the cart.
type Service struct {
	Cart         *cart.Service
	Interpreter  Interpreter
	Fallback     Interpreter
	Events       *events.Bus
	HistoryLimit int
	Logger       *zerolog.Logger
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

func (s *Service) fallback() Interpreter {
	if s.Fallback != nil {
		return s.Fallback
	}
	return KeywordInterpreter{}
}

// Handle interprets message, performs the resulting action and records the
// turn in the session history.
func (s *Service) Handle(ctx context.Context, sessionID, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}
	sess, err := s.Cart.Store.Get(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}
	records, err := s.Cart.Records(ctx, sess)
	if err != nil && !isCatalogUnavailable(err) {
		return Reply{}, err
	}

	intent, source := s.interpret(ctx, message, NewPromptContext(sess, catalog.Names(records)))
	obs.RecordChatAction(string(intent.Action), source)

	response, action, err := s.perform(ctx, sessionID, intent, records)
	if err != nil {
		return Reply{}, err
	}

	var reply Reply
	err = s.Cart.Mutate(ctx, sessionID, func(_ context.Context, sess *session.Session) error {
		at := s.now()
		sess.AppendHistory(RoleUser, message, at, s.HistoryLimit)
		sess.AppendHistory(RoleAssistant, response, at, s.HistoryLimit)
		sess.UpdatedAt = at
		reply = Reply{
			Response:        response,
			Action:          action,
			CartCount:       len(sess.Cart),
			HasProducts:     len(records) > 0,
			ProductCount:    len(records),
			SessionID:       sess.ID,
			OverallDiscount: sess.OverallDiscount,
		}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func (s *Service) interpret(ctx context.Context, message string, pc PromptContext) (Intent, string) {
	if s.Interpreter != nil {
		intent, err := s.Interpreter.Interpret(ctx, message, pc)
		if err == nil {
			return intent.Normalize(), "model"
		}
		reason := "error"
		if errors.Is(err, resilience.ErrOpenCircuit) {
			reason = "circuit_open"
		} else if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		obs.RecordInterpreterFallback(reason)
		s.logger().Warn().Err(err).Str("reason", reason).Msg("interpreter failed, using keyword fallback")
	}
	intent, err := s.fallback().Interpret(ctx, message, pc)
	if err != nil {
		return Intent{Action: ActionNone, Reply: HelpText}, "keyword"
	}
	return intent.Normalize(), "keyword"
}

// perform executes intent. Shopper mistakes become reply text, not errors.
func (s *Service) perform(ctx context.Context, sessionID string, intent Intent, records []catalog.Record) (string, *ActionData, error) {
	switch intent.Action {
	case ActionAdd:
		qty := intent.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 0 {
			return nonPositiveQuantityReply(intent.Product), nil, nil
		}
		if !money.ValidPercent(intent.DiscountPercent()) {
			return invalidDiscountReply, nil, nil
		}
		res, err := s.Cart.Add(ctx, sessionID, intent.Product, qty, intent.DiscountPercent())
		if reply, handled := lookupReply(err, intent.Product); handled {
			return reply, nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		return addedReply(res), &ActionData{Type: "add_to_cart", Product: res.Item.Name, Quantity: qty, Discount: res.Item.Discount}, nil

	case ActionRemove:
		res, err := s.Cart.Remove(ctx, sessionID, intent.Product, intent.Quantity)
		var lookupErr *cart.LookupError
		if errors.As(err, &lookupErr) {
			return removeMissReply(intent.Product), nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		return removedReply(res), &ActionData{Type: "remove_from_cart", Product: res.Name, Quantity: res.Removed}, nil

	case ActionApplyDiscount, ActionUpdateDiscount:
		if !money.ValidPercent(intent.DiscountPercent()) {
			return invalidDiscountReply, nil, nil
		}
		res, err := s.Cart.ApplyDiscount(ctx, sessionID, intent.Product, intent.DiscountPercent())
		if reply, handled := lookupReply(err, intent.Product); handled {
			return reply, nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		return discountReply(res), &ActionData{Type: "apply_discount", Product: res.Item.Name, Discount: res.Item.Discount}, nil

	case ActionOverallDiscount:
		if !money.ValidPercent(intent.DiscountPercent()) {
			return invalidDiscountReply, nil, nil
		}
		res, err := s.Cart.SetOverallDiscount(ctx, sessionID, intent.DiscountPercent())
		if errors.Is(err, cart.ErrEmptyCart) {
			return overallEmptyCartReply, nil, nil
		}
		if err != nil {
			return "", nil, err
		}
		return overallReply(res.View), &ActionData{Type: "overall_discount", Discount: res.View.OverallDiscountPercent}, nil

	case ActionClearOverallDiscount:
		res, cleared, err := s.Cart.ClearOverallDiscount(ctx, sessionID)
		if err != nil {
			return "", nil, err
		}
		if !cleared {
			return noOverallDiscountReply, nil, nil
		}
		return clearedOverallReply(res), &ActionData{Type: "clear_overall_discount"}, nil

	case ActionShowCart:
		view, err := s.Cart.View(ctx, sessionID)
		if err != nil {
			return "", nil, err
		}
		return cartReply(view), &ActionData{Type: "show_cart"}, nil

	case ActionShowBreakdown:
		inv, err := s.Cart.Breakdown(ctx, sessionID)
		if errors.Is(err, cart.ErrEmptyCart) {
			return emptyBreakdownReply, nil, nil
		}
		if err != nil {
			if isCatalogUnavailable(err) {
				return noProductsReply, nil, nil
			}
			return "", nil, err
		}
		return breakdownReply(inv), &ActionData{Type: "show_cart_breakdown"}, nil

	case ActionShowProducts:
		return productsReply(s.Cart.Catalog.Products(records)), &ActionData{Type: "show_products"}, nil

	case ActionGenerateInvoice:
		view, err := s.Cart.View(ctx, sessionID)
		if err != nil {
			return "", nil, err
		}
		if view.Empty() {
			return emptyInvoiceReply, nil, nil
		}
		return invoiceReply(len(view.Lines)), &ActionData{Type: "generate_invoice"}, nil

	default:
		return modelReply(intent.Reply), nil, nil
	}
}

func lookupReply(err error, reference string) (string, bool) {
	var lookupErr *cart.LookupError
	switch {
	case err == nil:
		return "", false
	case errors.As(err, &lookupErr) && errors.Is(err, cart.ErrProductNotFound):
		return productNotFoundReply(reference, lookupErr.Candidates), true
	case errors.As(err, &lookupErr):
		return notInCartReply(reference, lookupErr.Candidates), true
	case errors.Is(err, cart.ErrInvalidInput):
		return invalidDiscountReply, true
	case isCatalogUnavailable(err):
		return noProductsReply, true
	default:
		return "", false
	}
}

func isCatalogUnavailable(err error) bool {
	return errors.Is(err, catalog.ErrEmptyCatalog) || errors.Is(err, catalog.ErrMalformedCatalog)
}

// Products returns the resolved catalog the session shops from.
func (s *Service) Products(ctx context.Context, sessionID string) ([]catalog.Product, string, error) {
	sess, err := s.Cart.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	records, err := s.Cart.Records(ctx, sess)
	if err != nil {
		return nil, "", err
	}
	return s.Cart.Catalog.Products(records), sess.CatalogSource, nil
}

// CatalogPayload is the body of catalog events.
type CatalogPayload struct {
	SessionID string `json:"session_id"`
	Products  int    `json:"products"`
	Source    string `json:"source"`
}

// ReplaceCatalog validates records and makes them the session catalog. An
// empty slice reverts the session to the default catalog.
func (s *Service) ReplaceCatalog(ctx context.Context, sessionID string, records []catalog.Record) (string, error) {
	if len(records) > 0 {
		if err := catalog.Validate(records); err != nil {
			return "", err
		}
	}
	var source string
	err := s.Cart.Mutate(ctx, sessionID, func(_ context.Context, sess *session.Session) error {
		sess.UseCatalog(records)
		sess.UpdatedAt = s.now()
		source = sess.CatalogSource
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger().Info().Str("session_id", sessionID).Int("products", len(records)).Str("source", source).Msg("session catalog replaced")
	if s.Events != nil {
		payload := CatalogPayload{SessionID: sessionID, Products: len(records), Source: source}
		if _, err := s.Events.Emit(ctx, events.TopicCatalogReplaced, sessionID, payload); err != nil {
			s.logger().Warn().Err(err).Msg("catalog event emit failed")
		}
	}
	return source, nil
}

// Status summarises service health for the status endpoint.
type Status struct {
	APIStatus            string    `json:"api_status"`
	LLMStatus            string    `json:"llm_status"`
	Message              string    `json:"message"`
	DefaultProductsCount int       `json:"default_products_count"`
	Timestamp            time.Time `json:"timestamp"`
}

// Status reports whether the model interpreter is usable and how many default
// products are loaded.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{APIStatus: "ok", LLMStatus: "not_configured", Timestamp: s.now().UTC()}
	if oi, ok := s.Interpreter.(*OpenAIInterpreter); ok {
		st.LLMStatus = "configured"
		if b := oi.Breaker(); b != nil && b.State() == resilience.Open {
			st.LLMStatus = "degraded"
		}
	} else if s.Interpreter != nil {
		st.LLMStatus = "configured"
	}
	records, err := s.Cart.Catalog.Records(ctx)
	if err != nil {
		st.Message = fmt.Sprintf("default catalog unavailable: %v", err)
	} else {
		st.DefaultProductsCount = len(records)
		st.Message = "Invoice assistant is running"
	}
	return st
}
