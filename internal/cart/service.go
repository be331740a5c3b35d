package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/invoice-assistant/internal/billing"
	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/lock"
	"github.com/noah-isme/invoice-assistant/internal/money"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

var (
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProductNotFound is returned when a reference matches no catalog product.
	ErrProductNotFound = errors.New("product not found")
	// ErrNotInCart is returned when a reference matches no cart line.
	ErrNotInCart = errors.New("item not in cart")
	// ErrEmptyCart is returned by operations that need at least one cart line.
	ErrEmptyCart = billing.ErrEmptyCart
)

const suggestionLimit = 10

// LookupError reports a reference that could not be matched, with the names
// the shopper could have meant.
type LookupError struct {
	Reference  string
	Candidates []string
	Err        error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %q", e.Err, e.Reference)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Service encapsulates cart domain operations. Every mutation runs under the
// session lock so read-modify-write cycles on one cart never interleave.
type Service struct {
	Store      session.Store
	Locker     lock.Locker
	Catalog    *catalog.Service
	Calculator billing.Calculator
	LockTTL    time.Duration
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

// Mutate loads the session, applies fn and saves it, all under the session
// lock. Nothing is saved when fn fails.
func (s *Service) Mutate(ctx context.Context, sessionID string, fn func(context.Context, *session.Session) error) error {
	if s == nil || s.Store == nil || s.Locker == nil {
		return errors.New("cart service not configured")
	}
	return s.Locker.WithLock(ctx, lock.SessionKey(sessionID), s.lockTTL(), func(ctx context.Context) error {
		sess, err := s.Store.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := fn(ctx, sess); err != nil {
			return err
		}
		return s.Store.Save(ctx, sess)
	})
}

// Records returns the catalog the session shops from.
func (s *Service) Records(ctx context.Context, sess *session.Session) ([]catalog.Record, error) {
	if s.Catalog == nil {
		return nil, errors.New("cart: catalog not configured")
	}
	return s.Catalog.For(ctx, sess.Catalog)
}

// AddResult describes the outcome of Add.
type AddResult struct {
	Item            session.CartItem
	Added           int
	Merged          bool
	Lines           int
	OverallDiscount decimal.Decimal
}

// Add puts qty units of the referenced product in the cart. Adding a product
// already in the cart increments its quantity; a positive discount replaces
// the line's discount.
func (s *Service) Add(ctx context.Context, sessionID, reference string, qty int, discount decimal.Decimal) (AddResult, error) {
	if qty <= 0 {
		return AddResult{}, fmt.Errorf("quantity must be positive: %w", ErrInvalidInput)
	}
	if !money.ValidPercent(discount) {
		return AddResult{}, fmt.Errorf("discount must be between 0 and 100: %w", ErrInvalidInput)
	}
	var res AddResult
	err := s.Mutate(ctx, sessionID, func(ctx context.Context, sess *session.Session) error {
		records, err := s.Records(ctx, sess)
		if err != nil {
			return err
		}
		rec, ok := catalog.Search(records, reference)
		if !ok {
			return &LookupError{Reference: reference, Candidates: head(catalog.Names(records), suggestionLimit), Err: ErrProductNotFound}
		}
		product := catalog.Resolve(rec, s.Catalog.Defaults())

		idx := sess.Item(product.Name)
		if idx >= 0 {
			line := &sess.Cart[idx]
			line.Quantity += qty
			if discount.IsPositive() {
				line.Discount = discount
			}
			res.Merged = true
		} else {
			sess.Cart = append(sess.Cart, session.CartItem{
				Name:      product.Name,
				UnitPrice: product.UnitPrice,
				Quantity:  qty,
				Discount:  discount,
				AddedAt:   s.now(),
			})
			idx = len(sess.Cart) - 1
		}
		res.Item = sess.Cart[idx]
		res.Added = qty
		res.Lines = len(sess.Cart)
		res.OverallDiscount = sess.OverallDiscount
		return nil
	})
	return res, err
}

// RemoveResult describes the outcome of Remove.
type RemoveResult struct {
	Name      string
	Removed   int
	Deleted   bool
	Remaining int
	Lines     int
}

// Remove takes qty units of the first cart line whose name contains the
// reference. Removing at least the line's quantity deletes the line. A
// non-positive qty removes one unit.
func (s *Service) Remove(ctx context.Context, sessionID, reference string, qty int) (RemoveResult, error) {
	if qty <= 0 {
		qty = 1
	}
	needle := strings.ToLower(strings.TrimSpace(reference))
	var res RemoveResult
	err := s.Mutate(ctx, sessionID, func(_ context.Context, sess *session.Session) error {
		idx := -1
		if needle != "" {
			for i, it := range sess.Cart {
				if strings.Contains(strings.ToLower(it.Name), needle) {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			return &LookupError{Reference: reference, Candidates: cartNames(sess), Err: ErrNotInCart}
		}
		line := sess.Cart[idx]
		res.Name = line.Name
		if qty >= line.Quantity {
			sess.Cart = append(sess.Cart[:idx], sess.Cart[idx+1:]...)
			res.Removed = line.Quantity
			res.Deleted = true
		} else {
			sess.Cart[idx].Quantity -= qty
			res.Removed = qty
			res.Remaining = sess.Cart[idx].Quantity
		}
		res.Lines = len(sess.Cart)
		return nil
	})
	return res, err
}

// DiscountResult describes the outcome of ApplyDiscount.
type DiscountResult struct {
	Item     session.CartItem
	Previous decimal.Decimal
}

// ApplyDiscount sets the discount of a cart line, matched by exact name first
// and containment second.
func (s *Service) ApplyDiscount(ctx context.Context, sessionID, reference string, pct decimal.Decimal) (DiscountResult, error) {
	if !money.ValidPercent(pct) {
		return DiscountResult{}, fmt.Errorf("discount must be between 0 and 100: %w", ErrInvalidInput)
	}
	var res DiscountResult
	err := s.Mutate(ctx, sessionID, func(_ context.Context, sess *session.Session) error {
		idx := matchLine(sess, reference)
		if idx < 0 {
			return &LookupError{Reference: reference, Candidates: cartNames(sess), Err: ErrNotInCart}
		}
		res.Previous = sess.Cart[idx].Discount
		sess.Cart[idx].Discount = pct
		res.Item = sess.Cart[idx]
		return nil
	})
	return res, err
}

// OverallResult describes a change to the overall discount.
type OverallResult struct {
	Previous decimal.Decimal
	View     View
}

// SetOverallDiscount sets the cart-wide discount. An empty cart is rejected.
func (s *Service) SetOverallDiscount(ctx context.Context, sessionID string, pct decimal.Decimal) (OverallResult, error) {
	if !money.ValidPercent(pct) {
		return OverallResult{}, fmt.Errorf("discount must be between 0 and 100: %w", ErrInvalidInput)
	}
	var res OverallResult
	err := s.Mutate(ctx, sessionID, func(_ context.Context, sess *session.Session) error {
		if len(sess.Cart) == 0 {
			return ErrEmptyCart
		}
		res.Previous = sess.OverallDiscount
		sess.OverallDiscount = pct
		res.View = NewView(sess)
		return nil
	})
	return res, err
}

// ClearOverallDiscount drops the cart-wide discount and reports whether one
// was set.
func (s *Service) ClearOverallDiscount(ctx context.Context, sessionID string) (OverallResult, bool, error) {
	var (
		res     OverallResult
		cleared bool
	)
	err := s.Mutate(ctx, sessionID, func(_ context.Context, sess *session.Session) error {
		res.Previous = sess.OverallDiscount
		cleared = !sess.OverallDiscount.IsZero()
		sess.OverallDiscount = decimal.Zero
		res.View = NewView(sess)
		return nil
	})
	return res, cleared, err
}

// View returns the shopper-facing cart preview.
func (s *Service) View(ctx context.Context, sessionID string) (View, error) {
	if s == nil || s.Store == nil {
		return View{}, errors.New("cart service not configured")
	}
	sess, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return NewView(sess), nil
}

// Breakdown prices the current cart exactly as the final invoice would.
func (s *Service) Breakdown(ctx context.Context, sessionID string) (billing.Invoice, error) {
	if s == nil || s.Store == nil {
		return billing.Invoice{}, errors.New("cart service not configured")
	}
	sess, err := s.Store.Get(ctx, sessionID)
	if err != nil {
		return billing.Invoice{}, err
	}
	return s.Price(ctx, sess)
}

// Price runs the calculator over the session cart and catalog.
func (s *Service) Price(ctx context.Context, sess *session.Session) (billing.Invoice, error) {
	if len(sess.Cart) == 0 {
		return billing.Invoice{}, ErrEmptyCart
	}
	records, err := s.Records(ctx, sess)
	if err != nil {
		return billing.Invoice{}, err
	}
	return s.Calculator.Calculate(Request(sess), records)
}

// Request converts a session cart into calculator input. Only positive
// discounts are passed on.
func Request(sess *session.Session) billing.Request {
	req := billing.Request{
		Order:           make([]billing.OrderLine, 0, len(sess.Cart)),
		Discounts:       make(map[string]decimal.Decimal),
		OverallDiscount: sess.OverallDiscount,
	}
	for _, it := range sess.Cart {
		req.Order = append(req.Order, billing.OrderLine{Reference: it.Name, Quantity: it.Quantity})
		if it.Discount.IsPositive() {
			req.Discounts[it.Name] = it.Discount
		}
	}
	return req
}

func matchLine(sess *session.Session, reference string) int {
	needle := strings.ToLower(strings.TrimSpace(reference))
	if needle == "" {
		return -1
	}
	for i, it := range sess.Cart {
		if strings.ToLower(it.Name) == needle {
			return i
		}
	}
	for i, it := range sess.Cart {
		if strings.Contains(strings.ToLower(it.Name), needle) {
			return i
		}
	}
	return -1
}

func cartNames(sess *session.Session) []string {
	out := make([]string, 0, len(sess.Cart))
	for _, it := range sess.Cart {
		out = append(out, it.Name)
	}
	return out
}

func head(names []string, n int) []string {
	if len(names) > n {
		return names[:n]
	}
	return names
}
