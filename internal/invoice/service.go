package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/invoice-assistant/internal/billing"
	"github.com/noah-isme/invoice-assistant/internal/cart"
	"github.com/noah-isme/invoice-assistant/internal/common"
	"github.com/noah-isme/invoice-assistant/internal/events"
	"github.com/noah-isme/invoice-assistant/internal/obs"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

const maxNumberAttempts = 5

// Service generates and serves invoices.
type Service struct {
	Cart     *cart.Service
	Repo     Repository
	Renderer Renderer
	Events   *events.Bus
	Seller   Seller
	Logger   *zerolog.Logger
	Now      func() time.Time
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

func (s *Service) seller() Seller {
	if s.Seller == (Seller{}) {
		return DefaultSeller
	}
	return s.Seller
}

// GeneratedPayload is the body of the invoice.generated event.
type GeneratedPayload struct {
	Number     string `json:"number"`
	SessionID  string `json:"session_id"`
	Lines      int    `json:"lines"`
	Skipped    int    `json:"skipped"`
	GrandTotal string `json:"grand_total"`
}

// Generate prices the session cart, renders and stores the invoice, and
// empties the cart. Everything up to the session save happens under the
// session lock; when any step fails the cart is left as it was. A stored
// invoice whose session save then fails is deleted again so that retrying
// does not leave a duplicate behind.
func (s *Service) Generate(ctx context.Context, sessionID string) (Record, error) {
	if s.Cart == nil || s.Repo == nil || s.Renderer == nil {
		return Record{}, errors.New("invoice service not configured")
	}
	var (
		rec    Record
		stored bool
	)
	err := s.Cart.Mutate(ctx, sessionID, func(ctx context.Context, sess *session.Session) error {
		if len(sess.Cart) == 0 {
			return ErrEmptyCart
		}
		inv, err := s.Cart.Price(ctx, sess)
		if err != nil {
			return err
		}
		if !inv.Priced() {
			return ErrNothingPriced
		}
		issued := s.now()
		rec = Record{
			SessionID:     sess.ID,
			IssuedAt:      issued,
			Seller:        s.seller(),
			Client:        WithClientDefaults(sess.Client),
			Invoice:       inv,
			AmountInWords: AmountInWords(inv.Summary.GrandTotal),
			TaxInWords:    AmountInWords(inv.Summary.TotalTax),
		}
		if err := s.store(ctx, &rec); err != nil {
			return err
		}
		stored = true
		sess.ClearCart()
		sess.UpdatedAt = issued
		return nil
	})
	if err != nil {
		if stored {
			s.discard(ctx, rec.Number, err)
		}
		obs.RecordInvoice(outcome(err), 0, nil)
		return Record{}, err
	}

	reasons := make([]string, 0, len(rec.Invoice.Skipped))
	for _, sk := range rec.Invoice.Skipped {
		reasons = append(reasons, sk.Reason)
	}
	grand, _ := rec.Invoice.Summary.GrandTotal.Float64()
	obs.RecordInvoice("ok", grand, reasons)

	s.logger().Info().
		Str("session_id", sessionID).
		Str("invoice", rec.Number).
		Int("lines", len(rec.Invoice.Items)).
		Int("skipped", len(rec.Invoice.Skipped)).
		Str("grand_total", rec.Invoice.Summary.GrandTotal.StringFixed(2)).
		Msg("invoice generated")

	if s.Events != nil {
		payload := GeneratedPayload{
			Number:     rec.Number,
			SessionID:  rec.SessionID,
			Lines:      len(rec.Invoice.Items),
			Skipped:    len(rec.Invoice.Skipped),
			GrandTotal: rec.Invoice.Summary.GrandTotal.StringFixed(2),
		}
		if _, err := s.Events.Emit(ctx, events.TopicInvoiceGenerated, rec.Number, payload); err != nil {
			s.logger().Warn().Err(err).Str("invoice", rec.Number).Msg("invoice event emit failed")
		}
	}
	return rec, nil
}

// discard removes an invoice saved by a Generate call that failed afterwards.
// It runs detached from ctx because the usual cause is ctx ending mid-save.
func (s *Service) discard(ctx context.Context, number string, cause error) {
	if err := s.Repo.Delete(context.WithoutCancel(ctx), number); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger().Error().Err(err).AnErr("cause", cause).Str("invoice", number).Msg("orphaned invoice not removed")
		return
	}
	s.logger().Warn().Err(cause).Str("invoice", number).Msg("invoice discarded after session save failed")
}

// store numbers, renders and saves rec. Numbers have one-second resolution,
// so a collision retries with a suffix.
func (s *Service) store(ctx context.Context, rec *Record) error {
	base := Number(rec.IssuedAt)
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		rec.Number = numberWithSuffix(base, attempt)
		doc, err := s.Renderer.RenderHTML(RenderInput{
			Number:        rec.Number,
			Date:          FormatDate(rec.IssuedAt),
			Seller:        rec.Seller,
			Client:        rec.Client,
			Invoice:       rec.Invoice,
			AmountInWords: rec.AmountInWords,
			TaxInWords:    rec.TaxInWords,
		})
		if err != nil {
			return err
		}
		rec.Document = doc
		err = s.Repo.Save(ctx, *rec)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateNumber) {
			return fmt.Errorf("save invoice: %w", err)
		}
	}
	return fmt.Errorf("allocate invoice number %s: %w", base, ErrDuplicateNumber)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrNothingPriced):
		return "nothing_priced"
	default:
		return "error"
	}
}

// Get returns a stored invoice.
func (s *Service) Get(ctx context.Context, number string) (Record, error) {
	return s.Repo.Get(ctx, number)
}

// List returns stored invoices, newest first, with the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Record, int, error) {
	return s.Repo.List(ctx, filter)
}

// SaveClient validates and stores the buyer details for a session.
func (s *Service) SaveClient(ctx context.Context, sessionID string, details session.ClientDetails) (session.ClientDetails, error) {
	if appErr := common.ValidateStruct(details); appErr != nil {
		return session.ClientDetails{}, appErr
	}
	err := s.Cart.Mutate(ctx, sessionID, func(_ context.Context, sess *session.Session) error {
		sess.Client = details
		sess.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return session.ClientDetails{}, err
	}
	return details, nil
}

// Client returns the buyer details stored for a session.
func (s *Service) Client(ctx context.Context, sessionID string) (session.ClientDetails, error) {
	sess, err := s.Cart.Store.Get(ctx, sessionID)
	if err != nil {
		return session.ClientDetails{}, err
	}
	return sess.Client, nil
}

// Preview prices the current cart without generating anything.
func (s *Service) Preview(ctx context.Context, sessionID string) (billing.Invoice, error) {
	return s.Cart.Breakdown(ctx, sessionID)
}
