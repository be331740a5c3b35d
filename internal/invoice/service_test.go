package invoice_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-assistant/internal/cart"
	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/events"
	"github.com/noah-isme/invoice-assistant/internal/invoice"
	"github.com/noah-isme/invoice-assistant/internal/lock"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

type fixture struct {
	svc    *invoice.Service
	cart   *cart.Service
	store  *session.MemoryStore
	repo   *invoice.MemoryRepository
	events *events.MemoryStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{Source: catalog.Static{
		{"name": "AI Security Camera 4K", "price": 1500, "gst_rate": 18, "Installation Charge": 100},
		{"name": "Smart Doorbell Pro Max", "price": 3200, "gst_rate": 12},
	}})
	require.NoError(t, err)
	store := session.NewMemoryStore(time.Hour, 0)
	t.Cleanup(store.Close)
	clock := time.Date(2026, 3, 1, 9, 5, 7, 0, time.UTC)
	now := func() time.Time { return clock }
	cartSvc := &cart.Service{Store: store, Locker: lock.NewLocal(), Catalog: catalogSvc, Now: now}
	renderer, err := invoice.NewHTMLRenderer()
	require.NoError(t, err)
	repo := invoice.NewMemoryRepository()
	evStore := events.NewMemoryStore(0)
	svc := &invoice.Service{
		Cart:     cartSvc,
		Repo:     repo,
		Renderer: renderer,
		Events:   &events.Bus{Store: evStore, Now: now},
		Now:      now,
	}
	return fixture{svc: svc, cart: cartSvc, store: store, repo: repo, events: evStore}
}

func TestGenerateInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.cart.Add(ctx, "s1", "AI Security Camera 4K", 2, decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = f.cart.SetOverallDiscount(ctx, "s1", decimal.NewFromInt(5))
	require.NoError(t, err)

	rec, err := f.svc.Generate(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "INV-20260301090507", rec.Number)
	require.Equal(t, "s1", rec.SessionID)
	require.Equal(t, invoice.DefaultSeller, rec.Seller)
	require.Equal(t, invoice.DefaultClientName, rec.Client.Name)
	require.Equal(t, "3216.7", rec.Invoice.Summary.GrandTotal.String())
	require.Equal(t, "Three Thousand, Two Hundred And Sixteen Rupees Only", rec.AmountInWords)
	require.Contains(t, rec.Document, "INV-20260301090507")

	sess, err := f.store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, sess.Cart)
	require.True(t, sess.OverallDiscount.IsZero())

	stored, err := f.repo.Get(ctx, rec.Number)
	require.NoError(t, err)
	require.Equal(t, rec.Number, stored.Number)

	evs := f.events.Events()
	require.Len(t, evs, 1)
	require.Equal(t, events.TopicInvoiceGenerated, evs[0].Topic)
	require.Equal(t, rec.Number, evs[0].AggregateID)
	var payload invoice.GeneratedPayload
	require.NoError(t, json.Unmarshal(evs[0].Payload, &payload))
	require.Equal(t, "3216.70", payload.GrandTotal)
	require.Equal(t, 1, payload.Lines)
}

func TestGenerateRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Generate(context.Background(), "s1")
	require.ErrorIs(t, err, invoice.ErrEmptyCart)
	require.Empty(t, f.events.Events())
}

func TestGenerateKeepsCartWhenNothingPriced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.cart.Add(ctx, "s1", "Smart Doorbell Pro Max", 1, decimal.Zero)
	require.NoError(t, err)

	// Swap to a catalog that no longer carries the product.
	err = f.cart.Mutate(ctx, "s1", func(_ context.Context, sess *session.Session) error {
		sess.UseCatalog([]catalog.Record{{"name": "Professional Cable Tester", "price": 850}})
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.Generate(ctx, "s1")
	require.ErrorIs(t, err, invoice.ErrNothingPriced)

	sess, err := f.store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Cart, 1)
}

func TestGenerateSuffixesCollidingNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := f.cart.Add(ctx, "s1", "Smart Doorbell Pro Max", 1, decimal.Zero)
		require.NoError(t, err)
		_, err = f.svc.Generate(ctx, "s1")
		require.NoError(t, err)
	}
	recs, total, err := f.svc.List(ctx, invoice.ListFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	numbers := []string{recs[0].Number, recs[1].Number}
	require.ElementsMatch(t, []string{"INV-20260301090507", "INV-20260301090507-2"}, numbers)
}

type failingRepo struct {
	invoice.Repository
	calls atomic.Int32
}

func (r *failingRepo) Save(context.Context, invoice.Record) error {
	r.calls.Add(1)
	return context.DeadlineExceeded
}

func TestGenerateKeepsCartWhenSaveFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := &failingRepo{Repository: f.repo}
	f.svc.Repo = repo
	_, err := f.cart.Add(ctx, "s1", "Smart Doorbell Pro Max", 1, decimal.Zero)
	require.NoError(t, err)

	_, err = f.svc.Generate(ctx, "s1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.EqualValues(t, 1, repo.calls.Load())

	sess, err := f.store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Cart, 1)
}

type flakySessionStore struct {
	session.Store
	fail atomic.Bool
}

func (s *flakySessionStore) Save(ctx context.Context, sess *session.Session) error {
	if s.fail.Load() {
		return context.Canceled
	}
	return s.Store.Save(ctx, sess)
}

func TestGenerateDiscardsInvoiceWhenSessionSaveFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.cart.Add(ctx, "s1", "Smart Doorbell Pro Max", 1, decimal.Zero)
	require.NoError(t, err)

	flaky := &flakySessionStore{Store: f.store}
	flaky.fail.Store(true)
	f.cart.Store = flaky

	_, err = f.svc.Generate(ctx, "s1")
	require.ErrorIs(t, err, context.Canceled)
	_, total, err := f.repo.List(ctx, invoice.ListFilter{})
	require.NoError(t, err)
	require.Zero(t, total)
	_, err = f.repo.Get(ctx, "INV-20260301090507")
	require.ErrorIs(t, err, invoice.ErrNotFound)

	sess, err := f.store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Cart, 1)

	flaky.fail.Store(false)
	rec, err := f.svc.Generate(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "INV-20260301090507", rec.Number)
}

func TestClientDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveClient(ctx, "s1", session.ClientDetails{Email: "not-an-email"})
	require.Error(t, err)

	saved, err := f.svc.SaveClient(ctx, "s1", session.ClientDetails{Name: "Asha Traders", GSTNumber: "09ABCDE1234F1Z5"})
	require.NoError(t, err)
	require.Equal(t, "Asha Traders", saved.Name)

	got, err := f.svc.Client(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, saved, got)

	_, err = f.cart.Add(ctx, "s1", "Smart Doorbell Pro Max", 1, decimal.Zero)
	require.NoError(t, err)
	rec, err := f.svc.Generate(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "Asha Traders", rec.Client.Name)
	require.Equal(t, "N/A", rec.Client.PlaceOfSupply)
}

func TestMemoryRepositoryPaging(t *testing.T) {
	repo := invoice.NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Save(ctx, invoice.Record{Number: invoice.Number(at), SessionID: "s1", IssuedAt: at}))
	}
	require.NoError(t, repo.Save(ctx, invoice.Record{Number: "INV-other", SessionID: "s2", IssuedAt: base}))
	require.ErrorIs(t, repo.Save(ctx, invoice.Record{Number: "INV-other"}), invoice.ErrDuplicateNumber)

	page, total, err := repo.List(ctx, invoice.ListFilter{SessionID: "s1", Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, page, 2)
	require.Equal(t, invoice.Number(base.Add(2*time.Minute)), page[0].Number)

	all, total, err := repo.List(ctx, invoice.ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 6, total)
	require.Len(t, all, 6)

	_, err = repo.Get(ctx, "INV-missing")
	require.ErrorIs(t, err, invoice.ErrNotFound)
}
