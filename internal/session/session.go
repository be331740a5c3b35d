package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/invoice-assistant/internal/catalog"
)

// ErrInvalidID is returned for session ids that cannot be used as keys.
var ErrInvalidID = errors.New("invalid session id")

// Catalog sources.
const (
	CatalogDefault = "default"
	CatalogCustom  = "custom"
)

// DefaultHistoryLimit is the number of chat messages kept per session.
const DefaultHistoryLimit = 20

// CartItem is one cart line, keyed by canonical product name.
type CartItem struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Discount  decimal.Decimal `json:"discount"`
	AddedAt   time.Time       `json:"added_at"`
}

// ClientDetails identifies the buyer printed on invoices.
type ClientDetails struct {
	Name          string `json:"name" validate:"omitempty,max=200"`
	Address       string `json:"address" validate:"omitempty,max=500"`
	GSTNumber     string `json:"gst_number" validate:"omitempty,alphanum,max=15"`
	PlaceOfSupply string `json:"place_of_supply" validate:"omitempty,max=100"`
	Phone         string `json:"phone" validate:"omitempty,max=20"`
	Email         string `json:"email" validate:"omitempty,email"`
}

// Message is one chat turn.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Session is the per-shopper state.
type Session struct {
	ID              string           `json:"id"`
	Cart            []CartItem       `json:"cart"`
	OverallDiscount decimal.Decimal  `json:"overall_discount"`
	Client          ClientDetails    `json:"client"`
	History         []Message        `json:"history"`
	Catalog         []catalog.Record `json:"catalog,omitempty"`
	CatalogSource   string           `json:"catalog_source"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// New returns an empty session.
func New(id string, now time.Time) *Session {
	return &Session{
		ID:            id,
		CatalogSource: CatalogDefault,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Item returns the index of the line named name, ignoring case, or -1.
func (s *Session) Item(name string) int {
	for i, it := range s.Cart {
		if strings.EqualFold(it.Name, name) {
			return i
		}
	}
	return -1
}

// ItemCount sums the cart quantities.
func (s *Session) ItemCount() int {
	n := 0
	for _, it := range s.Cart {
		n += it.Quantity
	}
	return n
}

// ClearCart empties the cart and drops the overall discount.
func (s *Session) ClearCart() {
	s.Cart = nil
	s.OverallDiscount = decimal.Zero
}

// AppendHistory records a chat turn, keeping at most limit messages.
func (s *Session) AppendHistory(role, content string, at time.Time, limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.History = append(s.History, Message{Role: role, Content: content, At: at})
	if over := len(s.History) - limit; over > 0 {
		s.History = append([]Message(nil), s.History[over:]...)
	}
}

// UseCatalog replaces the session catalog. An empty slice reverts to the
// default catalog.
func (s *Session) UseCatalog(records []catalog.Record) {
	if len(records) == 0 {
		s.Catalog = nil
		s.CatalogSource = CatalogDefault
		return
	}
	s.Catalog = records
	s.CatalogSource = CatalogCustom
}

// Clone returns a copy that shares no slices with s. Catalog records are
// shared since they are never mutated in place.
func (s *Session) Clone() *Session {
	out := *s
	out.Cart = append([]CartItem(nil), s.Cart...)
	out.History = append([]Message(nil), s.History...)
	out.Catalog = append([]catalog.Record(nil), s.Catalog...)
	if len(s.Catalog) == 0 {
		out.Catalog = nil
	}
	if len(s.Cart) == 0 {
		out.Cart = nil
	}
	if len(s.History) == 0 {
		out.History = nil
	}
	return &out
}

// Store persists sessions. Get creates a session on first reference.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
