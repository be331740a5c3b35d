package invoice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/invoice-assistant/internal/billing"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

var (
	// ErrEmptyCart is returned when an invoice is requested for an empty cart.
	ErrEmptyCart = billing.ErrEmptyCart
	// ErrNothingPriced is returned when no cart line could be priced. The cart
	// is left untouched so the shopper can fix it.
	ErrNothingPriced = errors.New("none of the cart items could be priced")
	// ErrNotFound is returned when an invoice number is unknown.
	ErrNotFound = errors.New("invoice not found")
	// ErrDuplicateNumber is returned by repositories when a number is taken.
	ErrDuplicateNumber = errors.New("invoice number already exists")
)

// Client defaults printed when the shopper left details blank.
const (
	DefaultClientName = "Walk-in Customer"
	notAvailable      = "N/A"
)

// Seller is the issuing business.
type Seller struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	GSTIN   string `json:"gstin"`
}

// DefaultSeller is used when no seller is configured.
var DefaultSeller = Seller{
	Name:    "Zencia AI",
	Address: "Sachivalaya Metro Station, Lucknow Uttar Pradesh 226001",
	Phone:   "1234567890",
	GSTIN:   "14556789012345",
}

// Record is a generated invoice.
type Record struct {
	Number        string                `json:"number"`
	SessionID     string                `json:"session_id"`
	IssuedAt      time.Time             `json:"issued_at"`
	Seller        Seller                `json:"seller"`
	Client        session.ClientDetails `json:"client"`
	Invoice       billing.Invoice       `json:"invoice"`
	AmountInWords string                `json:"amount_in_words"`
	TaxInWords    string                `json:"tax_in_words"`
	Document      string                `json:"-"`
}

// Number formats an invoice number from the issue time.
func Number(t time.Time) string {
	return "INV-" + t.Format("20060102150405")
}

// FormatDate renders the invoice date as dd/mm/yyyy.
func FormatDate(t time.Time) string {
	return t.Format("02/01/2006")
}

// WithClientDefaults fills blank client fields with printable defaults.
func WithClientDefaults(c session.ClientDetails) session.ClientDetails {
	out := c
	if strings.TrimSpace(out.Name) == "" {
		out.Name = DefaultClientName
	}
	for _, f := range []*string{&out.Address, &out.GSTNumber, &out.PlaceOfSupply} {
		if strings.TrimSpace(*f) == "" {
			*f = notAvailable
		}
	}
	return out
}

func numberWithSuffix(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, attempt+1)
}
