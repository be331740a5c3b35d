package invoice

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/invoice-assistant/internal/billing"
	"github.com/noah-isme/invoice-assistant/internal/money"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

// RenderInput is the deterministic input used for invoice rendering.
type RenderInput struct {
	Number        string
	Date          string
	Seller        Seller
	Client        session.ClientDetails
	Invoice       billing.Invoice
	AmountInWords string
	TaxInWords    string
}

// Renderer produces the invoice document.
type Renderer interface {
	RenderHTML(input RenderInput) (string, error)
}

// HTMLRenderer renders the embedded invoice template.
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTMLRenderer parses the embedded template.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.New("invoice.html.tmpl").Funcs(template.FuncMap{
		"currency": money.Format,
		"percent":  money.FormatPercent,
		"nonzero":  func(d decimal.Decimal) bool { return !d.IsZero() },
		"inc":      func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/invoice.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse invoice template: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

// RenderHTML implements Renderer.
func (r *HTMLRenderer) RenderHTML(input RenderInput) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, input); err != nil {
		return "", fmt.Errorf("render invoice: %w", err)
	}
	return buf.String(), nil
}
