package invoice

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-assistant/internal/billing"
	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func discountedCameraInvoice(t *testing.T) billing.Invoice {
	t.Helper()
	records := []catalog.Record{
		{"name": "AI Security Camera 4K", "price": 1500, "gst_rate": 18, "Installation Charge": 100},
	}
	inv, err := billing.Calculator{}.Calculate(billing.Request{
		Order:           []billing.OrderLine{{Reference: "AI Security Camera 4K", Quantity: 2}},
		Discounts:       map[string]decimal.Decimal{"AI Security Camera 4K": decimal.NewFromInt(10)},
		OverallDiscount: decimal.NewFromInt(5),
	}, records)
	require.NoError(t, err)
	return inv
}

func renderDoc(t *testing.T, in RenderInput) *goquery.Document {
	t.Helper()
	r, err := NewHTMLRenderer()
	require.NoError(t, err)
	html, err := r.RenderHTML(in)
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestRenderHTMLDocument(t *testing.T) {
	inv := discountedCameraInvoice(t)
	doc := renderDoc(t, RenderInput{
		Number:        "INV-20260301090507",
		Date:          "01/03/2026",
		Seller:        DefaultSeller,
		Client:        WithClientDefaults(session.ClientDetails{}),
		Invoice:       inv,
		AmountInWords: AmountInWords(inv.Summary.GrandTotal),
		TaxInWords:    AmountInWords(inv.Summary.TotalTax),
	})

	require.Equal(t, "INV-20260301090507", doc.Find("#invoice-number").Text())
	require.Equal(t, "01/03/2026", doc.Find("#invoice-date").Text())
	require.Contains(t, doc.Find("#seller").Text(), "Zencia AI")
	require.Contains(t, doc.Find("#seller").Text(), "GSTIN: 14556789012345")
	require.Equal(t, "Walk-in Customer", doc.Find("#client .client-name").Text())
	require.Contains(t, doc.Find("#client").Text(), "Place of Supply: N/A")

	rows := doc.Find("#items tbody tr.item")
	require.Equal(t, 1, rows.Length())
	require.Equal(t, "AI Security Camera 4K", rows.First().Find("td.name").Text())
	require.Equal(t, "₹3,386.00", rows.First().Find("td.total").Text())

	require.Equal(t, "₹2,700.00", doc.Find("#subtotal").Text())
	require.Equal(t, "₹486.00", doc.Find("#total-tax").Text())
	require.Equal(t, "-₹169.30", doc.Find("#overall-discount").Text())
	require.Equal(t, "₹3,216.70", doc.Find("#grand-total").Text())
	require.Equal(t, "Three Thousand, Two Hundred And Sixteen Rupees Only", doc.Find("#amount-in-words").Text())
}

func TestRenderEscapesClientText(t *testing.T) {
	inv := discountedCameraInvoice(t)
	doc := renderDoc(t, RenderInput{
		Number:  "INV-1",
		Date:    "01/03/2026",
		Seller:  DefaultSeller,
		Client:  WithClientDefaults(session.ClientDetails{Name: "<script>alert(1)</script>"}),
		Invoice: inv,
	})
	require.Equal(t, 0, doc.Find("#client script").Length())
	require.Equal(t, "<script>alert(1)</script>", doc.Find("#client .client-name").Text())
}

func TestRenderOmitsZeroOverallDiscount(t *testing.T) {
	inv := discountedCameraInvoice(t)
	inv.Summary.OverallDiscount = decimal.Zero
	doc := renderDoc(t, RenderInput{Number: "INV-1", Seller: DefaultSeller, Invoice: inv})
	require.Equal(t, 0, doc.Find("#overall-discount").Length())
}

func TestWithClientDefaults(t *testing.T) {
	got := WithClientDefaults(session.ClientDetails{Name: "  ", Address: "12 MG Road"})
	require.Equal(t, DefaultClientName, got.Name)
	require.Equal(t, "12 MG Road", got.Address)
	require.Equal(t, "N/A", got.GSTNumber)
	require.Equal(t, "N/A", got.PlaceOfSupply)
	require.Empty(t, got.Email)
}
