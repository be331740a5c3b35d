package invoice

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/invoice-assistant/internal/billing"
	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/common"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

// Handler exposes invoice endpoints.
type Handler struct {
	Svc *Service
	// Idem guards invoice creation against client retries. Optional.
	Idem func(http.Handler) http.Handler
}

// Routes mounts the invoice and client endpoints.
func (h *Handler) Routes(r chi.Router) {
	create := http.Handler(http.HandlerFunc(h.Create))
	if h.Idem != nil {
		create = h.Idem(create)
	}
	r.Method(http.MethodPost, "/invoices", create)
	r.Get("/invoices", h.List)
	r.Get("/invoices/{number}", h.Get)
	r.Get("/invoices/{number}/document", h.Document)
	r.Put("/client", h.PutClient)
	r.Get("/client", h.GetClient)
}

type recordResponse struct {
	Record
	DocumentURL string `json:"document_url"`
}

func withURL(rec Record) recordResponse {
	return recordResponse{Record: rec, DocumentURL: "/api/v1/invoices/" + rec.Number + "/document"}
}

// Create handles POST /invoices.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return
	}
	rec, err := h.Svc.Generate(r.Context(), common.SessionID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/invoices/"+rec.Number)
	common.JSON(w, http.StatusCreated, map[string]any{"data": withURL(rec)})
}

// List handles GET /invoices for the calling session.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	recs, total, err := h.Svc.List(r.Context(), ListFilter{
		SessionID: common.SessionID(r.Context()),
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	data := make([]recordResponse, 0, len(recs))
	for _, rec := range recs {
		data = append(data, withURL(rec))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       data,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get handles GET /invoices/{number}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.load(w, r)
	if !ok {
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": withURL(rec)})
}

// Document handles GET /invoices/{number}/document and serves the rendered
// HTML as a download. format=text serves the plain-text summary instead.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.load(w, r)
	if !ok {
		return
	}
	body, ctype, ext := rec.Document, "text/html; charset=utf-8", "html"
	switch r.URL.Query().Get("format") {
	case "", "html":
	case "text":
		body, ctype, ext = billing.RenderText(rec.Invoice), "text/plain; charset=utf-8", "txt"
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "format must be html or text", nil)
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", `attachment; filename="invoice_`+rec.Number+`.`+ext+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (Record, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return Record{}, false
	}
	number := strings.TrimSpace(chi.URLParam(r, "number"))
	if number == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invoice number is required", nil)
		return Record{}, false
	}
	rec, err := h.Svc.Get(r.Context(), number)
	if err != nil {
		h.writeError(w, err)
		return Record{}, false
	}
	return rec, true
}

// PutClient handles PUT /client.
func (h *Handler) PutClient(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return
	}
	var payload session.ClientDetails
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	payload = trimClient(payload)
	details, err := h.Svc.SaveClient(r.Context(), common.SessionID(r.Context()), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": details})
}

// GetClient handles GET /client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "invoice service not configured", nil)
		return
	}
	details, err := h.Svc.Client(r.Context(), common.SessionID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": details})
}

func trimClient(c session.ClientDetails) session.ClientDetails {
	c.Name = strings.TrimSpace(c.Name)
	c.Address = strings.TrimSpace(c.Address)
	c.GSTNumber = strings.ToUpper(strings.TrimSpace(c.GSTNumber))
	c.PlaceOfSupply = strings.TrimSpace(c.PlaceOfSupply)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Email = strings.TrimSpace(c.Email)
	return c
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		common.WriteAppError(w, appErr)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "invoice not found", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, "EMPTY_CART", "cart is empty", nil)
	case errors.Is(err, ErrNothingPriced):
		common.JSONError(w, http.StatusUnprocessableEntity, "NOTHING_PRICED", err.Error(), nil)
	case errors.Is(err, session.ErrInvalidID):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, catalog.ErrEmptyCatalog), errors.Is(err, catalog.ErrMalformedCatalog):
		common.JSONError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
