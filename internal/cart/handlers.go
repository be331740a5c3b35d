package cart

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/invoice-assistant/internal/billing"
	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/common"
	"github.com/noah-isme/invoice-assistant/internal/money"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

// Routes mounts the cart endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/cart", h.Get)
	r.Post("/cart/items", h.AddItem)
	r.Delete("/cart/items/{name}", h.RemoveItem)
	r.Put("/cart/items/{name}/discount", h.ApplyDiscount)
	r.Put("/cart/discount", h.SetOverallDiscount)
	r.Delete("/cart/discount", h.ClearOverallDiscount)
	r.Get("/cart/breakdown", h.Breakdown)
}

// Get returns cart contents and pricing preview.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	view, err := h.Svc.View(r.Context(), common.SessionID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

type addItemRequest struct {
	Product  string          `json:"product" validate:"required,max=200"`
	Quantity int             `json:"quantity" validate:"required,gte=1,lte=10000"`
	Discount decimal.Decimal `json:"discount" validate:"gte=0,lte=100"`
}

// AddItem adds or increments a cart line item.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload addItemRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	payload.Product = strings.TrimSpace(payload.Product)
	if appErr := common.ValidateStruct(payload); appErr != nil {
		common.WriteAppError(w, appErr)
		return
	}
	res, err := h.Svc.Add(r.Context(), common.SessionID(r.Context()), payload.Product, payload.Quantity, payload.Discount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Merged {
		status = http.StatusOK
	}
	common.JSON(w, status, map[string]any{
		"data": map[string]any{
			"item":   itemJSON(res.Item),
			"added":  res.Added,
			"merged": res.Merged,
			"lines":  res.Lines,
		},
	})
}

// RemoveItem removes ?qty= units (default 1) of the named line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	name := nameParam(r)
	if name == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "name is required", nil)
		return
	}
	qty := common.AtoiDefault(r.URL.Query().Get("qty"), 1)
	if strings.EqualFold(r.URL.Query().Get("all"), "true") {
		qty = int(^uint(0) >> 1)
	}
	res, err := h.Svc.Remove(r.Context(), common.SessionID(r.Context()), name, qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"name":      res.Name,
			"removed":   res.Removed,
			"deleted":   res.Deleted,
			"remaining": res.Remaining,
			"lines":     res.Lines,
		},
	})
}

type discountRequest struct {
	Percent decimal.Decimal `json:"percent" validate:"gte=0,lte=100"`
}

// ApplyDiscount sets the discount of a cart line.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload discountRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if appErr := common.ValidateStruct(payload); appErr != nil {
		common.WriteAppError(w, appErr)
		return
	}
	res, err := h.Svc.ApplyDiscount(r.Context(), common.SessionID(r.Context()), nameParam(r), payload.Percent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"item":     itemJSON(res.Item),
			"previous": money.Rate(res.Previous),
		},
	})
}

// SetOverallDiscount sets the cart-wide discount.
func (h *Handler) SetOverallDiscount(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload discountRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if appErr := common.ValidateStruct(payload); appErr != nil {
		common.WriteAppError(w, appErr)
		return
	}
	res, err := h.Svc.SetOverallDiscount(r.Context(), common.SessionID(r.Context()), payload.Percent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res.View})
}

// ClearOverallDiscount removes the cart-wide discount.
func (h *Handler) ClearOverallDiscount(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	res, cleared, err := h.Svc.ClearOverallDiscount(r.Context(), common.SessionID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": res.View,
		"meta": map[string]any{"cleared": cleared, "previous": money.Rate(res.Previous)},
	})
}

// Breakdown returns the full invoice preview for the current cart.
func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	inv, err := h.Svc.Breakdown(r.Context(), common.SessionID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": inv})
}

func nameParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return strings.TrimSpace(raw)
}

func itemJSON(it session.CartItem) map[string]any {
	return map[string]any{
		"name":       it.Name,
		"unit_price": money.Fixed(it.UnitPrice),
		"quantity":   it.Quantity,
		"discount":   money.Rate(it.Discount),
		"added_at":   it.AddedAt,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		appErr    *common.AppError
		lookupErr *LookupError
	)
	switch {
	case errors.As(err, &appErr):
		common.WriteAppError(w, appErr)
	case errors.As(err, &lookupErr):
		code := "NOT_FOUND"
		if errors.Is(err, ErrNotInCart) {
			code = "NOT_IN_CART"
		}
		common.JSONError(w, http.StatusNotFound, code, lookupErr.Error(), map[string]any{"candidates": lookupErr.Candidates})
	case errors.Is(err, ErrInvalidInput), errors.Is(err, session.ErrInvalidID),
		errors.Is(err, billing.ErrInvalidQuantity), errors.Is(err, billing.ErrDiscountOutOfRange):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, "EMPTY_CART", "cart is empty", nil)
	case errors.Is(err, catalog.ErrEmptyCatalog), errors.Is(err, catalog.ErrMalformedCatalog):
		common.JSONError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
