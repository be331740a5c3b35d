package catalog

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/invoice-assistant/internal/common"
	"github.com/noah-isme/invoice-assistant/internal/events"
)

// Handler exposes the default catalog over HTTP.
type Handler struct {
	service *Service
	events  *events.Bus
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	// Events receives catalog.reloaded. Optional.
	Events *events.Bus
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service, events: cfg.Events}
}

// List handles GET /api/v1/catalog.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	records, err := h.service.Records(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       h.service.Products(records),
		"pagination": common.Pagination{Page: 1, PerPage: len(records), TotalItems: len(records)},
	})
}

// Lookup handles GET /api/v1/catalog/lookup?q=... and returns the record the
// reference resolves to.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	ref := strings.TrimSpace(r.URL.Query().Get("q"))
	if ref == "" {
		h.writeError(w, badRequest("q", "q is required", nil))
		return
	}
	records, err := h.service.Records(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	product, ok := h.service.Lookup(records, ref)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", map[string]any{"q": ref})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}

// Reload handles POST /api/v1/catalog/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	records, err := h.service.Reload(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.events != nil {
		payload := map[string]any{"product_count": len(records), "names": Names(records)}
		if _, err := h.events.Emit(r.Context(), events.TopicCatalogReloaded, "default", payload); err != nil {
			h.service.logger.Warn().Err(err).Msg("emit catalog.reloaded")
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"product_count": len(records)}})
}

func badRequest(field, message string, err error) *common.AppError {
	appErr := common.NewAppError("BAD_REQUEST", message, http.StatusBadRequest, err)
	appErr.Details = map[string]any{"field": field}
	return appErr
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		common.WriteAppError(w, appErr)
	case errors.Is(err, ErrEmptyCatalog), errors.Is(err, ErrMalformedCatalog):
		common.JSONError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
