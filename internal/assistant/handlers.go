package assistant

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/invoice-assistant/internal/catalog"
	"github.com/noah-isme/invoice-assistant/internal/common"
	"github.com/noah-isme/invoice-assistant/internal/session"
)

// Handler exposes the chat endpoints.
type Handler struct {
	Svc *Service
	// ChatLimit guards POST /chat. Optional.
	ChatLimit func(http.Handler) http.Handler
}

// Routes mounts the chat, status, products and catalog endpoints.
func (h *Handler) Routes(r chi.Router) {
	chat := http.Handler(http.HandlerFunc(h.Chat))
	if h.ChatLimit != nil {
		chat = h.ChatLimit(chat)
	}
	r.Method(http.MethodPost, "/chat", chat)
	r.Get("/status", h.Status)
	r.Get("/products", h.Products)
	r.Put("/catalog", h.ReplaceCatalog)
	r.Delete("/catalog", h.ResetCatalog)
}

type chatRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "assistant not configured", nil)
		return
	}
	var payload chatRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	payload.Message = strings.TrimSpace(payload.Message)
	if appErr := common.ValidateStruct(payload); appErr != nil {
		common.WriteAppError(w, appErr)
		return
	}
	reply, err := h.Svc.Handle(r.Context(), common.SessionID(r.Context()), payload.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, reply)
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "assistant not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, h.Svc.Status(r.Context()))
}

// Products handles GET /products and lists the catalog of the calling session.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "assistant not configured", nil)
		return
	}
	products, source, err := h.Svc.Products(r.Context(), common.SessionID(r.Context()))
	if err != nil {
		if isCatalogUnavailable(err) {
			common.JSONError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", err.Error(), nil)
			return
		}
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": products,
		"meta": map[string]any{"source": source, "count": len(products)},
	})
}

// ReplaceCatalog handles PUT /catalog. The body is a JSON array of product
// records which becomes the catalog for the calling session only.
func (h *Handler) ReplaceCatalog(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "assistant not configured", nil)
		return
	}
	records, err := catalog.Decode(r.Body)
	if err != nil {
		if errors.Is(err, io.EOF) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "request body is required", nil)
			return
		}
		h.writeError(w, err)
		return
	}
	if len(records) == 0 {
		h.writeError(w, catalog.ErrEmptyCatalog)
		return
	}
	source, err := h.Svc.ReplaceCatalog(r.Context(), common.SessionID(r.Context()), records)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"source": source, "product_count": len(records)}})
}

// ResetCatalog handles DELETE /catalog and reverts the session to the
// default catalog.
func (h *Handler) ResetCatalog(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "assistant not configured", nil)
		return
	}
	source, err := h.Svc.ReplaceCatalog(r.Context(), common.SessionID(r.Context()), nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"source": source}})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		common.WriteAppError(w, appErr)
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, session.ErrInvalidID):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, catalog.ErrEmptyCatalog), errors.Is(err, catalog.ErrMalformedCatalog):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_CATALOG", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
