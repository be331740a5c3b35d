package cart_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-assistant/internal/cart"
	"github.com/noah-isme/invoice-assistant/internal/common"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _ := newService(t)
	h := &cart.Handler{Svc: svc}
	r := chi.NewRouter()
	r.Use(common.SessionMiddleware)
	r.Route("/api/v1", h.Routes)
	return r
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(common.SessionHeader, "shopper-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCartHTTPFlow(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodPost, "/api/v1/cart/items", `{"product":"camera","quantity":2,"discount":10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "shopper-1", rec.Header().Get(common.SessionHeader))

	rec = do(t, router, http.MethodPost, "/api/v1/cart/items", `{"product":"camera","quantity":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/v1/cart/items/AI%20Security%20Camera%204K?qty=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPut, "/api/v1/cart/discount", `{"percent":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Data struct {
			Items []struct {
				Name     string      `json:"name"`
				Quantity int         `json:"quantity"`
				Subtotal json.Number `json:"subtotal"`
			} `json:"items"`
			Subtotal        json.Number `json:"subtotal"`
			OverallDiscount json.Number `json:"overall_discount"`
			Total           json.Number `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Data.Items, 1)
	require.Equal(t, 2, view.Data.Items[0].Quantity)
	require.Equal(t, json.Number("2700.00"), view.Data.Subtotal)
	require.Equal(t, json.Number("135.00"), view.Data.OverallDiscount)
	require.Equal(t, json.Number("2565.00"), view.Data.Total)

	rec = do(t, router, http.MethodGet, "/api/v1/cart/breakdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"grand_total":3216.70`)

	rec = do(t, router, http.MethodDelete, "/api/v1/cart/discount", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"cleared":true`)

	rec = do(t, router, http.MethodPut, "/api/v1/cart/items/camera/discount", `{"percent":25}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"discount":25`)
}

func TestCartHTTPErrors(t *testing.T) {
	router := newRouter(t)

	rec := do(t, router, http.MethodPost, "/api/v1/cart/items", `{"product":"camera","quantity":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"quantity"`)

	rec = do(t, router, http.MethodPost, "/api/v1/cart/items", `{"product":"camera","quantity":1,"discount":150}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/cart/items", `{"product":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/cart/items", `{"product":"jetpack","quantity":1}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "candidates")

	rec = do(t, router, http.MethodPut, "/api/v1/cart/discount", `{"percent":5}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "EMPTY_CART")

	rec = do(t, router, http.MethodDelete, "/api/v1/cart/items/camera", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_IN_CART")

	rec = do(t, router, http.MethodGet, "/api/v1/cart/breakdown", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}
