package assistant_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-assistant/internal/assistant"
	"github.com/noah-isme/invoice-assistant/internal/common"
	"github.com/noah-isme/invoice-assistant/internal/ratelimit"
)

func newRouter(t *testing.T, chatMax int) http.Handler {
	t.Helper()
	f := newFixture(t, nil)
	h := &assistant.Handler{Svc: f.svc}
	if chatMax > 0 {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		h.ChatLimit = ratelimit.Handler{
			Limiter: ratelimit.SlidingRedis{Client: client, Prefix: "rl:"},
			Config:  ratelimit.Config{Key: ratelimit.SessionKey("chat:"), Window: time.Minute, Max: chatMax},
		}.Middleware
	}
	r := chi.NewRouter()
	r.Use(common.SessionMiddleware)
	r.Route("/api/v1", h.Routes)
	return r
}

func call(t *testing.T, router http.Handler, method, path, body, sid string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if sid != "" {
		req.Header.Set(common.SessionHeader, sid)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	router := newRouter(t, 0)

	rec := call(t, router, http.MethodPost, "/api/v1/chat", `{"message":"add 2 cameras"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Response  string `json:"response"`
		SessionID string `json:"session_id"`
		CartCount int    `json:"cart_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.SessionID, "a session is issued when the client has none")
	require.Equal(t, body.SessionID, rec.Header().Get(common.SessionHeader))
	require.Equal(t, 1, body.CartCount)
	require.True(t, strings.HasPrefix(body.Response, "✅ Added to cart!"))

	rec = call(t, router, http.MethodPost, "/api/v1/chat?session_id="+body.SessionID, `{"message":"show cart"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Your Shopping Cart (1 items)")

	rec = call(t, router, http.MethodPost, "/api/v1/chat", `{"message":"  "}`, "s1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "message")

	rec = call(t, router, http.MethodPost, "/api/v1/chat", ``, "s1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEndpointRateLimited(t *testing.T) {
	router := newRouter(t, 2)
	for i := 0; i < 2; i++ {
		rec := call(t, router, http.MethodPost, "/api/v1/chat", `{"message":"hello"}`, "s1")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := call(t, router, http.MethodPost, "/api/v1/chat", `{"message":"hello"}`, "s1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = call(t, router, http.MethodPost, "/api/v1/chat", `{"message":"hello"}`, "s2")
	require.Equal(t, http.StatusOK, rec.Code, "limits are per session")
}

func TestStatusEndpoint(t *testing.T) {
	router := newRouter(t, 0)
	rec := call(t, router, http.MethodGet, "/api/v1/status", "", "s1")
	require.Equal(t, http.StatusOK, rec.Code)
	var st map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, "ok", st["api_status"])
	require.Equal(t, "not_configured", st["llm_status"])
	require.Equal(t, float64(3), st["default_products_count"])
	require.NotEmpty(t, st["timestamp"])
}

func TestCatalogEndpoints(t *testing.T) {
	router := newRouter(t, 0)

	rec := call(t, router, http.MethodPut, "/api/v1/catalog", `[{"title":"Mesh Router","rate":"4999.50","gst_rate":12}]`, "s1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"source":"custom"`)

	rec = call(t, router, http.MethodGet, "/api/v1/products", "", "s1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"Mesh Router"`)
	require.Contains(t, rec.Body.String(), `"price":4999.50`)

	rec = call(t, router, http.MethodPut, "/api/v1/catalog", `[]`, "s1")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = call(t, router, http.MethodPut, "/api/v1/catalog", `{"not":"an array"}`, "s1")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = call(t, router, http.MethodPut, "/api/v1/catalog", ``, "s1")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, router, http.MethodDelete, "/api/v1/catalog", "", "s1")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, router, http.MethodGet, "/api/v1/products", "", "s1")
	require.Contains(t, rec.Body.String(), `"count":3`)
}
