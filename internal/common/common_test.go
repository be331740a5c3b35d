package common_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-assistant/internal/common"
)

func sessionEcho() http.Handler {
	return common.SessionMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(common.SessionID(r.Context())))
	}))
}

func TestSessionMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{name: "header wins", header: "shopper-1", query: "other", want: "shopper-1"},
		{name: "query fallback", query: "from_query", want: "from_query"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/api/v1/cart"
			if tc.query != "" {
				target += "?session_id=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set(common.SessionHeader, tc.header)
			}
			rr := httptest.NewRecorder()
			sessionEcho().ServeHTTP(rr, req)
			require.Equal(t, tc.want, rr.Body.String())
			require.Equal(t, tc.want, rr.Header().Get(common.SessionHeader))
		})
	}
}

func TestSessionMiddlewareMintsForUnsafeIDs(t *testing.T) {
	for _, id := range []string{"", "has space", "../../etc", strings.Repeat("a", 65)} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.Header.Set(common.SessionHeader, id)
		rr := httptest.NewRecorder()
		sessionEcho().ServeHTTP(rr, req)
		minted := rr.Body.String()
		require.NotEqual(t, id, minted)
		require.True(t, common.ValidSessionID(minted), minted)
	}
}

type discountPayload struct {
	Product string          `json:"product" validate:"required"`
	Percent decimal.Decimal `json:"percent" validate:"gte=0,lte=100"`
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	appErr := common.ValidateStruct(discountPayload{Percent: decimal.NewFromInt(120)})
	require.NotNil(t, appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	fields := appErr.Details.(map[string]any)["fields"].(map[string]string)
	require.Equal(t, "required", fields["product"])
	require.Equal(t, "lte=100", fields["percent"])

	require.Nil(t, common.ValidateStruct(discountPayload{Product: "camera", Percent: decimal.NewFromInt(15)}))
}

func TestDecodeJSONAndWriteAppError(t *testing.T) {
	var dst discountPayload
	err := common.DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product":`)), &dst)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)

	rr := httptest.NewRecorder()
	common.WriteAppError(rr, appErr)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), `"code":"VALIDATION_ERROR"`)

	err = common.DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &dst)
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "request body is required", appErr.Message)

	rr = httptest.NewRecorder()
	common.WriteAppError(rr, &common.AppError{})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), `"code":"INTERNAL"`)
}

func TestParsePagination(t *testing.T) {
	page, perPage := common.ParsePagination(httptest.NewRequest(http.MethodGet, "/invoices?page=3&limit=500", nil), 20, 100)
	require.Equal(t, 3, page)
	require.Equal(t, 100, perPage)

	page, perPage = common.ParsePagination(httptest.NewRequest(http.MethodGet, "/invoices?page=-1&limit=x", nil), 20, 100)
	require.Equal(t, 1, page)
	require.Equal(t, 20, perPage)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", common.ClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.4:1234"
	require.Equal(t, "192.0.2.4", common.ClientIP(req))
}
