package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func echoBody() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(data)
	})
}

func TestBodyLimit(t *testing.T) {
	cases := []struct {
		name          string
		max           int64
		body          string
		contentLength int64
		status        int
		contains      string
	}{
		{name: "within limit", max: 64, body: `{"message":"hi"}`, status: http.StatusOK, contains: `"hi"`},
		{name: "exactly at limit", max: 5, body: "12345", status: http.StatusOK, contains: "12345"},
		{name: "streamed over limit", max: 5, body: "123456", contentLength: -1, status: http.StatusRequestEntityTooLarge, contains: `"max_bytes":5`},
		{name: "declared over limit", max: 5, body: "1", contentLength: 100, status: http.StatusRequestEntityTooLarge, contains: "PAYLOAD_TOO_LARGE"},
		{name: "disabled", max: 0, body: strings.Repeat("x", 100), status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/v1/catalog", strings.NewReader(tc.body))
			if tc.contentLength != 0 {
				req.ContentLength = tc.contentLength
			}
			rr := httptest.NewRecorder()
			BodyLimit{Max: tc.max}.Middleware(echoBody()).ServeHTTP(rr, req)
			require.Equal(t, tc.status, rr.Code)
			if tc.contains != "" {
				require.Contains(t, rr.Body.String(), tc.contains)
			}
		})
	}
}

func TestBodyLimitSkipsEmptyBody(t *testing.T) {
	rr := httptest.NewRecorder()
	BodyLimit{Max: 1}.Middleware(echoBody()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
