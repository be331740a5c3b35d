package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-assistant/internal/common"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	handler := Handler{
		Limiter: SlidingRedis{Client: client, Prefix: "ratelimit:"},
		Config: Config{
			Key:    func(*http.Request) string { return "static" },
			Window: time.Second,
			Max:    1,
		},
	}
	counted := handler.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.Contains(t, rr2.Body.String(), "RATE_LIMITED")
	require.Equal(t, "1", rr2.Header().Get("Retry-After"))
}

func TestRetryAfterRoundsUp(t *testing.T) {
	require.Equal(t, 1, retryAfter(-time.Second))
	require.Equal(t, 1, retryAfter(200*time.Millisecond))
	require.Equal(t, 3, retryAfter(2100*time.Millisecond))
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = client.Close() }()
	called := false
	handler := Handler{
		Limiter: SlidingRedis{Client: client, Prefix: "ratelimit:"},
		Config: Config{
			Key:    func(*http.Request) string { return "err" },
			Window: time.Second,
			Max:    1,
		},
		OnError: func(error) { called = true },
	}

	rr := httptest.NewRecorder()
	handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/chat", nil))
	require.Equal(t, http.StatusOK, rr.Code, "limiter failures must not block requests")
	require.True(t, called)
}

func TestFixedWindowMemory(t *testing.T) {
	lim := NewMemoryFixedWindow()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, _, err := lim.Allow(ctx, "chat:s1", time.Minute, 3)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, 3-(i+1), remaining)
	}
	allowed, _, reset, err := lim.Allow(ctx, "chat:s1", time.Minute, 3)
	require.NoError(t, err)
	require.False(t, allowed)
	require.True(t, reset.After(time.Now()))

	allowed, _, _, err = lim.Allow(ctx, "chat:s2", time.Minute, 3)
	require.NoError(t, err)
	require.True(t, allowed, "keys are counted separately")
}

func TestFixedWindowRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	lim, err := NewRedisFixedWindow(client)
	require.NoError(t, err)

	allowed, _, _, err := lim.Allow(context.Background(), "k", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, _, err = lim.Allow(context.Background(), "k", time.Minute, 1)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestSessionKey(t *testing.T) {
	key := SessionKey("chat:")
	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req = req.WithContext(common.WithSessionID(req.Context(), "s1"))
	require.Equal(t, "chat:session:s1", key(req))

	anon := httptest.NewRequest(http.MethodPost, "/chat", nil)
	anon.RemoteAddr = "10.0.0.7:5555"
	require.Equal(t, "chat:ip:10.0.0.7", key(anon))
}
