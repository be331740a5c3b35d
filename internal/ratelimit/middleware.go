package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/invoice-assistant/internal/common"
)

// Limiter decides whether one more event fits in the window for key.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

// SessionKey keys limits by shopper session, falling back to the client IP.
func SessionKey(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		if sid := strings.TrimSpace(common.SessionID(r.Context())); sid != "" {
			return prefix + "session:" + sid
		}
		return prefix + "ip:" + common.ClientIP(r)
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint.
// Limiter failures are reported through OnError and the request proceeds, so
// a Redis outage never takes the chat endpoint down with it.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Config.Key == nil || h.Limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		wait := retryAfter(time.Until(resetAt))
		headers.Set("Retry-After", strconv.Itoa(wait))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many messages, please slow down",
			map[string]int{"retry_after_seconds": wait})
	})
}

// retryAfter rounds up to whole seconds and never advertises zero.
func retryAfter(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
