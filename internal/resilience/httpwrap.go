package resilience

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RetryTransport retries idempotent-safe failures (transport errors, 429 and
// 5xx) with jittered exponential backoff. Request bodies are buffered so each
// attempt replays the same payload.
type RetryTransport struct {
	Base        http.RoundTripper
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
}

// RoundTrip implements http.RoundTripper.
func (t RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	maxAttempts := t.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	baseBackoff := t.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 100 * time.Millisecond
	}

	body, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	ctx := req.Context()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := base.RoundTrip(cloneWithBody(req, body))
		if err == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt == maxAttempts {
			return resp, err
		}
		if err == nil {
			lastErr = fmt.Errorf("upstream status %s", resp.Status)
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		} else {
			lastErr = err
		}
		timer := time.NewTimer(Backoff(baseBackoff, attempt, t.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// NewHTTPClient returns a client whose transport retries failed attempts and
// records a client span per attempt. A zero timeout leaves the client
// unbounded so callers can rely on their context deadline.
func NewHTTPClient(timeout time.Duration, maxAttempts int) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: RetryTransport{
			Base:        otelhttp.NewTransport(http.DefaultTransport),
			MaxAttempts: maxAttempts,
			Jitter:      0.2,
		},
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func replayableBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func cloneWithBody(req *http.Request, body []byte) *http.Request {
	clone := req.Clone(req.Context())
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return clone
}
