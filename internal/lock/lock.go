package lock

import (
	"context"
	"errors"
	"time"
)

// Locker serialises work on a key, e.g. every mutation of one shopper's cart.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

var errNoCallback = errors.New("lock: callback not provided")

const (
	defaultTTL   = 30 * time.Second
	defaultRetry = 50 * time.Millisecond
)

// SessionKey namespaces a session id for locking.
func SessionKey(sessionID string) string {
	return "lock:session:" + sessionID
}
