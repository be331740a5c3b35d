package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/invoice-assistant/internal/resilience"
)

// RedisLocker serialises cart mutations across API replicas with a
// SET NX PX lease per session. A lease outlives a crashed holder by at most ttl.
type RedisLocker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

// releaseLease deletes the key only while it still carries our token, so a
// holder whose lease expired cannot drop someone else's lock.
var releaseLease = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// WithLock runs fn while holding the lease for key. Waiting stops with the
// context error once ctx is done.
func (l RedisLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errNoCallback
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer l.release(ctx, key, token)
	return fn(ctx)
}

func (l RedisLocker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	base := l.RetryBackoff
	if base <= 0 {
		base = defaultRetry
	}
	ceiling := l.MaxBackoff
	if ceiling <= 0 {
		ceiling = 10 * base
	}
	for attempt := 1; ; attempt++ {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		wait := min(resilience.Backoff(base, attempt, 0.2), ceiling)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l RedisLocker) release(ctx context.Context, key, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	_ = releaseLease.Run(ctx, l.R, []string{key}, token).Err()
}
