package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript trims entries older than the window, admits the new event
// only when there is room and reports when the oldest entry leaves the window.
// Rejected attempts are not recorded so a chatty client recovers on schedule.
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < max then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, tostring(reset)}
`)

// SlidingRedis is a sliding-window limiter over Redis sorted sets. Scores are
// unix milliseconds.
type SlidingRedis struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Allow implements Limiter.
func (l SlidingRedis) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	ts := now()
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, ts.Add(window), nil
	}

	vals, err := slidingScript.Run(ctx, l.Client, []string{l.Prefix + key},
		ts.UnixMilli(), window.Milliseconds(), max, uuid.NewString(),
	).Slice()
	if err != nil {
		return false, 0, ts.Add(window), fmt.Errorf("sliding window: %w", err)
	}
	if len(vals) != 3 {
		return false, 0, ts.Add(window), fmt.Errorf("sliding window: unexpected reply %v", vals)
	}
	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	resetStr, _ := vals[2].(string)
	resetMs, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		resetMs = ts.Add(window).UnixMilli()
	}

	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return allowed == 1, remaining, time.UnixMilli(resetMs), nil
}
