package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RateLimiter = (*FixedWindowLimiter)(nil)

// DefaultKey is the Redis hash holding the shared window state.
const DefaultKey = "commentbot:rate_limit:actions"

// fixedWindowScript admits one action if the window has capacity. A window
// starts on the first check after the previous one elapsed; denied attempts
// are not counted. The key expires when its window ends. An empty now_ms
// reads the Redis server clock, so every replica sees the same window edges.
// ARGV: [1]=now_ms or "", [2]=window_ms, [3]=max
var fixedWindowScript = goredis.NewScript(`
local now
if ARGV[1] == '' then
  local t = redis.call('TIME')
  now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
else
  now = tonumber(ARGV[1])
end
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local start = tonumber(redis.call('HGET', KEYS[1], 'start'))
local count = tonumber(redis.call('HGET', KEYS[1], 'count')) or 0
if start == nil or now - start >= window then
  start = now
  count = 0
end
if count >= max then
  return 0
end
count = count + 1
redis.call('HSET', KEYS[1], 'start', start, 'count', count)
local ttl = start + window - now
if ttl < 1 then ttl = 1 end
redis.call('PEXPIRE', KEYS[1], ttl)
return 1
`)

// FixedWindowLimiter admits at most max actions per window across all
// processes sharing the Redis key.
type FixedWindowLimiter struct {
	rdb    goredis.Scripter
	clock  clockwork.Clock
	key    string
	window time.Duration
	max    int
}

// NewFixedWindowLimiter returns a *model.ConfigurationError when window or max
// is not positive. An empty key uses DefaultKey. A nil clock times windows by
// the Redis server clock; a non-nil one is used instead, mainly in tests.
func NewFixedWindowLimiter(rdb goredis.Scripter, clock clockwork.Clock, key string, window time.Duration, max int) (*FixedWindowLimiter, error) {
	if window < time.Millisecond {
		return nil, &model.ConfigurationError{Field: "rate_limit_window", Reason: fmt.Sprintf("must be at least 1ms, got %s", window)}
	}
	if max <= 0 {
		return nil, &model.ConfigurationError{Field: "rate_limit_max", Reason: fmt.Sprintf("must be positive, got %d", max)}
	}
	if key == "" {
		key = DefaultKey
	}
	return &FixedWindowLimiter{rdb: rdb, clock: clock, key: key, window: window, max: max}, nil
}

// TryAcquire counts one action and reports whether it was admitted.
func (l *FixedWindowLimiter) TryAcquire(ctx context.Context) (bool, error) {
	allowed, err := fixedWindowScript.Run(ctx, l.rdb, []string{l.key},
		l.nowArg(),
		l.window.Milliseconds(),
		l.max,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}

	return allowed == 1, nil
}

func (l *FixedWindowLimiter) nowArg() string {
	if l.clock == nil {
		return ""
	}
	return strconv.FormatInt(l.clock.Now().UnixMilli(), 10)
}
