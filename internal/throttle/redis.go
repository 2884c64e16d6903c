package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// окно в сортированном множестве: score = время попытки в мс
var attemptLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, 0, retry}
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, limit - count - 1, 0}
`)

// Redis is a limiter shared across instances through a sorted set per key.
type Redis struct {
	redis  redis.UniversalClient
	policy Policy
	prefix string
	now    func() time.Time
}

var _ Limiter = (*Redis)(nil)

// NewRedis creates a limiter backed by the given Redis client. now may be nil.
func NewRedis(client redis.UniversalClient, policy Policy, now func() time.Time) *Redis {
	if now == nil {
		now = time.Now
	}
	return &Redis{redis: client, policy: normalize(policy), prefix: "keystile:throttle:", now: now}
}

func (l *Redis) Attempt(ctx context.Context, key string) (Decision, error) {
	res, err := attemptLua.Run(ctx, l.redis, []string{l.prefix + key},
		l.now().UnixMilli(),
		l.policy.Window.Milliseconds(),
		l.policy.Limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("throttle: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("throttle: unexpected reply %v", res)
	}
	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
