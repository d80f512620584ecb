package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const redisKeyPrefix = "ratelimit:"

// checkScript implements the sliding window atomically: prune entries
// whose score fell out of the window, admit if fewer than max remain,
// record the request. Every request gets a unique member so same-
// millisecond arrivals each occupy a slot; the score carries the time.
// Returns {allowed, count_before, oldest_ms}.
var checkScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < max then
  allowed = 1
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldest_ms = now
if oldest[2] then
  oldest_ms = tonumber(oldest[2])
end
return {allowed, count, oldest_ms}
`)

// RedisLimiter tracks sliding windows in Redis sorted sets so a horizontally
// scaled deployment enforces one shared limit per identifier.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter creates a Redis-backed limiter and verifies connectivity.
func NewRedisLimiter(client *redis.Client) (*RedisLimiter, error) {
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client}, nil
}

// Check admits or rejects one request for key under cfg.
func (l *RedisLimiter) Check(ctx context.Context, key string, cfg Config) (Result, error) {
	now := time.Now()
	values, err := checkScript.Run(ctx, l.client, []string{redisKeyPrefix + key},
		now.UnixMilli(), cfg.Window.Milliseconds(), cfg.MaxRequests, uuid.NewString()).Int64Slice()
	if err != nil {
		return Result{}, err
	}

	allowed := values[0] == 1
	count := int(values[1])
	oldest := time.UnixMilli(values[2])

	remaining := cfg.MaxRequests - count
	if allowed {
		remaining--
	}
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   oldest.Add(cfg.Window),
	}, nil
}

// Reset clears the window for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, redisKeyPrefix+key).Err()
}

// Cleanup is a no-op for Redis; windows expire natively.
func (l *RedisLimiter) Cleanup(ctx context.Context, maxIdle time.Duration) int {
	return 0
}
