package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/asque/asque/pkg/observability"
)

const tagSetPrefix = "cachetag:"

// RedisStore backs the keyed TTL store with Redis so a horizontally scaled
// deployment sees one coherent cache. Tag membership is tracked in a Redis
// set per tag; invalidation deletes the set's members in one pass.
type RedisStore struct {
	client  *redis.Client
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(client *redis.Client, logger *observability.Logger) (*RedisStore, error) {
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client, logger: logger}, nil
}

// SetMetrics enables hit/miss/eviction counters.
func (s *RedisStore) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Get returns the value for key. Redis expires entries natively.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		s.countMiss()
		s.logger.WithField("key", key).Debug("cache MISS")
		return nil, false
	}
	if err != nil {
		// Degrade to a miss so callers fall back to the primary store.
		s.countMiss()
		s.logger.WithError(err).WithField("key", key).Warn("cache read failed")
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
	}
	s.logger.WithField("key", key).Debug("cache HIT")
	return raw, true
}

// Set unconditionally overwrites key and registers it under each tag set.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) {
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, value, ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagSetPrefix+tag, key)
		// Keep the tag set around at least as long as its newest member.
		pipe.Expire(ctx, tagSetPrefix+tag, ttl+time.Minute)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

// Delete removes key, idempotently.
func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("cache delete failed")
	}
}

// InvalidateTag removes every entry registered under tag.
func (s *RedisStore) InvalidateTag(ctx context.Context, tag string) int {
	setKey := tagSetPrefix + tag
	members, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		s.logger.WithError(err).WithField("tag", tag).Warn("cache tag lookup failed")
		return 0
	}

	count := 0
	if len(members) > 0 {
		removed, err := s.client.Del(ctx, members...).Result()
		if err != nil {
			s.logger.WithError(err).WithField("tag", tag).Warn("cache tag invalidation failed")
		}
		count = int(removed)
	}
	s.client.Del(ctx, setKey)

	if s.metrics != nil && count > 0 {
		s.metrics.CacheEvictionsTotal.WithLabelValues("redis", "tag").Add(float64(count))
	}
	s.logger.WithFields(map[string]interface{}{
		"tag": tag, "entries_invalidated": count,
	}).Info("cache tag invalidation")
	return count
}

// Clear flushes the database backing this store.
func (s *RedisStore) Clear(ctx context.Context) {
	if err := s.client.FlushDB(ctx).Err(); err != nil {
		s.logger.WithError(err).Warn("cache clear failed")
	}
}

// Cleanup is a no-op for Redis; entries expire natively.
func (s *RedisStore) Cleanup(ctx context.Context) int {
	return 0
}

func (s *RedisStore) countMiss() {
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
	}
}
