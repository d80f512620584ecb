package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asque/asque/pkg/observability"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s, err := NewRedisStore(client, observability.NewLogger(observability.ErrorLevel, io.Discard))
	require.NoError(t, err)
	return s, mr
}

func TestRedisSetGet(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	s.Set(ctx, "k1", []byte("v1"), time.Minute)

	got, ok := s.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	_, ok = s.Get(ctx, "absent")
	assert.False(t, ok)
}

func TestRedisExpiry(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	s.Set(ctx, "k1", []byte("v1"), time.Minute)
	mr.FastForward(61 * time.Second)

	_, ok := s.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestRedisInvalidateTag(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	s.Set(ctx, "quotes:list:u1", []byte("a"), time.Minute, TagUser("u1"), TagQuotes("u1"))
	s.Set(ctx, "clients:list:u1", []byte("b"), time.Minute, TagUser("u1"), TagClients("u1"))
	s.Set(ctx, "quotes:list:u2", []byte("c"), time.Minute, TagQuotes("u2"))

	removed := s.InvalidateTag(ctx, TagQuotes("u1"))
	assert.Equal(t, 1, removed)

	_, ok := s.Get(ctx, "quotes:list:u1")
	assert.False(t, ok)
	_, ok = s.Get(ctx, "clients:list:u1")
	assert.True(t, ok)
	_, ok = s.Get(ctx, "quotes:list:u2")
	assert.True(t, ok)
}

func TestRedisInvalidateAbsentTag(t *testing.T) {
	s, _ := newRedisStore(t)
	assert.Equal(t, 0, s.InvalidateTag(context.Background(), TagQuotes("nobody")))
}

func TestRedisClear(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	s.Set(ctx, "k1", []byte("a"), time.Minute)
	s.Set(ctx, "k2", []byte("b"), time.Minute)
	s.Clear(ctx)

	_, ok := s.Get(ctx, "k1")
	assert.False(t, ok)
	_, ok = s.Get(ctx, "k2")
	assert.False(t, ok)
}

func TestRedisReadFailureDegradesToMiss(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	s.Set(ctx, "k1", []byte("v1"), time.Minute)
	mr.Close()

	_, ok := s.Get(ctx, "k1")
	assert.False(t, ok, "backend failure must look like a miss")
}
