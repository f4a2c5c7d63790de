package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStoreLazyExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", "v", 30*time.Second))
	require.NoError(t, s.Put(ctx, "skip", "v", 0))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(31 * time.Second)
	// not swept until read
	assert.Equal(t, 1, s.Len())
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestSturdycStore(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := NewSturdycStore(SturdycConfig{Capacity: 100, NumShards: 2})
	s.now = clock.Now
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "short", "a", time.Second))
	require.NoError(t, s.Put(ctx, "long", "b", time.Minute))

	clock.Advance(2 * time.Second)
	_, ok, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := s.Get(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisStore(client, "gqlplug:")
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "k", `{"data":{}}`, time.Minute))
	assert.True(t, mr.Exists("gqlplug:k"))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"data":{}}`, v)

	mr.FastForward(2 * time.Minute)
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
