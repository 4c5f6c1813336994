package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "patient", time.Minute)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func loader(val string) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) { return []byte(val), nil }
}

func TestFillThenGet(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	val, err := c.Fill(ctx, "a", loader("john"))
	require.NoError(t, err)
	assert.Equal(t, "john", string(val))

	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "john", string(got))

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestInvalidateRemovesValue(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	_, err := c.Fill(ctx, "a", loader("john"))
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "a"))

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestFillSkipsWriteWhenInvalidatedDuringLoad(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	// A writer commits and invalidates after the reader loaded the old row.
	val, err := c.Fill(ctx, "a", func(ctx context.Context) ([]byte, error) {
		require.NoError(t, c.Invalidate(ctx, "a"))
		return []byte("stale"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", string(val))

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	_, err = c.Fill(ctx, "a", loader("fresh"))
	require.NoError(t, err)
	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "fresh", string(got))
}

func TestFillReturnsLoadError(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("boom")

	_, err := c.Fill(context.Background(), "a", func(context.Context) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestUnavailableRedisDegradesToLoad(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	mr.Close()

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	val, err := c.Fill(ctx, "a", loader("john"))
	require.NoError(t, err)
	assert.Equal(t, "john", string(val))
	assert.Error(t, c.Invalidate(ctx, "a"))
}
