package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLockIsExclusive(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	token, ok, err := c.AcquireLock(ctx, "checkout:7", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = c.AcquireLock(ctx, "checkout:7", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := c.ReleaseLock(ctx, "checkout:7", token)
	require.NoError(t, err)
	assert.True(t, released)

	_, ok, err = c.AcquireLock(ctx, "checkout:7", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseLockIgnoresForeignToken(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	stale, ok, err := c.AcquireLock(ctx, "sweep", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	current, ok, err := c.AcquireLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := c.ReleaseLock(ctx, "sweep", stale)
	require.NoError(t, err)
	assert.False(t, released)

	val, err := mr.Get("lock:sweep")
	require.NoError(t, err)
	assert.Equal(t, current, val)
}

func TestIdempotencyRecord(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, found, err := c.LookupOrder(ctx, 1, "abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.RememberOrder(ctx, 1, "abc", 42, time.Hour))

	id, found, err := c.LookupOrder(ctx, 1, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), id)

	_, found, err = c.LookupOrder(ctx, 2, "abc")
	require.NoError(t, err)
	assert.False(t, found, "keys are scoped per user")

	mr.FastForward(2 * time.Hour)
	_, found, err = c.LookupOrder(ctx, 1, "abc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSessionCache(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CacheSession(ctx, "tok", 9, time.Minute))
	userID, found, err := c.CachedSession(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(9), userID)

	require.NoError(t, c.EvictSession(ctx, "tok"))
	_, found, err = c.CachedSession(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, found)
}
