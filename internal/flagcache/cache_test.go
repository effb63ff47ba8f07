package flagcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, time.Minute), mr
}

func TestGetSet(t *testing.T) {
	c, mr := setup(t)
	ctx := context.Background()

	_, hit := c.Get(ctx, "c1", "referrals")
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "c1", "referrals", true))
	v, hit := c.Get(ctx, "c1", "referrals")
	assert.True(t, hit)
	assert.True(t, v)

	mr.FastForward(2 * time.Minute)
	_, hit = c.Get(ctx, "c1", "referrals")
	assert.False(t, hit)
}

func TestInvalidate(t *testing.T) {
	c, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "c1", "a", true))
	require.NoError(t, c.Set(ctx, "c1", "b", false))
	require.NoError(t, c.Set(ctx, "c2", "a", true))

	require.NoError(t, c.InvalidateKey(ctx, "a"))
	_, hit := c.Get(ctx, "c1", "a")
	assert.False(t, hit)
	_, hit = c.Get(ctx, "c2", "a")
	assert.False(t, hit)
	_, hit = c.Get(ctx, "c1", "b")
	assert.True(t, hit)

	require.NoError(t, c.InvalidateCompany(ctx, "c1"))
	_, hit = c.Get(ctx, "c1", "b")
	assert.False(t, hit)
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "c1", "a", true))
	_, hit := c.Get(ctx, "c1", "a")
	assert.False(t, hit)
	assert.NoError(t, c.InvalidateKey(ctx, "a"))
	assert.Nil(t, New(nil, time.Minute))
}
