package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-momentum-bot/internal/types"
)

var cachedCE = types.Instrument{
	Underlying: "NIFTYBANK",
	Expiry:     "2026-10-29",
	Strike:     52000,
	OptionType: types.Call,
	Key:        "NSE_FO|43210",
	LotSize:    35,
}

func TestFileCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewFileCache(t.TempDir(), 0)

	_, err := c.Load(ctx, types.Call)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Save(ctx, types.Call, cachedCE))
	got, err := c.Load(ctx, types.Call)
	require.NoError(t, err)
	assert.Equal(t, cachedCE, got)

	_, err = c.Load(ctx, types.Put)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.FileExists(t, c.path(types.Call))
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewFileCache(t.TempDir(), time.Hour)
	now := time.Date(2026, 10, 15, 9, 20, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Save(ctx, types.Call, cachedCE))
	now = now.Add(2 * time.Hour)

	_, err := c.Load(ctx, types.Call)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestFileCacheCorruptFile(t *testing.T) {
	c := NewFileCache(t.TempDir(), 0)
	require.NoError(t, os.WriteFile(c.path(types.Put), []byte("{"), 0o644))

	_, err := c.Load(context.Background(), types.Put)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func newRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(context.Background(), "redis://"+mr.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, time.Minute)

	_, err := c.Load(ctx, types.Call)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Save(ctx, types.Call, cachedCE))
	got, err := c.Load(ctx, types.Call)
	require.NoError(t, err)
	assert.Equal(t, cachedCE, got)

	assert.True(t, mr.Exists("bot:instrument:CE"))
	assert.Equal(t, time.Minute, mr.TTL("bot:instrument:CE"))
	_, err = c.Load(ctx, types.Put)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheExpires(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, time.Hour)
	require.NoError(t, c.Save(ctx, types.Call, cachedCE))

	mr.FastForward(time.Hour + time.Second)
	_, err := c.Load(ctx, types.Call)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheCorruptEntry(t *testing.T) {
	c, mr := newRedisCache(t, time.Minute)
	require.NoError(t, mr.Set("bot:instrument:PE", "{"))

	_, err := c.Load(context.Background(), types.Put)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(context.Background(), "redis://"+addr, time.Minute)
	assert.ErrorContains(t, err, "redis: ping")

	_, err = NewRedisCache(context.Background(), "memcached://localhost", time.Minute)
	assert.ErrorContains(t, err, "redis: parse url")
}
