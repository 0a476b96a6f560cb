package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	store := NewRedisStore(s.Addr(), "test")
	t.Cleanup(func() { store.Close() })
	return s, store
}

func TestRedisBoolRoundTrip(t *testing.T) {
	_, store := setupRedis(t)
	ctx := context.Background()

	_, found, err := store.GetBool(ctx, "offline_mode")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetBool(ctx, "offline_mode", true))

	v, found, err := store.GetBool(ctx, "offline_mode")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, v)
}

func TestRedisKeysAreNamespaced(t *testing.T) {
	s, store := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SetString(ctx, "home_city", "Lisbon"))

	// Verify the raw key layout directly in Redis.
	got, err := s.Get("tripsync:test:home_city")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", got)
}

func TestRedisJSONAndLists(t *testing.T) {
	_, store := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SetStrings(ctx, "recent_searches", []string{"LIS-FCO"}))
	list, found, err := store.GetStrings(ctx, "recent_searches")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"LIS-FCO"}, list)

	in := map[string]int{"flights": 2, "hotels": 1}
	require.NoError(t, store.SetJSON(ctx, "counts", in))
	var out map[string]int
	found, err = store.GetJSON(ctx, "counts", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestRedisCacheTimestamps(t *testing.T) {
	_, store := setupRedis(t)
	ctx := context.Background()

	stale, err := store.IsCacheExpired(ctx, "bookings", time.Hour)
	require.NoError(t, err)
	assert.True(t, stale, "missing timestamp counts as expired")

	require.NoError(t, store.SetCacheTimestamp(ctx, "bookings", time.Now()))
	stale, err = store.IsCacheExpired(ctx, "bookings", time.Hour)
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestRedisValueSurvivesReconnect(t *testing.T) {
	s, store := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SetBool(ctx, "offline_mode", true))
	require.NoError(t, store.Close())

	// A fresh client over the same server simulates a process restart.
	store2 := NewRedisStore(s.Addr(), "test")
	defer store2.Close()

	v, found, err := store2.GetBool(ctx, "offline_mode")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, v)
}

func TestRedisClosedStore(t *testing.T) {
	_, store := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Close())
	err := store.SetBool(ctx, "k", true)
	assert.ErrorIs(t, err, ErrClosed)
}
