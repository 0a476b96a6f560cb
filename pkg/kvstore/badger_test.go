package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBadger(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(BadgerOptions{
		InMemory:  true,
		Namespace: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerBoolRoundTrip(t *testing.T) {
	store := setupBadger(t)
	ctx := context.Background()

	_, found, err := store.GetBool(ctx, "offline_mode")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetBool(ctx, "offline_mode", true))

	v, found, err := store.GetBool(ctx, "offline_mode")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, v)

	require.NoError(t, store.SetBool(ctx, "offline_mode", false))
	v, found, err = store.GetBool(ctx, "offline_mode")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, v)
}

func TestBadgerScalarsAndLists(t *testing.T) {
	store := setupBadger(t)
	ctx := context.Background()

	require.NoError(t, store.SetInt64(ctx, "launch_count", 42))
	n, found, err := store.GetInt64(ctx, "launch_count")
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 42, n)

	require.NoError(t, store.SetString(ctx, "home_city", "Lisbon"))
	s, found, err := store.GetString(ctx, "home_city")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Lisbon", s)

	require.NoError(t, store.SetStrings(ctx, "recent_searches", []string{"LIS-FCO", "LIS-BCN"}))
	list, found, err := store.GetStrings(ctx, "recent_searches")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"LIS-FCO", "LIS-BCN"}, list)
}

func TestBadgerJSONBlob(t *testing.T) {
	store := setupBadger(t)
	ctx := context.Background()

	type profile struct {
		Name    string   `json:"name"`
		Cities  []string `json:"cities"`
		Premium bool     `json:"premium"`
	}

	in := profile{Name: "ada", Cities: []string{"Lisbon", "Rome"}, Premium: true}
	require.NoError(t, store.SetJSON(ctx, "profile", in))

	var out profile
	found, err := store.GetJSON(ctx, "profile", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)

	found, err = store.GetJSON(ctx, "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBadgerDelete(t *testing.T) {
	store := setupBadger(t)
	ctx := context.Background()

	require.NoError(t, store.SetString(ctx, "k", "v"))
	require.NoError(t, store.Delete(ctx, "k"))

	_, found, err := store.GetString(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is not an error.
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestBadgerCacheTimestamps(t *testing.T) {
	store := setupBadger(t)
	ctx := context.Background()

	// A key with no recorded timestamp is always expired.
	stale, err := store.IsCacheExpired(ctx, "hotels", time.Hour)
	require.NoError(t, err)
	assert.True(t, stale)

	now := time.Now()
	require.NoError(t, store.SetCacheTimestamp(ctx, "hotels", now))

	got, found, err := store.GetCacheTimestamp(ctx, "hotels")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Equal(now))

	stale, err = store.IsCacheExpired(ctx, "hotels", time.Hour)
	require.NoError(t, err)
	assert.False(t, stale)

	require.NoError(t, store.SetCacheTimestamp(ctx, "hotels", now.Add(-2*time.Hour)))
	stale, err = store.IsCacheExpired(ctx, "hotels", time.Hour)
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestBadgerTimestampDoesNotShadowValue(t *testing.T) {
	store := setupBadger(t)
	ctx := context.Background()

	// A value and its cache timestamp live under the same user key.
	require.NoError(t, store.SetString(ctx, "hotels", "cached-payload"))
	require.NoError(t, store.SetCacheTimestamp(ctx, "hotels", time.Now()))

	v, found, err := store.GetString(ctx, "hotels")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "cached-payload", v)
}

func TestBadgerClosedStore(t *testing.T) {
	store := setupBadger(t)
	ctx := context.Background()

	require.NoError(t, store.Close())
	require.NoError(t, store.Close()) // idempotent

	err := store.SetBool(ctx, "k", true)
	assert.ErrorIs(t, err, ErrClosed)

	_, _, err = store.GetBool(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}
