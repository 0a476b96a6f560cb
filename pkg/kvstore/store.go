// Package kvstore provides namespaced persistent key-value storage for
// tripsync state: the manual offline-mode flag, the last-online timestamp,
// and cache freshness markers for downstream data layers.
//
// Two backends are available:
//   - BadgerStore: embedded BadgerDB, the default for single-process use.
//   - RedisStore: Redis-backed, for deployments that share state.
//
// Both persist across process restarts. Absent keys are not errors: reads
// return the zero value and found == false.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("kvstore: store is closed")

// keyPrefix namespaces all tripsync keys so a shared backend (Redis in
// particular) does not collide with other applications.
const keyPrefix = "tripsync:"

// tsPrefix separates cache timestamps from regular values under the
// same user-visible key.
const tsPrefix = "ts:"

// timeLayout is the wire format for persisted timestamps.
const timeLayout = time.RFC3339Nano

// Store is the persistence contract the offline coordinator depends on.
// The coordinator itself only uses GetBool/SetBool and the cache-timestamp
// helpers; the remaining accessors serve the surrounding data layers.
type Store interface {
	GetBool(ctx context.Context, key string) (value bool, found bool, err error)
	SetBool(ctx context.Context, key string, value bool) error

	GetInt64(ctx context.Context, key string) (value int64, found bool, err error)
	SetInt64(ctx context.Context, key string, value int64) error

	GetString(ctx context.Context, key string) (value string, found bool, err error)
	SetString(ctx context.Context, key string, value string) error

	GetStrings(ctx context.Context, key string) (values []string, found bool, err error)
	SetStrings(ctx context.Context, key string, values []string) error

	// GetJSON unmarshals the stored blob into out. out must be a pointer.
	GetJSON(ctx context.Context, key string, out any) (found bool, err error)
	SetJSON(ctx context.Context, key string, value any) error

	Delete(ctx context.Context, key string) error

	// SetCacheTimestamp records when the data behind key was last refreshed.
	SetCacheTimestamp(ctx context.Context, key string, t time.Time) error
	// GetCacheTimestamp returns the recorded refresh time, if any.
	GetCacheTimestamp(ctx context.Context, key string) (t time.Time, found bool, err error)
	// IsCacheExpired reports whether the data behind key is older than
	// maxAge. A key with no recorded timestamp is always expired.
	IsCacheExpired(ctx context.Context, key string, maxAge time.Duration) (bool, error)

	Close() error
}

// buildKey joins the global prefix, the store namespace, and the user key.
func buildKey(namespace, key string) string {
	return keyPrefix + namespace + ":" + key
}

// expired implements the shared staleness rule: missing timestamps count
// as expired, everything else is compared against maxAge.
func expired(t time.Time, found bool, maxAge time.Duration) bool {
	if !found {
		return true
	}
	return time.Since(t) > maxAge
}
