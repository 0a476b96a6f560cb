package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/guido-cesarano/tripsync/pkg/logger"
)

var _ Store = (*RedisStore)(nil)

// RedisStore is a Store backed by Redis, for deployments where several
// processes share the same offline state (e.g. a sync sidecar next to the
// booking agent). Values are plain strings; lists and blobs are JSON.
type RedisStore struct {
	rdb       *redis.Client
	namespace string

	mu     sync.Mutex
	closed bool
}

// NewRedisStore creates a store connected to the Redis instance at addr.
// The address should be in the format "host:port" (e.g. "localhost:6379").
func NewRedisStore(addr, namespace string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if namespace == "" {
		namespace = "default"
	}

	log := logger.With("kvstore")
	log.Debug().Str("addr", addr).Str("namespace", namespace).Msg("Redis store connected")

	return &RedisStore{rdb: rdb, namespace: namespace}
}

func (s *RedisStore) key(key string) string {
	return buildKey(s.namespace, key)
}

func (s *RedisStore) get(ctx context.Context, key string) (string, bool, error) {
	if err := s.ready(); err != nil {
		return "", false, err
	}
	val, err := s.rdb.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) set(ctx context.Context, key, val string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(key), val, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// GetBool returns the boolean stored under key.
func (s *RedisStore) GetBool(ctx context.Context, key string) (bool, bool, error) {
	raw, found, err := s.get(ctx, key)
	if err != nil || !found {
		return false, found, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("corrupt bool at %q: %w", key, err)
	}
	return v, true, nil
}

// SetBool stores a boolean under key.
func (s *RedisStore) SetBool(ctx context.Context, key string, value bool) error {
	return s.set(ctx, key, strconv.FormatBool(value))
}

// GetInt64 returns the integer stored under key.
func (s *RedisStore) GetInt64(ctx context.Context, key string) (int64, bool, error) {
	raw, found, err := s.get(ctx, key)
	if err != nil || !found {
		return 0, found, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt int at %q: %w", key, err)
	}
	return v, true, nil
}

// SetInt64 stores an integer under key.
func (s *RedisStore) SetInt64(ctx context.Context, key string, value int64) error {
	return s.set(ctx, key, strconv.FormatInt(value, 10))
}

// GetString returns the string stored under key.
func (s *RedisStore) GetString(ctx context.Context, key string) (string, bool, error) {
	return s.get(ctx, key)
}

// SetString stores a string under key.
func (s *RedisStore) SetString(ctx context.Context, key string, value string) error {
	return s.set(ctx, key, value)
}

// GetStrings returns the string list stored under key.
func (s *RedisStore) GetStrings(ctx context.Context, key string) ([]string, bool, error) {
	var values []string
	found, err := s.GetJSON(ctx, key, &values)
	return values, found, err
}

// SetStrings stores a string list under key.
func (s *RedisStore) SetStrings(ctx context.Context, key string, values []string) error {
	return s.SetJSON(ctx, key, values)
}

// GetJSON unmarshals the blob stored under key into out.
func (s *RedisStore) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, found, err := s.get(ctx, key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("corrupt json at %q: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals value and stores the blob under key.
func (s *RedisStore) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	return s.set(ctx, key, string(data))
}

// Delete removes key. Deleting an absent key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// SetCacheTimestamp records when the data behind key was last refreshed.
func (s *RedisStore) SetCacheTimestamp(ctx context.Context, key string, t time.Time) error {
	return s.set(ctx, tsPrefix+key, t.Format(timeLayout))
}

// GetCacheTimestamp returns the recorded refresh time for key.
func (s *RedisStore) GetCacheTimestamp(ctx context.Context, key string) (time.Time, bool, error) {
	raw, found, err := s.get(ctx, tsPrefix+key)
	if err != nil || !found {
		return time.Time{}, found, err
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt timestamp at %q: %w", key, err)
	}
	return t, true, nil
}

// IsCacheExpired reports whether key's data is older than maxAge.
func (s *RedisStore) IsCacheExpired(ctx context.Context, key string, maxAge time.Duration) (bool, error) {
	t, found, err := s.GetCacheTimestamp(ctx, key)
	if err != nil {
		return true, err
	}
	return expired(t, found, maxAge), nil
}

// Close closes the Redis connection. Safe to call once; subsequent
// operations return ErrClosed.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.rdb.Close()
}
