package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/guido-cesarano/tripsync/pkg/logger"
)

var _ Store = (*BadgerStore)(nil)

// BadgerStore is a Store backed by an embedded BadgerDB instance.
// All accessors are thin transaction wrappers with no business logic.
type BadgerStore struct {
	db        *badger.DB
	namespace string

	mu     sync.Mutex
	closed bool
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// Dir is the on-disk location of the database. Ignored when InMemory is set.
	Dir string
	// InMemory runs Badger without persistence. Used by tests.
	InMemory bool
	// Namespace scopes every key written through this store.
	Namespace string
}

// NewBadgerStore opens (or creates) the Badger database at opts.Dir.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	ns := opts.Namespace
	if ns == "" {
		ns = "default"
	}

	log := logger.With("kvstore")
	log.Debug().Str("dir", opts.Dir).Str("namespace", ns).Msg("Badger store opened")

	return &BadgerStore{db: db, namespace: ns}, nil
}

func (s *BadgerStore) key(key string) []byte {
	return []byte(buildKey(s.namespace, key))
}

// get reads the raw bytes for key. found is false on badger.ErrKeyNotFound.
func (s *BadgerStore) get(ctx context.Context, key string) (val []byte, found bool, err error) {
	if err := s.ready(ctx); err != nil {
		return nil, false, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(v []byte) error {
			val = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return val, found, nil
}

func (s *BadgerStore) set(ctx context.Context, key string, val []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(key), val)
	})
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// GetBool returns the boolean stored under key.
func (s *BadgerStore) GetBool(ctx context.Context, key string) (bool, bool, error) {
	raw, found, err := s.get(ctx, key)
	if err != nil || !found {
		return false, found, err
	}
	v, err := strconv.ParseBool(string(raw))
	if err != nil {
		return false, false, fmt.Errorf("corrupt bool at %q: %w", key, err)
	}
	return v, true, nil
}

// SetBool stores a boolean under key.
func (s *BadgerStore) SetBool(ctx context.Context, key string, value bool) error {
	return s.set(ctx, key, []byte(strconv.FormatBool(value)))
}

// GetInt64 returns the integer stored under key.
func (s *BadgerStore) GetInt64(ctx context.Context, key string) (int64, bool, error) {
	raw, found, err := s.get(ctx, key)
	if err != nil || !found {
		return 0, found, err
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt int at %q: %w", key, err)
	}
	return v, true, nil
}

// SetInt64 stores an integer under key.
func (s *BadgerStore) SetInt64(ctx context.Context, key string, value int64) error {
	return s.set(ctx, key, []byte(strconv.FormatInt(value, 10)))
}

// GetString returns the string stored under key.
func (s *BadgerStore) GetString(ctx context.Context, key string) (string, bool, error) {
	raw, found, err := s.get(ctx, key)
	if err != nil || !found {
		return "", found, err
	}
	return string(raw), true, nil
}

// SetString stores a string under key.
func (s *BadgerStore) SetString(ctx context.Context, key string, value string) error {
	return s.set(ctx, key, []byte(value))
}

// GetStrings returns the string list stored under key.
func (s *BadgerStore) GetStrings(ctx context.Context, key string) ([]string, bool, error) {
	var values []string
	found, err := s.GetJSON(ctx, key, &values)
	return values, found, err
}

// SetStrings stores a string list under key.
func (s *BadgerStore) SetStrings(ctx context.Context, key string, values []string) error {
	return s.SetJSON(ctx, key, values)
}

// GetJSON unmarshals the blob stored under key into out.
func (s *BadgerStore) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, found, err := s.get(ctx, key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("corrupt json at %q: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals value and stores the blob under key.
func (s *BadgerStore) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	return s.set(ctx, key, data)
}

// Delete removes key. Deleting an absent key is not an error.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// SetCacheTimestamp records when the data behind key was last refreshed.
func (s *BadgerStore) SetCacheTimestamp(ctx context.Context, key string, t time.Time) error {
	return s.set(ctx, tsPrefix+key, []byte(t.Format(timeLayout)))
}

// GetCacheTimestamp returns the recorded refresh time for key.
func (s *BadgerStore) GetCacheTimestamp(ctx context.Context, key string) (time.Time, bool, error) {
	raw, found, err := s.get(ctx, tsPrefix+key)
	if err != nil || !found {
		return time.Time{}, found, err
	}
	t, err := time.Parse(timeLayout, string(raw))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt timestamp at %q: %w", key, err)
	}
	return t, true, nil
}

// IsCacheExpired reports whether key's data is older than maxAge.
func (s *BadgerStore) IsCacheExpired(ctx context.Context, key string, maxAge time.Duration) (bool, error) {
	t, found, err := s.GetCacheTimestamp(ctx, key)
	if err != nil {
		return true, err
	}
	return expired(t, found, maxAge), nil
}

// Close flushes and closes the underlying database. Safe to call once;
// subsequent operations return ErrClosed.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}
