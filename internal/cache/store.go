package cache

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Store is a string key-value store with per-entry expiry. Get on an expired
// entry reports it as absent. Implementations must be safe for concurrent
// use; concurrent Puts to one key are last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryStore is a process-local Store. Expired entries are not swept; they
// are evicted when next read.
type MemoryStore struct {
	entries *xsync.MapOf[string, memoryEntry]
	now     func() time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{entries: xsync.NewMapOf[string, memoryEntry](), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	e, ok := s.entries.Load(key)
	if !ok {
		return "", false, nil
	}
	if now := s.now(); now.After(e.expires) {
		// a concurrent Put may have replaced the entry meanwhile
		s.entries.Compute(key, func(cur memoryEntry, loaded bool) (memoryEntry, bool) {
			return cur, !loaded || now.After(cur.expires)
		})
		return "", false, nil
	}
	return e.value, true, nil
}

// Put stores value for ttl. A non-positive ttl stores nothing.
func (s *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.entries.Store(key, memoryEntry{value: value, expires: s.now().Add(ttl)})
	return nil
}

// Len returns the number of entries held, expired ones included.
func (s *MemoryStore) Len() int { return s.entries.Size() }
