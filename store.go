package graphline

import (
	"context"
	"sync"
	"time"
)

// Store is the key-value interface run persistence is written against. It
// mirrors the external cache's get/set/expire semantics so a networked
// implementation can be dropped in without touching the engine.
type Store interface {
	// Get retrieves a value by key.
	Get(ctx context.Context, key string) (value []byte, exists bool, err error)

	// Set stores a value with an optional time-to-live. ttl <= 0 means no
	// expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error
}

// StoreOption configures the in-memory store.
type StoreOption func(*memoryStore)

// WithMaxEntries bounds the store; the oldest entry is evicted when full.
func WithMaxEntries(n int) StoreOption {
	return func(s *memoryStore) {
		s.maxEntries = n
	}
}

// WithEvictionCallback registers a callback invoked when an entry is evicted
// for capacity (not for TTL expiry or explicit deletes).
func WithEvictionCallback(fn func(key string)) StoreOption {
	return func(s *memoryStore) {
		s.onEvict = fn
	}
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero = never
	setAt     time.Time
}

// memoryStore is a mutex-guarded map with per-entry TTL and an optional
// capacity bound.
type memoryStore struct {
	mu         sync.Mutex
	data       map[string]entry
	maxEntries int
	onEvict    func(key string)
	now        func() time.Time
}

// NewMemoryStore creates an in-memory Store. It is intended for tests and
// single-process deployments; production deployments back the engine with
// the external cache instead.
func NewMemoryStore(opts ...StoreOption) Store {
	s := &memoryStore{
		data: make(map[string]entry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.data, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := entry{value: value, setAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	if _, exists := s.data[key]; !exists && s.maxEntries > 0 && len(s.data) >= s.maxEntries {
		s.evictOldest()
	}
	s.data[key] = e
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// evictOldest removes the entry with the earliest set time. Called with the
// lock held.
func (s *memoryStore) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for k, e := range s.data {
		if oldestKey == "" || e.setAt.Before(oldest) {
			oldestKey = k
			oldest = e.setAt
		}
	}
	if oldestKey != "" {
		delete(s.data, oldestKey)
		if s.onEvict != nil {
			s.onEvict(oldestKey)
		}
	}
}
