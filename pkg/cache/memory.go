package cache

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store backed by a map. It is safe for
// concurrent use and is the default backend for a single client instance.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired;
// an expired entry is evicted on the spot.
func (s *MemoryStore) Get(ctx context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	s.mu.RLock()
	entry, ok := s.entries[cacheKey]
	s.mu.RUnlock()

	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if entry.IsExpired() {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have replaced it.
		if cur, ok := s.entries[cacheKey]; ok && cur.IsExpired() {
			delete(s.entries, cacheKey)
		}
		s.mu.Unlock()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	return entry, nil
}

// Set stores a cache entry. Entries that are already expired are dropped.
func (s *MemoryStore) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		CacheErrors.WithLabelValues("set").Inc()
		return ErrInvalidEntry
	}
	if entry.TTL() <= 0 {
		// Already expired, don't cache
		return nil
	}

	s.mu.Lock()
	s.entries[key.String()] = entry
	s.mu.Unlock()

	return nil
}

// Delete removes a cache entry.
func (s *MemoryStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	delete(s.entries, key.String())
	s.mu.Unlock()

	return nil
}

// DeleteMatching removes every entry whose key contains substr.
func (s *MemoryStore) DeleteMatching(ctx context.Context, substr string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.entries {
		if strings.Contains(k, substr) {
			delete(s.entries, k)
			removed++
		}
	}

	return removed, nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()

	return nil
}

// Close clears the store.
func (s *MemoryStore) Close() error {
	return s.Clear(context.Background())
}

// Len returns the number of live entries (expired entries still pending
// eviction included).
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
