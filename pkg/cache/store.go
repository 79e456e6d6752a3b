package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache,
	// or the stored entry had expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is the response cache backing the read path.
//
// Implementations must treat expired entries as misses and evict them on
// read, and must not store entries whose TTL has already elapsed.
type Store interface {
	// Get retrieves a cache entry by key. Returns ErrCacheMiss if the key
	// doesn't exist or the entry is expired.
	Get(ctx context.Context, key Key) (*Entry, error)

	// Set stores a cache entry under key with the entry's own expiry.
	Set(ctx context.Context, key Key, entry *Entry) error

	// Delete removes a single cache entry.
	Delete(ctx context.Context, key Key) error

	// DeleteMatching removes every entry whose key string contains substr.
	// Used after mutations to drop reads they made stale. Returns the number
	// of entries removed.
	DeleteMatching(ctx context.Context, substr string) (int, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases store resources. The store is unusable afterwards.
	Close() error
}
