// Package cache implements the request cache and deduplication layer of the
// storefront client.
//
// Every outbound read is identified by a deterministic Key built from the
// request method, path, query parameters, body fingerprint and the cache
// namespace (public vs per-user). Equal logical requests always produce equal
// keys, so all caching and deduplication guarantees hang off Key.String().
//
// Two cooperating pieces are provided:
//
//   - Store: a TTL cache for successful read responses. MemoryStore keeps
//     entries in-process; RedisStore shares them across instances. An expired
//     entry is never served: reads past the expiry report a miss and evict
//     the stale entry.
//
//   - Flight: a pending-request registry. At most one producer runs per key
//     at any time; concurrent callers for the same key block on the single
//     in-flight call and receive its outcome. The registration is removed
//     when the call settles, success or failure, so a failed request never
//     starves later callers.
//
// A failed request never populates the cache. Mutations do not go through the
// cache at all; callers invalidate related entries via DeleteMatching after a
// successful mutation instead.
//
// Example usage:
//
//	store := cache.NewMemoryStore()
//	flight := cache.NewFlight()
//
//	key := cache.Key{Method: "GET", Path: "/carts", UserID: "u-1"}
//	entry, err := flight.Do(key.String(), func() (*cache.Entry, error) {
//		entry, err := store.Get(ctx, key)
//		if err == nil {
//			return entry, nil
//		}
//		// ... perform the network fetch, build an entry ...
//		_ = store.Set(ctx, key, fetched)
//		return fetched, nil
//	})
package cache
