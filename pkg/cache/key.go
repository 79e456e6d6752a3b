package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies one logical API request. Two requests that differ only in
// query parameter ordering produce the same key.
type Key struct {
	// Method is the HTTP method (e.g., "GET").
	Method string

	// Path is the endpoint path relative to the API prefix (e.g., "/carts").
	Path string

	// Query are the query parameters.
	Query url.Values

	// Body is the serialized request body, if any. Only a fingerprint of it
	// appears in the key string.
	Body []byte

	// UserID namespaces the entry. Empty means the public population;
	// non-empty keeps per-user responses disjoint from public ones and from
	// other users.
	UserID string
}

// String generates a deterministic cache key string.
// Format: sfc:METHOD:path[:query1=val1:query2=val2][:body=fingerprint][:user=id]
//
// Example:
//
//	sfc:GET:carts:user=u-42
//	sfc:GET:products:category=shoes:page=2
func (k Key) String() string {
	parts := []string{"sfc", strings.ToUpper(k.Method)}

	// Add path (normalized)
	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	// Add query params (sorted for determinism)
	if len(k.Query) > 0 {
		queryKeys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Query.Get(key)))
		}
	}

	// Add body fingerprint
	if len(k.Body) > 0 {
		parts = append(parts, "body="+bodyFingerprint(k.Body))
	}

	// Add user namespace
	if k.UserID != "" {
		parts = append(parts, "user="+k.UserID)
	}

	return strings.Join(parts, ":")
}

// bodyFingerprint returns a short stable digest of a request body.
func bodyFingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:6])
}
