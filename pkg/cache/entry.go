package cache

import (
	"net/http"
	"time"
)

// Entry represents a cached API response.
type Entry struct {
	// Data is the response body.
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response.
	StatusCode int `json:"status_code"`

	// Header holds the response headers.
	Header http.Header `json:"header"`

	// CachedAt is when the response was captured.
	CachedAt time.Time `json:"cached_at"`

	// ExpiresAt is the absolute expiry. An entry is never served past it.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewEntry builds an entry for a response body with an absolute expiry of
// now + ttl.
func NewEntry(data []byte, statusCode int, header http.Header, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Data:       data,
		StatusCode: statusCode,
		Header:     header.Clone(),
		CachedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
