// Package cache provides a Redis-backed cache for document-service GET
// responses, with ETag / Last-Modified revalidation.
//
// Feature lists and bounding boxes are requested twice per harvested
// element (once by the classifier, once by the feature parser) and again
// on every re-run of a pipeline. Cached entries let the second request be
// served locally and later ones be revalidated with If-None-Match.
package cache

import (
	"net/http"
	"time"
)

// Entry represents a cached API response.
type Entry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag for conditional requests (If-None-Match)
	ETag string `json:"etag"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// LastModified is taken from the Last-Modified header when present
	LastModified time.Time `json:"last_modified"`

	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	CachedAt   time.Time   `json:"cached_at"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
