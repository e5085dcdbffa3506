// Package ratelimit gates requests to the document service. A local token
// bucket keeps the steady request rate below the service quota, and the
// 429 / Retry-After back-off state is shared through Redis so every
// worker (and every process harvesting with the same API key) pauses
// together.
package ratelimit

import (
	"time"
)

// Redis keys for shared rate limit state.
const (
	RedisKeyRemaining    = "cadseq:rate_limit:remaining"
	RedisKeyBlockedUntil = "cadseq:rate_limit:blocked_until"
	RedisKeyLastUpdate   = "cadseq:rate_limit:last_update"
)

// Response headers read by the tracker.
const (
	HeaderRemaining  = "X-Rate-Limit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// DefaultRetryAfter applies to a 429 response without a usable Retry-After.
const DefaultRetryAfter = 5 * time.Second

// UnknownRemaining marks a state where the service has not reported a quota.
const UnknownRemaining = -1

// State is the last rate limit information reported by the service.
type State struct {
	// Remaining is the request quota left, or UnknownRemaining.
	Remaining int `json:"remaining"`

	// BlockedUntil is set from Retry-After after a 429 response.
	BlockedUntil time.Time `json:"blocked_until"`

	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked returns true while a Retry-After back-off is in effect.
func (s *State) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// TimeUntilUnblocked returns the remaining back-off, or 0.
func (s *State) TimeUntilUnblocked() time.Duration {
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}
