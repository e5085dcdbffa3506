package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultStaleWindow is how long an expired entry is kept for revalidation.
const DefaultStaleWindow = 24 * time.Hour

// Manager stores API responses in Redis. Entries outlive their freshness
// deadline by the stale window so they can be revalidated with a
// conditional request instead of being refetched in full.
type Manager struct {
	redis       *redis.Client
	staleWindow time.Duration
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client, staleWindow time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if staleWindow < 0 {
		staleWindow = 0
	}
	return &Manager{
		redis:       redisClient,
		staleWindow: staleWindow,
	}
}

// Get retrieves an entry by key. The entry may be stale; callers check
// IsExpired and revalidate. Returns ErrCacheMiss if the key doesn't exist.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		_ = m.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores an entry. The Redis expiry is the entry TTL plus the stale
// window; an entry with neither is not stored.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	retention := entry.TTL()
	if ShouldMakeConditionalRequest(entry) {
		retention += m.staleWindow
	}
	if retention <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, retention).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))
	return nil
}

// Delete removes an entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Refresh moves the freshness deadline of an existing entry, typically
// after a 304 Not Modified response.
func (m *Manager) Refresh(ctx context.Context, key Key, entry *Entry, newExpires time.Time) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	entry.Expires = newExpires
	return m.Set(ctx, key, entry)
}
