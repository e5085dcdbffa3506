package cache

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips the test
// when none is running. The integration suite starts its own container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, time.Hour)
}

func TestNewManager_NegativeStaleWindow(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	m := NewManager(client, -time.Second)
	if m.staleWindow != 0 {
		t.Errorf("staleWindow = %v, want 0", m.staleWindow)
	}
}

func TestManager_SetAndGet(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Hour)
	ctx := context.Background()

	key := Key{Endpoint: "/api/partstudios/d/D1/w/W1/e/E1/features", Account: "AK"}
	entry := &Entry{
		Data:       []byte(`{"features":[]}`),
		ETag:       `"abc123"`,
		Expires:    time.Now().Add(5 * time.Minute),
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		CachedAt:   time.Now(),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != string(entry.Data) {
		t.Errorf("Data = %s, want %s", got.Data, entry.Data)
	}
	if got.ETag != entry.ETag {
		t.Errorf("ETag = %s, want %s", got.ETag, entry.ETag)
	}
}

func TestManager_Get_Miss(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Hour)

	_, err := manager.Get(context.Background(), Key{Endpoint: "/api/none"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_StaleEntryKeptForRevalidation(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Hour)
	ctx := context.Background()
	key := Key{Endpoint: "/api/stale"}

	entry := &Entry{
		Data:    []byte(`{}`),
		ETag:    `"v1"`,
		Expires: time.Now().Add(-time.Minute),
	}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.IsExpired() {
		t.Error("expected stale entry")
	}
}

func TestManager_ExpiredWithoutValidatorNotStored(t *testing.T) {
	manager := NewManager(setupTestRedis(t), time.Hour)
	ctx := context.Background()
	key := Key{Endpoint: "/api/gone"}

	if err := manager.Set(ctx, key, &Entry{Data: []byte(`{}`), Expires: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Refresh(t *testing.T) {
	manager := NewManager(setupTestRedis(t), 0)
	ctx := context.Background()
	key := Key{Endpoint: "/api/refresh"}

	entry := &Entry{Data: []byte(`{}`), ETag: `"v1"`, Expires: time.Now().Add(time.Minute)}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	newExpires := time.Now().Add(2 * time.Hour)
	if err := manager.Refresh(ctx, key, entry, newExpires); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Expires.Sub(newExpires).Abs() > time.Second {
		t.Errorf("Expires = %v, want %v", got.Expires, newExpires)
	}
}

func TestManager_InvalidEntry(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, time.Hour)
	ctx := context.Background()
	key := Key{Endpoint: "/api/corrupt"}

	if err := client.Set(ctx, key.String(), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}
