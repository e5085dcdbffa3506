//go:build integration

package client

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/cadseq/internal/testutil"
	"github.com/Sternrassler/cadseq/pkg/cache"
	"github.com/Sternrassler/cadseq/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_FullRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	var requestsMade, conditionalRequests atomic.Int32

	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetHandler("/api/documents/d1", func(w http.ResponseWriter, r *http.Request) {
		requestsMade.Add(1)
		w.Header().Set("X-Rate-Limit-Remaining", "100")

		if r.Header.Get("If-None-Match") != "" {
			conditionalRequests.Add(1)
			w.Header().Set("Cache-Control", "max-age=600")
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("ETag", `"doc-etag-1"`)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"d1","name":"bracket"}`))
	})

	client := newTestClient(t, mock.URL(), redisClient)
	ctx := context.Background()

	// Request 1: full response, stored stale-on-arrival because of no-cache.
	resp1, err := client.Get(ctx, "/api/documents/d1", nil)
	if err != nil {
		t.Fatalf("Request 1 failed: %v", err)
	}
	resp1.Body.Close()

	// Request 2: conditional, answered 304 and served from cache.
	resp2, err := client.Get(ctx, "/api/documents/d1", nil)
	if err != nil {
		t.Fatalf("Request 2 failed: %v", err)
	}
	body, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()
	if string(body) != `{"id":"d1","name":"bracket"}` {
		t.Errorf("Request 2 body = %q", body)
	}

	// Request 3: the 304 refreshed freshness, so no network round trip.
	resp3, err := client.Get(ctx, "/api/documents/d1", nil)
	if err != nil {
		t.Fatalf("Request 3 failed: %v", err)
	}
	resp3.Body.Close()

	if n := requestsMade.Load(); n != 2 {
		t.Errorf("requestsMade = %d, want 2", n)
	}
	if n := conditionalRequests.Load(); n != 1 {
		t.Errorf("conditionalRequests = %d, want 1", n)
	}

	entry, err := client.GetCache().Get(ctx, cache.Key{Endpoint: "/api/documents/d1"})
	if err != nil {
		t.Fatalf("Cache lookup failed: %v", err)
	}
	if entry.ETag != `"doc-etag-1"` {
		t.Errorf("Cached ETag = %q, want %q", entry.ETag, `"doc-etag-1"`)
	}
	if entry.IsExpired() {
		t.Error("Entry should be fresh after revalidation")
	}
}

func TestIntegration_SharedBackoff(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := context.Background()

	// Another process recorded a back-off.
	until := time.Now().Add(300 * time.Millisecond)
	redisClient.Set(ctx, ratelimit.RedisKeyBlockedUntil, strconv.FormatInt(until.UnixMilli(), 10), 0)
	redisClient.Set(ctx, ratelimit.RedisKeyLastUpdate, strconv.FormatInt(time.Now().UnixMilli(), 10), 0)

	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetResponse("/api/ping", testutil.NewJSONResponse(`{}`))

	client := newTestClient(t, mock.URL(), redisClient)

	start := time.Now()
	resp, err := client.Get(ctx, "/api/ping", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("Request sent after %v, want it delayed by the shared back-off", elapsed)
	}
}
