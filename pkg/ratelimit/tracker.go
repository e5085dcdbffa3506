package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cadseq_rate_limit_remaining",
		Help: "Request quota remaining as reported by the document service",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadseq_rate_limit_waits_total",
		Help: "Total number of requests delayed by an active Retry-After back-off",
	})

	rateLimitBackoffsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cadseq_rate_limit_backoffs_total",
		Help: "Total number of 429 responses that started a back-off",
	})
)

// Tracker throttles outgoing requests and honours server back-off.
type Tracker struct {
	redis  *redis.Client
	bucket *rate.Limiter
	logger zerolog.Logger

	mu    sync.Mutex
	local State
}

// NewTracker creates a tracker allowing requestsPerSecond with the given
// burst; requestsPerSecond <= 0 disables the token bucket. redisClient
// may be nil, in which case back-off state is kept in process only.
func NewTracker(redisClient *redis.Client, requestsPerSecond float64, burst int, logger zerolog.Logger) *Tracker {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &Tracker{
		redis:  redisClient,
		bucket: rate.NewLimiter(limit, burst),
		logger: logger,
		local:  State{Remaining: UnknownRemaining},
	}
}

// GetState returns the current state, preferring the shared Redis copy.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	t.mu.Lock()
	local := t.local
	t.mu.Unlock()

	if t.redis == nil {
		return &local, nil
	}

	vals, err := t.redis.MGet(ctx, RedisKeyRemaining, RedisKeyBlockedUntil, RedisKeyLastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	// Nothing shared yet.
	if vals[2] == nil {
		return &local, nil
	}

	state := State{Remaining: UnknownRemaining}
	if s, ok := vals[0].(string); ok {
		if n, err := strconv.Atoi(s); err == nil {
			state.Remaining = n
		}
	}
	if s, ok := vals[1].(string); ok {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			state.BlockedUntil = time.UnixMilli(ms)
		}
	}
	if s, ok := vals[2].(string); ok {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			state.LastUpdate = time.UnixMilli(ms)
		}
	}

	if local.BlockedUntil.After(state.BlockedUntil) {
		state.BlockedUntil = local.BlockedUntil
	}

	return &state, nil
}

// Wait blocks until a request may be sent: first the token bucket, then
// any Retry-After back-off in effect.
func (t *Tracker) Wait(ctx context.Context) error {
	if err := t.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Rate limit state unavailable, relying on token bucket")
		return nil
	}

	if !state.IsBlocked() {
		return nil
	}

	wait := state.TimeUntilUnblocked()
	rateLimitWaitsTotal.Inc()
	t.logger.Warn().
		Dur("wait_duration", wait).
		Msg("Back-off in effect - delaying request")

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UpdateFromResponse records the quota header and, for 429 responses,
// starts a back-off from Retry-After.
func (t *Tracker) UpdateFromResponse(ctx context.Context, statusCode int, headers http.Header) error {
	now := time.Now()

	t.mu.Lock()
	state := t.local
	if remainStr := headers.Get(HeaderRemaining); remainStr != "" {
		remain, err := strconv.Atoi(remainStr)
		if err != nil {
			t.mu.Unlock()
			return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}
		state.Remaining = remain
		rateLimitRemaining.Set(float64(remain))
	}
	if statusCode == http.StatusTooManyRequests {
		state.BlockedUntil = now.Add(ParseRetryAfter(headers.Get(HeaderRetryAfter), now))
		rateLimitBackoffsTotal.Inc()
	}
	state.LastUpdate = now
	t.local = state
	t.mu.Unlock()

	if statusCode == http.StatusTooManyRequests {
		t.logger.Warn().
			Time("blocked_until", state.BlockedUntil).
			Int("remaining", state.Remaining).
			Msg("Rate limited by document service - backing off")
	}

	if t.redis == nil {
		return nil
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
	if !state.BlockedUntil.IsZero() {
		pipe.Set(ctx, RedisKeyBlockedUntil, state.BlockedUntil.UnixMilli(), 0)
	}
	pipe.Set(ctx, RedisKeyLastUpdate, state.LastUpdate.UnixMilli(), 0)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// ParseRetryAfter accepts delta-seconds or an HTTP date.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return DefaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return DefaultRetryAfter
}
