package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fastRetry keeps backoff in the millisecond range.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        100 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", config.MaxAttempts)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestInitialBackoffFor(t *testing.T) {
	rc := DefaultRetryConfig()

	tests := []struct {
		errorClass ErrorClass
		expected   time.Duration
	}{
		{ErrorClassServer, 1 * time.Second},
		{ErrorClassNetwork, 2 * time.Second},
		{ErrorClassRateLimit, 500 * time.Millisecond},
		{"", 1 * time.Second},
	}

	for _, tt := range tests {
		if got := rc.initialBackoffFor(tt.errorClass); got != tt.expected {
			t.Errorf("initialBackoffFor(%q) = %v, want %v", tt.errorClass, got, tt.expected)
		}
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	var attempts []int
	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), func(attempt int) (ErrorClass, error) {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return ErrorClassServer, errors.New("temporary error")
		}
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
		t.Errorf("Attempts = %v, want [1 2 3]", attempts)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	testErr := errors.New("persistent error")

	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		return ErrorClassServer, testErr
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	callCount := 0
	testErr := errors.New("client error")

	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		return ErrorClassClient, testErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for client errors), got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for client errors")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	rc := fastRetry()
	rc.InitialBackoff = time.Second

	callCount := 0
	err := retryWithBackoff(ctx, rc, zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		cancel()
		return ErrorClassServer, errors.New("error")
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled to be wrapped, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_SingleAttempt(t *testing.T) {
	rc := fastRetry()
	rc.MaxAttempts = 0

	callCount := 0
	err := retryWithBackoff(context.Background(), rc, zerolog.Nop(), func(int) (ErrorClass, error) {
		callCount++
		return ErrorClassServer, errors.New("error")
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	rc := fastRetry()
	rc.MaxAttempts = 3
	rc.InitialBackoff = 20 * time.Millisecond

	var timestamps []time.Time
	_ = retryWithBackoff(context.Background(), rc, zerolog.Nop(), func(int) (ErrorClass, error) {
		timestamps = append(timestamps, time.Now())
		return ErrorClassServer, errors.New("error")
	})

	if len(timestamps) != 3 {
		t.Fatalf("Expected 3 timestamps, got %d", len(timestamps))
	}

	// With ±20% jitter: first ~20ms, second ~40ms.
	firstDelay := timestamps[1].Sub(timestamps[0])
	secondDelay := timestamps[2].Sub(timestamps[1])

	if firstDelay < 15*time.Millisecond {
		t.Errorf("First retry delay %v shorter than expected", firstDelay)
	}
	if secondDelay < 30*time.Millisecond {
		t.Errorf("Second retry delay %v shorter than expected", secondDelay)
	}
}

func TestRetryWithBackoff_MaxBackoffCap(t *testing.T) {
	rc := RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 10,
	}

	start := time.Now()
	_ = retryWithBackoff(context.Background(), rc, zerolog.Nop(), func(int) (ErrorClass, error) {
		return ErrorClassServer, errors.New("error")
	})

	// Two capped waits of at most 12ms each.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Elapsed %v, MaxBackoff cap not applied", elapsed)
	}
}
