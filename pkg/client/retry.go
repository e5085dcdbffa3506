package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadseq_api_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	apiRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cadseq_api_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	apiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cadseq_api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the initial request.
	MaxAttempts int

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// initialBackoffFor scales the base backoff per error class. Rate limit
// retries start short because the tracker already waits out Retry-After.
func (rc RetryConfig) initialBackoffFor(errorClass ErrorClass) time.Duration {
	switch errorClass {
	case ErrorClassNetwork:
		return 2 * rc.InitialBackoff
	case ErrorClassRateLimit:
		return rc.InitialBackoff / 2
	default:
		return rc.InitialBackoff
	}
}

// attemptFunc performs one attempt. On failure it returns the error class
// deciding whether another attempt is made.
type attemptFunc func(attempt int) (ErrorClass, error)

// retryWithBackoff executes fn with exponential backoff and ±20% jitter,
// respecting context cancellation.
func retryWithBackoff(ctx context.Context, rc RetryConfig, logger zerolog.Logger, fn attemptFunc) error {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.BackoffMultiplier < 1 {
		rc.BackoffMultiplier = 1
	}

	var (
		lastErr   error
		lastClass ErrorClass
		backoff   time.Duration
	)

	for attempt := 1; attempt <= rc.MaxAttempts; attempt++ {
		errorClass, err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if !shouldRetry(errorClass) {
			return err
		}
		if attempt >= rc.MaxAttempts {
			lastClass = errorClass
			break
		}

		if errorClass != lastClass || backoff == 0 {
			backoff = rc.initialBackoffFor(errorClass)
		} else {
			backoff = time.Duration(float64(backoff) * rc.BackoffMultiplier)
		}
		if rc.MaxBackoff > 0 && backoff > rc.MaxBackoff {
			backoff = rc.MaxBackoff
		}
		lastClass = errorClass

		apiRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		apiRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		logger.Debug().
			Err(err).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	apiRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	logger.Warn().
		Str("error_class", string(lastClass)).
		Int("max_attempts", rc.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, rc.MaxAttempts, lastErr)
}
