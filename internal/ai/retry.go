package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RetryConfig bounds the retry loop around API calls.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// MaxConcurrentCalls caps in-flight API calls. Zero means unlimited.
	MaxConcurrentCalls int
}

// DefaultRetryConfig returns the standard retry tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:         3,
		InitialBackoff:     1 * time.Second,
		MaxBackoff:         30 * time.Second,
		BackoffMultiplier:  2.0,
		Timeout:            120 * time.Second,
		MaxConcurrentCalls: 3,
	}
}

// retryWithBackoff runs fn with per-attempt timeouts and exponential
// backoff. Non-retriable errors (auth, bad request) abort immediately.
func (g *Generator) retryWithBackoff(ctx context.Context, operation string, fn func(context.Context) error) error {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquiring slot for %s: %w", operation, err)
		}
		defer g.sem.Release(1)
	}

	var lastErr error
	backoff := g.retry.InitialBackoff

	for attempt := 0; attempt <= g.retry.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.retry.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if attempt > 0 {
				g.log.Info().
					Str("operation", operation).
					Int("retries", attempt).
					Msg("API call succeeded after retries")
			}
			return nil
		}
		lastErr = err

		if !isRetriableError(err) {
			return err
		}
		if attempt == g.retry.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		}

		g.log.Warn().Err(err).
			Str("operation", operation).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("API call failed, retrying")

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * g.retry.BackoffMultiplier)
			if backoff > g.retry.MaxBackoff {
				backoff = g.retry.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, g.retry.MaxRetries+1, lastErr)
}

// isRetriableError reports whether an API failure is worth retrying.
// Rate limits, server errors, and network hiccups are transient; auth
// and validation failures are not.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit",
		"500", "502", "503", "504",
		"internal server error", "bad gateway",
		"service unavailable", "gateway timeout",
		"overloaded",
		"connection refused", "connection reset",
		"timeout", "temporary failure",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
