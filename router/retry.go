// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"pixelflow/platform/router/provider"
)

// RetryConfig configures the per-provider retry loop.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the exponential multiplier.
	BackoffFactor float64

	// Jitter adds randomness to avoid thundering herd (0.0-1.0).
	Jitter float64
}

// DefaultRetryConfig returns the default retry budget: two retries with
// short exponential backoff, so a flaky provider costs at most three calls
// before the engine falls through to the next candidate.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
	}
}

// retryEdit runs fn up to 1+MaxRetries times, retrying only transient
// provider errors. When the provider supplied a Retry-After hint the hint
// wins over computed backoff. Returns the last error and the number of
// retries actually spent.
func retryEdit(ctx context.Context, cfg RetryConfig, fn func(context.Context) (*provider.EditResult, error)) (*provider.EditResult, int, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if !retryable(err) || attempt >= cfg.MaxRetries {
			return nil, attempt, err
		}

		backoff := cfg.InitialBackoff * time.Duration(pow(cfg.BackoffFactor, float64(attempt)))
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
		if cfg.Jitter > 0 {
			jitterDelta := float64(backoff) * cfg.Jitter
			jitter := (rand.Float64() * 2 * jitterDelta) - jitterDelta
			backoff = time.Duration(float64(backoff) + jitter)
		}

		// A provider-supplied Retry-After hint overrides the backoff.
		var perr *provider.Error
		if errors.As(err, &perr) && perr.RetryAfter > 0 {
			backoff = perr.RetryAfter
			if backoff > cfg.MaxBackoff {
				// Waiting longer than the cap is worse than moving on to
				// the next candidate.
				return nil, attempt, err
			}
		}

		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, cfg.MaxRetries, lastErr
}

// retryable reports whether an edit failure is worth retrying on the same
// provider.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// pow calculates base^exp for floats.
func pow(base, exp float64) float64 {
	result := 1.0
	for exp > 0 {
		if int(exp)%2 == 1 {
			result *= base
		}
		exp = float64(int(exp) / 2)
		base *= base
	}
	return result
}
