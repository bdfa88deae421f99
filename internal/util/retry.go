package util

import (
	"context"
	"math/rand"
	"strconv"
	"time"
)

// RetryConfig controls the jittered exponential backoff used for provider
// HTTP calls. External-engine CLI invocations and the web_fetch tool do
// not retry, and no config.json keys are read into it.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first (default 3)
	BaseDelay   time.Duration // default 500ms
	Factor      float64       // default 2
	MaxDelay    time.Duration // default 30s
}

// DefaultRetryConfig matches §5: base 500ms, factor 2, max 3 attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Factor:      2,
		MaxDelay:    30 * time.Second,
	}
}

// RetryableError lets callers mark an error as transient (connection reset,
// 5xx, 429). Non-retryable errors abort the loop on first attempt.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration // optional: server-provided Retry-After
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// RetryDo runs fn up to cfg.MaxAttempts times. fn must wrap transient
// errors in *RetryableError; any other error aborts immediately.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var zero T
	var lastErr error
	delay := cfg.BaseDelay
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := delay
			var re *RetryableError
			if e, ok := lastErr.(*RetryableError); ok {
				re = e
			}
			if re != nil && re.RetryAfter > 0 {
				wait = re.RetryAfter
			} else {
				wait = jitter(delay)
			}
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(wait):
			}
			delay = time.Duration(float64(delay) * cfg.Factor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if _, retryable := err.(*RetryableError); !retryable {
			return zero, err
		}
	}
	return zero, lastErr
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(d-half)+1))
}

// ParseRetryAfter parses an HTTP Retry-After header: either an integer
// number of seconds or (unsupported here) an HTTP-date, which is ignored.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
