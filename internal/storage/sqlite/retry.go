package sqlite

import (
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig controls exponential backoff retry behavior for
// busy-database errors.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	JitterPct  float64 // e.g. 0.25 for 25% jitter
}

// DefaultRetryConfig returns the default retry configuration:
// 5 retries, 25ms base, 25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  25 * time.Millisecond,
		JitterPct:  0.25,
	}
}

// RetryBusy retries fn on SQLITE_BUSY / database-is-locked errors
// using the default config.
func RetryBusy(fn func() error) error {
	return retryBusyInternal(DefaultRetryConfig(), fn, time.Sleep)
}

// RetryBusyWithConfig retries fn using the given config.
func RetryBusyWithConfig(cfg RetryConfig, fn func() error) error {
	return retryBusyInternal(cfg, fn, time.Sleep)
}

func retryBusyInternal(cfg RetryConfig, fn func() error, sleepFn func(time.Duration)) error {
	err := fn()
	if err == nil {
		return nil
	}
	if !isBusy(err) {
		return err
	}

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		delay := cfg.BaseDelay * (1 << (attempt - 1))
		jitter := time.Duration(float64(delay) * rand.Float64() * cfg.JitterPct)
		sleepFn(delay + jitter)

		err = fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
	}
	return err
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
