package sqlite

import (
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsOnTransientBusy(t *testing.T) {
	calls := 0
	err := retryBusyInternal(DefaultRetryConfig(), func() error {
		calls++
		if calls <= 3 {
			return errors.New("database is locked")
		}
		return nil
	}, func(time.Duration) {})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestRetryNoRetryOnOtherErrors(t *testing.T) {
	calls := 0
	err := retryBusyInternal(DefaultRetryConfig(), func() error {
		calls++
		return errors.New("unique constraint violated")
	}, func(time.Duration) {})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", calls)
	}
}

func TestRetryExhaustsAllAttempts(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig()
	err := retryBusyInternal(cfg, func() error {
		calls++
		return errors.New("database is locked")
	}, func(time.Duration) {})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	expected := 1 + cfg.MaxRetries
	if calls != expected {
		t.Fatalf("expected %d calls, got %d", expected, calls)
	}
}

func TestRetryBackoffGrowsWithinJitterBounds(t *testing.T) {
	cfg := DefaultRetryConfig()
	var sleeps []time.Duration
	_ = retryBusyInternal(cfg, func() error {
		return errors.New("database is locked")
	}, func(d time.Duration) {
		sleeps = append(sleeps, d)
	})
	if len(sleeps) != cfg.MaxRetries {
		t.Fatalf("expected %d sleeps, got %d", cfg.MaxRetries, len(sleeps))
	}
	for i, d := range sleeps {
		base := cfg.BaseDelay * (1 << i)
		max := base + time.Duration(float64(base)*cfg.JitterPct)
		if d < base || d > max {
			t.Fatalf("sleep %d = %v outside [%v, %v]", i, d, base, max)
		}
	}
}
