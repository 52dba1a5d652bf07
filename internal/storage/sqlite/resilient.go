package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/mistakeknot/vigil/internal/core"
	"github.com/mistakeknot/vigil/internal/storage"
)

// Compile-time interface checks.
var (
	_ storage.Queue       = (*Resilient)(nil)
	_ storage.ThreadStore = (*Resilient)(nil)
)

// Resilient wraps every Store method with circuit breaker + busy retry
// to ride out transient SQLite errors.
type Resilient struct {
	inner *Store
	cb    *CircuitBreaker
}

// NewResilient creates a Resilient store with default breaker settings
// (threshold=5, resetTimeout=30s).
func NewResilient(inner *Store) *Resilient {
	return &Resilient{inner: inner, cb: NewCircuitBreaker(5, 30*time.Second)}
}

// NewResilientWithBreaker creates a Resilient store with a custom breaker.
func NewResilientWithBreaker(inner *Store, cb *CircuitBreaker) *Resilient {
	return &Resilient{inner: inner, cb: cb}
}

// BreakerState returns the current breaker state as a string.
func (r *Resilient) BreakerState() string {
	return r.cb.State().String()
}

func (r *Resilient) Close() error {
	return r.inner.Close()
}

// execute applies breaker + retry. Domain errors like ErrNotFound are
// passed through without counting as breaker failures.
func (r *Resilient) execute(fn func() error) error {
	var domainErr error
	err := r.cb.Execute(func() error {
		return RetryBusy(func() error {
			innerErr := fn()
			if errors.Is(innerErr, storage.ErrNotFound) {
				domainErr = innerErr
				return nil
			}
			return innerErr
		})
	})
	if err == nil && domainErr != nil {
		return domainErr
	}
	return err
}

func (r *Resilient) Enqueue(ctx context.Context, n core.Notification) (core.Notification, error) {
	var result core.Notification
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.Enqueue(ctx, n)
		return innerErr
	})
	return result, err
}

func (r *Resilient) Pending(ctx context.Context, conversationID string, limit int) ([]core.Notification, error) {
	var result []core.Notification
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.Pending(ctx, conversationID, limit)
		return innerErr
	})
	return result, err
}

func (r *Resilient) MarkDelivered(ctx context.Context, id string) error {
	return r.execute(func() error {
		return r.inner.MarkDelivered(ctx, id)
	})
}

func (r *Resilient) PurgeDelivered(ctx context.Context, olderThan time.Time) (int, error) {
	var result int
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.PurgeDelivered(ctx, olderThan)
		return innerErr
	})
	return result, err
}

func (r *Resilient) RegisterThread(ctx context.Context, rec core.ThreadRecord) error {
	return r.execute(func() error {
		return r.inner.RegisterThread(ctx, rec)
	})
}

func (r *Resilient) FindThreadsForAgent(ctx context.Context, sessionName string) ([]core.ThreadRecord, error) {
	var result []core.ThreadRecord
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.FindThreadsForAgent(ctx, sessionName)
		return innerErr
	})
	return result, err
}

func (r *Resilient) RemoveThread(ctx context.Context, sessionPattern, filePath string) (bool, error) {
	var result bool
	err := r.execute(func() error {
		var innerErr error
		result, innerErr = r.inner.RemoveThread(ctx, sessionPattern, filePath)
		return innerErr
	})
	return result, err
}
