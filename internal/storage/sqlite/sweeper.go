package sqlite

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mistakeknot/vigil/internal/log"
	"github.com/mistakeknot/vigil/internal/storage"
)

// Sweeper runs a background goroutine that periodically prunes
// delivered notifications past the retention window, keeping the
// database bounded regardless of traffic.
type Sweeper struct {
	queue     storage.Queue
	interval  time.Duration
	retention time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	logger    zerolog.Logger
}

// NewSweeper creates a Sweeper. Call Start to begin sweeping.
func NewSweeper(queue storage.Queue, interval, retention time.Duration) *Sweeper {
	return &Sweeper{
		queue:     queue,
		interval:  interval,
		retention: retention,
		done:      make(chan struct{}),
		logger:    log.With("sweeper"),
	}
}

// Start launches the background sweep goroutine.
func (sw *Sweeper) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	go func() {
		defer close(sw.done)

		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sw.runSweep(ctx)
			}
		}
	}()
}

// Stop cancels the sweep goroutine and waits for it to finish.
func (sw *Sweeper) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	<-sw.done
}

func (sw *Sweeper) runSweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-sw.retention)
	purged, err := sw.queue.PurgeDelivered(ctx, cutoff)
	if err != nil {
		sw.logger.Error().Err(err).Msg("purge failed")
		return
	}
	if purged > 0 {
		sw.logger.Info().Int("purged", purged).Msg("pruned delivered notifications")
	}
}
