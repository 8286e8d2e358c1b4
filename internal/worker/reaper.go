package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/repository"
)

// Reaper is the supervisory sweep for dead slots: any claim older than
// handlerTimeout + grace without an ack or nack means the owning worker
// crashed or was killed. The job is returned to waiting (or dead-lettered if
// its attempts are spent) rather than left silently active.
//
// Because it works off the shared store, a reaper in any surviving process
// covers claims from every process.
type Reaper struct {
	store    repository.JobStore
	maxClaim time.Duration
	interval time.Duration
	logger   *zap.Logger
}

func NewReaper(
	store repository.JobStore,
	handlerTimeout, grace, interval time.Duration,
	logger *zap.Logger,
) *Reaper {
	return &Reaper{
		store:    store,
		maxClaim: handlerTimeout + grace,
		interval: interval,
		logger:   logger,
	}
}

// Run ticks every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started",
		zap.Duration("interval", r.interval),
		zap.Duration("max_claim", r.maxClaim),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopping")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.maxClaim)
	requeued, dead, err := r.store.ReapStale(ctx, cutoff)
	if err != nil {
		r.logger.Error("stale claim sweep failed", zap.Error(err))
		return
	}
	if requeued > 0 || dead > 0 {
		r.logger.Warn("reclaimed stale jobs",
			zap.Int("requeued", requeued),
			zap.Int("dead_lettered", dead),
		)
	}
}
