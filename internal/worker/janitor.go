package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/repository"
)

// Janitor removes terminal jobs past their retention windows. Completed jobs
// age out quickly; dead-lettered jobs are kept much longer for inspection.
type Janitor struct {
	store              repository.JobStore
	completedRetention time.Duration
	deadRetention      time.Duration
	interval           time.Duration
	logger             *zap.Logger
}

func NewJanitor(
	store repository.JobStore,
	completedRetention, deadRetention, interval time.Duration,
	logger *zap.Logger,
) *Janitor {
	return &Janitor{
		store:              store,
		completedRetention: completedRetention,
		deadRetention:      deadRetention,
		interval:           interval,
		logger:             logger,
	}
}

// Run ticks every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("janitor started", zap.Duration("interval", j.interval))

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopping")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	now := time.Now().UTC()
	removed, err := j.store.DeleteTerminal(ctx,
		now.Add(-j.completedRetention),
		now.Add(-j.deadRetention),
	)
	if err != nil {
		j.logger.Error("retention sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		j.logger.Info("purged terminal jobs", zap.Int("removed", removed))
	}
}
