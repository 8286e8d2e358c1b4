package repository

import (
	"context"
	"time"

	"github.com/finflow/finqueue/internal/domain"
)

// JobStore is the durable backing store for job records. Implementations must
// guarantee that ClaimNext is atomic: across any number of concurrent callers,
// at most one ever claims a given job. This is the linchpin invariant of the
// whole subsystem.
//
// The pgx implementation is in pg_job_store.go; the in-memory implementation
// (memory_job_store.go) carries the same semantics and backs both tests and
// infrastructure-free deployments.
type JobStore interface {
	Create(ctx context.Context, j *domain.Job) error

	// ClaimNext atomically selects the highest-priority claimable job with
	// ready_at <= now (FIFO within a priority tier), transitions it to active
	// and increments attempts. Returns (nil, nil) when no job is eligible.
	ClaimNext(ctx context.Context, queue, workerID string) (*domain.Job, error)

	GetByID(ctx context.Context, id string) (*domain.Job, error)

	// ReportProgress is advisory: last write wins, no state check beyond active.
	ReportProgress(ctx context.Context, id string, percent int) error

	// Ack transitions active → completed. ErrNotActive if the job is not
	// active or is claimed by a different worker.
	Ack(ctx context.Context, id, workerID string, result []byte) error

	// Nack transitions active → failed with ready_at = retryAt, making the
	// job claimable again once due.
	Nack(ctx context.Context, id, workerID, errMsg string, retryAt time.Time) error

	// DeadLetter transitions active → dead_lettered, recording the final error.
	DeadLetter(ctx context.Context, id, workerID, errMsg string) error

	// Cancel removes a job that has not been claimed (waiting or failed).
	Cancel(ctx context.Context, id string) error

	CountByState(ctx context.Context, queue string) (map[domain.JobState]int, error)

	// ReapStale handles claims whose worker presumably died: active jobs
	// claimed before the cutoff are returned to waiting, or dead-lettered if
	// their attempts are exhausted. Returns (requeued, deadLettered).
	ReapStale(ctx context.Context, cutoff time.Time) (int, int, error)

	// DeleteTerminal removes completed jobs finished before completedBefore
	// and dead-lettered jobs finished before deadBefore.
	DeleteTerminal(ctx context.Context, completedBefore, deadBefore time.Time) (int, error)
}
