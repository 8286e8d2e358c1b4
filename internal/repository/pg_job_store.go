package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finflow/finqueue/internal/domain"
)

type pgJobStore struct {
	pool *pgxpool.Pool
}

// NewPgJobStore returns a JobStore backed by PostgreSQL. Claim atomicity
// rests on FOR UPDATE SKIP LOCKED: concurrent claimers never block on, nor
// select, a row another transaction has already locked.
func NewPgJobStore(pool *pgxpool.Pool) JobStore {
	return &pgJobStore{pool: pool}
}

const jobColumns = `
	id, queue, job_type, payload, priority, state, attempts, max_attempts,
	backoff_kind, backoff_base_ms, progress, result, last_error,
	claimed_by, claimed_at, ready_at, created_at, updated_at, finished_at`

func (s *pgJobStore) Create(ctx context.Context, j *domain.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs
			(id, queue, job_type, payload, priority, state, attempts, max_attempts,
			 backoff_kind, backoff_base_ms, progress, ready_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		j.ID, j.Queue, j.Type, j.Payload, j.Priority.Weight(), j.State,
		j.Attempts, j.MaxAttempts, j.Backoff.Kind, j.Backoff.BaseDelay.Milliseconds(),
		j.Progress, j.ReadyAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return unavailable("insert job", err)
	}
	return nil
}

func (s *pgJobStore) ClaimNext(ctx context.Context, queue, workerID string) (*domain.Job, error) {
	// The inner SELECT and the UPDATE run in one statement: SKIP LOCKED
	// guarantees two concurrent claimers never pick the same row, and the
	// RETURNING clause hands back the claimed job without a second round trip.
	row := s.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM jobs
			WHERE queue = $1
			  AND state IN ('waiting', 'failed')
			  AND ready_at <= now()
			ORDER BY priority DESC, ready_at ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs j
		SET state = 'active',
		    claimed_by = $2,
		    claimed_at = now(),
		    attempts = j.attempts + 1,
		    updated_at = now()
		FROM next
		WHERE j.id = next.id
		RETURNING `+jobColumns)

	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("claim next", err)
	}
	return j, nil
}

func (s *pgJobStore) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)

	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get job", err)
	}
	return j, nil
}

func (s *pgJobStore) ReportProgress(ctx context.Context, id string, percent int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET progress = $1, updated_at = now()
		WHERE id = $2 AND state = 'active'`,
		clampPercent(percent), id)
	if err != nil {
		return unavailable("report progress", err)
	}
	return nil
}

func (s *pgJobStore) Ack(ctx context.Context, id, workerID string, result []byte) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'completed', result = $1, progress = 100,
		    last_error = NULL, claimed_by = NULL, claimed_at = NULL,
		    finished_at = now(), updated_at = now()
		WHERE id = $2 AND state = 'active' AND claimed_by = $3`,
		result, id, workerID)
	if err != nil {
		return unavailable("ack job", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotActive
	}
	return nil
}

func (s *pgJobStore) Nack(ctx context.Context, id, workerID, errMsg string, retryAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'failed', last_error = $1, ready_at = $2,
		    claimed_by = NULL, claimed_at = NULL, updated_at = now()
		WHERE id = $3 AND state = 'active' AND claimed_by = $4`,
		errMsg, retryAt, id, workerID)
	if err != nil {
		return unavailable("nack job", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotActive
	}
	return nil
}

func (s *pgJobStore) DeadLetter(ctx context.Context, id, workerID, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'dead_lettered', last_error = $1,
		    claimed_by = NULL, claimed_at = NULL,
		    finished_at = now(), updated_at = now()
		WHERE id = $2 AND state = 'active' AND claimed_by = $3`,
		errMsg, id, workerID)
	if err != nil {
		return unavailable("dead-letter job", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotActive
	}
	return nil
}

func (s *pgJobStore) Cancel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE id = $1 AND state IN ('waiting', 'failed')`, id)
	if err != nil {
		return unavailable("cancel job", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "gone" from "claimed or terminal" for the API.
		if _, err := s.GetByID(ctx, id); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrNotCancellable
	}
	return nil
}

func (s *pgJobStore) CountByState(ctx context.Context, queue string) (map[domain.JobState]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT state, COUNT(*) FROM jobs WHERE queue = $1 GROUP BY state`, queue)
	if err != nil {
		return nil, unavailable("count jobs", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[domain.JobState(state)] = n
	}
	return counts, rows.Err()
}

func (s *pgJobStore) ReapStale(ctx context.Context, cutoff time.Time) (int, int, error) {
	// Exhausted claims go straight to the dead letter state; the rest return
	// to waiting, immediately claimable. Attempts were already counted at
	// claim time, so a crashed execution consumes an attempt like any other.
	dead, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'dead_lettered',
		    last_error = COALESCE(last_error, 'claim expired: worker presumed dead'),
		    claimed_by = NULL, claimed_at = NULL,
		    finished_at = now(), updated_at = now()
		WHERE state = 'active' AND claimed_at < $1 AND attempts >= max_attempts`,
		cutoff)
	if err != nil {
		return 0, 0, unavailable("reap stale (dead-letter)", err)
	}

	requeued, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'waiting', ready_at = now(),
		    last_error = 'claim expired: worker presumed dead',
		    claimed_by = NULL, claimed_at = NULL, updated_at = now()
		WHERE state = 'active' AND claimed_at < $1 AND attempts < max_attempts`,
		cutoff)
	if err != nil {
		return 0, int(dead.RowsAffected()), unavailable("reap stale (requeue)", err)
	}

	return int(requeued.RowsAffected()), int(dead.RowsAffected()), nil
}

func (s *pgJobStore) DeleteTerminal(ctx context.Context, completedBefore, deadBefore time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE (state = 'completed' AND finished_at < $1)
		   OR (state = 'dead_lettered' AND finished_at < $2)`,
		completedBefore, deadBefore)
	if err != nil {
		return 0, unavailable("delete terminal jobs", err)
	}
	return int(tag.RowsAffected()), nil
}

// ---- helpers ----

// scanJob reads a single job row from any pgx row type.
func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		j      domain.Job
		weight int
		baseMs int64
		kind   string
		state  string
	)

	err := row.Scan(
		&j.ID, &j.Queue, &j.Type, &j.Payload, &weight, &state,
		&j.Attempts, &j.MaxAttempts, &kind, &baseMs, &j.Progress,
		&j.Result, &j.LastError, &j.ClaimedBy, &j.ClaimedAt,
		&j.ReadyAt, &j.CreatedAt, &j.UpdatedAt, &j.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Priority = domain.PriorityFromWeight(weight)
	j.State = domain.JobState(state)
	j.Backoff = domain.BackoffPolicy{
		Kind:      domain.BackoffKind(kind),
		BaseDelay: time.Duration(baseMs) * time.Millisecond,
	}
	return &j, nil
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// unavailable folds infrastructure errors into the QueueUnavailable taxonomy
// so callers surface one consistent error when the store is unreachable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrQueueUnavailable, op, err)
}
