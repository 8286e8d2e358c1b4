package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/repository"
)

// Defaults are the per-queue retry knobs applied when an enqueue call leaves
// them unset. Overridable per job via EnqueueOptions.
type Defaults struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Hooks carries the metric callbacks injected by main. Using a struct keeps
// the manager metrics-agnostic; nil hooks are no-ops.
type Hooks struct {
	OnEnqueued     func(queue, jobType string)
	OnCompleted    func(queue, jobType string, latency time.Duration)
	OnDeadLettered func(queue, jobType string)
}

// Manager is the single mutation path for jobs: enqueue, claim, progress,
// ack, nack, cancel. Constructed once at process start and passed by
// reference; there is no global queue state.
type Manager struct {
	store    repository.JobStore
	registry *Registry
	defaults Defaults
	hooks    Hooks
	logger   *zap.Logger
}

func NewManager(
	store repository.JobStore,
	registry *Registry,
	defaults Defaults,
	hooks Hooks,
	logger *zap.Logger,
) *Manager {
	if hooks.OnEnqueued == nil {
		hooks.OnEnqueued = func(string, string) {}
	}
	if hooks.OnCompleted == nil {
		hooks.OnCompleted = func(string, string, time.Duration) {}
	}
	if hooks.OnDeadLettered == nil {
		hooks.OnDeadLettered = func(string, string) {}
	}
	return &Manager{
		store:    store,
		registry: registry,
		defaults: defaults,
		hooks:    hooks,
		logger:   logger,
	}
}

// Registry exposes the type registry so worker slots can dispatch handlers.
func (m *Manager) Registry() *Registry { return m.registry }

// Enqueue validates the payload against its registered type and persists a
// new waiting job. Malformed payloads are rejected here, synchronously; they
// never enter the queue.
func (m *Manager) Enqueue(
	ctx context.Context,
	queueName, jobType string,
	payload json.RawMessage,
	opts domain.EnqueueOptions,
) (*domain.Job, error) {
	def, ok := m.registry.Lookup(jobType)
	if !ok {
		return nil, domain.ErrUnknownJobType
	}
	if def.Queue != queueName {
		return nil, domain.ErrQueueMismatch
	}
	if def.Validate != nil {
		if err := def.Validate(payload); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
		}
	}

	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	} else if !priority.IsValid() {
		return nil, domain.ErrInvalidPriority
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = m.defaults.MaxAttempts
	}

	backoff := domain.BackoffPolicy{
		Kind:      domain.BackoffExponential,
		BaseDelay: m.defaults.BackoffBase,
	}
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}

	now := time.Now().UTC()
	j := &domain.Job{
		ID:          uuid.New().String(),
		Queue:       queueName,
		Type:        jobType,
		Payload:     payload,
		Priority:    priority,
		State:       domain.StateWaiting,
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		ReadyAt:     now.Add(opts.Delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.store.Create(ctx, j); err != nil {
		return nil, err
	}

	m.hooks.OnEnqueued(queueName, jobType)
	m.logger.Debug("job enqueued",
		zap.String("job_id", j.ID),
		zap.String("queue", queueName),
		zap.String("type", jobType),
		zap.Time("ready_at", j.ReadyAt),
	)
	return j, nil
}

// ClaimNext hands the oldest ready, highest-priority job to workerID, or
// (nil, nil) when the queue has nothing eligible.
func (m *Manager) ClaimNext(ctx context.Context, queueName, workerID string) (*domain.Job, error) {
	return m.store.ClaimNext(ctx, queueName, workerID)
}

// ReportProgress is advisory; errors are swallowed after a debug log so a
// flaky store never breaks a running handler.
func (m *Manager) ReportProgress(ctx context.Context, jobID string, percent int) {
	if err := m.store.ReportProgress(ctx, jobID, percent); err != nil {
		m.logger.Debug("progress report dropped", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Ack completes a job and stores its marshalled result. A second ack of an
// already-completed job is a no-op, so completions are never double-counted.
func (m *Manager) Ack(ctx context.Context, j *domain.Job, workerID string, result any) error {
	var raw []byte
	if result != nil {
		var err error
		if raw, err = json.Marshal(result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	err := m.store.Ack(ctx, j.ID, workerID, raw)
	if errors.Is(err, domain.ErrNotActive) {
		current, getErr := m.store.GetByID(ctx, j.ID)
		if getErr == nil && current.State == domain.StateCompleted {
			return nil // idempotent: already acked
		}
		return err
	}
	if err != nil {
		return err
	}

	m.hooks.OnCompleted(j.Queue, j.Type, time.Since(j.CreatedAt))
	return nil
}

// Nack records a failure. Permanent failures and exhausted attempts
// dead-letter immediately; everything else returns to the queue with
// ready_at pushed out by the job's backoff policy.
func (m *Manager) Nack(ctx context.Context, j *domain.Job, workerID string, cause error) error {
	msg := cause.Error()

	if domain.IsPermanent(cause) || j.Attempts >= j.MaxAttempts {
		if err := m.store.DeadLetter(ctx, j.ID, workerID, msg); err != nil {
			return err
		}
		m.hooks.OnDeadLettered(j.Queue, j.Type)
		m.logger.Warn("job dead-lettered",
			zap.String("job_id", j.ID),
			zap.String("queue", j.Queue),
			zap.Int("attempts", j.Attempts),
			zap.Bool("permanent", domain.IsPermanent(cause)),
			zap.String("error", msg),
		)
		return nil
	}

	delay := j.Backoff.Delay(j.Attempts)
	retryAt := time.Now().UTC().Add(delay)
	if err := m.store.Nack(ctx, j.ID, workerID, msg, retryAt); err != nil {
		return err
	}

	m.logger.Info("job scheduled for retry",
		zap.String("job_id", j.ID),
		zap.String("queue", j.Queue),
		zap.Int("attempts", j.Attempts),
		zap.Duration("delay", delay),
		zap.String("error", msg),
	)
	return nil
}

// Status returns the externally visible job record.
func (m *Manager) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	j, err := m.store.GetByID(ctx, jobID)
	if err != nil {
		return domain.JobStatus{}, err
	}
	return j.StatusView(), nil
}

// Cancel removes a job that no worker has claimed.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	return m.store.Cancel(ctx, jobID)
}

// Stats returns job counts by state for one queue, with zero entries for
// states that have no jobs so callers always see the full set.
func (m *Manager) Stats(ctx context.Context, queueName string) (map[domain.JobState]int, error) {
	counts, err := m.store.CountByState(ctx, queueName)
	if err != nil {
		return nil, err
	}
	for _, s := range []domain.JobState{
		domain.StateWaiting, domain.StateActive, domain.StateCompleted,
		domain.StateFailed, domain.StateDeadLettered,
	} {
		if _, ok := counts[s]; !ok {
			counts[s] = 0
		}
	}
	return counts, nil
}
