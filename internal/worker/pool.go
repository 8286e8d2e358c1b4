package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/queue"
)

// QueueConfig sets the slot count for one logical queue.
type QueueConfig struct {
	Name        string
	Concurrency int
}

// Pool runs a fixed number of execution slots per queue. Each slot claims one
// job at a time, executes its handler in isolation, and acks or nacks. A slot
// is occupied for the handler's full duration; there is no multiplexing.
type Pool struct {
	manager        *queue.Manager
	queues         []QueueConfig
	pollInterval   time.Duration
	handlerTimeout time.Duration
	logger         *zap.Logger

	// processID makes claimed_by unique across processes sharing a store,
	// so one worker can never ack a claim held by another.
	processID string
	wg        sync.WaitGroup
}

func NewPool(
	manager *queue.Manager,
	queues []QueueConfig,
	pollInterval, handlerTimeout time.Duration,
	logger *zap.Logger,
) *Pool {
	return &Pool{
		manager:        manager,
		queues:         queues,
		pollInterval:   pollInterval,
		handlerTimeout: handlerTimeout,
		logger:         logger,
		processID:      uuid.New().String()[:8],
	}
}

// Start launches every slot as a goroutine. Cancelling ctx stops claiming;
// in-flight handlers run to completion (bounded by the handler timeout).
func (p *Pool) Start(ctx context.Context) {
	for _, q := range p.queues {
		for i := 0; i < q.Concurrency; i++ {
			workerID := fmt.Sprintf("%s/%s#%d", p.processID, q.Name, i)
			p.wg.Add(1)
			go func(queueName, workerID string) {
				defer p.wg.Done()
				p.runSlot(ctx, queueName, workerID)
			}(q.Name, workerID)
		}
	}
}

// Wait blocks until every slot has returned after ctx is cancelled.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runSlot(ctx context.Context, queueName, workerID string) {
	log := p.logger.With(zap.String("worker_id", workerID))
	log.Info("worker slot started", zap.String("queue", queueName))

	for {
		select {
		case <-ctx.Done():
			log.Info("worker slot stopping")
			return
		default:
		}

		job, err := p.manager.ClaimNext(ctx, queueName, workerID)
		if err != nil {
			log.Warn("claim failed, backing off", zap.Error(err))
			p.sleep(ctx, 4*p.pollInterval)
			continue
		}
		if job == nil {
			p.sleep(ctx, p.pollInterval)
			continue
		}

		p.process(job, workerID, log)
	}
}

func (p *Pool) process(job *domain.Job, workerID string, log *zap.Logger) {
	start := time.Now()
	log = log.With(
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempts),
	)

	def, ok := p.manager.Registry().Lookup(job.Type)
	if !ok {
		// Payload validation should make this unreachable, but a job written
		// by an older binary could carry a type this one no longer knows.
		p.settle(job, workerID, nil, domain.Permanent(domain.ErrUnknownJobType), log)
		return
	}

	result, err := p.execute(def, job)
	p.settle(job, workerID, result, err, log)

	if err == nil {
		log.Info("job completed", zap.Duration("elapsed", time.Since(start)))
	}
}

// settle converts the execution outcome into exactly one ack or nack call.
// A dedicated short-lived context keeps the bookkeeping write independent of
// shutdown: the job must never be left silently active.
func (p *Pool) settle(job *domain.Job, workerID string, result any, execErr error, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if execErr != nil {
		if err := p.manager.Nack(ctx, job, workerID, execErr); err != nil {
			log.Error("nack failed", zap.Error(err))
		}
		return
	}
	if err := p.manager.Ack(ctx, job, workerID, result); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func (p *Pool) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
