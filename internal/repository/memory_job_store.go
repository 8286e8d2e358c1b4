package repository

import (
	"context"
	"sync"
	"time"

	"github.com/finflow/finqueue/internal/domain"
)

// MemoryJobStore is an in-memory JobStore. It carries the exact claim
// semantics of the Postgres store under a single mutex, which makes it both
// the test double and a zero-infrastructure runtime option (jobs do not
// survive a restart).
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*domain.Job)}
}

func (s *MemoryJobStore) Create(_ context.Context, j *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *j
	s.jobs[j.ID] = &clone
	return nil
}

func (s *MemoryJobStore) ClaimNext(_ context.Context, queue, workerID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var best *domain.Job
	for _, j := range s.jobs {
		if j.Queue != queue || !j.State.Claimable() || j.ReadyAt.After(now) {
			continue
		}
		if best == nil || claimBefore(j, best) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}

	best.State = domain.StateActive
	best.ClaimedBy = &workerID
	claimedAt := now
	best.ClaimedAt = &claimedAt
	best.Attempts++
	best.UpdatedAt = now

	clone := *best
	return &clone, nil
}

// claimBefore orders candidates the way the SQL claim does:
// priority weight DESC, ready_at ASC, created_at ASC.
func claimBefore(a, b *domain.Job) bool {
	if wa, wb := a.Priority.Weight(), b.Priority.Weight(); wa != wb {
		return wa > wb
	}
	if !a.ReadyAt.Equal(b.ReadyAt) {
		return a.ReadyAt.Before(b.ReadyAt)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *MemoryJobStore) GetByID(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *j
	return &clone, nil
}

func (s *MemoryJobStore) ReportProgress(_ context.Context, id string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok && j.State == domain.StateActive {
		j.Progress = clampPercent(percent)
		j.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryJobStore) Ack(_ context.Context, id, workerID string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.State != domain.StateActive || j.ClaimedBy == nil || *j.ClaimedBy != workerID {
		return domain.ErrNotActive
	}
	now := time.Now().UTC()
	j.State = domain.StateCompleted
	j.Result = result
	j.Progress = 100
	j.LastError = nil
	j.ClaimedBy = nil
	j.ClaimedAt = nil
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

func (s *MemoryJobStore) Nack(_ context.Context, id, workerID, errMsg string, retryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.State != domain.StateActive || j.ClaimedBy == nil || *j.ClaimedBy != workerID {
		return domain.ErrNotActive
	}
	j.State = domain.StateFailed
	j.LastError = &errMsg
	j.ReadyAt = retryAt
	j.ClaimedBy = nil
	j.ClaimedAt = nil
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryJobStore) DeadLetter(_ context.Context, id, workerID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.State != domain.StateActive || j.ClaimedBy == nil || *j.ClaimedBy != workerID {
		return domain.ErrNotActive
	}
	now := time.Now().UTC()
	j.State = domain.StateDeadLettered
	j.LastError = &errMsg
	j.ClaimedBy = nil
	j.ClaimedAt = nil
	j.FinishedAt = &now
	j.UpdatedAt = now
	return nil
}

func (s *MemoryJobStore) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !j.State.Claimable() {
		return domain.ErrNotCancellable
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryJobStore) CountByState(_ context.Context, queue string) (map[domain.JobState]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.JobState]int)
	for _, j := range s.jobs {
		if j.Queue == queue {
			counts[j.State]++
		}
	}
	return counts, nil
}

func (s *MemoryJobStore) ReapStale(_ context.Context, cutoff time.Time) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	requeued, dead := 0, 0
	for _, j := range s.jobs {
		if j.State != domain.StateActive || j.ClaimedAt == nil || !j.ClaimedAt.Before(cutoff) {
			continue
		}
		msg := "claim expired: worker presumed dead"
		j.ClaimedBy = nil
		j.ClaimedAt = nil
		j.UpdatedAt = now
		if j.Attempts >= j.MaxAttempts {
			j.State = domain.StateDeadLettered
			if j.LastError == nil {
				j.LastError = &msg
			}
			finished := now
			j.FinishedAt = &finished
			dead++
		} else {
			j.State = domain.StateWaiting
			j.LastError = &msg
			j.ReadyAt = now
			requeued++
		}
	}
	return requeued, dead, nil
}

func (s *MemoryJobStore) DeleteTerminal(_ context.Context, completedBefore, deadBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, j := range s.jobs {
		if j.FinishedAt == nil {
			continue
		}
		switch {
		case j.State == domain.StateCompleted && j.FinishedAt.Before(completedBefore),
			j.State == domain.StateDeadLettered && j.FinishedAt.Before(deadBefore):
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

var _ JobStore = (*MemoryJobStore)(nil)
