package domain

import (
	"encoding/json"
	"time"
)

// Logical queue names. Every job type is registered against exactly one queue.
const (
	QueueCalculations  = "calculations"
	QueueReports       = "reports"
	QueueNotifications = "notifications"
	QueuePush          = "notifications:push"
	QueueEmail         = "notifications:email"
	QueueSMS           = "notifications:sms"
)

// Queues lists every logical queue the service processes.
func Queues() []string {
	return []string{
		QueueCalculations, QueueReports, QueueNotifications,
		QueuePush, QueueEmail, QueueSMS,
	}
}

// JobState tracks the lifecycle of a job.
// waiting → active → {completed | failed (retry scheduled) | dead_lettered}.
// A failed job returns to active once its ready_at passes and a worker claims it.
// completed and dead_lettered are terminal.
type JobState string

const (
	StateWaiting      JobState = "waiting"
	StateActive       JobState = "active"
	StateCompleted    JobState = "completed"
	StateFailed       JobState = "failed"
	StateDeadLettered JobState = "dead_lettered"
)

func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateDeadLettered
}

// Claimable reports whether a worker may claim a job in this state
// (subject to its ready_at gate).
func (s JobState) Claimable() bool {
	return s == StateWaiting || s == StateFailed
}

// Priority controls queue ordering. High is claimed first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Weight maps the tier to the integer the store orders by.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// PriorityFromWeight is the inverse of Weight, used when scanning rows.
func PriorityFromWeight(w int) Priority {
	switch w {
	case 2:
		return PriorityHigh
	case 0:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// BackoffKind selects the delay curve between retry attempts.
type BackoffKind string

const (
	BackoffExponential BackoffKind = "exponential"
	BackoffFixed       BackoffKind = "fixed"
)

// maxBackoffDelay caps the computed retry delay so exponential growth
// cannot push a job out weeks into the future.
const maxBackoffDelay = 10 * time.Minute

// BackoffPolicy maps an attempt count to the delay before the next retry
// becomes claimable.
type BackoffPolicy struct {
	Kind      BackoffKind   `json:"kind"`
	BaseDelay time.Duration `json:"base_delay"`
}

// Delay returns the wait after the given (1-based) failed attempt.
// Exponential: base * 2^(attempt-1), capped.
func (b BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.BaseDelay
	if b.Kind == BackoffExponential {
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= maxBackoffDelay {
				return maxBackoffDelay
			}
		}
	}
	if d > maxBackoffDelay {
		return maxBackoffDelay
	}
	return d
}

// Job is a unit of deferred, retryable work tracked through explicit states.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    Priority        `json:"priority"`
	State       JobState        `json:"state"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Backoff     BackoffPolicy   `json:"backoff"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	LastError   *string         `json:"last_error,omitempty"`
	ClaimedBy   *string         `json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
	ReadyAt     time.Time       `json:"ready_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// EnqueueOptions carries the caller-tunable knobs of an enqueue call.
// Zero values select the per-queue defaults.
type EnqueueOptions struct {
	Priority    Priority       `json:"priority,omitempty"`
	Delay       time.Duration  `json:"-"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
	Backoff     *BackoffPolicy `json:"backoff,omitempty"`
}

// Admission statuses reported when a job is accepted.
const (
	AdmissionQueued    = "queued"
	AdmissionScheduled = "scheduled"
)

// Admission reports whether an accepted job is immediately claimable or
// parked until its ready_at passes.
func (j *Job) Admission() string {
	if j.ReadyAt.After(j.CreatedAt) {
		return AdmissionScheduled
	}
	return AdmissionQueued
}

// JobStatus is the externally visible view of a job: the full record minus
// internal claim metadata.
type JobStatus struct {
	JobID      string          `json:"job_id"`
	Queue      string          `json:"queue"`
	Type       string          `json:"type"`
	Status     JobState        `json:"status"`
	Progress   int             `json:"progress"`
	Attempts   int             `json:"attempts"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *string         `json:"error,omitempty"`
	ReadyAt    time.Time       `json:"ready_at"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// StatusView strips claim metadata for the job-status endpoint.
func (j *Job) StatusView() JobStatus {
	return JobStatus{
		JobID:      j.ID,
		Queue:      j.Queue,
		Type:       j.Type,
		Status:     j.State,
		Progress:   j.Progress,
		Attempts:   j.Attempts,
		Result:     j.Result,
		Error:      j.LastError,
		ReadyAt:    j.ReadyAt,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
	}
}
