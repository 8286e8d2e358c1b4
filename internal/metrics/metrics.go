package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/notify"
	"github.com/finflow/finqueue/internal/queue"
	"github.com/finflow/finqueue/internal/repository"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	JobsEnqueued     *prometheus.CounterVec
	JobsCompleted    *prometheus.CounterVec
	JobsDeadLettered *prometheus.CounterVec
	JobLatency       *prometheus.HistogramVec
	Deliveries       *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs accepted into a queue.",
		}, []string{"queue", "type"}),

		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs acked successfully.",
		}, []string{"queue", "type"}),

		JobsDeadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_dead_lettered_total",
			Help: "Total number of jobs moved to the dead letter state.",
		}, []string{"queue", "type"}),

		JobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_completion_seconds",
			Help:    "Latency from enqueue to successful ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue", "type"}),

		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Delivery attempts recorded, by channel and outcome.",
		}, []string{"channel", "status"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current number of claimable jobs per queue.",
		}, []string{"queue"}),
	}

	reg.MustRegister(
		m.JobsEnqueued,
		m.JobsCompleted,
		m.JobsDeadLettered,
		m.JobLatency,
		m.Deliveries,
		m.QueueDepth,
	)

	return m
}

// QueueHooks returns the callbacks expected by queue.Hooks. Centralises the
// prometheus observation calls so the manager stays metrics-agnostic.
func (m *Metrics) QueueHooks() queue.Hooks {
	return queue.Hooks{
		OnEnqueued: func(queueName, jobType string) {
			m.JobsEnqueued.WithLabelValues(queueName, jobType).Inc()
		},
		OnCompleted: func(queueName, jobType string, latency time.Duration) {
			m.JobsCompleted.WithLabelValues(queueName, jobType).Inc()
			m.JobLatency.WithLabelValues(queueName, jobType).Observe(latency.Seconds())
		},
		OnDeadLettered: func(queueName, jobType string) {
			m.JobsDeadLettered.WithLabelValues(queueName, jobType).Inc()
		},
	}
}

// DeliveryHook returns the callback fed by the notification pipeline for
// every recorded delivery attempt.
func (m *Metrics) DeliveryHook() notify.DeliveryHook {
	return func(ch domain.Channel, status domain.DeliveryStatus) {
		m.Deliveries.WithLabelValues(string(ch), string(status)).Inc()
	}
}

// PollQueueDepth samples claimable job counts on a fixed interval until ctx
// is cancelled. Depth is waiting plus failed: both states are eligible for
// claim once ready_at passes.
func (m *Metrics) PollQueueDepth(ctx context.Context, store repository.JobStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range domain.Queues() {
				counts, err := store.CountByState(ctx, q)
				if err != nil {
					continue
				}
				depth := counts[domain.StateWaiting] + counts[domain.StateFailed]
				m.QueueDepth.WithLabelValues(q).Set(float64(depth))
			}
		}
	}
}
