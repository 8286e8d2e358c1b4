// Package notify implements the notification pipeline: fan-out of logical
// notification requests into per-channel delivery sub-jobs, the channel
// delivery handlers themselves, and the append-only delivery log around them.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/notify/adapter"
	"github.com/finflow/finqueue/internal/queue"
	"github.com/finflow/finqueue/internal/ratelimiter"
	"github.com/finflow/finqueue/internal/repository"
	"github.com/finflow/finqueue/internal/ws"
)

// Job types owned by this package.
const (
	TypeSendNotification      = "send-notification"
	TypeScheduledNotification = "scheduled-notification"
	TypeDeliverPush           = "deliver-push"
	TypeDeliverEmail          = "deliver-email"
	TypeDeliverSMS            = "deliver-sms"
)

// DeliveryHook observes every recorded delivery attempt; injected by main for
// metrics. Nil means no observer.
type DeliveryHook func(channel domain.Channel, status domain.DeliveryStatus)

// Service wires fan-out and delivery around the queue manager. One instance
// serves both the HTTP handlers (Submit, preferences, devices, history) and
// the worker handlers it registers.
type Service struct {
	manager  *queue.Manager
	store    repository.NotifyStore
	hub      *ws.Hub
	adapters map[domain.Channel]adapter.Adapter
	limiter  *ratelimiter.ChannelLimiters
	onRecord DeliveryHook
	logger   *zap.Logger
}

func NewService(
	manager *queue.Manager,
	store repository.NotifyStore,
	hub *ws.Hub,
	adapters map[domain.Channel]adapter.Adapter,
	limiter *ratelimiter.ChannelLimiters,
	onRecord DeliveryHook,
	logger *zap.Logger,
) *Service {
	if onRecord == nil {
		onRecord = func(domain.Channel, domain.DeliveryStatus) {}
	}
	return &Service{
		manager:  manager,
		store:    store,
		hub:      hub,
		adapters: adapters,
		limiter:  limiter,
		onRecord: onRecord,
		logger:   logger,
	}
}

// Register binds the fan-out, scheduling, and per-channel delivery handlers.
func (s *Service) Register(reg *queue.Registry) {
	reg.MustRegister(queue.Definition{
		Type:     TypeSendNotification,
		Queue:    domain.QueueNotifications,
		Validate: validateRequest,
		Handle:   s.handleSend,
	})
	reg.MustRegister(queue.Definition{
		Type:     TypeScheduledNotification,
		Queue:    domain.QueueNotifications,
		Validate: validateRequest,
		Handle:   s.handleScheduled,
	})
	reg.MustRegister(queue.Definition{
		Type:     TypeDeliverPush,
		Queue:    domain.QueuePush,
		Validate: validateDelivery,
		Handle:   s.handlePush,
	})
	reg.MustRegister(queue.Definition{
		Type:     TypeDeliverEmail,
		Queue:    domain.QueueEmail,
		Validate: validateDelivery,
		Handle:   s.deliverVia(domain.ChannelEmail, "email"),
	})
	reg.MustRegister(queue.Definition{
		Type:     TypeDeliverSMS,
		Queue:    domain.QueueSMS,
		Validate: validateDelivery,
		Handle:   s.deliverVia(domain.ChannelSMS, "phone"),
	})
}

func validateRequest(raw json.RawMessage) error {
	var req domain.NotificationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	return req.Validate()
}

func validateDelivery(raw json.RawMessage) error {
	var d domain.ChannelDelivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return err
	}
	if d.UserID == "" || d.Message == "" {
		return domain.ErrMissingContent
	}
	if !d.Channel.Queued() {
		return domain.ErrInvalidChannel
	}
	return nil
}

// Submit is the API entry point. Immediate requests enqueue fan-out directly;
// requests with a future scheduled_for enqueue a delayed scheduling job that
// re-submits when due.
func (s *Service) Submit(ctx context.Context, req *domain.NotificationRequest) (*domain.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	jobType := TypeSendNotification
	opts := domain.EnqueueOptions{Priority: req.Priority}
	if req.ScheduledFor != nil {
		if delay := time.Until(*req.ScheduledFor); delay > 0 {
			jobType = TypeScheduledNotification
			opts.Delay = delay
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return s.manager.Enqueue(ctx, domain.QueueNotifications, jobType, payload, opts)
}

// History pages a user's delivery log, newest first.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]*domain.DeliveryResult, int, error) {
	return s.store.ListDeliveries(ctx, userID, limit, offset)
}

// RegisterDevice upserts a push endpoint for a user.
func (s *Service) RegisterDevice(ctx context.Context, req *domain.RegisterDeviceRequest) (*domain.DeviceToken, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// The stores insert the ID as given; the row key is minted here.
	t := &domain.DeviceToken{
		ID:       uuid.New().String(),
		UserID:   req.UserID,
		DeviceID: req.DeviceID,
		Token:    req.Token,
		Platform: req.Platform,
		IsActive: true,
	}
	if err := s.store.UpsertDevice(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UnregisterDevice deactivates a push endpoint.
func (s *Service) UnregisterDevice(ctx context.Context, userID, deviceID string) error {
	return s.store.DeactivateDevice(ctx, userID, deviceID)
}

// Preferences returns the user's matrix, creating and persisting the default
// one on first access.
func (s *Service) Preferences(ctx context.Context, userID string) (*domain.Preferences, error) {
	p, err := s.store.GetPreferences(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		p = domain.DefaultPreferences(userID)
		if saveErr := s.store.SavePreferences(ctx, p); saveErr != nil {
			return nil, saveErr
		}
		return p, nil
	}
	return p, err
}

// UpdatePreferences overwrites the user's matrix.
func (s *Service) UpdatePreferences(ctx context.Context, p *domain.Preferences) error {
	p.UpdatedAt = time.Now().UTC()
	return s.store.SavePreferences(ctx, p)
}

// DeliveryCounts exposes the channel/status attempt matrix for the stats API.
func (s *Service) DeliveryCounts(ctx context.Context) (map[domain.Channel]map[domain.DeliveryStatus]int, error) {
	return s.store.CountDeliveries(ctx)
}

// record appends one delivery-log row and feeds the metrics hook. Log-append
// failures are reported to the caller: a delivery without its row would break
// the append-only audit property.
func (s *Service) record(ctx context.Context, d *domain.DeliveryResult) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.SentAt.IsZero() {
		d.SentAt = time.Now().UTC()
	}
	if err := s.store.AppendDelivery(ctx, d); err != nil {
		return fmt.Errorf("append delivery log: %w", err)
	}
	s.onRecord(d.Channel, d.Status)
	return nil
}
