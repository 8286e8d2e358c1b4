package repository

import (
	"context"
	"time"

	"github.com/finflow/finqueue/internal/domain"
)

// NotifyStore persists the notification side of the pipeline: the append-only
// delivery log, device tokens, and per-user preferences. All three are keyed
// per user; last-writer-wins on update, no cross-record transactions needed.
type NotifyStore interface {
	// AppendDelivery records one delivery attempt. Rows are never mutated
	// afterwards except through MarkDelivered.
	AppendDelivery(ctx context.Context, d *domain.DeliveryResult) error

	// MarkDelivered sets delivered_at on an existing row when the channel
	// confirms delivery asynchronously.
	MarkDelivered(ctx context.Context, deliveryID string, at time.Time) error

	// CountDeliveries returns attempt counts grouped by channel and status.
	CountDeliveries(ctx context.Context) (map[domain.Channel]map[domain.DeliveryStatus]int, error)

	// ListDeliveries pages through a user's delivery history, newest first.
	ListDeliveries(ctx context.Context, userID string, limit, offset int) ([]*domain.DeliveryResult, int, error)

	// UpsertDevice registers or refreshes a device keyed by (user_id, device_id).
	UpsertDevice(ctx context.Context, t *domain.DeviceToken) error

	// DeactivateDevice flips is_active off; rows are never hard-deleted.
	DeactivateDevice(ctx context.Context, userID, deviceID string) error

	// TouchDevice bumps last_used after a successful push.
	TouchDevice(ctx context.Context, userID, deviceID string) error

	ActiveDevices(ctx context.Context, userID string) ([]*domain.DeviceToken, error)

	// GetPreferences returns ErrNotFound when the user has none yet; callers
	// create defaults lazily.
	GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error)

	SavePreferences(ctx context.Context, p *domain.Preferences) error
}
