package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finflow/finqueue/internal/domain"
)

type pgNotifyStore struct {
	pool *pgxpool.Pool
}

// NewPgNotifyStore returns a NotifyStore backed by PostgreSQL.
func NewPgNotifyStore(pool *pgxpool.Pool) NotifyStore {
	return &pgNotifyStore{pool: pool}
}

func (s *pgNotifyStore) AppendDelivery(ctx context.Context, d *domain.DeliveryResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO delivery_log
			(id, job_id, user_id, channel, status, provider_msg_id, error, sent_at, delivered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		d.ID, d.JobID, d.UserID, d.Channel, d.Status,
		d.ProviderMsgID, d.Error, d.SentAt, d.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("append delivery: %w", err)
	}
	return nil
}

func (s *pgNotifyStore) MarkDelivered(ctx context.Context, deliveryID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE delivery_log SET delivered_at = $1, status = 'delivered'
		WHERE id = $2 AND delivered_at IS NULL`, at, deliveryID)
	return err
}

func (s *pgNotifyStore) CountDeliveries(ctx context.Context) (map[domain.Channel]map[domain.DeliveryStatus]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT channel, status, COUNT(*) FROM delivery_log GROUP BY channel, status`)
	if err != nil {
		return nil, fmt.Errorf("count deliveries: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Channel]map[domain.DeliveryStatus]int)
	for rows.Next() {
		var channel, status string
		var n int
		if err := rows.Scan(&channel, &status, &n); err != nil {
			return nil, err
		}
		ch := domain.Channel(channel)
		if counts[ch] == nil {
			counts[ch] = make(map[domain.DeliveryStatus]int)
		}
		counts[ch][domain.DeliveryStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *pgNotifyStore) ListDeliveries(ctx context.Context, userID string, limit, offset int) ([]*domain.DeliveryResult, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM delivery_log WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count user deliveries: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, user_id, channel, status, provider_msg_id, error, sent_at, delivered_at
		FROM delivery_log
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var results []*domain.DeliveryResult
	for rows.Next() {
		var d domain.DeliveryResult
		var channel, status string
		if err := rows.Scan(&d.ID, &d.JobID, &d.UserID, &channel, &status,
			&d.ProviderMsgID, &d.Error, &d.SentAt, &d.DeliveredAt); err != nil {
			return nil, 0, err
		}
		d.Channel = domain.Channel(channel)
		d.Status = domain.DeliveryStatus(status)
		results = append(results, &d)
	}
	return results, total, rows.Err()
}

func (s *pgNotifyStore) UpsertDevice(ctx context.Context, t *domain.DeviceToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO device_tokens
			(id, user_id, device_id, token, platform, is_active, last_used, created_at)
		VALUES ($1,$2,$3,$4,$5,TRUE,now(),now())
		ON CONFLICT (user_id, device_id) DO UPDATE
		SET token = EXCLUDED.token, platform = EXCLUDED.platform,
		    is_active = TRUE, last_used = now()`,
		t.ID, t.UserID, t.DeviceID, t.Token, t.Platform,
	)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

func (s *pgNotifyStore) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE device_tokens SET is_active = FALSE
		WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
	if err != nil {
		return fmt.Errorf("deactivate device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *pgNotifyStore) TouchDevice(ctx context.Context, userID, deviceID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE device_tokens SET last_used = now()
		WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
	return err
}

func (s *pgNotifyStore) ActiveDevices(ctx context.Context, userID string) ([]*domain.DeviceToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, device_id, token, platform, is_active, last_used, created_at
		FROM device_tokens
		WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return nil, fmt.Errorf("active devices: %w", err)
	}
	defer rows.Close()

	var devices []*domain.DeviceToken
	for rows.Next() {
		var t domain.DeviceToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.DeviceID, &t.Token, &t.Platform,
			&t.IsActive, &t.LastUsed, &t.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, &t)
	}
	return devices, rows.Err()
}

func (s *pgNotifyStore) GetPreferences(ctx context.Context, userID string) (*domain.Preferences, error) {
	var (
		raw       []byte
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT prefs, updated_at FROM notification_preferences
		WHERE user_id = $1`, userID).Scan(&raw, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	var types map[domain.NotificationType]domain.ChannelPrefs
	if err := json.Unmarshal(raw, &types); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return &domain.Preferences{UserID: userID, Types: types, UpdatedAt: updatedAt}, nil
}

func (s *pgNotifyStore) SavePreferences(ctx context.Context, p *domain.Preferences) error {
	raw, err := json.Marshal(p.Types)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO notification_preferences (user_id, prefs, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET prefs = EXCLUDED.prefs, updated_at = now()`,
		p.UserID, raw,
	)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
