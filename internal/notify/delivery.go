package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/notify/adapter"
	"github.com/finflow/finqueue/internal/queue"
)

// DeliveryOutcome is the completion record of a channel delivery job.
type DeliveryOutcome struct {
	Channel   domain.Channel        `json:"channel"`
	Status    domain.DeliveryStatus `json:"status"`
	Attempts  int                   `json:"attempts"`
	Simulated bool                  `json:"simulated,omitempty"`
}

// deliverVia builds the handler for a single-recipient channel (email, sms).
// The recipient address is taken from the payload data under addressKey and
// falls back to the user id, leaving resolution to the provider.
func (s *Service) deliverVia(channel domain.Channel, addressKey string) queue.HandlerFunc {
	return func(ctx context.Context, job *domain.Job, _ queue.ProgressFunc) (any, error) {
		d, err := decodeDelivery(job.Payload)
		if err != nil {
			return nil, err
		}

		recipient := d.UserID
		if v, ok := d.Data[addressKey].(string); ok && v != "" {
			recipient = v
		}

		receipt, err := s.attempt(ctx, job.ID, channel, adapter.Delivery{
			Channel:   channel,
			Recipient: recipient,
			Title:     d.Title,
			Message:   d.Message,
			Data:      d.Data,
		}, d.UserID)
		if err != nil {
			return nil, err
		}
		return DeliveryOutcome{
			Channel:   channel,
			Status:    receipt.Status,
			Attempts:  1,
			Simulated: receipt.Simulated,
		}, nil
	}
}

// handlePush fans a delivery across every active device the user has
// registered. A permanently rejected token is deactivated so it never
// receives another attempt; a user with no devices gets a simulated row so
// the attempt is still visible in history.
func (s *Service) handlePush(ctx context.Context, job *domain.Job, _ queue.ProgressFunc) (any, error) {
	d, err := decodeDelivery(job.Payload)
	if err != nil {
		return nil, err
	}

	devices, err := s.store.ActiveDevices(ctx, d.UserID)
	if err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}

	if len(devices) == 0 {
		note := "no active devices"
		if err := s.record(ctx, &domain.DeliveryResult{
			JobID:   job.ID,
			UserID:  d.UserID,
			Channel: domain.ChannelPush,
			Status:  domain.DeliverySimulated,
			Error:   &note,
		}); err != nil {
			return nil, err
		}
		return DeliveryOutcome{
			Channel: domain.ChannelPush, Status: domain.DeliverySimulated, Simulated: true,
		}, nil
	}

	out := DeliveryOutcome{Channel: domain.ChannelPush, Status: domain.DeliverySent}
	for _, dev := range devices {
		receipt, err := s.attempt(ctx, job.ID, domain.ChannelPush, adapter.Delivery{
			Channel:   domain.ChannelPush,
			Recipient: dev.Token,
			Title:     d.Title,
			Message:   d.Message,
			Data:      d.Data,
		}, d.UserID)
		if err != nil {
			if domain.IsPermanent(err) {
				// Invalid token: retire the device, keep going with the rest.
				if deErr := s.store.DeactivateDevice(ctx, dev.UserID, dev.DeviceID); deErr != nil {
					s.logger.Warn("device deactivation failed",
						zap.String("device_id", dev.DeviceID), zap.Error(deErr))
				}
				continue
			}
			return nil, err
		}

		out.Attempts++
		out.Simulated = out.Simulated || receipt.Simulated
		if err := s.store.TouchDevice(ctx, dev.UserID, dev.DeviceID); err != nil {
			s.logger.Debug("device touch failed",
				zap.String("device_id", dev.DeviceID), zap.Error(err))
		}
	}
	return out, nil
}

// attempt runs one rate-limited provider call and records its delivery row.
// Every attempt leaves a row: success with the receipt status, failure with
// the error before it propagates to the retry machinery.
func (s *Service) attempt(
	ctx context.Context,
	jobID string,
	channel domain.Channel,
	d adapter.Delivery,
	userID string,
) (*adapter.Receipt, error) {
	if err := s.limiter.Wait(ctx, channel); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	ad, ok := s.adapters[channel]
	if !ok {
		return nil, domain.Permanent(fmt.Errorf("no adapter for channel %s", channel))
	}

	receipt, err := ad.Deliver(ctx, d)
	if err != nil {
		msg := err.Error()
		row := &domain.DeliveryResult{
			JobID:   jobID,
			UserID:  userID,
			Channel: channel,
			Status:  domain.DeliveryFailed,
			Error:   &msg,
		}
		if domain.IsPermanent(err) {
			row.Status = domain.DeliveryBounced
		}
		if recErr := s.record(ctx, row); recErr != nil {
			s.logger.Warn("failed delivery row dropped", zap.Error(recErr))
		}
		return nil, err
	}

	row := &domain.DeliveryResult{
		JobID:   jobID,
		UserID:  userID,
		Channel: channel,
		Status:  receipt.Status,
	}
	if receipt.ProviderMsgID != "" {
		row.ProviderMsgID = &receipt.ProviderMsgID
	}
	if receipt.Note != "" {
		row.Error = &receipt.Note
	}
	if err := s.record(ctx, row); err != nil {
		return nil, err
	}
	if receipt.Status == domain.DeliveryDelivered {
		// Provider confirmed synchronously; stamp the row right away.
		if err := s.store.MarkDelivered(ctx, row.ID, time.Now().UTC()); err != nil {
			s.logger.Debug("delivered timestamp dropped", zap.Error(err))
		}
	}
	return receipt, nil
}

func decodeDelivery(raw json.RawMessage) (*domain.ChannelDelivery, error) {
	var d domain.ChannelDelivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, domain.Permanent(fmt.Errorf("decode delivery: %w", err))
	}
	return &d, nil
}
