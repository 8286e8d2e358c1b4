package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/queue"
	"github.com/finflow/finqueue/internal/ws"
)

// FanOutResult is the completion record of a send-notification job.
type FanOutResult struct {
	Recipients int `json:"recipients"`
	Enqueued   int `json:"deliveries_enqueued"`
	Websocket  int `json:"websocket_delivered"`
	Skipped    int `json:"skipped_by_preference"`
}

// handleSend expands one logical request into per-channel sub-jobs, applying
// each recipient's preference matrix. Websocket delivery happens inline
// through the hub; the queued channels get one sub-job per (recipient,
// channel) pair on their own queue.
//
// Fan-out is at-least-once: a retry after a partial enqueue failure may
// produce duplicate sub-jobs, which the channel handlers tolerate as extra
// delivery-log rows rather than corrupted state.
func (s *Service) handleSend(ctx context.Context, job *domain.Job, _ queue.ProgressFunc) (any, error) {
	var req domain.NotificationRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		return nil, domain.Permanent(fmt.Errorf("decode request: %w", err))
	}

	amount := amountFrom(req.Data)
	out := FanOutResult{Recipients: len(req.Recipients)}

	for _, userID := range req.Recipients {
		prefs, err := s.Preferences(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load preferences for %s: %w", userID, err)
		}

		for _, ch := range req.Channels {
			if !prefs.Allows(req.Type, ch, amount) {
				out.Skipped++
				continue
			}

			if ch == domain.ChannelWebsocket {
				out.Websocket += s.publishInline(ctx, job.ID, userID, &req)
				continue
			}

			payload, err := json.Marshal(domain.ChannelDelivery{
				NotificationType: req.Type,
				Title:            req.Title,
				Message:          req.Message,
				Data:             req.Data,
				UserID:           userID,
				Channel:          ch,
			})
			if err != nil {
				return nil, domain.Permanent(fmt.Errorf("marshal delivery: %w", err))
			}

			if _, err := s.manager.Enqueue(ctx, ch.DeliveryQueue(), deliveryType(ch), payload,
				domain.EnqueueOptions{Priority: req.Priority},
			); err != nil {
				return nil, fmt.Errorf("enqueue %s delivery: %w", ch, err)
			}
			out.Enqueued++
		}
	}

	s.logger.Info("notification fanned out",
		zap.String("job_id", job.ID),
		zap.String("type", string(req.Type)),
		zap.Int("recipients", out.Recipients),
		zap.Int("enqueued", out.Enqueued),
		zap.Int("skipped", out.Skipped),
	)
	return out, nil
}

// handleScheduled fires when a delayed scheduling job becomes visible: it
// re-submits the request as an immediate send so fan-out runs on the main
// notifications path.
func (s *Service) handleScheduled(ctx context.Context, job *domain.Job, _ queue.ProgressFunc) (any, error) {
	var req domain.NotificationRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		return nil, domain.Permanent(fmt.Errorf("decode request: %w", err))
	}
	req.ScheduledFor = nil

	payload, err := json.Marshal(&req)
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("marshal request: %w", err))
	}
	sent, err := s.manager.Enqueue(ctx, domain.QueueNotifications, TypeSendNotification, payload,
		domain.EnqueueOptions{Priority: req.Priority})
	if err != nil {
		return nil, fmt.Errorf("enqueue send: %w", err)
	}
	return map[string]string{"send_job_id": sent.ID}, nil
}

// publishInline pushes the frame to the user's open sockets and records a
// delivery row when at least one session got it. A disconnected user is not
// an error: websocket is best effort on top of the durable channels.
func (s *Service) publishInline(ctx context.Context, jobID, userID string, req *domain.NotificationRequest) int {
	n := s.hub.Publish(ctx, userID, ws.Frame{
		Type:    string(req.Type),
		Title:   req.Title,
		Message: req.Message,
		Data:    req.Data,
	})
	if n == 0 {
		return 0
	}
	if err := s.record(ctx, &domain.DeliveryResult{
		JobID:   jobID,
		UserID:  userID,
		Channel: domain.ChannelWebsocket,
		Status:  domain.DeliverySent,
	}); err != nil {
		s.logger.Warn("websocket delivery row dropped", zap.Error(err))
	}
	return n
}

func deliveryType(ch domain.Channel) string {
	switch ch {
	case domain.ChannelPush:
		return TypeDeliverPush
	case domain.ChannelEmail:
		return TypeDeliverEmail
	case domain.ChannelSMS:
		return TypeDeliverSMS
	}
	return ""
}

// amountFrom pulls the monetary amount out of the free-form data map for
// threshold checks. Missing or non-numeric means no threshold applies.
func amountFrom(data map[string]any) float64 {
	if data == nil {
		return 0
	}
	if v, ok := data["amount"].(float64); ok {
		return v
	}
	return 0
}
