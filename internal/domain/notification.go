package domain

import "time"

// Channel is the delivery medium for a notification.
type Channel string

const (
	ChannelPush      Channel = "push"
	ChannelEmail     Channel = "email"
	ChannelSMS       Channel = "sms"
	ChannelWebsocket Channel = "websocket"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelPush, ChannelEmail, ChannelSMS, ChannelWebsocket:
		return true
	}
	return false
}

// Queued reports whether delivery goes through a dedicated channel queue.
// The websocket channel is delivered in-process, best-effort, with no queue hop.
func (c Channel) Queued() bool {
	switch c {
	case ChannelPush, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

// DeliveryQueue returns the logical queue a channel sub-job is enqueued to.
func (c Channel) DeliveryQueue() string {
	switch c {
	case ChannelPush:
		return QueuePush
	case ChannelEmail:
		return QueueEmail
	case ChannelSMS:
		return QueueSMS
	}
	return ""
}

// NotificationType is the domain category of a notification.
type NotificationType string

const (
	TypeTransactionAlert NotificationType = "transaction_alert"
	TypeBudgetAlert      NotificationType = "budget_alert"
	TypeInvestmentUpdate NotificationType = "investment_update"
	TypeSecurityAlert    NotificationType = "security_alert"
	TypeMarketNews       NotificationType = "market_news"
	TypePaymentReminder  NotificationType = "payment_reminder"
	TypeGoalMilestone    NotificationType = "goal_milestone"
	TypeSystem           NotificationType = "system"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeTransactionAlert, TypeBudgetAlert, TypeInvestmentUpdate,
		TypeSecurityAlert, TypeMarketNews, TypePaymentReminder,
		TypeGoalMilestone, TypeSystem:
		return true
	}
	return false
}

// NotificationRequest is the logical intent to notify: it expands into
// |recipients| × |enabled channels| delivery attempts.
type NotificationRequest struct {
	Type         NotificationType `json:"type"`
	Title        string           `json:"title"`
	Message      string           `json:"message"`
	Channels     []Channel        `json:"channels"`
	Recipients   []string         `json:"recipients"`
	Data         map[string]any   `json:"data,omitempty"`
	Priority     Priority         `json:"priority,omitempty"`
	ScheduledFor *time.Time       `json:"scheduled_for,omitempty"`
}

func (r *NotificationRequest) Validate() error {
	if r.Type == "" || r.Title == "" || r.Message == "" {
		return ErrMissingContent
	}
	if !r.Type.IsValid() {
		return ErrInvalidType
	}
	if len(r.Channels) == 0 {
		return ErrNoChannels
	}
	for _, ch := range r.Channels {
		if !ch.IsValid() {
			return ErrInvalidChannel
		}
	}
	if len(r.Recipients) == 0 {
		return ErrNoRecipients
	}
	if r.Priority != "" && !r.Priority.IsValid() {
		return ErrInvalidPriority
	}
	return nil
}

// ChannelDelivery is the payload of a per-channel sub-job produced by fan-out.
type ChannelDelivery struct {
	NotificationType NotificationType `json:"notification_type"`
	Title            string           `json:"title"`
	Message          string           `json:"message"`
	Data             map[string]any   `json:"data,omitempty"`
	UserID           string           `json:"user_id"`
	Channel          Channel          `json:"channel"`
}

// DeliveryStatus is the terminal outcome of one delivery attempt.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryBounced   DeliveryStatus = "bounced"
	DeliverySimulated DeliveryStatus = "simulated"
)

// DeliveryResult is one append-only row per (job, recipient, channel) attempt.
// Never mutated after creation except to add delivered_at when the channel
// confirms delivery.
type DeliveryResult struct {
	ID            string         `json:"id"`
	JobID         string         `json:"job_id"`
	UserID        string         `json:"user_id"`
	Channel       Channel        `json:"channel"`
	Status        DeliveryStatus `json:"status"`
	ProviderMsgID *string        `json:"provider_msg_id,omitempty"`
	Error         *string        `json:"error,omitempty"`
	SentAt        time.Time      `json:"sent_at"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty"`
}

// DeviceToken registers a push-capable endpoint. Upserted keyed by
// (user_id, device_id); deactivated, never hard-deleted.
type DeviceToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	IsActive  bool      `json:"is_active"`
	LastUsed  time.Time `json:"last_used"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterDeviceRequest is the inbound payload for device registration.
type RegisterDeviceRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (r *RegisterDeviceRequest) Validate() error {
	if r.UserID == "" || r.DeviceID == "" || r.Token == "" || r.Platform == "" {
		return ErrDeviceFields
	}
	return nil
}
