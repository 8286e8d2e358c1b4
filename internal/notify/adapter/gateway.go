package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/finflow/finqueue/internal/domain"
)

// sendRequest is the JSON body posted to the external provider.
type sendRequest struct {
	To      string         `json:"to"`
	Channel string         `json:"channel"`
	Title   string         `json:"title,omitempty"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// sendResponse maps the provider's acknowledgement body.
type sendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// Gateway delivers over HTTP to a channel provider endpoint. The base URL is
// injected from config so tests can point to a local mock.
type Gateway struct {
	channel    domain.Channel
	baseURL    string
	httpClient *http.Client
}

func NewGateway(channel domain.Channel, baseURL string, timeout time.Duration) *Gateway {
	return &Gateway{
		channel: channel,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Deliver posts the delivery to the provider. Status mapping:
// 2xx is accepted, 4xx is a permanent rejection (retrying the same payload
// cannot succeed), anything else is transient.
func (g *Gateway) Deliver(ctx context.Context, d Delivery) (*Receipt, error) {
	body, err := json.Marshal(sendRequest{
		To:      d.Recipient,
		Channel: string(d.Channel),
		Title:   d.Title,
		Message: d.Message,
		Data:    d.Data,
	})
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var ack sendResponse
		// An unparseable body on a 2xx is tolerated: the provider accepted.
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&ack)
		status := domain.DeliverySent
		if ack.Status == "delivered" {
			status = domain.DeliveryDelivered
		}
		return &Receipt{Status: status, ProviderMsgID: ack.MessageID}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, domain.Permanent(fmt.Errorf("provider rejected delivery: status %d", resp.StatusCode))

	default:
		return nil, fmt.Errorf("unexpected provider status: %d", resp.StatusCode)
	}
}

var _ Adapter = (*Gateway)(nil)
