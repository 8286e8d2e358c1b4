// Package adapter abstracts delivery to external channel providers. Every
// channel gets an Adapter; when no provider is configured the simulator takes
// its place so the pipeline stays exercisable without any external service.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/domain"
)

// Delivery is one message bound for one recipient on one channel.
type Delivery struct {
	Channel   domain.Channel
	Recipient string
	Title     string
	Message   string
	Data      map[string]any
}

// Receipt reports what the provider (or simulator) did with the delivery.
type Receipt struct {
	Status        domain.DeliveryStatus
	ProviderMsgID string
	Simulated     bool
	Note          string
}

// Adapter abstracts one channel's provider. Mocking this interface in tests
// gives full control over provider behaviour without real HTTP calls.
type Adapter interface {
	Deliver(ctx context.Context, d Delivery) (*Receipt, error)
}

// TransportError marks a failure to reach the provider at all, as opposed to
// the provider rejecting the message. Transport failures are eligible for
// simulation fallback.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("provider unreachable: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// New returns the adapter for a channel: a gateway when a provider URL is
// configured, the simulator otherwise.
func New(channel domain.Channel, baseURL string, timeout time.Duration, logger *zap.Logger) Adapter {
	if baseURL == "" {
		logger.Warn("no provider configured, using simulation",
			zap.String("channel", string(channel)))
		return NewSimulator(channel, logger)
	}
	return WithFallback(
		NewGateway(channel, baseURL, timeout),
		NewSimulator(channel, logger),
		logger,
	)
}

// fallback wraps a primary adapter with a simulator. Only transport failures
// fall through: a provider that answered and refused keeps its refusal.
type fallback struct {
	primary   Adapter
	simulator Adapter
	logger    *zap.Logger
}

// WithFallback returns primary with transport-failure fallback to simulator.
func WithFallback(primary, simulator Adapter, logger *zap.Logger) Adapter {
	return &fallback{primary: primary, simulator: simulator, logger: logger}
}

func (f *fallback) Deliver(ctx context.Context, d Delivery) (*Receipt, error) {
	receipt, err := f.primary.Deliver(ctx, d)
	if err == nil {
		return receipt, nil
	}
	if !IsTransport(err) {
		return nil, err
	}

	f.logger.Warn("provider unreachable, falling back to simulation",
		zap.String("channel", string(d.Channel)),
		zap.Error(err),
	)
	receipt, simErr := f.simulator.Deliver(ctx, d)
	if simErr != nil {
		return nil, simErr
	}
	receipt.Note = err.Error()
	return receipt, nil
}
