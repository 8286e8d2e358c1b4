package adapter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/domain"
)

// Simulator stands in for an unconfigured or unreachable provider. It logs
// the delivery and reports success with the simulated status so the pipeline
// completes end to end in development and tests.
type Simulator struct {
	channel domain.Channel
	logger  *zap.Logger
}

func NewSimulator(channel domain.Channel, logger *zap.Logger) *Simulator {
	return &Simulator{channel: channel, logger: logger}
}

func (s *Simulator) Deliver(_ context.Context, d Delivery) (*Receipt, error) {
	s.logger.Info("simulated delivery",
		zap.String("channel", string(d.Channel)),
		zap.String("recipient", d.Recipient),
		zap.String("title", d.Title),
		zap.String("message", d.Message),
	)
	return &Receipt{
		Status:        domain.DeliverySimulated,
		ProviderMsgID: fmt.Sprintf("sim-%s", uuid.New().String()[:12]),
		Simulated:     true,
	}, nil
}

var _ Adapter = (*Simulator)(nil)
