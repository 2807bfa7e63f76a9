package channel

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"leadpilot/models"
)

// SimulatorProvider stands in for any channel in SIMULATION mode: it logs
// the would-be send and reports success without touching the network.
// Attempts are still recorded normally so dry runs produce a full audit
// trail.
type SimulatorProvider struct {
	channel string
	logger  *logrus.Entry
}

func NewSimulatorProvider(channel string, logger *logrus.Entry) *SimulatorProvider {
	return &SimulatorProvider{channel: channel, logger: logger}
}

func (p *SimulatorProvider) Name() string { return p.channel }

func (p *SimulatorProvider) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	messageID := "sim-" + uuid.New().String()
	p.logger.WithFields(logrus.Fields{
		"channel":   p.channel,
		"recipient": req.Recipient,
		"subject":   req.Subject,
	}).Info("simulated send")
	return SendResult{
		Success:           true,
		Status:            models.AttemptStatusSent,
		ProviderMessageID: messageID,
	}, nil
}

// NewSimulationRegistry returns a registry where every known channel is a
// simulator.
func NewSimulationRegistry(logger *logrus.Entry) *Registry {
	return NewRegistry(
		NewSimulatorProvider(models.ChannelEmail, logger),
		NewSimulatorProvider(models.ChannelLinkedIn, logger),
		NewSimulatorProvider(models.ChannelWebForm, logger),
	)
}
