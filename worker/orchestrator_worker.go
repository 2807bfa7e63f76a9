package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"leadpilot/engine"
)

// OrchestratorWorker drives the orchestrator on a fixed cadence. It owns
// the only loop; the orchestrator itself is tick-per-call.
type OrchestratorWorker struct {
	orchestrator *engine.Orchestrator
	interval     time.Duration
	logger       *logrus.Entry
}

func NewOrchestratorWorker(orch *engine.Orchestrator, interval time.Duration, logger *logrus.Entry) *OrchestratorWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &OrchestratorWorker{
		orchestrator: orch,
		interval:     interval,
		logger:       logger,
	}
}

func (ow *OrchestratorWorker) Start(ctx context.Context) {
	ow.logger.Infof("orchestrator worker started, tick interval %s", ow.interval)

	ticker := time.NewTicker(ow.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ow.logger.Info("orchestrator worker shutting down")
			return
		case <-ticker.C:
			ow.runTick(ctx)
		}
	}
}

func (ow *OrchestratorWorker) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("orchestrator tick panic: %v", r)
			ow.logger.Error(err)
			sentry.CaptureException(err)
		}
	}()

	summary, err := ow.orchestrator.RunTick(ctx)
	if err != nil {
		ow.logger.Errorf("tick failed: %v", err)
		sentry.CaptureException(err)
		return
	}

	sent := 0
	errors := 0
	for _, cr := range summary.Campaigns {
		sent += cr.Outcomes[engine.OutcomeSent]
		errors += cr.Errors
	}
	ow.logger.WithFields(logrus.Fields{
		"campaigns": len(summary.Campaigns),
		"sent":      sent,
		"errors":    errors,
		"duration":  summary.Duration.String(),
	}).Info("tick completed")
}
