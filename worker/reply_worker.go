package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"leadpilot/channel"
	"leadpilot/engine"
	"leadpilot/models"
	"leadpilot/store"
)

// ReplyWorker polls the configured inboxes, correlates replies back to
// leads by sender address, persists them idempotently and hands them to
// the follow-up engine.
type ReplyWorker struct {
	store    store.Store
	followUp *engine.FollowUpEngine
	fetchers []channel.ReplyFetcher
	interval time.Duration
	logger   *logrus.Entry
}

func NewReplyWorker(st store.Store, followUp *engine.FollowUpEngine, fetchers []channel.ReplyFetcher, interval time.Duration, logger *logrus.Entry) *ReplyWorker {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &ReplyWorker{
		store:    st,
		followUp: followUp,
		fetchers: fetchers,
		interval: interval,
		logger:   logger,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	rw.logger.Infof("reply worker started, poll interval %s, %d fetchers", rw.interval, len(rw.fetchers))

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("reply worker shutting down")
			return
		case <-ticker.C:
			rw.poll(ctx)
		}
	}
}

// backlogBatchSize bounds how many stalled messages one poll replays.
const backlogBatchSize = 100

func (rw *ReplyWorker) poll(ctx context.Context) {
	for _, fetcher := range rw.fetchers {
		replies, err := fetcher.FetchUnread(ctx)
		if err != nil {
			rw.logger.Errorf("fetching %s replies failed: %v", fetcher.Provider(), err)
			sentry.CaptureException(err)
			continue
		}
		for _, reply := range replies {
			if err := rw.ingest(ctx, fetcher.Channel(), reply); err != nil {
				rw.logger.WithField("provider_message_id", reply.MessageID).
					Errorf("ingesting reply failed: %v", err)
				sentry.CaptureException(err)
			}
		}
	}
	rw.sweepBacklog(ctx)
}

// sweepBacklog replays stored messages whose follow-up transition failed
// on an earlier poll. ProcessInbound marks a message processed only after
// the transition was applied, so anything still unprocessed is safe to
// run again.
func (rw *ReplyWorker) sweepBacklog(ctx context.Context) {
	backlog, err := rw.store.ListUnprocessedInbound(ctx, backlogBatchSize)
	if err != nil {
		rw.logger.Errorf("listing unprocessed replies failed: %v", err)
		sentry.CaptureException(err)
		return
	}
	for i := range backlog {
		msg := &backlog[i]
		if _, err := rw.followUp.ProcessInbound(ctx, msg); err != nil {
			rw.logger.WithField("inbound_id", msg.ID).
				Errorf("replaying reply failed: %v", err)
			sentry.CaptureException(err)
		}
	}
}

// ingest persists one reply and runs the follow-up transition. Duplicate
// provider message ids are already-ingested replies, not errors.
func (rw *ReplyWorker) ingest(ctx context.Context, channelName string, reply channel.InboundReply) error {
	lead, err := rw.store.FindLeadByEmail(ctx, strings.ToLower(reply.FromEmail))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Not from a known lead; nothing to do.
			rw.logger.Debugf("reply from unknown sender %s dropped", reply.FromEmail)
			return nil
		}
		return err
	}

	msg := &models.InboundMessage{
		CampaignID:        lead.CampaignID,
		LeadID:            lead.ID,
		Channel:           channelName,
		Provider:          reply.Provider,
		ProviderMessageID: reply.MessageID,
		AttemptID:         rw.latestAttemptID(ctx, lead.ID),
		Subject:           reply.Subject,
		Body:              reply.Body,
		ReceivedAt:        reply.ReceivedAt,
	}
	if err := rw.store.CreateInbound(ctx, msg); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil
		}
		return err
	}

	transition, err := rw.followUp.ProcessInbound(ctx, msg)
	if err != nil {
		return err
	}
	rw.logger.WithFields(logrus.Fields{
		"lead_id":        lead.ID,
		"classification": transition.Classification,
		"to_status":      transition.ToStatus,
	}).Info("reply processed")
	return nil
}

// latestAttemptID correlates a reply to the most recent message that went
// out to the lead. Nil when nothing was sent yet or the lookup fails; the
// reply is still ingested, just without the attempt link.
func (rw *ReplyWorker) latestAttemptID(ctx context.Context, leadID uint) *uint {
	attempts, err := rw.store.ListAttemptsByLead(ctx, leadID)
	if err != nil {
		rw.logger.Warnf("listing attempts for lead %d failed: %v", leadID, err)
		return nil
	}
	for i := len(attempts) - 1; i >= 0; i-- {
		switch attempts[i].Status {
		case models.AttemptStatusSent, models.AttemptStatusDelivered:
			return &attempts[i].ID
		}
	}
	return nil
}
