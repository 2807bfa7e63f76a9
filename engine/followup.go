package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"leadpilot/models"
	"leadpilot/store"
)

// Transition reports the status change the follow-up engine applied for
// one classified reply.
type Transition struct {
	LeadID         uint
	FromStatus     string
	ToStatus       string
	Classification string
	SalesQualified bool // POSITIVE reply: hand the lead to sales
	HaltedOutreach bool
}

// FollowUpEngine turns reply classifications and no-reply timeouts into
// lead status transitions. It owns all step progression that is not a
// channel fallback.
type FollowUpEngine struct {
	store      store.Store
	classifier *ReplyClassifier
	logger     *logrus.Entry
	now        func() time.Time
}

func NewFollowUpEngine(st store.Store, classifier *ReplyClassifier, logger *logrus.Entry) *FollowUpEngine {
	return &FollowUpEngine{store: st, classifier: classifier, logger: logger, now: time.Now}
}

// WithClock overrides the engine's clock. Tests only.
func (f *FollowUpEngine) WithClock(now func() time.Time) *FollowUpEngine {
	f.now = now
	return f
}

// ProcessInbound classifies the message (if not already classified),
// applies the resulting transition, and marks the message processed.
func (f *FollowUpEngine) ProcessInbound(ctx context.Context, msg *models.InboundMessage) (Transition, error) {
	if msg.Classification == "" {
		cls := f.classifier.Classify(msg.Subject, msg.Body)
		now := f.now()
		msg.Classification = cls.Category
		msg.Confidence = cls.Confidence
		msg.ClassifiedAt = &now
	}

	lead, err := f.store.GetLead(ctx, msg.LeadID)
	if err != nil {
		return Transition{}, fmt.Errorf("load lead %d for inbound %d: %w", msg.LeadID, msg.ID, err)
	}

	transition, err := f.applyClassification(ctx, lead, msg.Classification)
	if err != nil {
		return transition, err
	}

	msg.Processed = true
	if err := f.store.UpdateInbound(ctx, msg); err != nil {
		return transition, err
	}
	return transition, nil
}

func (f *FollowUpEngine) applyClassification(ctx context.Context, lead *models.Lead, classification string) (Transition, error) {
	transition := Transition{
		LeadID:         lead.ID,
		FromStatus:     lead.Status,
		ToStatus:       lead.Status,
		Classification: classification,
	}

	if lead.IsTerminal() {
		// Terminal leads never transition again; the reply is still stored
		// for the audit trail.
		return transition, nil
	}

	switch classification {
	case models.ReplyPositive:
		// Sales-qualified: exit the outreach sequence and stop sending.
		lead.Status = models.LeadStatusRepliedPositive
		lead.SequenceID = ""
		transition.SalesQualified = true
		transition.HaltedOutreach = true

	case models.ReplyNegative:
		lead.Status = models.LeadStatusLost
		transition.HaltedOutreach = true

	case models.ReplyUnsub:
		lead.Status = models.LeadStatusUnsubscribed
		transition.HaltedOutreach = true
		entry := &models.DoNotContact{Email: lead.Email, LeadID: &lead.ID, Reason: "unsubscribe"}
		if err := f.store.AddDoNotContact(ctx, entry); err != nil {
			return transition, err
		}

	case models.ReplyBounce:
		lead.Status = models.LeadStatusSuppressed
		transition.HaltedOutreach = true
		entry := &models.DoNotContact{Email: lead.Email, LeadID: &lead.ID, Reason: "bounce"}
		if err := f.store.AddDoNotContact(ctx, entry); err != nil {
			return transition, err
		}

	case models.ReplyOOO, models.ReplyAutoReply, models.ReplyNeutral, models.ReplyUnknown:
		// Logged, no status change; the sequence continues.
		f.logger.WithFields(logrus.Fields{
			"lead_id":        lead.ID,
			"classification": classification,
		}).Info("reply requires no transition")
		return transition, nil

	default:
		f.logger.Warnf("unknown classification %q for lead %d, treating as neutral", classification, lead.ID)
		return transition, nil
	}

	transition.ToStatus = lead.Status
	if err := f.store.UpdateLead(ctx, lead); err != nil {
		return transition, err
	}
	return transition, nil
}

// CheckTimeouts auto-advances routed leads whose last outreach got no
// reply within the sequence's timeout: on to the next step, or TIMED_OUT
// when the sequence is exhausted. Returns the number of leads advanced.
func (f *FollowUpEngine) CheckTimeouts(ctx context.Context, campaign *models.Campaign, sequences map[string]*models.SequenceConfig) (int, error) {
	leads, err := f.store.ListLeadsByStatus(ctx, campaign.ID, models.LeadStatusRouted, 0)
	if err != nil {
		return 0, err
	}

	advanced := 0
	now := f.now()
	for i := range leads {
		lead := leads[i]
		if lead.LastOutreachAt == nil {
			continue
		}
		seq := sequences[lead.SequenceID]
		if seq == nil {
			continue
		}
		timeout := time.Duration(seq.ReplyTimeoutDays) * 24 * time.Hour
		if now.Sub(*lead.LastOutreachAt) < timeout {
			continue
		}

		// Only advance past a step that was actually sent; a step still in
		// retry/backoff keeps its position.
		step := seq.StepAt(lead.CurrentStep)
		if step != nil && !f.stepSent(ctx, &lead, step) {
			continue
		}

		lead.CurrentStep++
		if seq.StepAt(lead.CurrentStep) == nil {
			lead.Status = models.LeadStatusTimedOut
			f.logger.WithField("lead_id", lead.ID).Info("sequence exhausted without reply")
		} else {
			f.logger.WithFields(logrus.Fields{
				"lead_id": lead.ID,
				"step":    lead.CurrentStep + 1,
			}).Info("no reply, advancing to next step")
		}
		if err := f.store.UpdateLead(ctx, &lead); err != nil {
			return advanced, err
		}
		advanced++
	}
	return advanced, nil
}

func (f *FollowUpEngine) stepSent(ctx context.Context, lead *models.Lead, step *models.SequenceStep) bool {
	attempts, err := f.store.ListAttemptsByLead(ctx, lead.ID)
	if err != nil {
		return false
	}
	for _, a := range attempts {
		if a.StepNumber == step.StepNumber &&
			(a.Status == models.AttemptStatusSent || a.Status == models.AttemptStatusDelivered) {
			return true
		}
	}
	return false
}
