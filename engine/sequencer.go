package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"leadpilot/channel"
	"leadpilot/models"
	"leadpilot/safety"
	"leadpilot/store"
)

// Step outcomes returned to the orchestrator. All expected failure modes
// are statuses, not errors; RunStep only errors on storage faults.
const (
	OutcomeSent             = "SENT"             // provider accepted the message
	OutcomeSkipped          = "SKIPPED"          // guard denial recorded as a SKIPPED attempt
	OutcomeDeduped          = "DEDUPED"          // idempotency key already sent; nothing done
	OutcomeWaitingRetry     = "WAITING_RETRY"    // backoff not yet elapsed
	OutcomeWaitingReply     = "WAITING_REPLY"    // step sent, progression owned by follow-up
	OutcomeRetryScheduled   = "RETRY_SCHEDULED"  // transient failure, same step retried later
	OutcomeFallback         = "FALLBACK"         // retries exhausted, advanced to next channel
	OutcomeSuppressed       = "SUPPRESSED"       // permanent rejection, lead aborted
	OutcomeSequenceComplete = "SEQUENCE_COMPLETE"
)

// StepResult reports what one sequencer pass did for one lead.
type StepResult struct {
	Outcome    string
	StepNumber int
	Channel    string
	Attempt    *models.OutreachAttempt
	Detail     string
}

// Sequencer executes one sequence step per lead per tick: guard checks,
// idempotent provider call, retry/backoff bookkeeping, and channel
// fallback. Step progression on success belongs to the follow-up engine.
type Sequencer struct {
	store    store.Store
	renderer Renderer
	logger   *logrus.Entry
	now      func() time.Time
}

func NewSequencer(st store.Store, renderer Renderer, logger *logrus.Entry) *Sequencer {
	return &Sequencer{store: st, renderer: renderer, logger: logger, now: time.Now}
}

// WithClock overrides the sequencer's clock. Tests only.
func (s *Sequencer) WithClock(now func() time.Time) *Sequencer {
	s.now = now
	return s
}

// RunStep advances the lead's current sequence step by at most one send
// attempt. The registry decides which providers actually deliver (live or
// simulation).
func (s *Sequencer) RunStep(
	ctx context.Context,
	guard *safety.Guard,
	registry *channel.Registry,
	campaign *models.Campaign,
	lead *models.Lead,
	seq *models.SequenceConfig,
) (StepResult, error) {
	step := seq.StepAt(lead.CurrentStep)
	if step == nil {
		return StepResult{Outcome: OutcomeSequenceComplete, StepNumber: lead.CurrentStep}, nil
	}

	result := StepResult{StepNumber: step.StepNumber, Channel: step.Channel}

	subject, body, err := s.renderer.Render(step.TemplateRef, lead)
	if err != nil {
		return result, fmt.Errorf("render step %d for lead %d: %w", step.StepNumber, lead.ID, err)
	}
	key := models.IdempotencyKey(body, step.StepNumber, lead.ID)

	attempt, err := s.store.GetAttemptByKey(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return result, err
	}

	if attempt != nil {
		switch attempt.Status {
		case models.AttemptStatusSent, models.AttemptStatusDelivered:
			// Re-run with identical lead/step/content: never send twice.
			result.Outcome = OutcomeDeduped
			result.Attempt = attempt
			return result, nil
		case models.AttemptStatusBounced:
			result.Outcome = OutcomeSuppressed
			result.Attempt = attempt
			return result, nil
		case models.AttemptStatusFailed:
			if attempt.NextRetryAt == nil {
				// Retries exhausted on this channel; fall through to the
				// next one in the sequence.
				return s.fallback(ctx, lead, attempt, result)
			}
			if attempt.NextRetryAt.After(s.now()) {
				result.Outcome = OutcomeWaitingRetry
				result.Attempt = attempt
				return result, nil
			}
		}
	}

	// Guard predicates before every attempt. Denial does not advance the
	// step pointer; the step is retried on the next tick.
	contactDecision, err := guard.IsContactAllowed(ctx, lead)
	if err != nil {
		return result, err
	}
	if !contactDecision.Allowed {
		return s.recordSkip(ctx, campaign, lead, step, key, attempt, contactDecision, result)
	}
	sendDecision, err := guard.CanSendNow(ctx, step.Channel)
	if err != nil {
		return result, err
	}
	if !sendDecision.Allowed {
		return s.recordSkip(ctx, campaign, lead, step, key, attempt, sendDecision, result)
	}

	provider, err := registry.Get(step.Channel)
	if err != nil {
		return result, err
	}

	recipient := recipientFor(lead, step.Channel)
	if recipient == "" {
		// Lead cannot be reached on this channel at all; treat it like an
		// exhausted channel and fall back.
		attempt, err = s.ensureAttempt(ctx, campaign, lead, step, key, attempt)
		if err != nil {
			return result, err
		}
		attempt.Status = models.AttemptStatusFailed
		attempt.NextRetryAt = nil
		attempt.ErrorMessage = "lead has no contact field for channel " + step.Channel
		if err := s.store.UpdateAttempt(ctx, attempt); err != nil {
			return result, err
		}
		return s.fallback(ctx, lead, attempt, result)
	}

	// Claim a counter slot atomically; losing the race to a concurrent
	// worker is a normal skip.
	reserved, err := guard.Reserve(ctx, step.Channel)
	if err != nil {
		return result, err
	}
	if !reserved {
		return s.recordSkip(ctx, campaign, lead, step, key, attempt,
			safety.Decision{Reason: models.SkipReasonSafetyLimit, Detail: "capacity raced away"}, result)
	}

	attempt, err = s.ensureAttempt(ctx, campaign, lead, step, key, attempt)
	if err != nil {
		return result, err
	}

	if err := s.startWarmupClock(ctx, guard, step.Channel); err != nil {
		s.logger.Warnf("could not stamp warmup start for channel %s: %v", step.Channel, err)
	}

	timeout := 30 * time.Second
	if cc := guard.ChannelConfig(step.Channel); cc != nil && cc.SendTimeoutSeconds > 0 {
		timeout = time.Duration(cc.SendTimeoutSeconds) * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sendResult, sendErr := provider.Send(sendCtx, channel.SendRequest{
		Recipient:      recipient,
		Subject:        subject,
		Body:           body,
		IdempotencyKey: key,
	})

	switch {
	case sendErr != nil:
		// Transient failure (network, timeout, provider 5xx): retry with
		// backoff on the same step, falling back once retries exhaust.
		return s.handleTransient(ctx, guard, lead, step, attempt, sendErr, result)

	case sendResult.Permanent:
		return s.handlePermanent(ctx, lead, attempt, sendResult, result)

	case sendResult.Success:
		now := s.now()
		attempt.Status = sendResult.Status
		attempt.ProviderMessageID = sendResult.ProviderMessageID
		attempt.ErrorMessage = ""
		attempt.SentAt = &now
		attempt.NextRetryAt = nil
		if err := s.store.UpdateAttempt(ctx, attempt); err != nil {
			return result, err
		}
		lead.LastOutreachAt = &now
		if err := s.store.UpdateLead(ctx, lead); err != nil {
			return result, err
		}
		result.Outcome = OutcomeSent
		result.Attempt = attempt
		return result, nil

	default:
		// Provider refused without a permanent signal; same path as a
		// transient failure.
		return s.handleTransient(ctx, guard, lead, step, attempt,
			errors.New(sendResult.ErrorMessage), result)
	}
}

// ensureAttempt returns the existing attempt for the key or creates the
// PENDING record. A duplicate-key race means another worker holds the
// attempt; re-read it.
func (s *Sequencer) ensureAttempt(
	ctx context.Context,
	campaign *models.Campaign,
	lead *models.Lead,
	step *models.SequenceStep,
	key string,
	existing *models.OutreachAttempt,
) (*models.OutreachAttempt, error) {
	if existing != nil {
		return existing, nil
	}
	attempt := &models.OutreachAttempt{
		CampaignID:     campaign.ID,
		LeadID:         lead.ID,
		Channel:        step.Channel,
		StepNumber:     step.StepNumber,
		IdempotencyKey: key,
		Status:         models.AttemptStatusPending,
	}
	err := s.store.CreateAttempt(ctx, attempt)
	if errors.Is(err, store.ErrDuplicate) {
		return s.store.GetAttemptByKey(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *Sequencer) recordSkip(
	ctx context.Context,
	campaign *models.Campaign,
	lead *models.Lead,
	step *models.SequenceStep,
	key string,
	existing *models.OutreachAttempt,
	decision safety.Decision,
	result StepResult,
) (StepResult, error) {
	result.Outcome = OutcomeSkipped
	result.Detail = decision.Detail

	if existing != nil {
		// The audit record already exists from an earlier pass; denial
		// changes nothing.
		result.Attempt = existing
		return result, nil
	}

	attempt := &models.OutreachAttempt{
		CampaignID:     campaign.ID,
		LeadID:         lead.ID,
		Channel:        step.Channel,
		StepNumber:     step.StepNumber,
		IdempotencyKey: key,
		Status:         models.AttemptStatusSkipped,
		SkipReason:     decision.Reason,
		ErrorMessage:   decision.Detail,
	}
	err := s.store.CreateAttempt(ctx, attempt)
	if errors.Is(err, store.ErrDuplicate) {
		attempt, err = s.store.GetAttemptByKey(ctx, key)
	}
	if err != nil {
		return result, err
	}
	result.Attempt = attempt
	return result, nil
}

func (s *Sequencer) handleTransient(
	ctx context.Context,
	guard *safety.Guard,
	lead *models.Lead,
	step *models.SequenceStep,
	attempt *models.OutreachAttempt,
	sendErr error,
	result StepResult,
) (StepResult, error) {
	attempt.RetryCount++
	attempt.Status = models.AttemptStatusFailed
	attempt.ErrorMessage = sendErr.Error()

	maxRetries := step.MaxRetries
	if cc := guard.ChannelConfig(step.Channel); maxRetries == 0 && cc != nil {
		maxRetries = cc.MaxRetries
	}

	if attempt.RetryCount < maxRetries {
		backoff := 24 * time.Hour
		if cc := guard.ChannelConfig(step.Channel); cc != nil {
			backoff = cc.Backoff(attempt.RetryCount - 1)
		}
		next := s.now().Add(backoff)
		attempt.NextRetryAt = &next
		if err := s.store.UpdateAttempt(ctx, attempt); err != nil {
			return result, err
		}
		result.Outcome = OutcomeRetryScheduled
		result.Attempt = attempt
		return result, nil
	}

	// Retries exhausted: terminal failure on this channel, fall back to
	// the next one in the sequence.
	attempt.NextRetryAt = nil
	if err := s.store.UpdateAttempt(ctx, attempt); err != nil {
		return result, err
	}
	return s.fallback(ctx, lead, attempt, result)
}

func (s *Sequencer) handlePermanent(
	ctx context.Context,
	lead *models.Lead,
	attempt *models.OutreachAttempt,
	sendResult channel.SendResult,
	result StepResult,
) (StepResult, error) {
	attempt.Status = models.AttemptStatusBounced
	attempt.ErrorMessage = sendResult.ErrorMessage
	attempt.NextRetryAt = nil
	if err := s.store.UpdateAttempt(ctx, attempt); err != nil {
		return result, err
	}

	// Bounce/unsubscribe-class rejection: suppress immediately and stop
	// the whole sequence for this lead.
	lead.Status = models.LeadStatusSuppressed
	if err := s.store.UpdateLead(ctx, lead); err != nil {
		return result, err
	}
	entry := &models.DoNotContact{
		Email:  lead.Email,
		LeadID: &lead.ID,
		Reason: "bounce",
	}
	if err := s.store.AddDoNotContact(ctx, entry); err != nil {
		return result, err
	}

	result.Outcome = OutcomeSuppressed
	result.Attempt = attempt
	return result, nil
}

// fallback moves the lead's step pointer to the next channel in the
// sequence; retry count starts fresh there because the next step is a new
// attempt record.
func (s *Sequencer) fallback(ctx context.Context, lead *models.Lead, attempt *models.OutreachAttempt, result StepResult) (StepResult, error) {
	lead.CurrentStep++
	if err := s.store.UpdateLead(ctx, lead); err != nil {
		return result, err
	}
	result.Outcome = OutcomeFallback
	result.Attempt = attempt
	return result, nil
}

// startWarmupClock stamps the channel's first-send time so the warmup
// curve has a day-one anchor. The guard arbitrates the stamp across the
// campaign's concurrent lead workers; only the winner persists.
func (s *Sequencer) startWarmupClock(ctx context.Context, guard *safety.Guard, channelName string) error {
	if !guard.StampWarmupStart(channelName, s.now()) {
		return nil
	}
	return s.store.SaveSafetySettings(ctx, guard.Settings())
}

// recipientFor picks the contact field matching the channel.
func recipientFor(lead *models.Lead, channelName string) string {
	switch channelName {
	case models.ChannelEmail:
		return lead.Email
	case models.ChannelLinkedIn:
		return lead.SocialHandle
	case models.ChannelWebForm:
		return lead.FormURL
	default:
		return ""
	}
}
