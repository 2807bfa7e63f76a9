package engine

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpilot/models"
	"leadpilot/store"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func newFollowUpFixture(t *testing.T) (*store.MemoryStore, *FollowUpEngine, *models.Lead) {
	t.Helper()
	st := store.NewMemoryStore()
	lead := &models.Lead{
		CampaignID: 1,
		Email:      "jane@acme.com",
		Status:     models.LeadStatusRouted,
		SequenceID: "regular-nurture",
	}
	require.NoError(t, st.CreateLead(context.Background(), lead))
	engine := NewFollowUpEngine(st, NewReplyClassifier(), testLogger())
	return st, engine, lead
}

func inboundFor(lead *models.Lead, subject, body string) *models.InboundMessage {
	return &models.InboundMessage{
		CampaignID:        lead.CampaignID,
		LeadID:            lead.ID,
		Channel:           models.ChannelEmail,
		Provider:          "imap",
		ProviderMessageID: "msg-" + subject,
		Subject:           subject,
		Body:              body,
		ReceivedAt:        time.Now(),
	}
}

func TestProcessInboundPositiveHandsLeadToSales(t *testing.T) {
	st, engine, lead := newFollowUpFixture(t)
	ctx := context.Background()

	msg := inboundFor(lead, "Re: Quick question", "Sounds good, let's schedule a call.")
	require.NoError(t, st.CreateInbound(ctx, msg))

	transition, err := engine.ProcessInbound(ctx, msg)
	require.NoError(t, err)

	assert.Equal(t, models.ReplyPositive, transition.Classification)
	assert.Equal(t, models.LeadStatusRouted, transition.FromStatus)
	assert.Equal(t, models.LeadStatusRepliedPositive, transition.ToStatus)
	assert.True(t, transition.SalesQualified)
	assert.True(t, transition.HaltedOutreach)

	updated, err := st.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusRepliedPositive, updated.Status)
	assert.Empty(t, updated.SequenceID, "positive reply must exit the sequence")

	assert.True(t, msg.Processed)
	assert.Equal(t, models.ReplyPositive, msg.Classification)
	assert.NotNil(t, msg.ClassifiedAt)
}

func TestProcessInboundNegativeMarksLost(t *testing.T) {
	st, engine, lead := newFollowUpFixture(t)
	ctx := context.Background()

	msg := inboundFor(lead, "Re: Quick question", "Not interested, please don't follow up.")
	require.NoError(t, st.CreateInbound(ctx, msg))

	transition, err := engine.ProcessInbound(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusLost, transition.ToStatus)
	assert.False(t, transition.SalesQualified)
	assert.True(t, transition.HaltedOutreach)
}

func TestProcessInboundUnsubscribeBlocksContact(t *testing.T) {
	st, engine, lead := newFollowUpFixture(t)
	ctx := context.Background()

	msg := inboundFor(lead, "Re: Quick question", "Please remove me from your list.")
	require.NoError(t, st.CreateInbound(ctx, msg))

	transition, err := engine.ProcessInbound(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusUnsubscribed, transition.ToStatus)

	blocked, err := st.IsBlocked(ctx, lead.Email, lead.EmailDomain(), lead.ID)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestProcessInboundBounceSuppresses(t *testing.T) {
	st, engine, lead := newFollowUpFixture(t)
	ctx := context.Background()

	msg := inboundFor(lead, "Delivery Status Notification", "550 5.1.1 user unknown")
	require.NoError(t, st.CreateInbound(ctx, msg))

	transition, err := engine.ProcessInbound(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyBounce, transition.Classification)
	assert.Equal(t, models.LeadStatusSuppressed, transition.ToStatus)

	blocked, err := st.IsBlocked(ctx, lead.Email, lead.EmailDomain(), lead.ID)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestProcessInboundNeutralKeepsSequenceRunning(t *testing.T) {
	st, engine, lead := newFollowUpFixture(t)
	ctx := context.Background()

	for _, body := range []string{
		"I am out of office until Monday.",
		"Automatic reply: do not reply to this address.",
		"Who is this?",
	} {
		msg := inboundFor(lead, "Re: "+body, body)
		require.NoError(t, st.CreateInbound(ctx, msg))

		transition, err := engine.ProcessInbound(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, models.LeadStatusRouted, transition.ToStatus, "body %q", body)
		assert.False(t, transition.HaltedOutreach)
		assert.True(t, msg.Processed)
	}

	updated, err := st.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusRouted, updated.Status)
	assert.Equal(t, "regular-nurture", updated.SequenceID)
}

func TestProcessInboundTerminalLeadNeverTransitions(t *testing.T) {
	st, engine, lead := newFollowUpFixture(t)
	ctx := context.Background()

	lead.Status = models.LeadStatusUnsubscribed
	require.NoError(t, st.UpdateLead(ctx, lead))

	msg := inboundFor(lead, "Re: one more thing", "Actually I'm interested, let's talk.")
	require.NoError(t, st.CreateInbound(ctx, msg))

	transition, err := engine.ProcessInbound(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusUnsubscribed, transition.FromStatus)
	assert.Equal(t, models.LeadStatusUnsubscribed, transition.ToStatus)
	assert.False(t, transition.SalesQualified)
	// The reply is still kept for the audit trail.
	assert.True(t, msg.Processed)
}

func TestProcessInboundPreClassifiedMessageIsNotReclassified(t *testing.T) {
	st, engine, lead := newFollowUpFixture(t)
	ctx := context.Background()

	msg := inboundFor(lead, "anything", "anything at all")
	msg.Classification = models.ReplyNegative
	msg.Confidence = 1.0
	require.NoError(t, st.CreateInbound(ctx, msg))

	transition, err := engine.ProcessInbound(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyNegative, transition.Classification)
	assert.Equal(t, models.LeadStatusLost, transition.ToStatus)
}

// ---------- no-reply timeouts ----------

func timeoutFixture(t *testing.T) (*store.MemoryStore, *FollowUpEngine, *models.Campaign, map[string]*models.SequenceConfig, time.Time) {
	t.Helper()
	st := store.NewMemoryStore()
	campaign := &models.Campaign{Name: "q2-outbound", Status: models.CampaignStatusActive}
	require.NoError(t, st.CreateCampaign(context.Background(), campaign))

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	engine := NewFollowUpEngine(st, NewReplyClassifier(), testLogger()).
		WithClock(func() time.Time { return now })

	sequences := map[string]*models.SequenceConfig{
		"regular-nurture": {
			Name:             "regular-nurture",
			ReplyTimeoutDays: 3,
			Steps: []models.SequenceStep{
				{StepNumber: 1, Channel: models.ChannelEmail, TemplateRef: "intro"},
				{StepNumber: 2, Channel: models.ChannelLinkedIn, TemplateRef: "follow-up"},
			},
		},
	}
	return st, engine, campaign, sequences, now
}

func routedLead(t *testing.T, st *store.MemoryStore, campaignID uint, step int, lastOutreach time.Time) *models.Lead {
	t.Helper()
	lead := &models.Lead{
		CampaignID:     campaignID,
		Email:          "lead@acme.com",
		Status:         models.LeadStatusRouted,
		SequenceID:     "regular-nurture",
		CurrentStep:    step,
		LastOutreachAt: &lastOutreach,
	}
	require.NoError(t, st.CreateLead(context.Background(), lead))
	return lead
}

func sentAttempt(t *testing.T, st *store.MemoryStore, lead *models.Lead, stepNumber int) {
	t.Helper()
	require.NoError(t, st.CreateAttempt(context.Background(), &models.OutreachAttempt{
		CampaignID:     lead.CampaignID,
		LeadID:         lead.ID,
		Channel:        models.ChannelEmail,
		StepNumber:     stepNumber,
		IdempotencyKey: models.IdempotencyKey("body", stepNumber, lead.ID),
		Status:         models.AttemptStatusSent,
	}))
}

func TestCheckTimeoutsAdvancesUnansweredStep(t *testing.T) {
	st, engine, campaign, sequences, now := timeoutFixture(t)
	ctx := context.Background()

	lead := routedLead(t, st, campaign.ID, 0, now.Add(-4*24*time.Hour))
	sentAttempt(t, st, lead, 1)

	advanced, err := engine.CheckTimeouts(ctx, campaign, sequences)
	require.NoError(t, err)
	assert.Equal(t, 1, advanced)

	updated, err := st.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.CurrentStep)
	assert.Equal(t, models.LeadStatusRouted, updated.Status)
}

func TestCheckTimeoutsRespectsTimeoutWindow(t *testing.T) {
	st, engine, campaign, sequences, now := timeoutFixture(t)
	ctx := context.Background()

	lead := routedLead(t, st, campaign.ID, 0, now.Add(-24*time.Hour))
	sentAttempt(t, st, lead, 1)

	advanced, err := engine.CheckTimeouts(ctx, campaign, sequences)
	require.NoError(t, err)
	assert.Zero(t, advanced)

	updated, err := st.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Zero(t, updated.CurrentStep)
}

func TestCheckTimeoutsSkipsUnsentSteps(t *testing.T) {
	st, engine, campaign, sequences, now := timeoutFixture(t)
	ctx := context.Background()

	// Stale timestamp but the current step is still in retry; the lead
	// must keep its position.
	lead := routedLead(t, st, campaign.ID, 1, now.Add(-10*24*time.Hour))
	sentAttempt(t, st, lead, 1) // only step one went out

	advanced, err := engine.CheckTimeouts(ctx, campaign, sequences)
	require.NoError(t, err)
	assert.Zero(t, advanced)
}

func TestCheckTimeoutsExhaustionTimesOut(t *testing.T) {
	st, engine, campaign, sequences, now := timeoutFixture(t)
	ctx := context.Background()

	lead := routedLead(t, st, campaign.ID, 1, now.Add(-4*24*time.Hour))
	sentAttempt(t, st, lead, 2)

	advanced, err := engine.CheckTimeouts(ctx, campaign, sequences)
	require.NoError(t, err)
	assert.Equal(t, 1, advanced)

	updated, err := st.GetLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusTimedOut, updated.Status)
}

func TestCheckTimeoutsIgnoresLeadsWithoutOutreach(t *testing.T) {
	st, engine, campaign, sequences, _ := timeoutFixture(t)
	ctx := context.Background()

	lead := &models.Lead{
		CampaignID: campaign.ID,
		Email:      "fresh@acme.com",
		Status:     models.LeadStatusRouted,
		SequenceID: "regular-nurture",
	}
	require.NoError(t, st.CreateLead(ctx, lead))

	advanced, err := engine.CheckTimeouts(ctx, campaign, sequences)
	require.NoError(t, err)
	assert.Zero(t, advanced)
}
