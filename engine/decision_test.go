package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpilot/models"
	"leadpilot/store"
)

func seedAttempts(t *testing.T, st *store.MemoryStore, campaignID uint, status string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		err := st.CreateAttempt(ctx, &models.OutreachAttempt{
			CampaignID:     campaignID,
			LeadID:         1,
			Channel:        models.ChannelEmail,
			StepNumber:     1,
			IdempotencyKey: fmt.Sprintf("%s-%d-%d", status, campaignID, i),
			Status:         status,
		})
		require.NoError(t, err)
	}
}

func seedReplies(t *testing.T, st *store.MemoryStore, campaignID uint, classification string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		err := st.CreateInbound(ctx, &models.InboundMessage{
			CampaignID:        campaignID,
			LeadID:            1,
			Channel:           models.ChannelEmail,
			Provider:          "imap",
			ProviderMessageID: fmt.Sprintf("%s-%d-%d", classification, campaignID, i),
			ReceivedAt:        time.Now(),
			Classification:    classification,
		})
		require.NoError(t, err)
	}
}

func TestEvaluateBelowSampleFloor(t *testing.T) {
	st := store.NewMemoryStore()
	seedAttempts(t, st, 1, models.AttemptStatusSent, 5)

	engine := NewDecisionEngine(st, DecisionConfig{
		WindowDays:    7,
		MaxBounceRate: 0.10,
		MinAttempts:   20,
	})

	rec, err := engine.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, rec.Pause)
	assert.Contains(t, rec.Reason, "sample floor")
	assert.Equal(t, 5, rec.Snapshot.Attempts)
}

func TestEvaluateBounceRateTriggersPause(t *testing.T) {
	st := store.NewMemoryStore()
	seedAttempts(t, st, 1, models.AttemptStatusSent, 17)
	seedAttempts(t, st, 1, models.AttemptStatusBounced, 3)

	engine := NewDecisionEngine(st, DecisionConfig{
		WindowDays:    7,
		MaxBounceRate: 0.10,
		MinAttempts:   20,
	})

	rec, err := engine.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, rec.Pause)
	assert.Contains(t, rec.Reason, "bounce rate")
	assert.Equal(t, 20, rec.Snapshot.Attempts)
	assert.Equal(t, 3, rec.Snapshot.Bounces)
	assert.InDelta(t, 0.15, rec.Snapshot.BounceRate, 1e-9)
}

func TestEvaluateSkippedAttemptsAreNotSends(t *testing.T) {
	st := store.NewMemoryStore()
	seedAttempts(t, st, 1, models.AttemptStatusSent, 10)
	// Skips are guard denials, not outreach; they must not dilute or
	// inflate the rates.
	seedAttempts(t, st, 1, models.AttemptStatusSkipped, 50)

	engine := NewDecisionEngine(st, DecisionConfig{
		WindowDays:    7,
		MaxBounceRate: 0.10,
		MinAttempts:   20,
	})

	rec, err := engine.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, rec.Pause)
	assert.Equal(t, 10, rec.Snapshot.Attempts)
}

func TestEvaluateReplyRateFloor(t *testing.T) {
	st := store.NewMemoryStore()
	seedAttempts(t, st, 1, models.AttemptStatusSent, 40)
	seedReplies(t, st, 1, models.ReplyNeutral, 1)

	engine := NewDecisionEngine(st, DecisionConfig{
		WindowDays:    7,
		MaxBounceRate: 0.10,
		MinReplyRate:  0.05,
		MinAttempts:   20,
	})

	rec, err := engine.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, rec.Pause)
	assert.Contains(t, rec.Reason, "reply rate")
	assert.InDelta(t, 0.025, rec.Snapshot.ReplyRate, 1e-9)
}

func TestEvaluateReplyRateFloorDisabledByDefault(t *testing.T) {
	st := store.NewMemoryStore()
	seedAttempts(t, st, 1, models.AttemptStatusSent, 40)

	engine := NewDecisionEngine(st, DefaultDecisionConfig())

	rec, err := engine.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, rec.Pause)
	assert.Equal(t, "metrics within thresholds", rec.Reason)
}

func TestSnapshotRates(t *testing.T) {
	st := store.NewMemoryStore()
	seedAttempts(t, st, 1, models.AttemptStatusSent, 18)
	seedAttempts(t, st, 1, models.AttemptStatusBounced, 2)
	seedReplies(t, st, 1, models.ReplyPositive, 2)
	seedReplies(t, st, 1, models.ReplyNegative, 2)
	// Bounce notifications are not replies.
	seedReplies(t, st, 1, models.ReplyBounce, 5)

	engine := NewDecisionEngine(st, DefaultDecisionConfig())

	snapshot, err := engine.Snapshot(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 20, snapshot.Attempts)
	assert.Equal(t, 2, snapshot.Bounces)
	assert.Equal(t, 4, snapshot.Replies)
	assert.Equal(t, 2, snapshot.PositiveCount)
	assert.InDelta(t, 0.20, snapshot.ReplyRate, 1e-9)
	assert.InDelta(t, 0.10, snapshot.BounceRate, 1e-9)
	assert.InDelta(t, 0.50, snapshot.PositiveRate, 1e-9)
}

func TestSnapshotEmptyCampaign(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewDecisionEngine(st, DefaultDecisionConfig())

	snapshot, err := engine.Snapshot(context.Background(), 99)
	require.NoError(t, err)
	assert.Zero(t, snapshot.Attempts)
	assert.Zero(t, snapshot.ReplyRate)
	assert.Zero(t, snapshot.BounceRate)
	assert.Zero(t, snapshot.PositiveRate)
}

func TestSnapshotIgnoresOtherCampaigns(t *testing.T) {
	st := store.NewMemoryStore()
	seedAttempts(t, st, 1, models.AttemptStatusSent, 10)
	seedAttempts(t, st, 2, models.AttemptStatusBounced, 10)

	engine := NewDecisionEngine(st, DefaultDecisionConfig())

	snapshot, err := engine.Snapshot(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 10, snapshot.Attempts)
	assert.Zero(t, snapshot.Bounces)
}
