package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpilot/models"
)

func TestCreateAttemptEnforcesIdempotencyKey(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	first := &models.OutreachAttempt{
		CampaignID:     1,
		LeadID:         1,
		Channel:        models.ChannelEmail,
		StepNumber:     1,
		IdempotencyKey: "abc:1:1",
		Status:         models.AttemptStatusPending,
	}
	require.NoError(t, st.CreateAttempt(ctx, first))

	dup := &models.OutreachAttempt{
		CampaignID:     1,
		LeadID:         1,
		Channel:        models.ChannelEmail,
		StepNumber:     1,
		IdempotencyKey: "abc:1:1",
	}
	err := st.CreateAttempt(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := st.GetAttemptByKey(ctx, "abc:1:1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestCreateInboundDeduplicatesByProviderMessage(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	msg := &models.InboundMessage{
		CampaignID:        1,
		LeadID:            1,
		Channel:           models.ChannelEmail,
		Provider:          "imap",
		ProviderMessageID: "m-1",
		ReceivedAt:        time.Now(),
	}
	require.NoError(t, st.CreateInbound(ctx, msg))

	err := st.CreateInbound(ctx, &models.InboundMessage{
		Provider:          "imap",
		ProviderMessageID: "m-1",
		ReceivedAt:        time.Now(),
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	// Same message id from a different provider is a new message.
	require.NoError(t, st.CreateInbound(ctx, &models.InboundMessage{
		CampaignID:        1,
		LeadID:            1,
		Provider:          "linkedin",
		ProviderMessageID: "m-1",
		ReceivedAt:        time.Now(),
	}))
}

func TestListEligibleLeadsSkipsTerminalStatuses(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	statuses := []string{
		models.LeadStatusNew,
		models.LeadStatusRouted,
		models.LeadStatusSuppressed,
		models.LeadStatusUnsubscribed,
		models.LeadStatusLost,
	}
	for i, status := range statuses {
		require.NoError(t, st.CreateLead(ctx, &models.Lead{
			CampaignID: 1,
			Email:      string(rune('a'+i)) + "@acme.com",
			Status:     status,
		}))
	}

	eligible, err := st.ListEligibleLeads(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	for _, lead := range eligible {
		assert.False(t, lead.IsTerminal())
	}
}

func TestListEligibleLeadsHonorsLimit(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, st.CreateLead(ctx, &models.Lead{CampaignID: 1, Email: "x@acme.com"}))
	}

	eligible, err := st.ListEligibleLeads(ctx, 1, 3)
	require.NoError(t, err)
	assert.Len(t, eligible, 3)
}

func TestListLeadsByStatusZeroLimitReturnsAll(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, st.CreateLead(ctx, &models.Lead{
			CampaignID: 1,
			Email:      "x@acme.com",
			Status:     models.LeadStatusRouted,
		}))
	}

	routed, err := st.ListLeadsByStatus(ctx, 1, models.LeadStatusRouted, 0)
	require.NoError(t, err)
	assert.Len(t, routed, 4)

	routed, err = st.ListLeadsByStatus(ctx, 1, models.LeadStatusRouted, 2)
	require.NoError(t, err)
	assert.Len(t, routed, 2)
}

func TestFindLeadByEmailReturnsLatest(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	older := &models.Lead{CampaignID: 1, Email: "jane@acme.com"}
	require.NoError(t, st.CreateLead(ctx, older))
	newer := &models.Lead{CampaignID: 2, Email: "Jane@Acme.com"}
	require.NoError(t, st.CreateLead(ctx, newer))

	found, err := st.FindLeadByEmail(ctx, "jane@acme.com")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID)

	_, err = st.FindLeadByEmail(ctx, "nobody@acme.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsBlockedMatchesEmailDomainAndLead(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	leadID := uint(42)

	require.NoError(t, st.AddDoNotContact(ctx, &models.DoNotContact{Email: "jane@acme.com", Reason: "unsubscribe"}))
	require.NoError(t, st.AddDoNotContact(ctx, &models.DoNotContact{Domain: "blocked.io", Reason: "manual"}))
	require.NoError(t, st.AddDoNotContact(ctx, &models.DoNotContact{LeadID: &leadID, Reason: "bounce"}))

	cases := []struct {
		name    string
		email   string
		domain  string
		leadID  uint
		blocked bool
	}{
		{"email match", "jane@acme.com", "acme.com", 1, true},
		{"email match is case-insensitive", "JANE@ACME.COM", "acme.com", 1, true},
		{"domain match", "anyone@blocked.io", "blocked.io", 1, true},
		{"lead id match", "other@elsewhere.com", "elsewhere.com", 42, true},
		{"no match", "clean@elsewhere.com", "elsewhere.com", 1, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blocked, err := st.IsBlocked(ctx, tc.email, tc.domain, tc.leadID)
			require.NoError(t, err)
			assert.Equal(t, tc.blocked, blocked)
		})
	}
}

func TestListLeadsPaginates(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, st.CreateLead(ctx, &models.Lead{CampaignID: 1, Email: "x@acme.com"}))
	}

	page1, total, err := st.ListLeads(ctx, 1, 1, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 7, total)
	assert.Len(t, page1, 3)

	page3, total, err := st.ListLeads(ctx, 1, 3, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 7, total)
	assert.Len(t, page3, 1)

	empty, _, err := st.ListLeads(ctx, 1, 4, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
