package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpilot/models"
)

func qualifiedLead(tier string) *models.Lead {
	return &models.Lead{
		Email:  "jane@acme.com",
		Status: models.LeadStatusQualified,
		Tier:   tier,
	}
}

func TestRouteAssignsSequenceByTier(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	router := NewLeadRouter(DefaultRouterConfig()).WithClock(func() time.Time { return now })

	cases := []struct {
		tier     string
		sequence string
	}{
		{models.TierHot, "aggressive-close"},
		{models.TierWarm, "regular-nurture"},
		{models.TierCool, "long-term-nurture"},
		{models.TierCold, "cold-outreach"},
	}

	for _, tc := range cases {
		lead := qualifiedLead(tc.tier)
		decision := router.Route(lead, &models.Campaign{})

		require.Equal(t, RoutingRouted, decision.Status, "tier %s", tc.tier)
		assert.Equal(t, tc.sequence, decision.SequenceName)
		assert.Equal(t, tc.sequence, lead.SequenceID)
		assert.Equal(t, models.LeadStatusRouted, lead.Status)
		assert.Equal(t, 0, lead.CurrentStep)
		require.NotNil(t, lead.SequenceStartedAt)
		assert.True(t, lead.SequenceStartedAt.Equal(now))
	}
}

func TestRouteIntentBoostPromotesOneTier(t *testing.T) {
	router := NewLeadRouter(DefaultRouterConfig())
	campaign := &models.Campaign{IntentBoostEnabled: true, IntentBoostMinSignals: 2}

	lead := qualifiedLead(models.TierWarm)
	lead.CompanyFunded = true
	lead.DecisionMaker = true

	decision := router.Route(lead, campaign)
	require.Equal(t, RoutingRouted, decision.Status)
	assert.Equal(t, models.TierHot, decision.EffectiveTier)
	assert.Equal(t, "aggressive-close", decision.SequenceName)
	assert.True(t, decision.BoostedByIntent)
	assert.True(t, lead.BoostedByIntent)
}

func TestRouteIntentBoostBelowThreshold(t *testing.T) {
	router := NewLeadRouter(DefaultRouterConfig())
	campaign := &models.Campaign{IntentBoostEnabled: true, IntentBoostMinSignals: 2}

	lead := qualifiedLead(models.TierWarm)
	lead.CompanyFunded = true

	decision := router.Route(lead, campaign)
	require.Equal(t, RoutingRouted, decision.Status)
	assert.Equal(t, models.TierWarm, decision.EffectiveTier)
	assert.Equal(t, "regular-nurture", decision.SequenceName)
	assert.False(t, decision.BoostedByIntent)
}

func TestRouteIntentBoostDisabled(t *testing.T) {
	router := NewLeadRouter(DefaultRouterConfig())
	campaign := &models.Campaign{IntentBoostEnabled: false, IntentBoostMinSignals: 2}

	lead := qualifiedLead(models.TierWarm)
	lead.CompanyFunded = true
	lead.DecisionMaker = true
	lead.BudgetAuthority = true

	decision := router.Route(lead, campaign)
	require.Equal(t, RoutingRouted, decision.Status)
	assert.Equal(t, models.TierWarm, decision.EffectiveTier)
	assert.False(t, decision.BoostedByIntent)
}

func TestRouteHotTierCannotBePromoted(t *testing.T) {
	router := NewLeadRouter(DefaultRouterConfig())
	campaign := &models.Campaign{IntentBoostEnabled: true, IntentBoostMinSignals: 1}

	lead := qualifiedLead(models.TierHot)
	lead.DecisionMaker = true

	decision := router.Route(lead, campaign)
	require.Equal(t, RoutingRouted, decision.Status)
	assert.Equal(t, models.TierHot, decision.EffectiveTier)
	assert.False(t, decision.BoostedByIntent)
}

func TestRouteIsIdempotent(t *testing.T) {
	router := NewLeadRouter(DefaultRouterConfig())
	lead := qualifiedLead(models.TierCool)

	first := router.Route(lead, &models.Campaign{})
	require.Equal(t, RoutingRouted, first.Status)

	lead.CurrentStep = 3 // mid-sequence; re-routing must not reset it
	second := router.Route(lead, &models.Campaign{})
	assert.Equal(t, RoutingAlreadyRouted, second.Status)
	assert.Equal(t, first.SequenceName, second.SequenceName)
	assert.Equal(t, 3, lead.CurrentStep)
}

func TestRouteRequiresQualification(t *testing.T) {
	router := NewLeadRouter(DefaultRouterConfig())

	newLead := &models.Lead{Status: models.LeadStatusNew, Tier: models.TierWarm}
	assert.Equal(t, RoutingQualificationPending, router.Route(newLead, &models.Campaign{}).Status)

	unscored := qualifiedLead("")
	assert.Equal(t, RoutingQualificationPending, router.Route(unscored, &models.Campaign{}).Status)
}

func TestRouteRejectsTerminalLeads(t *testing.T) {
	router := NewLeadRouter(DefaultRouterConfig())

	for _, status := range []string{
		models.LeadStatusSuppressed,
		models.LeadStatusUnsubscribed,
		models.LeadStatusLost,
	} {
		lead := qualifiedLead(models.TierHot)
		lead.Status = status
		decision := router.Route(lead, &models.Campaign{})
		assert.Equal(t, RoutingRejectedLead, decision.Status, "status %s", status)
		assert.Empty(t, lead.SequenceID)
	}
}

func TestRouteUnmappedTierIsRejected(t *testing.T) {
	router := NewLeadRouter(RouterConfig{Sequences: map[string]string{
		models.TierHot: "aggressive-close",
	}})

	lead := qualifiedLead(models.TierCold)
	decision := router.Route(lead, &models.Campaign{})
	assert.Equal(t, RoutingRejectedLead, decision.Status)
	assert.Equal(t, models.TierCold, decision.EffectiveTier)
}
