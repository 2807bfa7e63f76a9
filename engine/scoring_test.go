package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"leadpilot/models"
)

func TestTierForScore(t *testing.T) {
	cases := []struct {
		score float64
		tier  string
	}{
		{1.0, models.TierHot},
		{0.85, models.TierHot},
		{0.849, models.TierWarm},
		{0.70, models.TierWarm},
		{0.699, models.TierCool},
		{0.50, models.TierCool},
		{0.499, models.TierCold},
		{0, models.TierCold},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.tier, TierForScore(tc.score), "score %v", tc.score)
	}
}

func TestScorePerfectMatch(t *testing.T) {
	engine := NewScoringEngine(DefaultScoringConfig())

	campaign := &models.Campaign{
		TargetCompanySizes: []string{"51-200"},
		TargetIndustries:   []string{"SaaS"},
		TargetRevenueBands: []string{"10M-50M"},
		TargetGeographies:  []string{"US"},
		TargetTitles:       []string{"VP of Sales"},
	}
	lead := &models.Lead{
		CompanySize:      "51-200",
		Industry:         "saas",
		RevenueBand:      "10M-50M",
		Geography:        "US",
		Title:            "VP of Sales, Americas",
		RecentRoleChange: true,
		CompanyHiring:    true,
		CompanyFunded:    true,
		BudgetAuthority:  true,
		DecisionMaker:    true,
		RecentActivity:   true,
	}

	score := engine.Score(lead, campaign)
	assert.InDelta(t, 1.0, score, 1e-9)
	assert.Equal(t, models.TierHot, lead.Tier)
	assert.Equal(t, score, lead.Score)
}

func TestScoreAdjacentBandScoresHalf(t *testing.T) {
	engine := NewScoringEngine(DefaultScoringConfig())

	campaign := &models.Campaign{TargetCompanySizes: []string{"51-200"}}
	lead := &models.Lead{CompanySize: "11-50"}

	// Adjacency grades 0.5 on the size weight; everything else is missing.
	// icp = 0.25 * 0.5 = 0.125, opportunity = 0.
	score := engine.Score(lead, campaign)
	assert.InDelta(t, 0.0625, score, 1e-9)
	assert.Equal(t, models.TierCold, lead.Tier)
}

func TestScoreDistantBandScoresZero(t *testing.T) {
	engine := NewScoringEngine(DefaultScoringConfig())

	campaign := &models.Campaign{TargetCompanySizes: []string{"51-200"}}
	lead := &models.Lead{CompanySize: "5000+"}

	assert.InDelta(t, 0, engine.Score(lead, campaign), 1e-9)
}

func TestScoreUnconstrainedCampaignAcceptsPresentValues(t *testing.T) {
	engine := NewScoringEngine(DefaultScoringConfig())

	// No targets at all: any present attribute is an exact match.
	campaign := &models.Campaign{}
	lead := &models.Lead{
		CompanySize:      "11-50",
		Industry:         "Fintech",
		RevenueBand:      "1M-10M",
		Geography:        "DE",
		Title:            "Head of Growth",
		RecentRoleChange: true,
		CompanyHiring:    true,
		CompanyFunded:    true,
	}

	// icp = 1.0; opportunity = 0.4 + 0.6 * (3/6) = 0.7.
	score := engine.Score(lead, campaign)
	assert.InDelta(t, 0.85, score, 1e-9)
	assert.Equal(t, models.TierHot, lead.Tier)
}

func TestScoreMissingAttributesContributeNothing(t *testing.T) {
	engine := NewScoringEngine(DefaultScoringConfig())

	campaign := &models.Campaign{}
	lead := &models.Lead{Email: "someone@example.com"}

	score := engine.Score(lead, campaign)
	assert.InDelta(t, 0, score, 1e-9)
	assert.Equal(t, models.TierCold, lead.Tier)
}

func TestScoreSeniorityFallbackWhenTitleMisses(t *testing.T) {
	engine := NewScoringEngine(DefaultScoringConfig())

	campaign := &models.Campaign{TargetTitles: []string{"engineering"}}
	lead := &models.Lead{Title: "Chief Revenue Officer", SeniorityLevel: "C-Level"}

	// Title misses the keyword but the senior level earns the partial
	// grade: opportunity = 0.4 * 0.5 = 0.2, combined 0.1.
	assert.InDelta(t, 0.1, engine.Score(lead, campaign), 1e-9)
}

func TestScoreIsClamped(t *testing.T) {
	cfg := DefaultScoringConfig()
	cfg.ICPWeight = 2.0 // misconfigured weights must not escape [0,1]
	engine := NewScoringEngine(cfg)

	campaign := &models.Campaign{}
	lead := &models.Lead{
		CompanySize: "11-50",
		Industry:    "SaaS",
		RevenueBand: "1M-10M",
		Geography:   "US",
	}

	score := engine.Score(lead, campaign)
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}
