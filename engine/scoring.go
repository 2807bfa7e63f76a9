// Package engine implements the lead lifecycle: scoring, qualification,
// routing, sequenced multi-channel outreach, reply handling, and the
// campaign auto-pause decision loop. The orchestrator at the top drives
// everything from an externally scheduled tick.
package engine

import (
	"strings"

	"leadpilot/models"
)

// Tier thresholds on the combined score.
const (
	TierThresholdHot  = 0.85
	TierThresholdWarm = 0.70
	TierThresholdCool = 0.50
)

// ScoringConfig carries the deterministic weighting formula. Attribute
// weights within each term should sum to 1 so the combined score stays in
// [0,1]; the engine clamps regardless.
type ScoringConfig struct {
	ICPWeight         float64
	OpportunityWeight float64

	// ICP-fit attribute weights
	SizeWeight     float64
	IndustryWeight float64
	RevenueWeight  float64
	GeoWeight      float64

	// Opportunity weights: title/seniority relevance plus a shared pool
	// split evenly across the boolean buying signals.
	TitleWeight      float64
	SignalPoolWeight float64
}

// DefaultScoringConfig mirrors the documented fallbacks: 50/50 term split.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ICPWeight:         0.5,
		OpportunityWeight: 0.5,
		SizeWeight:        0.25,
		IndustryWeight:    0.30,
		RevenueWeight:     0.20,
		GeoWeight:         0.25,
		TitleWeight:       0.40,
		SignalPoolWeight:  0.60,
	}
}

// Attribute match grades: exact, adjacent, none.
const (
	matchExact    = 1.0
	matchAdjacent = 0.5
	matchNone     = 0.0
)

// Ordered bands used for adjacency grading. A lead one band away from a
// targeted band scores a partial match.
var (
	companySizeBands = []string{"1-10", "11-50", "51-200", "201-500", "501-1000", "1001-5000", "5000+"}
	revenueBands     = []string{"<1M", "1M-10M", "10M-50M", "50M-100M", "100M-500M", "500M+"}
)

// ScoringEngine computes ICP-fit and opportunity scores against the
// campaign's targeting criteria and writes score and tier onto the lead.
// Malformed or missing attributes never error; they contribute 0.
type ScoringEngine struct {
	cfg ScoringConfig
}

func NewScoringEngine(cfg ScoringConfig) *ScoringEngine {
	return &ScoringEngine{cfg: cfg}
}

// Score computes the combined score and tier and writes both onto the
// lead. Returns the score for convenience.
func (e *ScoringEngine) Score(lead *models.Lead, campaign *models.Campaign) float64 {
	icp := e.icpFit(lead, campaign)
	opp := e.opportunity(lead, campaign)

	score := e.cfg.ICPWeight*icp + e.cfg.OpportunityWeight*opp
	score = clamp01(score)

	lead.Score = score
	lead.Tier = TierForScore(score)
	return score
}

// TierForScore is the deterministic threshold mapping.
func TierForScore(score float64) string {
	switch {
	case score >= TierThresholdHot:
		return models.TierHot
	case score >= TierThresholdWarm:
		return models.TierWarm
	case score >= TierThresholdCool:
		return models.TierCool
	default:
		return models.TierCold
	}
}

func (e *ScoringEngine) icpFit(lead *models.Lead, campaign *models.Campaign) float64 {
	fit := e.cfg.SizeWeight * bandMatch(lead.CompanySize, campaign.TargetCompanySizes, companySizeBands)
	fit += e.cfg.IndustryWeight * exactMatch(lead.Industry, campaign.TargetIndustries)
	fit += e.cfg.RevenueWeight * bandMatch(lead.RevenueBand, campaign.TargetRevenueBands, revenueBands)
	fit += e.cfg.GeoWeight * exactMatch(lead.Geography, campaign.TargetGeographies)
	return clamp01(fit)
}

func (e *ScoringEngine) opportunity(lead *models.Lead, campaign *models.Campaign) float64 {
	opp := e.cfg.TitleWeight * titleRelevance(lead, campaign.TargetTitles)

	signals := []bool{
		lead.RecentRoleChange, lead.CompanyHiring, lead.CompanyFunded,
		lead.BudgetAuthority, lead.DecisionMaker, lead.RecentActivity,
	}
	perSignal := e.cfg.SignalPoolWeight / float64(len(signals))
	for _, on := range signals {
		if on {
			opp += perSignal
		}
	}
	return clamp01(opp)
}

// exactMatch grades an unordered attribute: exact hit or nothing. An
// unconstrained campaign (no targets) accepts any present value; a missing
// lead attribute contributes 0 either way.
func exactMatch(value string, targets []string) float64 {
	if value == "" {
		return matchNone
	}
	if len(targets) == 0 {
		return matchExact
	}
	for _, t := range targets {
		if strings.EqualFold(value, t) {
			return matchExact
		}
	}
	return matchNone
}

// bandMatch grades an ordered band attribute: exact hit, adjacent band, or
// nothing.
func bandMatch(value string, targets []string, orderedBands []string) float64 {
	if value == "" {
		return matchNone
	}
	if len(targets) == 0 {
		return matchExact
	}
	valueIdx := bandIndex(value, orderedBands)
	for _, t := range targets {
		if strings.EqualFold(value, t) {
			return matchExact
		}
		if valueIdx >= 0 {
			if targetIdx := bandIndex(t, orderedBands); targetIdx >= 0 {
				if targetIdx-valueIdx == 1 || valueIdx-targetIdx == 1 {
					return matchAdjacent
				}
			}
		}
	}
	return matchNone
}

func bandIndex(value string, orderedBands []string) int {
	for i, band := range orderedBands {
		if strings.EqualFold(value, band) {
			return i
		}
	}
	return -1
}

// titleRelevance grades the lead's title against targeted titles: a
// keyword hit is exact, otherwise a senior-sounding seniority level earns
// a partial match.
func titleRelevance(lead *models.Lead, targetTitles []string) float64 {
	title := strings.ToLower(lead.Title)
	if title != "" {
		if len(targetTitles) == 0 {
			return matchExact
		}
		for _, t := range targetTitles {
			if strings.Contains(title, strings.ToLower(t)) {
				return matchExact
			}
		}
	}
	switch strings.ToLower(lead.SeniorityLevel) {
	case "c-level", "vp", "director", "head", "owner", "founder":
		return matchAdjacent
	}
	return matchNone
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
