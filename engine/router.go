package engine

import (
	"time"

	"leadpilot/models"
)

// Routing decision statuses.
const (
	RoutingRouted               = "ROUTED"
	RoutingAlreadyRouted        = "ALREADY_ROUTED"
	RoutingQualificationPending = "QUALIFICATION_PENDING"
	RoutingRejectedLead         = "REJECTED_LEAD"
)

// RoutingDecision is the router's structured outcome.
type RoutingDecision struct {
	Status          string
	SequenceName    string
	EffectiveTier   string
	BoostedByIntent bool
}

// RouterConfig maps tiers to named sequences. The defaults follow the
// standard playbook: hotter tiers get shorter, more aggressive sequences.
type RouterConfig struct {
	Sequences map[string]string // tier -> sequence name
}

// DefaultRouterConfig returns the fixed tier table:
// HOT → ~7 days/3 steps, WARM → ~14 days/4 steps,
// COOL → ~30 days/6 steps, COLD → ~60 days/8 steps.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{Sequences: map[string]string{
		models.TierHot:  "aggressive-close",
		models.TierWarm: "regular-nurture",
		models.TierCool: "long-term-nurture",
		models.TierCold: "cold-outreach",
	}}
}

// LeadRouter maps a qualified lead's tier, optionally boosted by intent
// signals, to an outreach sequence.
type LeadRouter struct {
	cfg RouterConfig
	now func() time.Time
}

func NewLeadRouter(cfg RouterConfig) *LeadRouter {
	return &LeadRouter{cfg: cfg, now: time.Now}
}

// WithClock overrides the router's clock. Tests only.
func (r *LeadRouter) WithClock(now func() time.Time) *LeadRouter {
	r.now = now
	return r
}

// SequenceFor returns the sequence name a tier maps to.
func (r *LeadRouter) SequenceFor(tier string) (string, bool) {
	name, ok := r.cfg.Sequences[tier]
	return name, ok
}

// Route assigns a sequence to the lead, writing sequence id, start time
// and routed status onto it. Idempotent: a lead already carrying an
// active sequence comes back ALREADY_ROUTED untouched.
func (r *LeadRouter) Route(lead *models.Lead, campaign *models.Campaign) RoutingDecision {
	if lead.IsTerminal() {
		return RoutingDecision{Status: RoutingRejectedLead}
	}
	if lead.SequenceID != "" {
		return RoutingDecision{Status: RoutingAlreadyRouted, SequenceName: lead.SequenceID}
	}
	if lead.Status != models.LeadStatusQualified {
		return RoutingDecision{Status: RoutingQualificationPending}
	}
	if lead.Tier == "" {
		return RoutingDecision{Status: RoutingQualificationPending}
	}

	tier := lead.Tier
	boosted := false
	if campaign.IntentBoostEnabled && lead.BuyingSignalCount() >= campaign.IntentBoostMinSignals {
		if promoted := promoteTier(tier); promoted != tier {
			tier = promoted
			boosted = true
		}
	}

	name, ok := r.cfg.Sequences[tier]
	if !ok {
		return RoutingDecision{Status: RoutingRejectedLead, EffectiveTier: tier}
	}

	now := r.now()
	lead.SequenceID = name
	lead.SequenceStartedAt = &now
	lead.CurrentStep = 0
	lead.Status = models.LeadStatusRouted
	lead.BoostedByIntent = boosted

	return RoutingDecision{
		Status:          RoutingRouted,
		SequenceName:    name,
		EffectiveTier:   tier,
		BoostedByIntent: boosted,
	}
}

// promoteTier bumps one tier upward, capped at HOT.
func promoteTier(tier string) string {
	switch tier {
	case models.TierWarm:
		return models.TierHot
	case models.TierCool:
		return models.TierWarm
	case models.TierCold:
		return models.TierCool
	default:
		return tier
	}
}
