package models

import (
	"time"

	"gorm.io/gorm"
)

// Tier buckets derived from the combined lead score
const (
	TierHot  = "HOT"
	TierWarm = "WARM"
	TierCool = "COOL"
	TierCold = "COLD"
)

// Lead status state machine
const (
	LeadStatusNew             = "NEW"
	LeadStatusQualified       = "QUALIFIED"
	LeadStatusRouted          = "ROUTED"
	LeadStatusRepliedPositive = "REPLIED_POSITIVE"
	LeadStatusRepliedNegative = "REPLIED_NEGATIVE"
	LeadStatusUnsubscribed    = "UNSUBSCRIBED"
	LeadStatusSuppressed      = "SUPPRESSED"
	LeadStatusTimedOut        = "TIMED_OUT"
	LeadStatusLost            = "LOST"
)

// TerminalLeadStatuses are statuses a lead never leaves
var TerminalLeadStatuses = map[string]bool{
	LeadStatusSuppressed:   true,
	LeadStatusUnsubscribed: true,
	LeadStatusLost:         true,
}

// Lead represents a single contact/lead.
// Created by the upstream sourcing collaborator with contact fields
// populated; score/tier are written by the scoring engine and status by
// the follow-up engine. Leads are never deleted, only status-transitioned.
type Lead struct {
	gorm.Model
	CampaignID uint `gorm:"not null;index" json:"campaign_id"`

	Email        string `gorm:"index" json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Company      string `json:"company"`
	Title        string `json:"title"`
	SocialHandle string `json:"social_handle"`
	FormURL      string `json:"form_url"`

	// Firmographics used by the scoring engine
	CompanySize    string `json:"company_size"`
	Industry       string `json:"industry"`
	RevenueBand    string `json:"revenue_band"`
	Geography      string `json:"geography"`
	SeniorityLevel string `json:"seniority_level"`

	// Buying signals (open set; the boost threshold is configurable)
	RecentRoleChange bool `gorm:"default:false" json:"recent_role_change"`
	CompanyHiring    bool `gorm:"default:false" json:"company_hiring"`
	CompanyFunded    bool `gorm:"default:false" json:"company_funded"`
	BudgetAuthority  bool `gorm:"default:false" json:"budget_authority"`
	DecisionMaker    bool `gorm:"default:false" json:"decision_maker"`
	RecentActivity   bool `gorm:"default:false" json:"recent_activity"`

	// Scoring output
	Score           float64 `gorm:"default:0" json:"score"`
	Tier            string  `gorm:"default:''" json:"tier"`
	BoostedByIntent bool    `gorm:"default:false" json:"boosted_by_intent"`

	// Lifecycle
	Status            string     `gorm:"default:'NEW';index" json:"status"`
	SequenceID        string     `gorm:"index" json:"sequence_id"`
	SequenceStartedAt *time.Time `json:"sequence_started_at"`
	CurrentStep       int        `gorm:"default:0" json:"current_step"`
	LastOutreachAt    *time.Time `json:"last_outreach_at"`

	Source string `json:"source"`

	// Relations
	Attempts []OutreachAttempt `gorm:"foreignKey:LeadID" json:"attempts,omitempty"`
}

// BuyingSignalCount returns how many boolean buying signals are set.
func (l *Lead) BuyingSignalCount() int {
	count := 0
	for _, sig := range []bool{
		l.RecentRoleChange, l.CompanyHiring, l.CompanyFunded,
		l.BudgetAuthority, l.DecisionMaker, l.RecentActivity,
	} {
		if sig {
			count++
		}
	}
	return count
}

// EmailDomain returns the part after '@', or "" if the email is malformed.
func (l *Lead) EmailDomain() string {
	for i := len(l.Email) - 1; i >= 0; i-- {
		if l.Email[i] == '@' {
			return l.Email[i+1:]
		}
	}
	return ""
}

// IsTerminal reports whether the lead reached a status it never leaves.
func (l *Lead) IsTerminal() bool {
	return TerminalLeadStatuses[l.Status]
}

// DoNotContact is the cross-campaign suppression list. An entry matches by
// email, domain, or lead id; any match blocks all future outreach.
type DoNotContact struct {
	gorm.Model
	Email  string `gorm:"index" json:"email"`
	Domain string `gorm:"index" json:"domain"`
	LeadID *uint  `gorm:"index" json:"lead_id,omitempty"`
	Reason string `json:"reason"` // unsubscribe, bounce, manual, import
}
