package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign modes
const (
	CampaignModeLive       = "LIVE"
	CampaignModeSimulation = "SIMULATION"
)

// Campaign statuses
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusCompleted = "completed"
)

// Campaign owns a set of leads and the safety settings that guard their
// outreach. The decision engine flips Paused; the orchestrator keeps the
// tick bookkeeping fields current.
type Campaign struct {
	gorm.Model
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	Mode   string `gorm:"default:'LIVE'" json:"mode"` // LIVE, SIMULATION
	Status string `gorm:"default:'draft'" json:"status"`

	// Auto-pause bookkeeping
	AutoPauseEnabled bool       `gorm:"default:true" json:"auto_pause_enabled"`
	Paused           bool       `gorm:"default:false" json:"paused"`
	PausedAt         *time.Time `json:"paused_at"`
	PauseReason      string     `json:"pause_reason"`

	// Targeting criteria consumed by the scoring engine
	TargetCompanySizes []string `gorm:"type:jsonb;serializer:json" json:"target_company_sizes"`
	TargetIndustries   []string `gorm:"type:jsonb;serializer:json" json:"target_industries"`
	TargetRevenueBands []string `gorm:"type:jsonb;serializer:json" json:"target_revenue_bands"`
	TargetGeographies  []string `gorm:"type:jsonb;serializer:json" json:"target_geographies"`
	TargetTitles       []string `gorm:"type:jsonb;serializer:json" json:"target_titles"`

	// Intent boost configuration (minimum signals before a one-tier promotion)
	IntentBoostEnabled    bool `gorm:"default:true" json:"intent_boost_enabled"`
	IntentBoostMinSignals int  `gorm:"default:2" json:"intent_boost_min_signals"`

	// Tick bookkeeping
	LastTickAt *time.Time `json:"last_tick_at"`
	TickCount  int        `gorm:"default:0" json:"tick_count"`

	// Statistics (denormalized for performance)
	TotalLeads       int `gorm:"default:0" json:"total_leads"`
	SentCount        int `gorm:"default:0" json:"sent_count"`
	ReplyCount       int `gorm:"default:0" json:"reply_count"`
	BounceCount      int `gorm:"default:0" json:"bounce_count"`
	UnsubscribeCount int `gorm:"default:0" json:"unsubscribe_count"`

	// Relations
	Leads          []Lead          `gorm:"foreignKey:CampaignID" json:"leads,omitempty"`
	SafetySettings *SafetySettings `gorm:"foreignKey:CampaignID" json:"safety_settings,omitempty"`
}

// IsRunnable reports whether the orchestrator should tick this campaign.
func (c *Campaign) IsRunnable() bool {
	return c.Status == CampaignStatusActive && !c.Paused
}

// SafetySettings aggregates the per-campaign guard configuration: channel
// caps and warmup, the send window, and blocked entries.
type SafetySettings struct {
	gorm.Model
	CampaignID uint `gorm:"not null;uniqueIndex" json:"campaign_id"`

	// Send window, hours in 24h local time; both zero means no window.
	SendWindowStartHour int `gorm:"default:0" json:"send_window_start_hour"`
	SendWindowEndHour   int `gorm:"default:0" json:"send_window_end_hour"`

	BlockedDomains []string `gorm:"type:jsonb;serializer:json" json:"blocked_domains"`
	BlockedEmails  []string `gorm:"type:jsonb;serializer:json" json:"blocked_emails"`

	// Relations
	ChannelConfigs []ChannelConfig `gorm:"foreignKey:SafetySettingsID" json:"channel_configs,omitempty"`
}

// ChannelConfig holds per-channel enablement, caps, warmup parameters and
// retry policy.
type ChannelConfig struct {
	gorm.Model
	SafetySettingsID uint   `gorm:"not null;index" json:"safety_settings_id"`
	Channel          string `gorm:"not null" json:"channel"` // email, linkedin, webform

	Enabled   bool `gorm:"default:true" json:"enabled"`
	HourlyCap int  `gorm:"default:0" json:"hourly_cap"` // 0 = unlimited
	DailyCap  int  `gorm:"default:100" json:"daily_cap"`

	// Warmup curve: allowed = start + (day-1)*increment, capped at max
	WarmupEnabled   bool       `gorm:"default:false" json:"warmup_enabled"`
	WarmupStart     int        `gorm:"default:5" json:"warmup_start"`
	WarmupIncrement int        `gorm:"default:2" json:"warmup_increment"`
	WarmupMax       int        `gorm:"default:20" json:"warmup_max"`
	WarmupStartedAt *time.Time `json:"warmup_started_at"`

	// Retry policy
	MaxRetries   int   `gorm:"default:2" json:"max_retries"`
	BackoffHours []int `gorm:"type:jsonb;serializer:json" json:"backoff_hours"` // e.g. [24, 48]

	// Per-send timeout in seconds for the provider call
	SendTimeoutSeconds int `gorm:"default:30" json:"send_timeout_seconds"`
}

// EffectiveDailyLimit computes the warmup-adjusted daily cap for the given
// day. daysSinceFirstSend is 1-based: day 1 allows WarmupStart sends.
func (cc *ChannelConfig) EffectiveDailyLimit(daysSinceFirstSend int) int {
	if !cc.WarmupEnabled {
		return cc.DailyCap
	}
	if daysSinceFirstSend < 1 {
		daysSinceFirstSend = 1
	}
	allowed := cc.WarmupStart + (daysSinceFirstSend-1)*cc.WarmupIncrement
	if allowed > cc.WarmupMax {
		allowed = cc.WarmupMax
	}
	return allowed
}

// Backoff returns the wait before retry number n (0-based). Falls back to
// the last configured interval when retries outnumber the list.
func (cc *ChannelConfig) Backoff(n int) time.Duration {
	if len(cc.BackoffHours) == 0 {
		return 24 * time.Hour
	}
	if n >= len(cc.BackoffHours) {
		n = len(cc.BackoffHours) - 1
	}
	return time.Duration(cc.BackoffHours[n]) * time.Hour
}

// ChannelUsage is the single authoritative per-channel daily send counter.
// One row per (campaign, channel, day); incremented with a conditional
// atomic update so concurrent workers fail closed at the cap.
type ChannelUsage struct {
	gorm.Model
	CampaignID uint   `gorm:"not null;uniqueIndex:idx_usage_day" json:"campaign_id"`
	Channel    string `gorm:"not null;uniqueIndex:idx_usage_day" json:"channel"`
	Day        string `gorm:"not null;uniqueIndex:idx_usage_day" json:"day"` // YYYY-MM-DD
	SentCount  int    `gorm:"default:0" json:"sent_count"`
}

// CampaignMetricsSnapshot is derived on demand by the decision engine over
// a trailing window; it is never the source of truth.
type CampaignMetricsSnapshot struct {
	CampaignID    uint      `json:"campaign_id"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	Attempts      int       `json:"attempts"`
	Replies       int       `json:"replies"`
	PositiveCount int       `json:"positive_count"`
	Bounces       int       `json:"bounces"`
	ReplyRate     float64   `json:"reply_rate"`
	PositiveRate  float64   `json:"positive_rate"`
	BounceRate    float64   `json:"bounce_rate"`
}
