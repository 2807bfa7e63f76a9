package models

import (
	"time"

	"gorm.io/gorm"
)

// Reply classifications
const (
	ReplyPositive  = "POSITIVE"
	ReplyNegative  = "NEGATIVE"
	ReplyNeutral   = "NEUTRAL"
	ReplyAutoReply = "AUTO_REPLY"
	ReplyOOO       = "OOO"
	ReplyBounce    = "BOUNCE"
	ReplyUnsub     = "UNSUB"
	ReplyUnknown   = "UNKNOWN"
)

// InboundMessage is a reply received from a lead on some channel. The
// provider-assigned message id (composite with the provider name) makes
// ingestion idempotent; classification is written in place.
type InboundMessage struct {
	gorm.Model
	CampaignID uint   `gorm:"not null;index" json:"campaign_id"`
	LeadID     uint   `gorm:"not null;index" json:"lead_id"`
	Channel    string `gorm:"not null" json:"channel"`

	Provider          string `gorm:"not null;uniqueIndex:idx_inbound_provider_msg" json:"provider"`
	ProviderMessageID string `gorm:"not null;uniqueIndex:idx_inbound_provider_msg" json:"provider_message_id"`

	// Attempt this message replies to, when it could be correlated.
	AttemptID *uint `gorm:"index" json:"attempt_id,omitempty"`

	Subject    string    `json:"subject"`
	Body       string    `gorm:"type:text" json:"body"`
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`

	Classification string     `gorm:"index" json:"classification"`
	Confidence     float64    `gorm:"default:0" json:"confidence"`
	ClassifiedAt   *time.Time `json:"classified_at"`
	Processed      bool       `gorm:"default:false;index" json:"processed"`
}
