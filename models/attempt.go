package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Outreach channels
const (
	ChannelEmail    = "email"
	ChannelLinkedIn = "linkedin"
	ChannelWebForm  = "webform"
)

// OutreachAttempt statuses
const (
	AttemptStatusPending   = "PENDING"
	AttemptStatusSent      = "SENT"
	AttemptStatusDelivered = "DELIVERED"
	AttemptStatusBounced   = "BOUNCED"
	AttemptStatusFailed    = "FAILED"
	AttemptStatusSkipped   = "SKIPPED"
)

// Skip reason tags recorded when the safety guard denies a send
const (
	SkipReasonSafetyLimit = "safety_limit"
	SkipReasonDNC         = "dnc"
)

// OutreachAttempt is the immutable audit record of a single contact attempt.
// Only status and the retry fields change until the attempt is terminal.
type OutreachAttempt struct {
	gorm.Model
	CampaignID uint   `gorm:"not null;index" json:"campaign_id"`
	LeadID     uint   `gorm:"not null;index" json:"lead_id"`
	Channel    string `gorm:"not null" json:"channel"`
	StepNumber int    `gorm:"not null" json:"step_number"`

	// hash(content) + step number + lead id; unique so a re-run can never
	// double-send and concurrent duplicates fail closed.
	IdempotencyKey string `gorm:"not null;uniqueIndex" json:"idempotency_key"`

	Status     string `gorm:"not null;default:'PENDING';index" json:"status"`
	SkipReason string `json:"skip_reason,omitempty"`

	ProviderMessageID string `gorm:"index" json:"provider_message_id"`
	ErrorMessage      string `json:"error_message,omitempty"`

	RetryCount  int        `gorm:"default:0" json:"retry_count"`
	NextRetryAt *time.Time `json:"next_retry_at"`

	SentAt *time.Time `json:"sent_at"`
}

// IsTerminal reports whether the attempt will never change again.
// SKIPPED attempts are terminal audit records; the step is retried through
// a fresh attempt on a later tick.
func (a *OutreachAttempt) IsTerminal() bool {
	switch a.Status {
	case AttemptStatusDelivered, AttemptStatusBounced, AttemptStatusSkipped:
		return true
	case AttemptStatusSent:
		return true
	case AttemptStatusFailed:
		return a.NextRetryAt == nil
	}
	return false
}

// IdempotencyKey derives the attempt dedup key from the rendered content,
// the step number and the lead id.
func IdempotencyKey(content string, stepNumber int, leadID uint) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s:%d:%d", hex.EncodeToString(sum[:8]), stepNumber, leadID)
}
