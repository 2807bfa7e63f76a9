package models

import "gorm.io/gorm"

// SequenceConfig is a named, ordered list of outreach steps. The lead
// router maps tiers to sequence names; the sequencer executes the steps.
type SequenceConfig struct {
	gorm.Model
	Name        string `gorm:"not null;uniqueIndex" json:"name"`
	Description string `json:"description"`

	// Days a step waits for a reply before the follow-up engine advances
	// the lead to the next step.
	ReplyTimeoutDays int `gorm:"default:3" json:"reply_timeout_days"`

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:SequenceConfigID" json:"steps,omitempty"`
}

// SequenceStep is one ordered outreach step: which channel to use, what
// template to render, and how patient to be before falling back.
type SequenceStep struct {
	gorm.Model
	SequenceConfigID uint `gorm:"not null;index" json:"sequence_config_id"`

	StepNumber  int    `gorm:"not null" json:"step_number"`
	Channel     string `gorm:"not null" json:"channel"`
	TemplateRef string `gorm:"not null" json:"template_ref"`

	MaxRetries        int `gorm:"default:2" json:"max_retries"`
	FallbackDelayDays int `gorm:"default:1" json:"fallback_delay_days"`
}

// StepAt returns the step with the given 0-based position, or nil when the
// sequence is exhausted. Steps are stored with 1-based StepNumber.
func (sc *SequenceConfig) StepAt(position int) *SequenceStep {
	for i := range sc.Steps {
		if sc.Steps[i].StepNumber == position+1 {
			return &sc.Steps[i]
		}
	}
	return nil
}
