package store

import (
	"context"
	"errors"
	"time"

	"leadpilot/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a uniqueness invariant would be
	// violated (attempt idempotency key, inbound provider message id).
	// Callers treat it as "already done", not as a failure.
	ErrDuplicate = errors.New("duplicate record")
)

// Store is the persistence contract the engine runs against. The GORM
// implementation backs production; the memory implementation backs tests.
type Store interface {
	LeadStore
	CampaignStore
	AttemptStore
	InboundStore
	SequenceStore
	DNCStore
}

type LeadStore interface {
	CreateLead(ctx context.Context, lead *models.Lead) error
	GetLead(ctx context.Context, id uint) (*models.Lead, error)
	// FindLeadByEmail returns the most recently created lead with the email.
	FindLeadByEmail(ctx context.Context, email string) (*models.Lead, error)
	UpdateLead(ctx context.Context, lead *models.Lead) error
	// ListEligibleLeads returns up to limit leads of the campaign that are
	// still workable by the orchestrator (not in a terminal status).
	// A limit of zero or less means no limit.
	ListEligibleLeads(ctx context.Context, campaignID uint, limit int) ([]models.Lead, error)
	ListLeadsByStatus(ctx context.Context, campaignID uint, status string, limit int) ([]models.Lead, error)
	ListLeads(ctx context.Context, campaignID uint, page, perPage int) ([]models.Lead, int64, error)
}

type CampaignStore interface {
	CreateCampaign(ctx context.Context, campaign *models.Campaign) error
	GetCampaign(ctx context.Context, id uint) (*models.Campaign, error)
	UpdateCampaign(ctx context.Context, campaign *models.Campaign) error
	ListCampaigns(ctx context.Context) ([]models.Campaign, error)
	// ListRunnableCampaigns returns active, unpaused campaigns.
	ListRunnableCampaigns(ctx context.Context) ([]models.Campaign, error)
	GetSafetySettings(ctx context.Context, campaignID uint) (*models.SafetySettings, error)
	SaveSafetySettings(ctx context.Context, settings *models.SafetySettings) error
}

type AttemptStore interface {
	// CreateAttempt returns ErrDuplicate when an attempt with the same
	// idempotency key already exists.
	CreateAttempt(ctx context.Context, attempt *models.OutreachAttempt) error
	GetAttemptByKey(ctx context.Context, idempotencyKey string) (*models.OutreachAttempt, error)
	UpdateAttempt(ctx context.Context, attempt *models.OutreachAttempt) error
	ListAttemptsByLead(ctx context.Context, leadID uint) ([]models.OutreachAttempt, error)
	// AttemptCounts returns total non-skipped attempts and bounces for the
	// campaign since the given time.
	AttemptCounts(ctx context.Context, campaignID uint, since time.Time) (attempts, bounces int, err error)
}

type InboundStore interface {
	// CreateInbound returns ErrDuplicate when the (provider, provider
	// message id) pair was already ingested.
	CreateInbound(ctx context.Context, msg *models.InboundMessage) error
	UpdateInbound(ctx context.Context, msg *models.InboundMessage) error
	ListUnprocessedInbound(ctx context.Context, limit int) ([]models.InboundMessage, error)
	// ReplyCounts returns total classified replies and positive replies for
	// the campaign since the given time. Bounce-classified messages are not
	// replies.
	ReplyCounts(ctx context.Context, campaignID uint, since time.Time) (replies, positives int, err error)
}

type SequenceStore interface {
	GetSequenceConfig(ctx context.Context, name string) (*models.SequenceConfig, error)
	UpsertSequenceConfig(ctx context.Context, config *models.SequenceConfig) error
	ListSequenceConfigs(ctx context.Context) ([]models.SequenceConfig, error)
}

type DNCStore interface {
	AddDoNotContact(ctx context.Context, entry *models.DoNotContact) error
	// IsBlocked reports whether the email, its domain, or the lead id is on
	// the do-not-contact list.
	IsBlocked(ctx context.Context, email, domain string, leadID uint) (bool, error)
}
