package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"leadpilot/models"
)

// GormStore implements Store on PostgreSQL through GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "UNIQUE constraint") {
		return ErrDuplicate
	}
	return err
}

// ---------- Leads ----------

func (s *GormStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	return translateErr(s.db.WithContext(ctx).Create(lead).Error)
}

func (s *GormStore) GetLead(ctx context.Context, id uint) (*models.Lead, error) {
	var lead models.Lead
	if err := s.db.WithContext(ctx).First(&lead, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &lead, nil
}

func (s *GormStore) FindLeadByEmail(ctx context.Context, email string) (*models.Lead, error) {
	var lead models.Lead
	err := s.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", email).
		Order("id DESC").
		First(&lead).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &lead, nil
}

func (s *GormStore) UpdateLead(ctx context.Context, lead *models.Lead) error {
	return translateErr(s.db.WithContext(ctx).Save(lead).Error)
}

func (s *GormStore) ListEligibleLeads(ctx context.Context, campaignID uint, limit int) ([]models.Lead, error) {
	var leads []models.Lead
	q := s.db.WithContext(ctx).
		Where("campaign_id = ? AND status NOT IN ?", campaignID, terminalStatusList()).
		Order("id")
	// limit <= 0 means no limit; gorm would otherwise emit LIMIT 0.
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&leads).Error
	return leads, translateErr(err)
}

func (s *GormStore) ListLeadsByStatus(ctx context.Context, campaignID uint, status string, limit int) ([]models.Lead, error) {
	var leads []models.Lead
	q := s.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, status).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&leads).Error
	return leads, translateErr(err)
}

func (s *GormStore) ListLeads(ctx context.Context, campaignID uint, page, perPage int) ([]models.Lead, int64, error) {
	var leads []models.Lead
	var total int64
	q := s.db.WithContext(ctx).Model(&models.Lead{}).Where("campaign_id = ?", campaignID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translateErr(err)
	}
	if page < 1 {
		page = 1
	}
	err := q.Order("id").Offset((page - 1) * perPage).Limit(perPage).Find(&leads).Error
	return leads, total, translateErr(err)
}

func terminalStatusList() []string {
	statuses := make([]string, 0, len(models.TerminalLeadStatuses))
	for status := range models.TerminalLeadStatuses {
		statuses = append(statuses, status)
	}
	return statuses
}

// ---------- Campaigns ----------

func (s *GormStore) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	return translateErr(s.db.WithContext(ctx).Create(campaign).Error)
}

func (s *GormStore) GetCampaign(ctx context.Context, id uint) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := s.db.WithContext(ctx).First(&campaign, id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &campaign, nil
}

func (s *GormStore) UpdateCampaign(ctx context.Context, campaign *models.Campaign) error {
	return translateErr(s.db.WithContext(ctx).Save(campaign).Error)
}

func (s *GormStore) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.db.WithContext(ctx).Order("id").Find(&campaigns).Error
	return campaigns, translateErr(err)
}

func (s *GormStore) ListRunnableCampaigns(ctx context.Context) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.db.WithContext(ctx).
		Where("status = ? AND paused = ?", models.CampaignStatusActive, false).
		Order("id").
		Find(&campaigns).Error
	return campaigns, translateErr(err)
}

func (s *GormStore) GetSafetySettings(ctx context.Context, campaignID uint) (*models.SafetySettings, error) {
	var settings models.SafetySettings
	err := s.db.WithContext(ctx).
		Preload("ChannelConfigs").
		Where("campaign_id = ?", campaignID).
		First(&settings).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &settings, nil
}

func (s *GormStore) SaveSafetySettings(ctx context.Context, settings *models.SafetySettings) error {
	return translateErr(s.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(settings).Error)
}

// ---------- Attempts ----------

func (s *GormStore) CreateAttempt(ctx context.Context, attempt *models.OutreachAttempt) error {
	return translateErr(s.db.WithContext(ctx).Create(attempt).Error)
}

func (s *GormStore) GetAttemptByKey(ctx context.Context, idempotencyKey string) (*models.OutreachAttempt, error) {
	var attempt models.OutreachAttempt
	err := s.db.WithContext(ctx).
		Where("idempotency_key = ?", idempotencyKey).
		First(&attempt).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &attempt, nil
}

func (s *GormStore) UpdateAttempt(ctx context.Context, attempt *models.OutreachAttempt) error {
	return translateErr(s.db.WithContext(ctx).Save(attempt).Error)
}

func (s *GormStore) ListAttemptsByLead(ctx context.Context, leadID uint) ([]models.OutreachAttempt, error) {
	var attempts []models.OutreachAttempt
	err := s.db.WithContext(ctx).
		Where("lead_id = ?", leadID).
		Order("id").
		Find(&attempts).Error
	return attempts, translateErr(err)
}

func (s *GormStore) AttemptCounts(ctx context.Context, campaignID uint, since time.Time) (int, int, error) {
	var attempts, bounces int64
	err := s.db.WithContext(ctx).Model(&models.OutreachAttempt{}).
		Where("campaign_id = ? AND created_at >= ? AND status <> ?", campaignID, since, models.AttemptStatusSkipped).
		Count(&attempts).Error
	if err != nil {
		return 0, 0, translateErr(err)
	}
	err = s.db.WithContext(ctx).Model(&models.OutreachAttempt{}).
		Where("campaign_id = ? AND created_at >= ? AND status = ?", campaignID, since, models.AttemptStatusBounced).
		Count(&bounces).Error
	return int(attempts), int(bounces), translateErr(err)
}

// ---------- Inbound ----------

func (s *GormStore) CreateInbound(ctx context.Context, msg *models.InboundMessage) error {
	return translateErr(s.db.WithContext(ctx).Create(msg).Error)
}

func (s *GormStore) UpdateInbound(ctx context.Context, msg *models.InboundMessage) error {
	return translateErr(s.db.WithContext(ctx).Save(msg).Error)
}

func (s *GormStore) ListUnprocessedInbound(ctx context.Context, limit int) ([]models.InboundMessage, error) {
	var messages []models.InboundMessage
	q := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&messages).Error
	return messages, translateErr(err)
}

func (s *GormStore) ReplyCounts(ctx context.Context, campaignID uint, since time.Time) (int, int, error) {
	var replies, positives int64
	err := s.db.WithContext(ctx).Model(&models.InboundMessage{}).
		Where("campaign_id = ? AND received_at >= ? AND classification <> '' AND classification <> ?",
			campaignID, since, models.ReplyBounce).
		Count(&replies).Error
	if err != nil {
		return 0, 0, translateErr(err)
	}
	err = s.db.WithContext(ctx).Model(&models.InboundMessage{}).
		Where("campaign_id = ? AND received_at >= ? AND classification = ?",
			campaignID, since, models.ReplyPositive).
		Count(&positives).Error
	return int(replies), int(positives), translateErr(err)
}

// ---------- Sequences ----------

func (s *GormStore) GetSequenceConfig(ctx context.Context, name string) (*models.SequenceConfig, error) {
	var config models.SequenceConfig
	err := s.db.WithContext(ctx).
		Preload("Steps").
		Where("name = ?", name).
		First(&config).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &config, nil
}

func (s *GormStore) UpsertSequenceConfig(ctx context.Context, config *models.SequenceConfig) error {
	var existing models.SequenceConfig
	err := s.db.WithContext(ctx).Where("name = ?", config.Name).First(&existing).Error
	if err == nil {
		config.ID = existing.ID
		if err := s.db.WithContext(ctx).Where("sequence_config_id = ?", existing.ID).
			Delete(&models.SequenceStep{}).Error; err != nil {
			return translateErr(err)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return translateErr(err)
	}
	return translateErr(s.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(config).Error)
}

func (s *GormStore) ListSequenceConfigs(ctx context.Context) ([]models.SequenceConfig, error) {
	var configs []models.SequenceConfig
	err := s.db.WithContext(ctx).Preload("Steps").Order("id").Find(&configs).Error
	return configs, translateErr(err)
}

// ---------- Do-not-contact ----------

func (s *GormStore) AddDoNotContact(ctx context.Context, entry *models.DoNotContact) error {
	return translateErr(s.db.WithContext(ctx).Create(entry).Error)
}

func (s *GormStore) IsBlocked(ctx context.Context, email, domain string, leadID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.DoNotContact{}).
		Where("(email <> '' AND email = ?) OR (domain <> '' AND domain = ?) OR lead_id = ?",
			email, domain, leadID).
		Count(&count).Error
	return count > 0, translateErr(err)
}
