package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"leadpilot/models"
)

// MemoryStore is an in-memory Store used by tests and by simulation runs
// that should leave no trace in the database.
type MemoryStore struct {
	mu sync.RWMutex

	nextID    uint
	leads     map[uint]models.Lead
	campaigns map[uint]models.Campaign
	settings  map[uint]models.SafetySettings // keyed by campaign id
	attempts  map[uint]models.OutreachAttempt
	byKey     map[string]uint // idempotency key -> attempt id
	inbound   map[uint]models.InboundMessage
	inboundBy map[string]uint // provider+msgid -> inbound id
	sequences map[string]models.SequenceConfig
	dnc       []models.DoNotContact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads:     map[uint]models.Lead{},
		campaigns: map[uint]models.Campaign{},
		settings:  map[uint]models.SafetySettings{},
		attempts:  map[uint]models.OutreachAttempt{},
		byKey:     map[string]uint{},
		inbound:   map[uint]models.InboundMessage{},
		inboundBy: map[string]uint{},
		sequences: map[string]models.SequenceConfig{},
	}
}

func (m *MemoryStore) nextIDLocked() uint {
	m.nextID++
	return m.nextID
}

func inboundKey(provider, messageID string) string {
	return provider + "|" + messageID
}

// ---------- Leads ----------

func (m *MemoryStore) CreateLead(ctx context.Context, lead *models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lead.ID == 0 {
		lead.ID = m.nextIDLocked()
	}
	lead.CreatedAt = time.Now()
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}
	m.leads[lead.ID] = *lead
	return nil
}

func (m *MemoryStore) GetLead(ctx context.Context, id uint) (*models.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lead, ok := m.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &lead, nil
}

func (m *MemoryStore) FindLeadByEmail(ctx context.Context, email string) (*models.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *models.Lead
	for id := range m.leads {
		lead := m.leads[id]
		if strings.EqualFold(lead.Email, email) {
			if found == nil || lead.ID > found.ID {
				found = &lead
			}
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (m *MemoryStore) UpdateLead(ctx context.Context, lead *models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leads[lead.ID]; !ok {
		return ErrNotFound
	}
	m.leads[lead.ID] = *lead
	return nil
}

func (m *MemoryStore) ListEligibleLeads(ctx context.Context, campaignID uint, limit int) ([]models.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Lead
	for _, lead := range m.leads {
		if lead.CampaignID == campaignID && !models.TerminalLeadStatuses[lead.Status] {
			out = append(out, lead)
		}
	}
	sortLeads(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListLeadsByStatus(ctx context.Context, campaignID uint, status string, limit int) ([]models.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Lead
	for _, lead := range m.leads {
		if lead.CampaignID == campaignID && lead.Status == status {
			out = append(out, lead)
		}
	}
	sortLeads(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListLeads(ctx context.Context, campaignID uint, page, perPage int) ([]models.Lead, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []models.Lead
	for _, lead := range m.leads {
		if lead.CampaignID == campaignID {
			all = append(all, lead)
		}
	}
	sortLeads(all)
	total := int64(len(all))
	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func sortLeads(leads []models.Lead) {
	sort.Slice(leads, func(i, j int) bool { return leads[i].ID < leads[j].ID })
}

// ---------- Campaigns ----------

func (m *MemoryStore) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if campaign.ID == 0 {
		campaign.ID = m.nextIDLocked()
	}
	campaign.CreatedAt = time.Now()
	m.campaigns[campaign.ID] = *campaign
	return nil
}

func (m *MemoryStore) GetCampaign(ctx context.Context, id uint) (*models.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	campaign, ok := m.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &campaign, nil
}

func (m *MemoryStore) UpdateCampaign(ctx context.Context, campaign *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[campaign.ID]; !ok {
		return ErrNotFound
	}
	m.campaigns[campaign.ID] = *campaign
	return nil
}

func (m *MemoryStore) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Campaign
	for _, campaign := range m.campaigns {
		out = append(out, campaign)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ListRunnableCampaigns(ctx context.Context) ([]models.Campaign, error) {
	all, _ := m.ListCampaigns(ctx)
	var out []models.Campaign
	for _, campaign := range all {
		if campaign.IsRunnable() {
			out = append(out, campaign)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetSafetySettings(ctx context.Context, campaignID uint) (*models.SafetySettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	settings, ok := m.settings[campaignID]
	if !ok {
		return nil, ErrNotFound
	}
	return &settings, nil
}

func (m *MemoryStore) SaveSafetySettings(ctx context.Context, settings *models.SafetySettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if settings.ID == 0 {
		settings.ID = m.nextIDLocked()
	}
	m.settings[settings.CampaignID] = *settings
	return nil
}

// ---------- Attempts ----------

func (m *MemoryStore) CreateAttempt(ctx context.Context, attempt *models.OutreachAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKey[attempt.IdempotencyKey]; exists {
		return ErrDuplicate
	}
	if attempt.ID == 0 {
		attempt.ID = m.nextIDLocked()
	}
	attempt.CreatedAt = time.Now()
	m.attempts[attempt.ID] = *attempt
	m.byKey[attempt.IdempotencyKey] = attempt.ID
	return nil
}

func (m *MemoryStore) GetAttemptByKey(ctx context.Context, idempotencyKey string) (*models.OutreachAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[idempotencyKey]
	if !ok {
		return nil, ErrNotFound
	}
	attempt := m.attempts[id]
	return &attempt, nil
}

func (m *MemoryStore) UpdateAttempt(ctx context.Context, attempt *models.OutreachAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[attempt.ID]; !ok {
		return ErrNotFound
	}
	m.attempts[attempt.ID] = *attempt
	return nil
}

func (m *MemoryStore) ListAttemptsByLead(ctx context.Context, leadID uint) ([]models.OutreachAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.OutreachAttempt
	for _, attempt := range m.attempts {
		if attempt.LeadID == leadID {
			out = append(out, attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) AttemptCounts(ctx context.Context, campaignID uint, since time.Time) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	attempts, bounces := 0, 0
	for _, attempt := range m.attempts {
		if attempt.CampaignID != campaignID || attempt.CreatedAt.Before(since) {
			continue
		}
		if attempt.Status == models.AttemptStatusSkipped {
			continue
		}
		attempts++
		if attempt.Status == models.AttemptStatusBounced {
			bounces++
		}
	}
	return attempts, bounces, nil
}

// ---------- Inbound ----------

func (m *MemoryStore) CreateInbound(ctx context.Context, msg *models.InboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := inboundKey(msg.Provider, msg.ProviderMessageID)
	if _, exists := m.inboundBy[key]; exists {
		return ErrDuplicate
	}
	if msg.ID == 0 {
		msg.ID = m.nextIDLocked()
	}
	msg.CreatedAt = time.Now()
	m.inbound[msg.ID] = *msg
	m.inboundBy[key] = msg.ID
	return nil
}

func (m *MemoryStore) UpdateInbound(ctx context.Context, msg *models.InboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inbound[msg.ID]; !ok {
		return ErrNotFound
	}
	m.inbound[msg.ID] = *msg
	return nil
}

func (m *MemoryStore) ListUnprocessedInbound(ctx context.Context, limit int) ([]models.InboundMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.InboundMessage
	for _, msg := range m.inbound {
		if !msg.Processed {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ReplyCounts(ctx context.Context, campaignID uint, since time.Time) (int, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	replies, positives := 0, 0
	for _, msg := range m.inbound {
		if msg.CampaignID != campaignID || msg.ReceivedAt.Before(since) {
			continue
		}
		if msg.Classification == "" || msg.Classification == models.ReplyBounce {
			continue
		}
		replies++
		if msg.Classification == models.ReplyPositive {
			positives++
		}
	}
	return replies, positives, nil
}

// ---------- Sequences ----------

func (m *MemoryStore) GetSequenceConfig(ctx context.Context, name string) (*models.SequenceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	config, ok := m.sequences[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &config, nil
}

func (m *MemoryStore) UpsertSequenceConfig(ctx context.Context, config *models.SequenceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if config.ID == 0 {
		config.ID = m.nextIDLocked()
	}
	m.sequences[config.Name] = *config
	return nil
}

func (m *MemoryStore) ListSequenceConfigs(ctx context.Context) ([]models.SequenceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.SequenceConfig
	for _, config := range m.sequences {
		out = append(out, config)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ---------- Do-not-contact ----------

func (m *MemoryStore) AddDoNotContact(ctx context.Context, entry *models.DoNotContact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == 0 {
		entry.ID = m.nextIDLocked()
	}
	m.dnc = append(m.dnc, *entry)
	return nil
}

func (m *MemoryStore) IsBlocked(ctx context.Context, email, domain string, leadID uint) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(email)
	domain = strings.ToLower(domain)
	for _, entry := range m.dnc {
		if entry.Email != "" && strings.ToLower(entry.Email) == email {
			return true, nil
		}
		if entry.Domain != "" && strings.ToLower(entry.Domain) == domain {
			return true, nil
		}
		if entry.LeadID != nil && *entry.LeadID == leadID {
			return true, nil
		}
	}
	return false, nil
}
