package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"leadpilot/channel"
	"leadpilot/models"
	"leadpilot/safety"
	"leadpilot/store"
)

// OrchestratorConfig bounds the work done per tick.
type OrchestratorConfig struct {
	// BatchSize caps eligible leads pulled per campaign per tick.
	BatchSize int
	// Workers bounds the per-campaign worker pool; leads are independent
	// so they parallelize safely.
	Workers int
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{BatchSize: 100, Workers: 8}
}

// CampaignTickResult summarizes one campaign's tick.
type CampaignTickResult struct {
	CampaignID uint           `json:"campaign_id"`
	Skipped    bool           `json:"skipped"` // paused or misconfigured
	SkipReason string         `json:"skip_reason,omitempty"`
	Processed  int            `json:"processed"`
	Outcomes   map[string]int `json:"outcomes"`
	TimedOut   int            `json:"timed_out"`
	Errors     int            `json:"errors"`
	Paused     bool           `json:"paused"`
	PauseNote  string         `json:"pause_note,omitempty"`
}

// TickSummary aggregates one scheduler invocation across campaigns.
type TickSummary struct {
	StartedAt time.Time            `json:"started_at"`
	Duration  time.Duration        `json:"duration"`
	Campaigns []CampaignTickResult `json:"campaigns"`
}

// Orchestrator is the top-level batch driver. It owns no loop; the caller
// (worker ticker, manual endpoint) invokes RunTick and controls cadence.
type Orchestrator struct {
	store        store.Store
	usage        safety.UsageStore
	liveRegistry *channel.Registry
	simRegistry  *channel.Registry

	scoring    *ScoringEngine
	qualifier  *QualificationFilter
	router     *LeadRouter
	sequencer  *Sequencer
	followUp   *FollowUpEngine
	decision   *DecisionEngine

	cfg    OrchestratorConfig
	logger *logrus.Entry

	// onTick, when set, receives every summary (websocket progress feed).
	onTick func(TickSummary)
	now    func() time.Time
}

func NewOrchestrator(
	st store.Store,
	usage safety.UsageStore,
	liveRegistry *channel.Registry,
	simRegistry *channel.Registry,
	scoring *ScoringEngine,
	qualifier *QualificationFilter,
	router *LeadRouter,
	sequencer *Sequencer,
	followUp *FollowUpEngine,
	decision *DecisionEngine,
	cfg OrchestratorConfig,
	logger *logrus.Entry,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultOrchestratorConfig().BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultOrchestratorConfig().Workers
	}
	return &Orchestrator{
		store:        st,
		usage:        usage,
		liveRegistry: liveRegistry,
		simRegistry:  simRegistry,
		scoring:      scoring,
		qualifier:    qualifier,
		router:       router,
		sequencer:    sequencer,
		followUp:     followUp,
		decision:     decision,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// OnTick registers the progress callback.
func (o *Orchestrator) OnTick(fn func(TickSummary)) {
	o.onTick = fn
}

// RunTick processes every runnable campaign. Campaigns are independent;
// one campaign's configuration failure excludes it from the tick without
// aborting the others.
func (o *Orchestrator) RunTick(ctx context.Context) (TickSummary, error) {
	started := o.now()
	summary := TickSummary{StartedAt: started}

	campaigns, err := o.store.ListRunnableCampaigns(ctx)
	if err != nil {
		return summary, fmt.Errorf("list runnable campaigns: %w", err)
	}

	var wg sync.WaitGroup
	results := make([]CampaignTickResult, len(campaigns))
	for i := range campaigns {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = o.TickCampaign(ctx, &campaigns[idx])
		}(i)
	}
	wg.Wait()

	summary.Campaigns = results
	summary.Duration = o.now().Sub(started)

	if o.onTick != nil {
		o.onTick(summary)
	}
	return summary, nil
}

// TickCampaign runs one campaign's tick: timeout sweep, lead batch through
// the pipeline, bookkeeping, and the pause decision.
func (o *Orchestrator) TickCampaign(ctx context.Context, campaign *models.Campaign) CampaignTickResult {
	result := CampaignTickResult{CampaignID: campaign.ID, Outcomes: map[string]int{}}
	log := o.logger.WithField("campaign_id", campaign.ID)

	if !campaign.IsRunnable() {
		result.Skipped = true
		result.SkipReason = "campaign not active or paused"
		return result
	}

	settings, err := o.store.GetSafetySettings(ctx, campaign.ID)
	if err != nil {
		result.Skipped = true
		result.SkipReason = "no safety settings: " + err.Error()
		log.Errorf("campaign excluded from tick: %v", err)
		return result
	}

	sequences, err := o.loadSequences(ctx, campaign)
	if err != nil {
		// ConfigurationMissing fails fast for this campaign only.
		result.Skipped = true
		result.SkipReason = err.Error()
		log.Errorf("campaign excluded from tick: %v", err)
		return result
	}

	guard := safety.NewGuard(settings, o.usage, o.store)
	registry := o.liveRegistry
	if campaign.Mode == models.CampaignModeSimulation {
		registry = o.simRegistry
	}

	timedOut, err := o.followUp.CheckTimeouts(ctx, campaign, sequences)
	if err != nil {
		log.Errorf("timeout sweep failed: %v", err)
	}
	result.TimedOut = timedOut

	leads, err := o.store.ListEligibleLeads(ctx, campaign.ID, o.cfg.BatchSize)
	if err != nil {
		result.Skipped = true
		result.SkipReason = "lead listing failed: " + err.Error()
		return result
	}

	// Bounded worker pool; each lead's state is its own, so no cross-lead
	// locking is needed.
	sem := make(chan struct{}, o.cfg.Workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := range leads {
		wg.Add(1)
		sem <- struct{}{}
		go func(lead models.Lead) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := o.processLead(ctx, guard, registry, campaign, &lead, sequences)
			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			if err != nil {
				// Per-lead failures never abort the batch.
				result.Errors++
				log.WithField("lead_id", lead.ID).Errorf("lead processing failed: %v", err)
				sentry.CaptureException(err)
				return
			}
			if outcome != "" {
				result.Outcomes[outcome]++
			}
		}(leads[i])
	}
	wg.Wait()

	o.finishTick(ctx, campaign, &result, log)
	return result
}

// processLead advances one lead through score → qualify → route →
// sequence, as far as its current status allows within this tick.
func (o *Orchestrator) processLead(
	ctx context.Context,
	guard *safety.Guard,
	registry *channel.Registry,
	campaign *models.Campaign,
	lead *models.Lead,
	sequences map[string]*models.SequenceConfig,
) (string, error) {
	if lead.Status == models.LeadStatusNew {
		if lead.Tier == "" {
			o.scoring.Score(lead, campaign)
		}
		qual := o.qualifier.Qualify(lead)
		if !qual.Passed() {
			lead.Status = models.LeadStatusLost
			if err := o.store.UpdateLead(ctx, lead); err != nil {
				return "", err
			}
			o.logger.WithFields(logrus.Fields{
				"lead_id": lead.ID,
				"reasons": qual.Reasons,
			}).Info("lead rejected by qualification")
			return "REJECTED", nil
		}
		lead.Status = models.LeadStatusQualified
		if err := o.store.UpdateLead(ctx, lead); err != nil {
			return "", err
		}
	}

	if lead.Status == models.LeadStatusQualified && lead.SequenceID == "" {
		decision := o.router.Route(lead, campaign)
		switch decision.Status {
		case RoutingRouted:
			if err := o.store.UpdateLead(ctx, lead); err != nil {
				return "", err
			}
		case RoutingAlreadyRouted:
			// Idempotent re-entry, nothing to persist.
		default:
			return decision.Status, nil
		}
	}

	if lead.Status != models.LeadStatusRouted {
		return "", nil
	}

	seq := sequences[lead.SequenceID]
	if seq == nil {
		return "", fmt.Errorf("lead %d routed to unknown sequence %q", lead.ID, lead.SequenceID)
	}

	stepResult, err := o.sequencer.RunStep(ctx, guard, registry, campaign, lead, seq)
	if err != nil {
		return "", err
	}
	if stepResult.Outcome == OutcomeSequenceComplete {
		lead.Status = models.LeadStatusTimedOut
		if err := o.store.UpdateLead(ctx, lead); err != nil {
			return "", err
		}
	}
	return stepResult.Outcome, nil
}

// loadSequences resolves every sequence a campaign can route to and fails
// fast when a tier's sequence is missing or empty.
func (o *Orchestrator) loadSequences(ctx context.Context, campaign *models.Campaign) (map[string]*models.SequenceConfig, error) {
	sequences := map[string]*models.SequenceConfig{}
	for _, tier := range []string{models.TierHot, models.TierWarm, models.TierCool, models.TierCold} {
		name, ok := o.router.SequenceFor(tier)
		if !ok {
			return nil, fmt.Errorf("configuration missing: no sequence mapped for tier %s", tier)
		}
		if _, loaded := sequences[name]; loaded {
			continue
		}
		seq, err := o.store.GetSequenceConfig(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("configuration missing: sequence %q for tier %s is not defined", name, tier)
			}
			return nil, err
		}
		if len(seq.Steps) == 0 {
			return nil, fmt.Errorf("configuration missing: sequence %q has no steps", name)
		}
		sequences[name] = seq
	}
	return sequences, nil
}

// finishTick updates the campaign bookkeeping and applies the pause
// recommendation when auto-pause is on.
func (o *Orchestrator) finishTick(ctx context.Context, campaign *models.Campaign, result *CampaignTickResult, log *logrus.Entry) {
	now := o.now()
	campaign.LastTickAt = &now
	campaign.TickCount++
	campaign.SentCount += result.Outcomes[OutcomeSent]
	campaign.BounceCount += result.Outcomes[OutcomeSuppressed]

	rec, err := o.decision.Evaluate(ctx, campaign.ID)
	if err != nil {
		log.Errorf("decision evaluation failed: %v", err)
	} else if rec.Pause && campaign.AutoPauseEnabled {
		campaign.Paused = true
		campaign.PausedAt = &now
		campaign.PauseReason = rec.Reason
		result.Paused = true
		result.PauseNote = rec.Reason
		log.Warnf("campaign auto-paused: %s", rec.Reason)
	}

	if err := o.store.UpdateCampaign(ctx, campaign); err != nil {
		log.Errorf("failed to persist campaign bookkeeping: %v", err)
	}
}
