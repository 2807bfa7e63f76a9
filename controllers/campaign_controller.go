package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadpilot/engine"
	"leadpilot/models"
	"leadpilot/store"
	"leadpilot/utils"
)

type CampaignController struct {
	Store        store.Store
	Orchestrator *engine.Orchestrator
	Decision     *engine.DecisionEngine
	Logger       *logrus.Entry
}

func NewCampaignController(st store.Store, orch *engine.Orchestrator, decision *engine.DecisionEngine, logger *logrus.Entry) *CampaignController {
	return &CampaignController{
		Store:        st,
		Orchestrator: orch,
		Decision:     decision,
		Logger:       logger,
	}
}

type createCampaignInput struct {
	Name        string `json:"name" validate:"required,min=3,max=120"`
	Description string `json:"description"`
	Mode        string `json:"mode" validate:"omitempty,oneof=LIVE SIMULATION"`

	TargetCompanySizes []string `json:"target_company_sizes"`
	TargetIndustries   []string `json:"target_industries"`
	TargetRevenueBands []string `json:"target_revenue_bands"`
	TargetGeographies  []string `json:"target_geographies"`
	TargetTitles       []string `json:"target_titles"`

	AutoPauseEnabled      *bool `json:"auto_pause_enabled"`
	IntentBoostEnabled    *bool `json:"intent_boost_enabled"`
	IntentBoostMinSignals *int  `json:"intent_boost_min_signals"`
}

func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	var input createCampaignInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	campaign := models.Campaign{
		Name:                  input.Name,
		Description:           input.Description,
		Mode:                  models.CampaignModeLive,
		Status:                models.CampaignStatusDraft,
		TargetCompanySizes:    input.TargetCompanySizes,
		TargetIndustries:      input.TargetIndustries,
		TargetRevenueBands:    input.TargetRevenueBands,
		TargetGeographies:     input.TargetGeographies,
		TargetTitles:          input.TargetTitles,
		AutoPauseEnabled:      true,
		IntentBoostEnabled:    true,
		IntentBoostMinSignals: 2,
	}
	if input.Mode != "" {
		campaign.Mode = input.Mode
	}
	if input.AutoPauseEnabled != nil {
		campaign.AutoPauseEnabled = *input.AutoPauseEnabled
	}
	if input.IntentBoostEnabled != nil {
		campaign.IntentBoostEnabled = *input.IntentBoostEnabled
	}
	if input.IntentBoostMinSignals != nil {
		campaign.IntentBoostMinSignals = *input.IntentBoostMinSignals
	}

	if err := cc.Store.CreateCampaign(c.Context(), &campaign); err != nil {
		cc.Logger.Errorf("failed to create campaign: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create campaign", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(campaign))
}

func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	campaigns, err := cc.Store.ListCampaigns(c.Context())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list campaigns", nil)
	}
	return c.JSON(utils.SuccessResponse(campaigns))
}

func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	campaign, err := cc.loadCampaign(c)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(campaign))
}

func (cc *CampaignController) StartCampaign(c *fiber.Ctx) error {
	campaign, err := cc.loadCampaign(c)
	if err != nil {
		return err
	}

	if campaign.Status == models.CampaignStatusCompleted {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Campaign is completed", nil)
	}

	// Starting requires safety settings; refusing here beats silently
	// skipping the campaign on every tick.
	if _, err := cc.Store.GetSafetySettings(c.Context(), campaign.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Campaign has no safety settings; configure them before starting", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load safety settings", nil)
	}

	campaign.Status = models.CampaignStatusActive
	campaign.Paused = false
	campaign.PauseReason = ""
	campaign.PausedAt = nil
	if err := cc.Store.UpdateCampaign(c.Context(), campaign); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start campaign", nil)
	}

	cc.Logger.WithField("campaign_id", campaign.ID).Info("campaign started")
	return c.JSON(utils.SuccessResponse(campaign))
}

func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	campaign, err := cc.loadCampaign(c)
	if err != nil {
		return err
	}

	var input struct {
		Reason string `json:"reason"`
	}
	_ = c.BodyParser(&input)
	if input.Reason == "" {
		input.Reason = "paused by operator"
	}

	now := time.Now()
	campaign.Paused = true
	campaign.PausedAt = &now
	campaign.PauseReason = input.Reason
	if err := cc.Store.UpdateCampaign(c.Context(), campaign); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to pause campaign", nil)
	}

	cc.Logger.WithField("campaign_id", campaign.ID).Infof("campaign paused: %s", input.Reason)
	return c.JSON(utils.SuccessResponse(campaign))
}

func (cc *CampaignController) ResumeCampaign(c *fiber.Ctx) error {
	campaign, err := cc.loadCampaign(c)
	if err != nil {
		return err
	}

	campaign.Paused = false
	campaign.PausedAt = nil
	campaign.PauseReason = ""
	if err := cc.Store.UpdateCampaign(c.Context(), campaign); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to resume campaign", nil)
	}

	cc.Logger.WithField("campaign_id", campaign.ID).Info("campaign resumed")
	return c.JSON(utils.SuccessResponse(campaign))
}

// TickCampaign runs a single orchestration pass for one campaign on
// demand. The background scheduler covers normal operation.
func (cc *CampaignController) TickCampaign(c *fiber.Ctx) error {
	campaign, err := cc.loadCampaign(c)
	if err != nil {
		return err
	}

	result := cc.Orchestrator.TickCampaign(c.Context(), campaign)
	return c.JSON(utils.SuccessResponse(result))
}

func (cc *CampaignController) GetCampaignStats(c *fiber.Ctx) error {
	campaign, err := cc.loadCampaign(c)
	if err != nil {
		return err
	}

	snapshot, err := cc.Decision.Snapshot(c.Context(), campaign.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to compute metrics", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"campaign": campaign,
		"window":   snapshot,
	}))
}

// GetPauseRecommendation exposes the decision engine's verdict without
// acting on it, for operators reviewing a campaign's health.
func (cc *CampaignController) GetPauseRecommendation(c *fiber.Ctx) error {
	campaign, err := cc.loadCampaign(c)
	if err != nil {
		return err
	}

	rec, err := cc.Decision.Evaluate(c.Context(), campaign.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to evaluate campaign", nil)
	}
	return c.JSON(utils.SuccessResponse(rec))
}

func (cc *CampaignController) loadCampaign(c *fiber.Ctx) (*models.Campaign, error) {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return nil, utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign id", nil)
	}
	campaign, err := cc.Store.GetCampaign(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
		}
		return nil, utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load campaign", nil)
	}
	return campaign, nil
}
