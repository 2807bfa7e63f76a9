package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadpilot/models"
	"leadpilot/store"
	"leadpilot/utils"
)

type SettingsController struct {
	Store  store.Store
	Logger *logrus.Entry
}

func NewSettingsController(st store.Store, logger *logrus.Entry) *SettingsController {
	return &SettingsController{Store: st, Logger: logger}
}

func (sc *SettingsController) GetSafetySettings(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))
	if campaignID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign id", nil)
	}

	settings, err := sc.Store.GetSafetySettings(c.Context(), campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Safety settings not configured", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load safety settings", nil)
	}
	return c.JSON(utils.SuccessResponse(settings))
}

type channelConfigInput struct {
	Channel string `json:"channel" validate:"required,oneof=email linkedin webform"`
	Enabled *bool  `json:"enabled"`

	HourlyCap int `json:"hourly_cap" validate:"min=0"`
	DailyCap  int `json:"daily_cap" validate:"min=0"`

	WarmupEnabled   bool `json:"warmup_enabled"`
	WarmupStart     int  `json:"warmup_start" validate:"min=0"`
	WarmupIncrement int  `json:"warmup_increment" validate:"min=0"`
	WarmupMax       int  `json:"warmup_max" validate:"min=0"`

	MaxRetries         int   `json:"max_retries" validate:"min=0,max=10"`
	BackoffHours       []int `json:"backoff_hours"`
	SendTimeoutSeconds int   `json:"send_timeout_seconds" validate:"min=0,max=300"`
}

type safetySettingsInput struct {
	SendWindowStartHour int `json:"send_window_start_hour" validate:"min=0,max=23"`
	SendWindowEndHour   int `json:"send_window_end_hour" validate:"min=0,max=23"`

	BlockedDomains []string `json:"blocked_domains"`
	BlockedEmails  []string `json:"blocked_emails"`

	ChannelConfigs []channelConfigInput `json:"channel_configs" validate:"required,min=1,dive"`
}

// UpdateSafetySettings replaces the campaign's guard configuration
// wholesale. Warmup clocks already running are preserved per channel.
func (sc *SettingsController) UpdateSafetySettings(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))
	if campaignID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign id", nil)
	}
	if _, err := sc.Store.GetCampaign(c.Context(), campaignID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load campaign", nil)
	}

	var input safetySettingsInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	settings := &models.SafetySettings{
		CampaignID:          campaignID,
		SendWindowStartHour: input.SendWindowStartHour,
		SendWindowEndHour:   input.SendWindowEndHour,
		BlockedDomains:      input.BlockedDomains,
		BlockedEmails:       input.BlockedEmails,
	}

	// Keep identity and warmup clocks of existing rows
	existing, err := sc.Store.GetSafetySettings(c.Context(), campaignID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load safety settings", nil)
	}
	if existing != nil {
		settings.ID = existing.ID
	}

	for _, in := range input.ChannelConfigs {
		cfg := models.ChannelConfig{
			Channel:            in.Channel,
			Enabled:            true,
			HourlyCap:          in.HourlyCap,
			DailyCap:           in.DailyCap,
			WarmupEnabled:      in.WarmupEnabled,
			WarmupStart:        in.WarmupStart,
			WarmupIncrement:    in.WarmupIncrement,
			WarmupMax:          in.WarmupMax,
			MaxRetries:         in.MaxRetries,
			BackoffHours:       in.BackoffHours,
			SendTimeoutSeconds: in.SendTimeoutSeconds,
		}
		if in.Enabled != nil {
			cfg.Enabled = *in.Enabled
		}
		if existing != nil {
			for _, old := range existing.ChannelConfigs {
				if old.Channel == in.Channel {
					cfg.ID = old.ID
					cfg.WarmupStartedAt = old.WarmupStartedAt
					break
				}
			}
		}
		settings.ChannelConfigs = append(settings.ChannelConfigs, cfg)
	}

	if err := sc.Store.SaveSafetySettings(c.Context(), settings); err != nil {
		sc.Logger.Errorf("failed to save safety settings: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save safety settings", nil)
	}

	return c.JSON(utils.SuccessResponse(settings))
}

func (sc *SettingsController) GetSequences(c *fiber.Ctx) error {
	sequences, err := sc.Store.ListSequenceConfigs(c.Context())
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list sequences", nil)
	}
	return c.JSON(utils.SuccessResponse(sequences))
}

type sequenceStepInput struct {
	StepNumber        int    `json:"step_number" validate:"required,min=1"`
	Channel           string `json:"channel" validate:"required,oneof=email linkedin webform"`
	TemplateRef       string `json:"template_ref" validate:"required"`
	MaxRetries        int    `json:"max_retries" validate:"min=0,max=10"`
	FallbackDelayDays int    `json:"fallback_delay_days" validate:"min=0"`
}

type sequenceInput struct {
	Name             string              `json:"name" validate:"required,min=3,max=80"`
	ReplyTimeoutDays int                 `json:"reply_timeout_days" validate:"min=1,max=90"`
	Steps            []sequenceStepInput `json:"steps" validate:"required,min=1,dive"`
}

// UpsertSequence creates or replaces a named sequence. Step numbers must
// form 1..N without gaps so the sequencer's position math holds.
func (sc *SettingsController) UpsertSequence(c *fiber.Ctx) error {
	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	seen := make(map[int]bool, len(input.Steps))
	for _, step := range input.Steps {
		seen[step.StepNumber] = true
	}
	for n := 1; n <= len(input.Steps); n++ {
		if !seen[n] {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Step numbers must form a contiguous 1..N range", nil)
		}
	}

	seq := &models.SequenceConfig{
		Name:             input.Name,
		ReplyTimeoutDays: input.ReplyTimeoutDays,
	}
	for _, in := range input.Steps {
		seq.Steps = append(seq.Steps, models.SequenceStep{
			StepNumber:        in.StepNumber,
			Channel:           in.Channel,
			TemplateRef:       in.TemplateRef,
			MaxRetries:        in.MaxRetries,
			FallbackDelayDays: in.FallbackDelayDays,
		})
	}

	if err := sc.Store.UpsertSequenceConfig(c.Context(), seq); err != nil {
		sc.Logger.Errorf("failed to upsert sequence %q: %v", input.Name, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save sequence", nil)
	}

	return c.JSON(utils.SuccessResponse(seq))
}

// AddDoNotContact registers a manual suppression entry by email or domain.
func (sc *SettingsController) AddDoNotContact(c *fiber.Ctx) error {
	var input struct {
		Email  string `json:"email" validate:"omitempty,email"`
		Domain string `json:"domain"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.Email == "" && input.Domain == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Either email or domain is required", nil)
	}
	if input.Reason == "" {
		input.Reason = "manual"
	}

	entry := &models.DoNotContact{
		Email:  input.Email,
		Domain: input.Domain,
		Reason: input.Reason,
	}
	if err := sc.Store.AddDoNotContact(c.Context(), entry); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to add suppression entry", nil)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(entry))
}
