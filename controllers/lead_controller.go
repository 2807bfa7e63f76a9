package controller

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadpilot/models"
	"leadpilot/store"
	"leadpilot/utils"
)

type LeadController struct {
	Store  store.Store
	Logger *logrus.Entry
}

func NewLeadController(st store.Store, logger *logrus.Entry) *LeadController {
	return &LeadController{Store: st, Logger: logger}
}

type createLeadInput struct {
	CampaignID uint `json:"campaign_id" validate:"required"`

	Email        string `json:"email" validate:"omitempty,email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Company      string `json:"company"`
	Title        string `json:"title"`
	SocialHandle string `json:"social_handle"`
	FormURL      string `json:"form_url" validate:"omitempty,url"`

	CompanySize    string `json:"company_size"`
	Industry       string `json:"industry"`
	RevenueBand    string `json:"revenue_band"`
	Geography      string `json:"geography"`
	SeniorityLevel string `json:"seniority_level"`

	RecentRoleChange bool `json:"recent_role_change"`
	CompanyHiring    bool `json:"company_hiring"`
	CompanyFunded    bool `json:"company_funded"`
	BudgetAuthority  bool `json:"budget_authority"`
	DecisionMaker    bool `json:"decision_maker"`
	RecentActivity   bool `json:"recent_activity"`

	Source string `json:"source"`
}

func (lc *LeadController) CreateLead(c *fiber.Ctx) error {
	var input createLeadInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if _, err := lc.Store.GetCampaign(c.Context(), input.CampaignID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load campaign", nil)
	}

	lead := leadFromInput(input)
	if err := lc.Store.CreateLead(c.Context(), lead); err != nil {
		lc.Logger.Errorf("failed to create lead: %v", err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create lead", nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(lead))
}

func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Query("campaign_id"))
	if campaignID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "campaign_id query parameter is required", nil)
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	leads, total, err := lc.Store.ListLeads(c.Context(), campaignID, page, limit)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list leads", nil)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  leads,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	lead, err := lc.loadLead(c)
	if err != nil {
		return err
	}
	return c.JSON(utils.SuccessResponse(lead))
}

// SuppressLead places the lead on the do-not-contact list and ends its
// lifecycle. Used when a contact opts out through a side channel.
func (lc *LeadController) SuppressLead(c *fiber.Ctx) error {
	lead, err := lc.loadLead(c)
	if err != nil {
		return err
	}

	var input struct {
		Reason string `json:"reason"`
	}
	_ = c.BodyParser(&input)
	if input.Reason == "" {
		input.Reason = "manual"
	}

	entry := &models.DoNotContact{
		Email:  strings.ToLower(lead.Email),
		Domain: lead.EmailDomain(),
		LeadID: &lead.ID,
		Reason: input.Reason,
	}
	if err := lc.Store.AddDoNotContact(c.Context(), entry); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to add suppression entry", nil)
	}

	if !lead.IsTerminal() {
		lead.Status = models.LeadStatusSuppressed
		if err := lc.Store.UpdateLead(c.Context(), lead); err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update lead", nil)
		}
	}

	lc.Logger.WithField("lead_id", lead.ID).Infof("lead suppressed: %s", input.Reason)
	return c.JSON(utils.SuccessResponse(lead))
}

// VerifyLeadEmail runs the full verification pass (SMTP probe and WHOIS)
// against a lead's email on demand.
func (lc *LeadController) VerifyLeadEmail(c *fiber.Ctx) error {
	lead, err := lc.loadLead(c)
	if err != nil {
		return err
	}
	if lead.Email == "" {
		return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Lead has no email address", nil)
	}

	result, err := utils.VerifyEmailAddress(lead.Email)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Verification failed", err)
	}
	return c.JSON(utils.SuccessResponse(result))
}

// csvImportSummary reports per-row outcomes of a bulk import.
type csvImportSummary struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportLeadsCSV ingests a CSV upload. Expected header:
// email,first_name,last_name,company,title,company_size,industry,revenue_band,geography
// Rows failing the cheap contactability check are skipped, not imported.
func (lc *LeadController) ImportLeadsCSV(c *fiber.Ctx) error {
	campaignID := utils.ParseUint(c.Params("id"))
	if campaignID == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign id", nil)
	}
	if _, err := lc.Store.GetCampaign(c.Context(), campaignID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load campaign", nil)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Missing file upload", err)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to open upload", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to read CSV header", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["email"]; !ok {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "CSV must have an email column", nil)
	}

	field := func(record []string, name string) string {
		if idx, ok := col[name]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	summary := csvImportSummary{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			summary.Skipped++
			summary.Errors = append(summary.Errors, lineError(line, "unreadable row"))
			continue
		}

		email := strings.ToLower(field(record, "email"))
		if email == "" {
			summary.Skipped++
			summary.Errors = append(summary.Errors, lineError(line, "missing email"))
			continue
		}
		if verdict := utils.VerifyContactability(email); !verdict.Contactable {
			summary.Skipped++
			summary.Errors = append(summary.Errors, lineError(line, verdict.Detail))
			continue
		}

		lead := &models.Lead{
			CampaignID:  campaignID,
			Email:       email,
			FirstName:   field(record, "first_name"),
			LastName:    field(record, "last_name"),
			Company:     field(record, "company"),
			Title:       field(record, "title"),
			CompanySize: field(record, "company_size"),
			Industry:    field(record, "industry"),
			RevenueBand: field(record, "revenue_band"),
			Geography:   field(record, "geography"),
			Status:      models.LeadStatusNew,
			Source:      "csv_import",
		}
		if err := lc.Store.CreateLead(c.Context(), lead); err != nil {
			summary.Skipped++
			summary.Errors = append(summary.Errors, lineError(line, "persist failed"))
			continue
		}
		summary.Imported++
	}

	lc.Logger.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"imported":    summary.Imported,
		"skipped":     summary.Skipped,
	}).Info("csv import finished")

	return c.JSON(utils.SuccessResponse(summary))
}

func lineError(line int, msg string) string {
	return "line " + strconv.Itoa(line) + ": " + msg
}

func (lc *LeadController) loadLead(c *fiber.Ctx) (*models.Lead, error) {
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return nil, utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid lead id", nil)
	}
	lead, err := lc.Store.GetLead(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
		}
		return nil, utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load lead", nil)
	}
	return lead, nil
}

func leadFromInput(input createLeadInput) *models.Lead {
	return &models.Lead{
		CampaignID:       input.CampaignID,
		Email:            strings.ToLower(strings.TrimSpace(input.Email)),
		FirstName:        input.FirstName,
		LastName:         input.LastName,
		Company:          input.Company,
		Title:            input.Title,
		SocialHandle:     input.SocialHandle,
		FormURL:          input.FormURL,
		CompanySize:      input.CompanySize,
		Industry:         input.Industry,
		RevenueBand:      input.RevenueBand,
		Geography:        input.Geography,
		SeniorityLevel:   input.SeniorityLevel,
		RecentRoleChange: input.RecentRoleChange,
		CompanyHiring:    input.CompanyHiring,
		CompanyFunded:    input.CompanyFunded,
		BudgetAuthority:  input.BudgetAuthority,
		DecisionMaker:    input.DecisionMaker,
		RecentActivity:   input.RecentActivity,
		Status:           models.LeadStatusNew,
		Source:           input.Source,
	}
}
