package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	controller "leadpilot/controllers"
	"leadpilot/engine"
	"leadpilot/middleware"
	"leadpilot/store"
)

// SetupAPIRoutes wires the HTTP surface. Everything under /api/v1 sits
// behind the shared-secret JWT.
func SetupAPIRoutes(
	app *fiber.App,
	st store.Store,
	orch *engine.Orchestrator,
	decision *engine.DecisionEngine,
	feed *controller.TickFeed,
	log *logrus.Logger,
) {
	campaignController := controller.NewCampaignController(st, orch, decision, log.WithField("component", "campaign_api"))
	leadController := controller.NewLeadController(st, log.WithField("component", "lead_api"))
	settingsController := controller.NewSettingsController(st, log.WithField("component", "settings_api"))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Campaign lifecycle
	campaign := api.Group("/campaigns")
	campaign.Post("/", campaignController.CreateCampaign)
	campaign.Get("/", campaignController.GetCampaigns)
	campaign.Get("/:id", campaignController.GetCampaign)
	campaign.Post("/:id/start", campaignController.StartCampaign)
	campaign.Post("/:id/pause", campaignController.PauseCampaign)
	campaign.Post("/:id/resume", campaignController.ResumeCampaign)
	campaign.Post("/:id/tick", middleware.TickRateLimiter(2), campaignController.TickCampaign)
	campaign.Get("/:id/stats", campaignController.GetCampaignStats)
	campaign.Get("/:id/recommendation", campaignController.GetPauseRecommendation)

	// Per-campaign guard configuration
	campaign.Get("/:id/safety-settings", settingsController.GetSafetySettings)
	campaign.Put("/:id/safety-settings", settingsController.UpdateSafetySettings)

	// Bulk ingestion
	campaign.Post("/:id/leads/import", leadController.ImportLeadsCSV)

	// Leads
	lead := api.Group("/leads")
	lead.Post("/", leadController.CreateLead)
	lead.Get("/", leadController.GetLeads)
	lead.Get("/:id", leadController.GetLead)
	lead.Post("/:id/suppress", leadController.SuppressLead)
	lead.Post("/:id/verify", leadController.VerifyLeadEmail)

	// Sequences
	sequence := api.Group("/sequences")
	sequence.Get("/", settingsController.GetSequences)
	sequence.Put("/", settingsController.UpsertSequence)

	// Do-not-contact list
	api.Post("/do-not-contact", settingsController.AddDoNotContact)

	// Tick progress feed
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/ticks", websocket.New(feed.HandleTickFeedWS))
}
