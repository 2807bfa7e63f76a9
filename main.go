package main

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"leadpilot/channel"
	"leadpilot/config"
	controller "leadpilot/controllers"
	"leadpilot/engine"
	"leadpilot/middleware"
	"leadpilot/routes"
	"leadpilot/safety"
	"leadpilot/store"
	"leadpilot/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if config.AppConfig.Environment == "development" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
	}

	if dsn := config.AppConfig.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			log.Errorf("Sentry init failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	st := store.NewGormStore(config.DB)
	usage := buildUsageStore(log)

	// Outbound transports. The live registry only carries channels that are
	// actually configured; SIMULATION campaigns always get the simulators.
	var providers []channel.Provider
	if config.AppConfig.SMTP.Host != "" {
		providers = append(providers, channel.NewEmailProvider(channel.SMTPConfig{
			Host:      config.AppConfig.SMTP.Host,
			Port:      config.AppConfig.SMTP.Port,
			Username:  config.AppConfig.SMTP.Username,
			Password:  config.AppConfig.SMTP.Password,
			FromEmail: config.AppConfig.SMTP.FromEmail,
			FromName:  config.AppConfig.SMTP.FromName,
		}, log.WithField("component", "email_provider")))
	}
	if config.AppConfig.LinkedIn.BaseURL != "" {
		providers = append(providers, channel.NewLinkedInProvider(channel.LinkedInConfig{
			BaseURL:  config.AppConfig.LinkedIn.BaseURL,
			APIToken: config.AppConfig.LinkedIn.APIToken,
		}, log.WithField("component", "linkedin_provider")))
	}
	providers = append(providers, channel.NewWebFormProvider(
		config.AppConfig.SMTP.FromEmail,
		config.AppConfig.SMTP.FromName,
		log.WithField("component", "webform_provider"),
	))

	simRegistry := channel.NewSimulationRegistry(log.WithField("component", "simulator"))
	liveRegistry := channel.NewRegistry(providers...)
	if config.AppConfig.Orchestrator.SimulationOnly {
		log.Warn("SIMULATION_ONLY is set; all campaigns use simulated channels")
		liveRegistry = simRegistry
	}

	// Engines
	scoring := engine.NewScoringEngine(engine.DefaultScoringConfig())
	qualifier := engine.NewQualificationFilter(config.AppConfig.Orchestrator.DeepVerify)
	router := engine.NewLeadRouter(engine.DefaultRouterConfig())
	sequencer := engine.NewSequencer(st, engine.NewStaticRenderer(), log.WithField("component", "sequencer"))
	followUp := engine.NewFollowUpEngine(st, engine.NewReplyClassifier(), log.WithField("component", "followup"))
	decision := engine.NewDecisionEngine(st, engine.DecisionConfig{
		WindowDays:    config.AppConfig.Decision.WindowDays,
		MaxBounceRate: config.AppConfig.Decision.MaxBounceRate,
		MinReplyRate:  config.AppConfig.Decision.MinReplyRate,
		MinAttempts:   config.AppConfig.Decision.MinAttempts,
	})

	orchestrator := engine.NewOrchestrator(
		st, usage, liveRegistry, simRegistry,
		scoring, qualifier, router, sequencer, followUp, decision,
		engine.OrchestratorConfig{
			BatchSize: config.AppConfig.Orchestrator.BatchSize,
			Workers:   config.AppConfig.Orchestrator.Workers,
		},
		log.WithField("component", "orchestrator"),
	)

	feed := controller.NewTickFeed(log.WithField("component", "tick_feed"))
	orchestrator.OnTick(feed.Publish)

	// Background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orchestratorWorker := worker.NewOrchestratorWorker(
		orchestrator,
		config.AppConfig.Orchestrator.TickInterval,
		log.WithField("component", "orchestrator_worker"),
	)
	go orchestratorWorker.Start(ctx)

	if fetchers := buildReplyFetchers(log); len(fetchers) > 0 {
		replyWorker := worker.NewReplyWorker(
			st, followUp, fetchers,
			config.AppConfig.Orchestrator.ReplyInterval,
			log.WithField("component", "reply_worker"),
		)
		go replyWorker.Start(ctx)
	} else {
		log.Warn("no reply fetchers configured; inbound replies will not be ingested")
	}

	// HTTP surface
	app := fiber.New()
	app.Use(middleware.CORS())
	routes.SetupAPIRoutes(app, st, orchestrator, decision, feed, log)

	log.Infof("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// buildUsageStore prefers Redis for send counters when configured so
// multiple instances share one cap; otherwise the Postgres counters are
// authoritative.
func buildUsageStore(log *logrus.Logger) safety.UsageStore {
	if config.AppConfig.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
		log.Info("using Redis for channel usage counters")
		return safety.NewRedisUsageStore(client)
	}
	return safety.NewGormUsageStore(config.DB)
}

func buildReplyFetchers(log *logrus.Logger) []channel.ReplyFetcher {
	var fetchers []channel.ReplyFetcher
	if config.AppConfig.IMAP.Host != "" {
		encryption := ""
		if config.AppConfig.IMAP.UseSSL {
			encryption = "SSL"
		}
		fetchers = append(fetchers, channel.NewIMAPReplyFetcher(channel.IMAPConfig{
			Host:       config.AppConfig.IMAP.Host,
			Port:       config.AppConfig.IMAP.Port,
			Username:   config.AppConfig.IMAP.Username,
			Password:   config.AppConfig.IMAP.Password,
			Encryption: encryption,
			Mailbox:    config.AppConfig.IMAP.Mailbox,
		}, log.WithField("component", "imap_fetcher")))
	}
	if config.AppConfig.LinkedIn.BaseURL != "" {
		fetchers = append(fetchers, channel.NewLinkedInReplyFetcher(channel.LinkedInConfig{
			BaseURL:  config.AppConfig.LinkedIn.BaseURL,
			APIToken: config.AppConfig.LinkedIn.APIToken,
		}, log.WithField("component", "linkedin_fetcher")))
	}
	return fetchers
}
