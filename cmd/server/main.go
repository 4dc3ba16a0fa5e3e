// Package main is the entry point for the agora price-oracle backend.
// It wires the store, the crawl/aggregation pipeline, the alert
// evaluator with its notification fan-out, the forecast engine and the
// HTTP/WebSocket surface, then runs until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cylonmolting/agora-oracle/internal/config"
	"github.com/cylonmolting/agora-oracle/internal/crawler"
	"github.com/cylonmolting/agora-oracle/internal/database"
	"github.com/cylonmolting/agora-oracle/internal/gateway"
	"github.com/cylonmolting/agora-oracle/internal/modules/agents"
	"github.com/cylonmolting/agora-oracle/internal/modules/alerts"
	"github.com/cylonmolting/agora-oracle/internal/modules/budget"
	"github.com/cylonmolting/agora-oracle/internal/modules/forecast"
	"github.com/cylonmolting/agora-oracle/internal/modules/marketplace"
	"github.com/cylonmolting/agora-oracle/internal/modules/providers"
	"github.com/cylonmolting/agora-oracle/internal/modules/rates"
	"github.com/cylonmolting/agora-oracle/internal/notify"
	"github.com/cylonmolting/agora-oracle/internal/router"
	"github.com/cylonmolting/agora-oracle/internal/scheduler"
	"github.com/cylonmolting/agora-oracle/internal/server"
	"github.com/cylonmolting/agora-oracle/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting agora-oracle")

	// Initialize the store
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Repositories
	rateRepo := rates.NewRepository(db.Conn(), log)
	providerRepo := providers.NewRepository(db.Conn(), log)
	marketRepo := marketplace.NewRepository(db.Conn(), log)
	agentsRepo := agents.NewRepository(db.Conn(), log)
	budgetRepo := budget.NewRepository(db.Conn(), log)
	alertRepo := alerts.NewRepository(db.Conn(), log)
	forecastRepo := forecast.NewRepository(db.Conn(), log)

	// Engines
	aggregator := rates.NewAggregator(rateRepo, log)
	comparison := marketplace.NewComparison(marketRepo, log)
	forecastEngine := forecast.NewEngine(rateRepo, forecastRepo, log)

	// WebSocket gateway and notification fan-out
	wsGateway := gateway.New(agentsRepo, log)
	dispatcher := notify.NewDispatcher(
		notify.NewWebhookSender(log),
		notify.NewEmailSender(notify.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		}, log),
		wsGateway,
		alertRepo,
		log,
	)

	// Alert pipeline
	alertManager := alerts.NewManager(alertRepo, log)
	evaluator := alerts.NewEvaluator(alertRepo, providerRepo, marketRepo, dispatcher, log)

	// Crawl pipeline
	orchestrator := crawler.NewOrchestrator(providerRepo, rateRepo, marketRepo, log)
	for _, c := range crawler.ProviderCrawlers() {
		orchestrator.Register(c)
	}
	orchestrator.Register(crawler.NewBazaarCrawler(cfg.BazaarURL, cfg.BazaarMockPath, log))
	seeder := crawler.NewSeeder(db, log)

	// Smart-router collaborator; absent API keys disable it.
	var adapters []router.Adapter
	if cfg.OpenAIAPIKey != "" {
		adapters = append(adapters, router.NewOpenAIAdapter(cfg.OpenAIAPIKey))
	}
	if cfg.AnthropicAPIKey != "" {
		adapters = append(adapters, router.NewAnthropicAdapter(cfg.AnthropicAPIKey))
	}
	smartRouter := router.NewService(adapters, providerRepo, budgetRepo, log)
	if !smartRouter.Enabled() {
		log.Info().Msg("Smart router disabled (no provider API keys configured)")
	}

	// Scheduler: invalid cron expressions are fatal at startup.
	sched := scheduler.New(log)
	crawlJob := scheduler.NewCrawlJob(orchestrator, seeder, log)
	alertJob := scheduler.NewAlertCheckJob(evaluator, log)
	forecastJob := scheduler.NewForecastJob(forecastEngine, log)

	if err := sched.AddJob(cfg.CrawlSchedule, crawlJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register crawl job")
	}
	if err := sched.AddJob(cfg.AlertSchedule, alertJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register alert-check job")
	}
	if err := sched.AddJob(cfg.ForecastSchedule, forecastJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register forecast job")
	}

	sched.Start()

	// Startup runs an immediate crawl and alert check (forecast waits
	// for its nightly slot).
	go func() {
		if err := sched.RunNow(crawlJob); err != nil {
			log.Error().Err(err).Msg("Initial crawl failed")
		}
		if err := sched.RunNow(alertJob); err != nil {
			log.Error().Err(err).Msg("Initial alert check failed")
		}
	}()

	// HTTP server
	srv := server.New(server.Config{
		Port:          cfg.Port,
		Log:           log,
		DevMode:       cfg.DevMode,
		DB:            db,
		RateRepo:      rateRepo,
		Aggregator:    aggregator,
		ProviderRepo:  providerRepo,
		MarketRepo:    marketRepo,
		Comparison:    comparison,
		AgentsRepo:    agentsRepo,
		BudgetRepo:    budgetRepo,
		AlertManager:  alertManager,
		ForecastRepo:  forecastRepo,
		ForecastEng:   forecastEngine,
		Gateway:       wsGateway,
		RouterService: smartRouter,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop the scheduler first so no new work starts, then close push
	// connections, then drain HTTP, then close the store (deferred).
	sched.Stop()
	wsGateway.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
