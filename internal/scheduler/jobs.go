package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cylonmolting/agora-oracle/internal/crawler"
	"github.com/cylonmolting/agora-oracle/internal/modules/alerts"
	"github.com/cylonmolting/agora-oracle/internal/modules/forecast"
)

// CrawlJob runs one crawl cycle, seeding the store from the manual
// catalog on the first ever run.
type CrawlJob struct {
	orchestrator *crawler.Orchestrator
	seeder       *crawler.Seeder
	seeded       bool
	log          zerolog.Logger
}

// NewCrawlJob creates the crawl job
func NewCrawlJob(orchestrator *crawler.Orchestrator, seeder *crawler.Seeder, log zerolog.Logger) *CrawlJob {
	return &CrawlJob{
		orchestrator: orchestrator,
		seeder:       seeder,
		log:          log.With().Str("job", "crawl").Logger(),
	}
}

// Name implements Job.
func (j *CrawlJob) Name() string { return "crawl" }

// Run implements Job.
func (j *CrawlJob) Run() error {
	if !j.seeded {
		if _, err := j.seeder.SeedIfEmpty(); err != nil {
			return err
		}
		j.seeded = true
	}

	cycle := j.orchestrator.RunCrawlCycle(context.Background())
	j.log.Info().
		Int("providers_checked", cycle.ProvidersChecked).
		Int("new_rates", cycle.NewRates).
		Int("errors", len(cycle.Errors)).
		Msg("Crawl job finished")
	return nil
}

// AlertCheckJob runs the alert evaluator pass.
type AlertCheckJob struct {
	evaluator *alerts.Evaluator
	log       zerolog.Logger
}

// NewAlertCheckJob creates the alert-check job
func NewAlertCheckJob(evaluator *alerts.Evaluator, log zerolog.Logger) *AlertCheckJob {
	return &AlertCheckJob{
		evaluator: evaluator,
		log:       log.With().Str("job", "alert_check").Logger(),
	}
}

// Name implements Job.
func (j *AlertCheckJob) Name() string { return "alert_check" }

// Run implements Job.
func (j *AlertCheckJob) Run() error {
	result, err := j.evaluator.CheckPriceAlerts()
	if err != nil {
		return err
	}
	j.log.Info().
		Int("checked", result.CheckedAlerts).
		Int("triggered", result.TriggeredAlerts).
		Msg("Alert check finished")
	return nil
}

// ForecastJob runs the daily forecast generation pass.
type ForecastJob struct {
	engine *forecast.Engine
	log    zerolog.Logger
}

// NewForecastJob creates the forecast-generation job
func NewForecastJob(engine *forecast.Engine, log zerolog.Logger) *ForecastJob {
	return &ForecastJob{
		engine: engine,
		log:    log.With().Str("job", "forecast_gen").Logger(),
	}
}

// Name implements Job.
func (j *ForecastJob) Name() string { return "forecast_gen" }

// Run implements Job.
func (j *ForecastJob) Run() error {
	result, err := j.engine.GenerateAll()
	if err != nil {
		return err
	}
	j.log.Info().
		Int("skills", result.Skills).
		Int("forecasts", result.ForecastsGenerated).
		Int("errors", len(result.Errors)).
		Msg("Forecast generation finished")
	return nil
}
