package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/segyhp/lending-engine/internal/app"
	"github.com/segyhp/lending-engine/internal/config"
	"github.com/segyhp/lending-engine/internal/jobs"
	"github.com/segyhp/lending-engine/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCloser, err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Environment: cfg.Server.Env,
		LogFile:     cfg.Logging.File,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	defer logCloser.Close()

	log.Info().Msg("Starting lending scheduler...")

	if cfg.Database.Driver == config.StorageDriverMemory {
		log.Warn().Msg("Scheduler running against an empty in-memory store; jobs will report nothing")
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	cronLog := jobs.CronLogger{Log: log.Logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	j := jobs.New(a.Engine.Reconciler, a.Engine.Queries, cfg.Scheduler.DueWindowDays, log.Logger)
	if err := j.Register(c, cfg.Scheduler.ReconcileSpec, cfg.Scheduler.DueReportSpec); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule jobs")
	}

	// Start the scheduler
	c.Start()
	log.Info().Str("timezone", cfg.Scheduler.Timezone).Msg("Scheduler started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down scheduler...")
	<-c.Stop().Done()
	log.Info().Msg("Scheduler stopped")
}
