package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"orderflow/config"
	"orderflow/logger"
	"orderflow/processor"
	"orderflow/storage"
)

// Daily batch entrypoint. Run after the UTC day boundary; it defaults to
// processing yesterday and can be pinned to a date with FORCE_DATE.
func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	targetDate := time.Now().UTC().AddDate(0, 0, -1)
	if forced := os.Getenv("FORCE_DATE"); forced != "" {
		targetDate, err = time.Parse("2006-01-02", forced)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"value": forced}).Error("FORCE_DATE must be YYYY-MM-DD")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewObjectStore(ctx, cfg.Storage.S3)
	if err != nil {
		log.WithError(err).Error("failed to create object store")
		os.Exit(1)
	}

	job := processor.NewJob(store, cfg.Job)
	if err := job.Run(ctx, cfg.Feed.Symbols, targetDate); err != nil {
		log.WithError(err).Error("daily aggregation finished with failures")
		os.Exit(1)
	}
}
