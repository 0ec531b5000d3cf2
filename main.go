package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"orderflow/config"
	"orderflow/logger"
	"orderflow/reader/binance"
	"orderflow/storage"
	"orderflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
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

	log.WithFields(logger.Fields{
		"service": cfg.Orderflow.Name,
		"version": cfg.Orderflow.Version,
	}).Info("starting orderflow recorder")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Metrics.Namespace)
	}

	backend, err := buildBackend(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to create write backend")
		os.Exit(1)
	}

	sink := writer.NewBufferedSink(backend, cfg.Writer.FlushInterval.Std())
	client := binance.NewStreamClient(cfg, sink)

	if err := sink.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start buffered sink")
		os.Exit(1)
	}
	if err := client.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start stream client")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	// Stop the feed first so no event arrives after the final flush.
	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		client.Stop()
		sink.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("orderflow recorder stopped")
}

func buildBackend(ctx context.Context, cfg *config.Config, log *logger.Log) (writer.BatchWriter, error) {
	switch cfg.Writer.Backend {
	case config.BackendPostgres:
		pool, err := storage.NewPostgresPool(ctx, cfg.Storage.Postgres.URL)
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureSchema(ctx, pool); err != nil {
			return nil, err
		}
		log.WithComponent("main").Info("using postgres write backend")
		return writer.NewPostgresBatchWriter(pool), nil
	default:
		store, err := storage.NewObjectStore(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, err
		}
		log.WithComponent("main").WithFields(logger.Fields{
			"bucket": store.Bucket(),
		}).Info("using s3 write backend")
		return writer.NewS3BatchWriter(store), nil
	}
}
