package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-evaluator-pipeline/internal/config"
	"alfredoptarigan/cv-evaluator-pipeline/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("❌ Failed to load config")
	}

	log := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("❌ Worker exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if cfg.Queue.Driver == "memory" {
		return errors.New("QUEUE_DRIVER=memory only works inside the API process; use redis or rabbitmq")
	}

	db, err := config.InitDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	broker, err := config.InitQueue(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	defer broker.Close()

	components, err := worker.Build(ctx, cfg, db, broker, log)
	if err != nil {
		return err
	}
	defer components.Close()

	log.WithFields(logrus.Fields{
		"driver":      cfg.Queue.Driver,
		"concurrency": cfg.Worker.Concurrency,
	}).Info("🚀 Worker started")

	err = worker.Run(ctx, worker.Options{
		Consumer:  broker,
		Evaluator: components.Evaluator,
		Reaper:    components.Reaper,
		Log:       log,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("👋 Worker stopped")
	return nil
}
