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
	"alfredoptarigan/cv-evaluator-pipeline/internal/handlers"
	"alfredoptarigan/cv-evaluator-pipeline/internal/repositories"
	"alfredoptarigan/cv-evaluator-pipeline/internal/services"
	"alfredoptarigan/cv-evaluator-pipeline/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("❌ Failed to load config")
	}

	log := config.NewLogger(cfg)
	log.Info("✅ Config loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("❌ API exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	db, err := config.InitDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	evalRepo := repositories.NewEvaluationRepository(db)
	log.Info("✅ Repositories initialized successfully")

	storageService := services.NewStorageService(cfg.Storage.UploadPath)
	if err := storageService.EnsureUploadDir(); err != nil {
		return err
	}

	broker, err := config.InitQueue(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	defer broker.Close()

	workerDone := make(chan error, 1)

	// The in-memory queue only lives in this process, so its consumer has to as well.
	if cfg.Queue.Driver == "memory" {
		components, err := worker.Build(ctx, cfg, db, broker, log)
		if err != nil {
			return err
		}
		defer components.Close()

		go func() {
			workerDone <- worker.Run(ctx, worker.Options{
				Consumer:  broker,
				Evaluator: components.Evaluator,
				Reaper:    components.Reaper,
				Log:       log,
			})
		}()
		log.Info("✅ Embedded worker started")

		if _, err := worker.Requeue(ctx, evalRepo, broker, cfg.Queue.Buffer, log); err != nil {
			log.WithError(err).Warn("⚠️  Failed to requeue waiting evaluations")
		}
	} else {
		close(workerDone)
	}

	app := handlers.NewApp(handlers.AppOptions{
		Name:      "AI CV Evaluator API",
		BodyLimit: int(2*cfg.Storage.MaxFileSize) + 1<<20,
		Log:       log,
		Upload:    handlers.NewUploadHandler(evalRepo, storageService, cfg.Storage.MaxFileSize, log),
		Evaluate:  handlers.NewEvaluationHandler(services.NewSubmissionGate(evalRepo, broker, log)),
		Result:    handlers.NewResultHandler(services.NewStatusService(evalRepo)),
	})
	log.Info("✅ Handlers initialized")

	go func() {
		<-ctx.Done()
		log.Info("🛑 Shutting down server...")
		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("❌ Server forced to shutdown")
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.WithField("addr", addr).Info("🚀 Server starting")

	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Listen returns once Shutdown completes; wait for the embedded worker to drain.
	<-ctx.Done()
	if err := <-workerDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("👋 Server stopped")
	return nil
}
