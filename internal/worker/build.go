package worker

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"alfredoptarigan/cv-evaluator-pipeline/internal/config"
	"alfredoptarigan/cv-evaluator-pipeline/internal/queue"
	"alfredoptarigan/cv-evaluator-pipeline/internal/repositories"
	"alfredoptarigan/cv-evaluator-pipeline/internal/services"
)

// Components are the long-lived clients behind an evaluator.
type Components struct {
	Evaluator services.EvaluatorService
	Reaper    *services.Reaper
	Qdrant    *services.QdrantService
}

func (c *Components) Close() error {
	if c.Qdrant != nil {
		return c.Qdrant.Close()
	}
	return nil
}

// Build wires Gemini, Qdrant and the repositories into an evaluator and a
// reaper. The reaper publishes retries for crashed evaluations to q.
func Build(ctx context.Context, cfg *config.Config, db *gorm.DB, q queue.Queue, log logrus.FieldLogger) (*Components, error) {
	gemini, err := services.NewGeminiService(ctx, services.GeminiOptions{
		APIKey:     cfg.Gemini.APIKey,
		Backend:    cfg.Gemini.Backend,
		Project:    cfg.Gemini.Project,
		Location:   cfg.Gemini.Location,
		Model:      cfg.Gemini.Model,
		EmbedModel: cfg.Gemini.EmbedModel,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini AI: %w", err)
	}
	log.Info("✅ Gemini AI initialized successfully")

	qdrant, err := services.NewQdrantService(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Qdrant: %w", err)
	}
	if err := qdrant.InitCollection(ctx); err != nil {
		_ = qdrant.Close()
		return nil, fmt.Errorf("failed to initialize Qdrant collection: %w", err)
	}
	log.Info("✅ Qdrant initialized successfully")

	orchestrator, err := services.NewModelOrchestrator(gemini, log)
	if err != nil {
		_ = qdrant.Close()
		return nil, err
	}

	evalRepo := repositories.NewEvaluationRepository(db)

	evaluator := services.NewEvaluatorService(services.EvaluatorOptions{
		Evaluations:  evalRepo,
		Documents:    repositories.NewDocumentRepository(db),
		Extractor:    services.NewDocumentExtractor(log),
		References:   qdrant,
		Orchestrator: orchestrator,
		Lease:        cfg.Worker.Lease,
		Log:          log,
	})

	reaper, err := services.NewReaper(services.ReaperOptions{
		Evaluations: evalRepo,
		Queue:       q,
		Interval:    cfg.Worker.ReaperInterval,
		BatchSize:   cfg.Worker.ReaperBatch,
		Log:         log,
	})
	if err != nil {
		_ = qdrant.Close()
		return nil, err
	}

	return &Components{Evaluator: evaluator, Reaper: reaper, Qdrant: qdrant}, nil
}
