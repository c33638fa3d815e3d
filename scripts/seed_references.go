package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-evaluator-pipeline/internal/config"
	"alfredoptarigan/cv-evaluator-pipeline/internal/services"
)

var referenceKeys = []string{
	services.ReferenceJobDescription,
	services.ReferenceCVRubric,
	services.ReferenceProjectRubric,
}

func main() {
	dir := flag.String("dir", "./reference_docs", "directory holding the reference documents")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("❌ Failed to load config")
	}
	log := config.NewLogger(cfg)
	log.Info("🚀 Seeding reference documents...")

	if err := seed(context.Background(), cfg, *dir, log); err != nil {
		log.WithError(err).Error("⚠️  Some reference documents failed to seed")
		os.Exit(1)
	}

	log.Info("✅ All reference documents seeded successfully!")
}

func seed(ctx context.Context, cfg *config.Config, dir string, log logrus.FieldLogger) error {
	gemini, err := services.NewGeminiService(ctx, services.GeminiOptions{
		APIKey:     cfg.Gemini.APIKey,
		Backend:    cfg.Gemini.Backend,
		Project:    cfg.Gemini.Project,
		Location:   cfg.Gemini.Location,
		Model:      cfg.Gemini.Model,
		EmbedModel: cfg.Gemini.EmbedModel,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini: %w", err)
	}

	qdrant, err := services.NewQdrantService(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, log)
	if err != nil {
		return fmt.Errorf("failed to initialize Qdrant: %w", err)
	}
	defer qdrant.Close()

	if err := qdrant.InitCollection(ctx); err != nil {
		return fmt.Errorf("failed to initialize collection: %w", err)
	}

	extractor := services.NewDocumentExtractor(log)
	chunker := services.NewTextChunker()

	failed := 0
	for _, key := range referenceKeys {
		docLog := log.WithField("key", key)

		path, ok := findReference(dir, key)
		if !ok {
			docLog.Warn("⚠️  File not found, skipping")
			failed++
			continue
		}

		text, err := extractor.Extract(ctx, path)
		if err != nil {
			docLog.WithError(err).Error("❌ Failed to extract text")
			failed++
			continue
		}

		embedding, err := gemini.GenerateEmbedding(ctx, services.EmbeddingInput(chunker, text))
		if err != nil {
			docLog.WithError(err).Error("❌ Failed to generate embedding")
			failed++
			continue
		}

		if err := qdrant.UpsertReference(ctx, key, text, embedding); err != nil {
			docLog.WithError(err).Error("❌ Failed to store reference")
			failed++
			continue
		}

		docLog.WithFields(logrus.Fields{"file": filepath.Base(path), "chars": len(text)}).Info("✅ Reference stored")
	}

	log.WithFields(logrus.Fields{
		"succeeded": len(referenceKeys) - failed,
		"failed":    failed,
	}).Info("📊 Seeding summary")

	if failed > 0 {
		return fmt.Errorf("%d of %d reference documents failed", failed, len(referenceKeys))
	}
	return nil
}

// findReference looks for <key>.txt, then .pdf, .docx and .doc.
func findReference(dir, key string) (string, bool) {
	for _, ext := range []string{".txt", ".pdf", ".docx", ".doc"} {
		path := filepath.Join(dir, key+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}

	// Tolerate upper-case names like Scoring_Rubric_CV.PDF.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		name := e.Name()
		if strings.EqualFold(strings.TrimSuffix(name, filepath.Ext(name)), key) && services.SupportedExtension(filepath.Ext(name)) {
			return filepath.Join(dir, name), true
		}
	}
	return "", false
}
