package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// TextGenerator produces model text for a prompt. An empty string with a nil
// error means the model answered with no text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a vector for the reference store.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type GeminiOptions struct {
	APIKey     string
	Backend    string // "gemini" or "vertex"
	Project    string
	Location   string
	Model      string
	EmbedModel string
}

type GeminiService struct {
	client      *genai.Client
	modelName   string
	embedModel  string
	temperature float32
	log         logrus.FieldLogger
}

func NewGeminiService(ctx context.Context, opts GeminiOptions, log logrus.FieldLogger) (*GeminiService, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.Backend == "vertex" {
		clientCfg = &genai.ClientConfig{
			Project:  opts.Project,
			Location: opts.Location,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	embedModel := opts.EmbedModel
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}

	return &GeminiService{
		client:      client,
		modelName:   model,
		embedModel:  embedModel,
		temperature: 0.3,
		log:         log.WithFields(logrus.Fields{"component": "gemini", "model": model}),
	}, nil
}

// GenerateEmbedding implements Embedder.
func (g *GeminiService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	// Truncate text if too long (max ~10000 tokens for embedding)
	if len(text) > 40000 {
		text = text[:40000]
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}

	return result.Embeddings[0].Values, nil
}

// Generate implements TextGenerator. Retrying is left to the job queue.
func (g *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 4096,
	}

	g.log.WithField("prompt_chars", len(prompt)).Debug("🤖 Calling Gemini")

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if resp == nil {
		return "", nil
	}

	text := resp.Text()
	g.log.WithField("response_chars", len(text)).Debug("📊 Gemini response received")

	return text, nil
}
