// Package embedding provides vector embedding generation for semantic
// retrieval. Supports Ollama (local) and Google GenAI (cloud) backends, with
// optional primary/fallback chaining.
package embedding

import (
	"context"
	"fmt"
	"math"

	"prodintel/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced embeddings.
	Dimensions() int

	// Name returns the engine name for logs and stats.
	Name() string
}

// HealthChecker is an optional interface for engines that can verify
// availability before batch operations.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "ollama" or "genai"
	Provider string

	// FallbackProvider is tried when the primary fails; empty disables it.
	FallbackProvider string

	OllamaEndpoint string
	OllamaModel    string

	GenAIAPIKey string
	GenAIModel  string
}

// NewEngine creates an embedding engine from configuration. When a fallback
// provider is configured, the returned engine chains primary and fallback.
func NewEngine(cfg Config) (Engine, error) {
	primary, err := newProvider(cfg, cfg.Provider)
	if err != nil {
		return nil, err
	}

	if cfg.FallbackProvider == "" || cfg.FallbackProvider == cfg.Provider {
		logging.Embedding("embedding engine ready: %s (%d dims)", primary.Name(), primary.Dimensions())
		return primary, nil
	}

	fallback, err := newProvider(cfg, cfg.FallbackProvider)
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	if primary.Dimensions() != fallback.Dimensions() {
		return nil, fmt.Errorf("fallback engine %s produces %d dims, primary %s produces %d: vectors are not interchangeable",
			fallback.Name(), fallback.Dimensions(), primary.Name(), primary.Dimensions())
	}

	logging.Embedding("embedding engine ready: %s with fallback %s", primary.Name(), fallback.Name())
	return NewFallbackEngine(primary, fallback), nil
}

func newProvider(cfg Config, provider string) (Engine, error) {
	switch provider {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", provider)
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, magA, magB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
