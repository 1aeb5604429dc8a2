package embedding

import (
	"context"
	"fmt"

	"prodintel/internal/logging"
)

// FallbackEngine tries the primary engine and falls back to the secondary
// when the primary fails. Both engines must produce the same dimensionality;
// NewEngine enforces that at construction.
type FallbackEngine struct {
	primary   Engine
	secondary Engine
}

// NewFallbackEngine chains two engines.
func NewFallbackEngine(primary, secondary Engine) *FallbackEngine {
	return &FallbackEngine{primary: primary, secondary: secondary}
}

// Embed tries the primary engine first.
func (e *FallbackEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.primary.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	logging.Embedding("primary engine %s failed (%v), trying %s", e.primary.Name(), err, e.secondary.Name())

	vec, ferr := e.secondary.Embed(ctx, text)
	if ferr != nil {
		return nil, fmt.Errorf("both embedding providers failed: primary: %v; fallback: %w", err, ferr)
	}
	return vec, nil
}

// EmbedBatch tries the primary engine first.
func (e *FallbackEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.primary.EmbedBatch(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	logging.Embedding("primary engine %s batch failed (%v), trying %s", e.primary.Name(), err, e.secondary.Name())

	vecs, ferr := e.secondary.EmbedBatch(ctx, texts)
	if ferr != nil {
		return nil, fmt.Errorf("both embedding providers failed: primary: %v; fallback: %w", err, ferr)
	}
	return vecs, nil
}

// Dimensions returns the shared dimensionality.
func (e *FallbackEngine) Dimensions() int {
	return e.primary.Dimensions()
}

// Name returns both engine names.
func (e *FallbackEngine) Name() string {
	return fmt.Sprintf("%s+%s", e.primary.Name(), e.secondary.Name())
}
