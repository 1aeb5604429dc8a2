package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestCosineSimilarity_Identical(t *testing.T) {
	v := []float32{0.5, 0.5, 0.7, 0.1}
	sim, err := CosineSimilarity(v, v)
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim-1.0) > 1e-6 {
		t.Errorf("similarity of identical vectors = %f, want 1.0", sim)
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim) > 1e-6 {
		t.Errorf("similarity of orthogonal vectors = %f, want 0", sim)
	}
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim+1.0) > 1e-6 {
		t.Errorf("similarity of opposite vectors = %f, want -1", sim)
	}
}

func TestCosineSimilarity_LengthMismatch(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); err == nil {
		t.Error("expected error for mismatched vector lengths")
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	sim, err := CosineSimilarity([]float32{0, 0}, []float32{1, 0})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if sim != 0 {
		t.Errorf("similarity with zero vector = %f, want 0", sim)
	}
}

func TestFallbackEngine_PrimaryWins(t *testing.T) {
	primary := &mockEngine{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1, 0, 0, 0}, nil
		},
	}
	secondary := &mockEngine{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			t.Error("secondary should not be called when primary succeeds")
			return nil, nil
		},
	}

	engine := NewFallbackEngine(primary, secondary)
	vec, err := engine.Embed(context.Background(), "test")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if vec[0] != 1 {
		t.Errorf("got vector %v from wrong engine", vec)
	}
}

func TestFallbackEngine_FallsBack(t *testing.T) {
	primary := &mockEngine{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("provider down")
		},
	}
	secondary := &mockEngine{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{0, 1, 0, 0}, nil
		},
	}

	engine := NewFallbackEngine(primary, secondary)
	vec, err := engine.Embed(context.Background(), "test")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if vec[1] != 1 {
		t.Errorf("got vector %v, want secondary's vector", vec)
	}
}

func TestFallbackEngine_BothFail(t *testing.T) {
	down := func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("provider down")
	}
	engine := NewFallbackEngine(&mockEngine{EmbedFunc: down}, &mockEngine{EmbedFunc: down})

	if _, err := engine.Embed(context.Background(), "test"); err == nil {
		t.Error("expected error when both providers fail")
	}
}

func TestNewEngine_RejectsUnknownProvider(t *testing.T) {
	if _, err := NewEngine(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewEngine_OllamaDefault(t *testing.T) {
	engine, err := NewEngine(Config{Provider: "ollama"})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if engine.Dimensions() != 768 {
		t.Errorf("Dimensions = %d, want 768", engine.Dimensions())
	}
}

func TestNewGenAIEngine_RequiresAPIKey(t *testing.T) {
	if _, err := NewGenAIEngine("", "gemini-embedding-001"); err == nil {
		t.Error("expected error when API key is missing")
	}
}
