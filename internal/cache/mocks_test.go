package cache

import (
	"context"

	"prodintel/internal/crawler"
	"prodintel/internal/types"
)

// mockCrawler implements crawler.Crawler for testing.
type mockCrawler struct {
	ExtractFunc func(ctx context.Context, url string) (*crawler.Extraction, error)
}

func (m *mockCrawler) Extract(ctx context.Context, url string) (*crawler.Extraction, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, url)
	}
	return &crawler.Extraction{
		Text: "product text",
		Facts: types.IntelligenceData{
			SchemaVersion: types.IntelligenceSchemaVersion,
			Title:         "Mock Product",
		},
		QualityScore: 0.9,
		Chunks:       []string{"chunk one", "chunk two"},
	}, nil
}

// mockEmbedder implements embedding.Engine for testing.
type mockEmbedder struct {
	EmbedFunc      func(ctx context.Context, text string) ([]float32, error)
	EmbedBatchFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedBatchFunc != nil {
		return m.EmbedBatchFunc(ctx, texts)
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int { return 4 }

func (m *mockEmbedder) Name() string { return "mock" }
