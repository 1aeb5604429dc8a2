package rag

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"prodintel/internal/store"
	"prodintel/internal/types"
)

// mockEmbedder implements embedding.Engine for testing.
type mockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{1, 0, 0, 0}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i], _ = m.Embed(ctx, texts[i])
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int { return 4 }

func (m *mockEmbedder) Name() string { return "mock" }

func newTestRetriever(t *testing.T, emb *mockEmbedder) (*Retriever, *store.Store) {
	t.Helper()
	st, err := store.NewStore(":memory:", 4)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if emb == nil {
		emb = &mockEmbedder{}
	}
	return NewRetriever(st, emb), st
}

func insertProduct(t *testing.T, st *store.Store, hash string, embedding []float32) int64 {
	t.Helper()
	now := time.Now().UTC()
	id, err := st.Insert(&types.CompiledIntelligence{
		ProductURL: "https://ex.com/" + hash,
		URLHash:    hash,
		Data: types.IntelligenceData{
			SchemaVersion: types.IntelligenceSchemaVersion,
			Title:         "Product " + hash,
		},
		Embedding:          embedding,
		CompilationVersion: types.IntelligenceSchemaVersion,
		LastVerifiedAt:     &now,
	})
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	return id
}

func TestRetrieve_CitationsInRankOrder(t *testing.T) {
	r, st := newTestRetriever(t, nil)
	id := insertProduct(t, st, "cited", []float32{1, 0, 0, 0})

	// Query [1,0,0,0] similarities: 0.9 / ~0.75 / ~0.5. With floor 0.7,
	// exactly two results come back, cited [1] and [2].
	if err := st.IngestSnippets([]types.KnowledgeSnippet{
		{ProductIntelligenceID: id, Content: "strong", Embedding: []float32{0.9, 0.43589, 0, 0}},
		{ProductIntelligenceID: id, Content: "medium", Embedding: []float32{0.75, 0.661438, 0, 0}},
		{ProductIntelligenceID: id, Content: "weak", Embedding: []float32{0.5, 0.866, 0, 0}},
	}); err != nil {
		t.Fatal(err)
	}

	result, err := r.Retrieve(context.Background(), id, "query", 5, 0.7)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}

	if len(result.Snippets) != 2 {
		t.Fatalf("snippets = %d, want 2 above the 0.7 floor", len(result.Snippets))
	}
	if result.Snippets[0].Citation != 1 || result.Snippets[1].Citation != 2 {
		t.Errorf("citations = [%d, %d], want [1, 2]",
			result.Snippets[0].Citation, result.Snippets[1].Citation)
	}
	if result.Snippets[0].Content != "strong" || result.Snippets[1].Content != "medium" {
		t.Errorf("contents = %q, %q", result.Snippets[0].Content, result.Snippets[1].Content)
	}
	if result.Degraded {
		t.Error("result should not be degraded")
	}
}

func TestRetrieve_EmptyIsNotAnError(t *testing.T) {
	r, st := newTestRetriever(t, nil)
	id := insertProduct(t, st, "lonely", []float32{1, 0, 0, 0})

	result, err := r.Retrieve(context.Background(), id, "anything", 5, 0.7)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Snippets) != 0 {
		t.Errorf("snippets = %d, want 0 for a product with no research", len(result.Snippets))
	}
	if result.Degraded {
		t.Error("no-research is a valid outcome, not degradation")
	}
}

func TestRetrieve_DegradedWithoutRowEmbedding(t *testing.T) {
	emb := &mockEmbedder{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			t.Error("query should not be embedded for a degraded row")
			return nil, nil
		},
	}
	r, st := newTestRetriever(t, emb)
	id := insertProduct(t, st, "degraded", nil)

	result, err := r.Retrieve(context.Background(), id, "query", 5, 0.7)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !result.Degraded {
		t.Error("expected degraded context for a row without embedding")
	}
	if len(result.Snippets) != 0 {
		t.Errorf("degraded context should be empty, got %d snippets", len(result.Snippets))
	}
}

func TestRetrieve_EmbeddingUnavailable(t *testing.T) {
	emb := &mockEmbedder{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("connection refused")
		},
	}
	r, st := newTestRetriever(t, emb)
	id := insertProduct(t, st, "down", []float32{1, 0, 0, 0})

	_, err := r.Retrieve(context.Background(), id, "query", 5, 0.7)
	if !errors.Is(err, types.ErrEmbeddingUnavailable) {
		t.Errorf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestRetrieve_UnknownProduct(t *testing.T) {
	r, _ := newTestRetriever(t, nil)
	if _, err := r.Retrieve(context.Background(), 404, "query", 5, 0.7); err == nil {
		t.Error("expected error for unknown intelligence id")
	}
}

func TestRetrieve_DefaultParameters(t *testing.T) {
	r, st := newTestRetriever(t, nil)
	id := insertProduct(t, st, "defaults", []float32{1, 0, 0, 0})

	snippets := make([]types.KnowledgeSnippet, 8)
	for i := range snippets {
		snippets[i] = types.KnowledgeSnippet{
			ProductIntelligenceID: id,
			Content:               "close match",
			Embedding:             []float32{1, 0, 0, 0},
		}
	}
	if err := st.IngestSnippets(snippets); err != nil {
		t.Fatal(err)
	}

	result, err := r.Retrieve(context.Background(), id, "query", 0, math.NaN())
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Snippets) != DefaultTopK {
		t.Errorf("snippets = %d, want default k of %d", len(result.Snippets), DefaultTopK)
	}
}

func TestRetrieve_ZeroFloorIsExplicit(t *testing.T) {
	r, st := newTestRetriever(t, nil)
	id := insertProduct(t, st, "floor", []float32{1, 0, 0, 0})

	// Similarity against query [1,0,0,0] is 0.5: below the 0.7 default but
	// above an explicit floor of zero.
	if err := st.IngestSnippets([]types.KnowledgeSnippet{
		{ProductIntelligenceID: id, Content: "weak", Embedding: []float32{0.5, 0.866, 0, 0}},
	}); err != nil {
		t.Fatal(err)
	}

	result, err := r.Retrieve(context.Background(), id, "query", 5, math.NaN())
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Snippets) != 0 {
		t.Errorf("snippets = %d, want 0 under the default floor", len(result.Snippets))
	}

	result, err = r.Retrieve(context.Background(), id, "query", 5, 0)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Snippets) != 1 {
		t.Errorf("snippets = %d, want 1 with an explicit zero floor", len(result.Snippets))
	}
}
