// Package rag assembles retrieval-augmented context: given a product
// identity and a query, it embeds the query, pulls the top-k most similar
// knowledge snippets owned by that product, and numbers them for use as [n]
// citations in generated copy.
package rag

import (
	"context"
	"fmt"
	"math"
	"time"

	"prodintel/internal/embedding"
	"prodintel/internal/logging"
	"prodintel/internal/store"
	"prodintel/internal/types"
)

// Defaults for retrieval parameters. Pass k <= 0 for the default cap and
// math.NaN() for the default floor; zero is a valid floor (cosine similarity
// runs to -1), so it cannot double as "unset".
const (
	DefaultTopK          = 5
	DefaultMinSimilarity = 0.7
)

// Retriever answers RAG queries against the knowledge index.
type Retriever struct {
	store    *store.Store
	embedder embedding.Engine
}

// NewRetriever creates a Retriever.
func NewRetriever(st *store.Store, emb embedding.Engine) *Retriever {
	return &Retriever{store: st, embedder: emb}
}

// Retrieve returns the ranked context for a query, scoped to one product
// identity. An empty result is a valid outcome, not an error: it means no
// supporting research scored above the similarity floor.
//
// When the product's intelligence row was compiled without an embedding (the
// provider was down), retrieval is degraded: the context comes back empty
// with Degraded set, and the caller generates from structured facts alone.
// A query-embedding failure surfaces ErrEmbeddingUnavailable instead, which
// is the same recoverable degradation decided at call time.
func (r *Retriever) Retrieve(ctx context.Context, productIntelligenceID int64, query string, k int, minSimilarity float64) (*types.RankedContext, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.StopWithThreshold(2 * time.Second)

	if k <= 0 {
		k = DefaultTopK
	}
	if math.IsNaN(minSimilarity) {
		minSimilarity = DefaultMinSimilarity
	}

	intel, err := r.store.GetByID(productIntelligenceID)
	if err != nil {
		return nil, fmt.Errorf("load intelligence %d: %w", productIntelligenceID, err)
	}

	result := &types.RankedContext{
		ProductIntelligenceID: productIntelligenceID,
		Query:                 query,
	}

	if !intel.HasEmbedding() {
		logging.Retrieval("intelligence %d has no embedding, returning degraded context", productIntelligenceID)
		result.Degraded = true
		return result, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w: %v", types.ErrEmbeddingUnavailable, err)
	}

	scored, err := r.store.SearchSnippets(productIntelligenceID, queryVec, k, minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("search snippets for %d: %w", productIntelligenceID, err)
	}

	result.Snippets = make([]types.RankedSnippet, len(scored))
	for i, s := range scored {
		result.Snippets[i] = types.RankedSnippet{
			Citation:   i + 1,
			Content:    s.Snippet.Content,
			Similarity: s.Similarity,
			SourceURL:  s.Snippet.SourceURL,
			SourceType: s.Snippet.Metadata.SourceType,
		}
	}

	logging.Retrieval("retrieved %d snippets for intelligence %d (k=%d, floor=%.2f)",
		len(result.Snippets), productIntelligenceID, k, minSimilarity)
	return result, nil
}
