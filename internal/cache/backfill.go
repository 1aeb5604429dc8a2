package cache

import (
	"context"

	"golang.org/x/sync/errgroup"

	"prodintel/internal/logging"
)

// backfillConcurrency bounds parallel embedding calls during backfill so a
// local Ollama instance is not flooded.
const backfillConcurrency = 4

// BackfillEmbeddings re-embeds rows and snippets stored while the embedding
// provider was down. Returns how many vectors were filled in. Individual
// failures are logged and skipped; the job is re-runnable.
func (c *IntelligenceCache) BackfillEmbeddings(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	filled := 0

	snippets, err := c.store.ListSnippetsMissingEmbeddings(batchSize)
	if err != nil {
		return 0, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillConcurrency)
	results := make([][]float32, len(snippets))
	for i := range snippets {
		g.Go(func() error {
			vec, err := c.embedder.Embed(gctx, snippets[i].Content)
			if err != nil {
				logging.EmbeddingDebug("backfill snippet %s: %v", snippets[i].ID, err)
				return nil
			}
			results[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return filled, err
	}
	for i, vec := range results {
		if vec == nil {
			continue
		}
		if err := c.store.UpdateSnippetEmbedding(snippets[i].ID, vec); err != nil {
			logging.EmbeddingDebug("backfill snippet %s: store: %v", snippets[i].ID, err)
			continue
		}
		filled++
	}

	rows, err := c.store.ListIntelligenceMissingEmbeddings(batchSize)
	if err != nil {
		return filled, err
	}
	for _, intel := range rows {
		text := intel.Data.CanonicalText()
		if text == "" {
			continue
		}
		vec, err := c.embedder.Embed(ctx, text)
		if err != nil {
			logging.EmbeddingDebug("backfill intelligence %d: %v", intel.ID, err)
			continue
		}
		if err := c.store.UpdateIntelligenceEmbedding(intel.ID, vec); err != nil {
			logging.EmbeddingDebug("backfill intelligence %d: store: %v", intel.ID, err)
			continue
		}
		filled++
	}

	if filled > 0 {
		logging.Embedding("backfilled %d missing embeddings", filled)
	}
	return filled, nil
}
