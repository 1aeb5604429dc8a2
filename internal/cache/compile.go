package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prodintel/internal/identity"
	"prodintel/internal/logging"
	"prodintel/internal/store"
	"prodintel/internal/types"
)

// GetOrCompile returns the compiled intelligence for a product URL, compiling
// it first when the identity has never been seen. Concurrent callers for the
// same url_hash share one compilation flight; callers for different hashes
// proceed independently. A stale hit is still a hit: it is returned
// immediately and a background refresh is queued.
func (c *IntelligenceCache) GetOrCompile(ctx context.Context, rawURL string) (*types.CompiledIntelligence, error) {
	timer := logging.StartTimer(logging.CategoryCache, "GetOrCompile")
	defer timer.StopWithThreshold(time.Second)

	canonical, urlHash, err := identity.Normalize(rawURL)
	if err != nil {
		return nil, err
	}

	if intel, err := c.lookup(urlHash); err != nil {
		return nil, err
	} else if intel != nil {
		return intel, nil
	}

	// Cache miss. The flight runs on a context detached from this caller:
	// other callers may be waiting on the same flight, and the result is
	// worth keeping even if everyone times out. Crawl and embed apply their
	// own timeouts inside compile, so the flight always terminates.
	resultCh := c.flights.DoChan(urlHash, func() (interface{}, error) {
		return c.compile(context.WithoutCancel(ctx), canonical, urlHash)
	})

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.CompileWait)
	defer cancel()

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logging.CacheDebug("shared compilation flight for %s", urlHash)
		}
		return res.Val.(*types.CompiledIntelligence), nil
	case <-waitCtx.Done():
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("compilation of %s still in flight after %s: %w",
				urlHash, c.cfg.CompileWait, types.ErrLockTimeout)
		}
		return nil, waitCtx.Err()
	}
}

// lookup returns the cached row for urlHash, or nil on a miss. Hits bump
// last_accessed_at and queue a refresh when stale.
func (c *IntelligenceCache) lookup(urlHash string) (*types.CompiledIntelligence, error) {
	intel, err := c.store.GetByHash(urlHash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", urlHash, err)
	}

	if err := c.store.TouchAccess(intel.ID); err != nil {
		logging.CacheDebug("touch access %d: %v", intel.ID, err)
	}
	if c.IsStale(intel) {
		logging.Cache("serving stale intelligence %d for %s, refresh queued", intel.ID, urlHash)
		c.enqueueRefresh(intel.ID)
	} else {
		logging.CacheDebug("cache hit for %s (intelligence %d)", urlHash, intel.ID)
	}
	return intel, nil
}

// compile crawls the product page, embeds the result, and persists both the
// intelligence row and its knowledge snippets. A crawl failure aborts with no
// row written; an embedding failure degrades to a row without vectors.
func (c *IntelligenceCache) compile(ctx context.Context, canonical, urlHash string) (*types.CompiledIntelligence, error) {
	// Another caller may have completed a flight between our miss and this
	// flight starting.
	if intel, err := c.store.GetByHash(urlHash); err == nil {
		return intel, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	logging.Cache("compiling intelligence for %s", canonical)

	extraction, err := c.crawler.Extract(ctx, canonical)
	if err != nil {
		return nil, &types.CompilationFailedError{
			URL:    canonical,
			Reason: "crawl failed",
			Err:    err,
		}
	}

	intelVec := c.embedOrDegrade(ctx, extraction.Facts.CanonicalText())

	now := time.Now().UTC()
	verifiedAt := now
	intel := &types.CompiledIntelligence{
		ProductURL:         canonical,
		URLHash:            urlHash,
		Data:               extraction.Facts,
		Embedding:          intelVec,
		CompilationVersion: types.IntelligenceSchemaVersion,
		CompiledAt:         now,
		UpdatedAt:          now,
		LastVerifiedAt:     &verifiedAt,
		LastAccessedAt:     now,
		Status:             types.StatusPending,
		QualityScore:       extraction.QualityScore,
	}
	if _, err := c.store.Insert(intel); err != nil {
		return nil, fmt.Errorf("persist intelligence for %s: %w", urlHash, err)
	}

	if err := c.ingestChunks(ctx, intel.ID, canonical, "crawl", extraction.Chunks); err != nil {
		// The row itself is good; snippets can be re-crawled on refresh.
		logging.Cache("snippet ingest for %d failed: %v", intel.ID, err)
	}
	return intel, nil
}

// embedOrDegrade returns the embedding for text, or nil when the provider is
// unavailable. Compilation proceeds either way; retrieval will report
// degraded context until the backfill job fills the vector in.
func (c *IntelligenceCache) embedOrDegrade(ctx context.Context, text string) []float32 {
	if text == "" {
		return nil
	}
	embedCtx, cancel := context.WithTimeout(ctx, c.cfg.EmbedTimeout)
	defer cancel()

	vec, err := c.embedder.Embed(embedCtx, text)
	if err != nil {
		logging.Cache("embedding unavailable, storing without vector: %v", err)
		return nil
	}
	return vec
}

// ingestChunks embeds the crawl chunks in one batch and stores them as
// knowledge snippets. On embedding failure the snippets are stored without
// vectors for later backfill.
func (c *IntelligenceCache) ingestChunks(ctx context.Context, intelID int64, sourceURL, sourceType string, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, c.cfg.EmbedTimeout)
	vecs, err := c.embedder.EmbedBatch(embedCtx, chunks)
	cancel()
	if err != nil {
		logging.Cache("batch embedding failed for %d chunks, storing unembedded: %v", len(chunks), err)
		vecs = nil
	}

	snippets := make([]types.KnowledgeSnippet, len(chunks))
	for i, chunk := range chunks {
		snippets[i] = types.KnowledgeSnippet{
			ProductIntelligenceID: intelID,
			Content:               chunk,
			SourceURL:             sourceURL,
			Metadata: types.SnippetMetadata{
				SourceType: sourceType,
				ChunkIndex: i,
			},
		}
		if vecs != nil {
			snippets[i].Embedding = vecs[i]
		}
	}
	return c.store.IngestSnippets(snippets)
}
