// Package cache is the compile-once layer over the intelligence store. A
// product URL is canonicalized to its url_hash identity; the first caller for
// an uncached identity pays the crawl-and-embed cost exactly once while
// concurrent callers for the same identity wait on the same flight. Stale
// rows are served immediately and recompiled in the background.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"prodintel/internal/crawler"
	"prodintel/internal/embedding"
	"prodintel/internal/logging"
	"prodintel/internal/store"
)

// Config controls cache timing and refresh behavior.
type Config struct {
	// StalenessWindow is how long a verification stays trusted.
	StalenessWindow time.Duration

	// CompileWait bounds how long a caller blocks on another caller's
	// in-flight compilation before giving up with ErrLockTimeout.
	CompileWait time.Duration

	// EmbedTimeout bounds each embedding call during compilation.
	EmbedTimeout time.Duration

	// RefreshQueueSize is the background refresh queue capacity. A full
	// queue drops refresh requests; staleness is advisory, not a contract.
	RefreshQueueSize int

	// GCRetention is how long unreferenced, unaccessed rows are kept.
	GCRetention time.Duration
}

// DefaultConfig returns the standard cache timings.
func DefaultConfig() Config {
	return Config{
		StalenessWindow:  720 * time.Hour,
		CompileWait:      60 * time.Second,
		EmbedTimeout:     10 * time.Second,
		RefreshQueueSize: 64,
		GCRetention:      336 * time.Hour,
	}
}

// IntelligenceCache coordinates the store, crawler, and embedding engine.
type IntelligenceCache struct {
	store    *store.Store
	crawler  crawler.Crawler
	embedder embedding.Engine
	cfg      Config

	flights singleflight.Group

	refreshCh chan int64
	pendingMu sync.Mutex
	pending   map[int64]struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates the cache and starts the background refresher.
func New(st *store.Store, cr crawler.Crawler, emb embedding.Engine, cfg Config) *IntelligenceCache {
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = DefaultConfig().StalenessWindow
	}
	if cfg.CompileWait <= 0 {
		cfg.CompileWait = DefaultConfig().CompileWait
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultConfig().EmbedTimeout
	}
	if cfg.RefreshQueueSize <= 0 {
		cfg.RefreshQueueSize = DefaultConfig().RefreshQueueSize
	}
	if cfg.GCRetention <= 0 {
		cfg.GCRetention = DefaultConfig().GCRetention
	}

	c := &IntelligenceCache{
		store:     st,
		crawler:   cr,
		embedder:  emb,
		cfg:       cfg,
		refreshCh: make(chan int64, cfg.RefreshQueueSize),
		pending:   make(map[int64]struct{}),
		stopCh:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.refreshLoop()

	logging.Cache("intelligence cache ready (staleness=%s, compile wait=%s)",
		cfg.StalenessWindow, cfg.CompileWait)
	return c
}

// Close stops the background refresher and waits for in-progress refreshes.
func (c *IntelligenceCache) Close() {
	close(c.stopCh)
	c.wg.Wait()
	logging.Cache("intelligence cache stopped")
}

// Bind registers a campaign as a consumer of an intelligence row and returns
// the new reference count. The increment happens in SQL; two campaigns
// binding concurrently both land. campaignID is attribution only: the
// campaign/product join lives with the campaign layer, never here.
func (c *IntelligenceCache) Bind(campaignID string, id int64) (int64, error) {
	count, err := c.store.IncrementRef(id)
	if err != nil {
		return 0, err
	}
	logging.Cache("campaign %s bound intelligence %d (refs=%d)", campaignID, id, count)
	return count, nil
}

// Unbind releases a campaign's binding. The row is never deleted here,
// whatever the count: reclamation is GarbageCollect's job, on its own
// schedule.
func (c *IntelligenceCache) Unbind(campaignID string, id int64) (int64, error) {
	count, err := c.store.DecrementRef(id)
	if err != nil {
		return 0, err
	}
	logging.Cache("campaign %s unbound intelligence %d (refs=%d)", campaignID, id, count)
	return count, nil
}

// IngestResearch adds hand-curated research chunks to a product identity,
// outside the compile/refresh cycle. Re-ingesting the same source produces
// duplicate snippets; content-hash dedup is deliberately not promised.
func (c *IntelligenceCache) IngestResearch(ctx context.Context, id int64, sourceURL string, chunks []string) error {
	if _, err := c.store.GetByID(id); err != nil {
		return err
	}
	return c.ingestChunks(ctx, id, sourceURL, "manual", chunks)
}

// GarbageCollect removes unreferenced rows past the retention window.
func (c *IntelligenceCache) GarbageCollect() (int64, error) {
	return c.store.GarbageCollect(c.cfg.GCRetention)
}

// Stats exposes store counters.
func (c *IntelligenceCache) Stats() (*store.Stats, error) {
	return c.store.GetStats()
}
