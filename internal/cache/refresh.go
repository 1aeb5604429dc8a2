package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prodintel/internal/logging"
	"prodintel/internal/store"
	"prodintel/internal/types"
)

// IsStale reports whether a row needs recompilation: compiled by an older
// code version, never verified, or verified too long ago.
func (c *IntelligenceCache) IsStale(intel *types.CompiledIntelligence) bool {
	if intel.CompilationVersion < types.IntelligenceSchemaVersion {
		return true
	}
	if intel.LastVerifiedAt == nil {
		return true
	}
	return time.Since(*intel.LastVerifiedAt) > c.cfg.StalenessWindow
}

// EnsureFresh refreshes a row if it is stale and reports whether a refresh
// ran. Concurrent calls for the same row share one refresh flight; a second
// call right after the first observes the new last_verified_at and no-ops.
// Never blocks concurrent GetOrCompile reads, which keep serving the old row
// until the new version is installed.
func (c *IntelligenceCache) EnsureFresh(ctx context.Context, id int64) (bool, error) {
	intel, err := c.store.GetByID(id)
	if err != nil {
		return false, err
	}
	if !c.IsStale(intel) {
		return false, nil
	}

	return c.refreshShared(ctx, id)
}

// refreshShared runs refreshOne inside the per-row refresh flight. Both
// EnsureFresh and the background loop go through here, so one row is never
// crawled twice concurrently no matter which path asked first.
func (c *IntelligenceCache) refreshShared(ctx context.Context, id int64) (bool, error) {
	res, err, _ := c.flights.Do(fmt.Sprintf("refresh:%d", id), func() (interface{}, error) {
		return c.refreshOne(ctx, id)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// ScanStale sweeps the store and queues every stale row for background
// refresh, up to limit. Used by the periodic refresh job.
func (c *IntelligenceCache) ScanStale(limit int) (int, error) {
	stale, err := c.store.ListStale(types.IntelligenceSchemaVersion, c.cfg.StalenessWindow, limit)
	if err != nil {
		return 0, err
	}
	for _, intel := range stale {
		c.enqueueRefresh(intel.ID)
	}
	if len(stale) > 0 {
		logging.Refresh("queued %d stale rows for refresh", len(stale))
	}
	return len(stale), nil
}

// PendingRefreshes reports how many rows are queued or mid-refresh.
func (c *IntelligenceCache) PendingRefreshes() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

func (c *IntelligenceCache) enqueueRefresh(id int64) {
	c.pendingMu.Lock()
	if _, already := c.pending[id]; already {
		c.pendingMu.Unlock()
		return
	}
	c.pending[id] = struct{}{}
	c.pendingMu.Unlock()

	select {
	case c.refreshCh <- id:
	default:
		// Queue full. Drop the request; the row stays stale and the next
		// access or sweep re-queues it.
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		logging.RefreshDebug("refresh queue full, dropping row %d", id)
	}
}

func (c *IntelligenceCache) refreshLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case id := <-c.refreshCh:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CompileWait)
			if _, err := c.refreshShared(ctx, id); err != nil {
				logging.Refresh("background refresh %d: %v", id, err)
			}
			cancel()
			c.pendingMu.Lock()
			delete(c.pending, id)
			c.pendingMu.Unlock()
		}
	}
}

// refreshOne recompiles a single row in place: re-crawl, re-embed, ingest the
// new research additively. Existing snippets are kept; superseding old
// research is a separate policy decision, and losing it on a refresh is
// worse. A failed refresh leaves the old row serving; a stale answer beats no
// answer.
func (c *IntelligenceCache) refreshOne(ctx context.Context, id int64) (bool, error) {
	timer := logging.StartTimer(logging.CategoryRefresh, "refreshOne")
	defer timer.Stop()

	intel, err := c.store.GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil // garbage collected while queued
	}
	if err != nil {
		return false, err
	}
	if !c.IsStale(intel) {
		return false, nil // refreshed by a competing flight
	}

	extraction, err := c.crawler.Extract(ctx, intel.ProductURL)
	if err != nil {
		return false, fmt.Errorf("refresh crawl %s: %w", intel.URLHash, err)
	}

	vec := c.embedOrDegrade(ctx, extraction.Facts.CanonicalText())
	if err := c.store.UpdateCompilation(id, extraction.Facts, vec,
		types.IntelligenceSchemaVersion, extraction.QualityScore); err != nil {
		return false, err
	}

	if err := c.ingestChunks(ctx, id, intel.ProductURL, "refresh", extraction.Chunks); err != nil {
		logging.Refresh("refresh %d: snippet ingest failed: %v", id, err)
	}
	logging.Refresh("refreshed intelligence %d (%s)", id, intel.URLHash)
	return true, nil
}
