package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"prodintel/internal/logging"
	"prodintel/internal/types"
)

// ErrNotFound is returned when no intelligence row matches a lookup.
var ErrNotFound = sql.ErrNoRows

const intelligenceColumns = `id, product_url, url_hash, intelligence_data,
	intelligence_embedding, compilation_version, compiled_at, updated_at,
	last_verified_at, reference_count, last_accessed_at, status, quality_score`

// ============================================================================
// INTELLIGENCE ROW CRUD
// ============================================================================

// GetByHash loads the intelligence row for a url_hash. Returns ErrNotFound
// when the identity has never been compiled.
func (s *Store) GetByHash(urlHash string) (*types.CompiledIntelligence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT "+intelligenceColumns+" FROM compiled_intelligence WHERE url_hash = ?",
		urlHash,
	)
	return scanIntelligence(row)
}

// GetByID loads the intelligence row by primary key.
func (s *Store) GetByID(id int64) (*types.CompiledIntelligence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT "+intelligenceColumns+" FROM compiled_intelligence WHERE id = ?",
		id,
	)
	return scanIntelligence(row)
}

// Insert persists a freshly compiled intelligence row and returns its ID.
// The url_hash UNIQUE constraint makes concurrent double-insert a hard error
// rather than silent duplication.
func (s *Store) Insert(intel *types.CompiledIntelligence) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dataJSON, err := json.Marshal(intel.Data)
	if err != nil {
		return 0, fmt.Errorf("serialize intelligence data: %w", err)
	}
	embJSON, err := marshalEmbedding(intel.Embedding)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	if intel.CompiledAt.IsZero() {
		intel.CompiledAt = now
	}
	if intel.UpdatedAt.IsZero() {
		intel.UpdatedAt = now
	}
	if intel.LastAccessedAt.IsZero() {
		intel.LastAccessedAt = now
	}
	if intel.Status == "" {
		intel.Status = types.StatusPending
	}

	res, err := s.db.Exec(`
		INSERT INTO compiled_intelligence (
			product_url, url_hash, intelligence_data, intelligence_embedding,
			compilation_version, compiled_at, updated_at, last_verified_at,
			reference_count, last_accessed_at, status, quality_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		intel.ProductURL, intel.URLHash, string(dataJSON), embJSON,
		intel.CompilationVersion, intel.CompiledAt, intel.UpdatedAt,
		intel.LastVerifiedAt, intel.ReferenceCount, intel.LastAccessedAt,
		intel.Status, intel.QualityScore,
	)
	if err != nil {
		return 0, fmt.Errorf("insert intelligence for %s: %w", intel.URLHash, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	intel.ID = id
	logging.Store("inserted intelligence %d for %s (refs=%d, quality=%.2f)",
		id, intel.URLHash, intel.ReferenceCount, intel.QualityScore)
	return id, nil
}

// UpdateCompilation replaces the compiled payload of an existing row after a
// refresh: data, embedding, version, verification time. Reference count and
// status are owned by other operations and left untouched.
func (s *Store) UpdateCompilation(id int64, data types.IntelligenceData, embedding []float32, version int, qualityScore float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("serialize intelligence data: %w", err)
	}
	embJSON, err := marshalEmbedding(embedding)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE compiled_intelligence
		SET intelligence_data = ?, intelligence_embedding = ?,
			compilation_version = ?, compiled_at = ?, updated_at = ?,
			last_verified_at = ?, quality_score = ?
		WHERE id = ?`,
		string(dataJSON), embJSON, version, now, now, now, qualityScore, id,
	)
	if err != nil {
		return fmt.Errorf("update compilation %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update compilation %d: %w", id, ErrNotFound)
	}
	logging.Store("refreshed intelligence %d to version %d", id, version)
	return nil
}

// TouchAccess bumps last_accessed_at on a cache hit.
func (s *Store) TouchAccess(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE compiled_intelligence SET last_accessed_at = ? WHERE id = ?",
		time.Now().UTC(), id,
	)
	return err
}

// SetStatus moves a row through the review lifecycle (pending, approved,
// rejected).
func (s *Store) SetStatus(id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE compiled_intelligence SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set status %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// REFERENCE COUNTING
// ============================================================================

// IncrementRef binds one more consumer to the intelligence row. The counter
// is bumped in SQL so concurrent binds never lose updates.
func (s *Store) IncrementRef(id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE compiled_intelligence SET reference_count = reference_count + 1 WHERE id = ?",
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("increment refs %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	return s.refCount(id)
}

// DecrementRef releases one consumer. The count floors at zero; unbinding an
// already-unbound row is a no-op rather than a negative count.
func (s *Store) DecrementRef(id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE compiled_intelligence
		 SET reference_count = CASE WHEN reference_count > 0 THEN reference_count - 1 ELSE 0 END
		 WHERE id = ?`,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("decrement refs %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	return s.refCount(id)
}

func (s *Store) refCount(id int64) (int64, error) {
	var count int64
	err := s.db.QueryRow(
		"SELECT reference_count FROM compiled_intelligence WHERE id = ?", id,
	).Scan(&count)
	return count, err
}

// ============================================================================
// STALENESS, STATS, GARBAGE COLLECTION
// ============================================================================

// ListStale returns rows that need recompilation: compiled by an older code
// version, never verified, or last verified before the staleness cutoff.
func (s *Store) ListStale(currentVersion int, stalenessWindow time.Duration, limit int) ([]*types.CompiledIntelligence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-stalenessWindow)
	rows, err := s.db.Query(
		`SELECT `+intelligenceColumns+` FROM compiled_intelligence
		 WHERE compilation_version < ?
		    OR last_verified_at IS NULL
		    OR last_verified_at < ?
		 ORDER BY last_accessed_at DESC
		 LIMIT ?`,
		currentVersion, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale: %w", err)
	}
	defer rows.Close()

	var out []*types.CompiledIntelligence
	for rows.Next() {
		intel, err := scanIntelligence(rows)
		if err != nil {
			logging.StoreDebug("skip unreadable stale row: %v", err)
			continue
		}
		out = append(out, intel)
	}
	return out, rows.Err()
}

// Stats summarizes the store for the stats command.
type Stats struct {
	IntelligenceRows int64
	WithEmbedding    int64
	Referenced       int64
	Pending          int64
	Approved         int64
	Rejected         int64
	Snippets         int64
	SnippetsEmbedded int64
	OldestCompiledAt *time.Time
	AverageQuality   float64
}

// GetStats computes store-wide counters.
func (s *Store) GetStats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &Stats{}
	err := s.db.QueryRow(`
		SELECT COUNT(*),
			COUNT(intelligence_embedding),
			COUNT(CASE WHEN reference_count > 0 THEN 1 END),
			COUNT(CASE WHEN status = 'pending' THEN 1 END),
			COUNT(CASE WHEN status = 'approved' THEN 1 END),
			COUNT(CASE WHEN status = 'rejected' THEN 1 END),
			COALESCE(AVG(quality_score), 0)
		FROM compiled_intelligence`,
	).Scan(&st.IntelligenceRows, &st.WithEmbedding, &st.Referenced,
		&st.Pending, &st.Approved, &st.Rejected, &st.AverageQuality)
	if err != nil {
		return nil, fmt.Errorf("intelligence stats: %w", err)
	}

	err = s.db.QueryRow(
		"SELECT COUNT(*), COUNT(embedding) FROM knowledge_snippets",
	).Scan(&st.Snippets, &st.SnippetsEmbedded)
	if err != nil {
		return nil, fmt.Errorf("snippet stats: %w", err)
	}

	var oldest sql.NullTime
	if err := s.db.QueryRow(
		"SELECT MIN(compiled_at) FROM compiled_intelligence",
	).Scan(&oldest); err == nil && oldest.Valid {
		t := oldest.Time
		st.OldestCompiledAt = &t
	}
	return st, nil
}

// GarbageCollect deletes unreferenced rows that have not been accessed within
// the retention window. Approved rows are kept regardless: review effort is
// worth more than the disk. Snippets go with their owner via ON DELETE
// CASCADE.
func (s *Store) GarbageCollect(retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.Exec(
		`DELETE FROM compiled_intelligence
		 WHERE reference_count = 0
		   AND status != 'approved'
		   AND last_accessed_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("garbage collect: %w", err)
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		logging.Store("garbage collected %d intelligence rows (cutoff %s)", deleted, cutoff.Format(time.RFC3339))
	}
	return deleted, nil
}

// ============================================================================
// ROW SCANNING
// ============================================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntelligence(row rowScanner) (*types.CompiledIntelligence, error) {
	var intel types.CompiledIntelligence
	var dataJSON string
	var embJSON sql.NullString
	var lastVerified sql.NullTime

	err := row.Scan(&intel.ID, &intel.ProductURL, &intel.URLHash, &dataJSON,
		&embJSON, &intel.CompilationVersion, &intel.CompiledAt,
		&intel.UpdatedAt, &lastVerified, &intel.ReferenceCount,
		&intel.LastAccessedAt, &intel.Status, &intel.QualityScore)
	if err != nil {
		return nil, err
	}

	// Blobs written by older compiler versions are migrated on read; the rest
	// of the system only sees the current schema.
	intel.Data, err = types.MigrateIntelligenceData([]byte(dataJSON), intel.CompilationVersion)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", intel.ID, err)
	}

	if embJSON.Valid && embJSON.String != "" {
		if err := json.Unmarshal([]byte(embJSON.String), &intel.Embedding); err != nil {
			return nil, fmt.Errorf("row %d: decode embedding: %w", intel.ID, err)
		}
	}
	if lastVerified.Valid {
		t := lastVerified.Time
		intel.LastVerifiedAt = &t
	}
	return &intel, nil
}

// marshalEmbedding serializes a vector as JSON, or NULL when the vector is
// absent (embedding provider down at compile time).
func marshalEmbedding(vec []float32) (interface{}, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("serialize embedding: %w", err)
	}
	return string(b), nil
}
