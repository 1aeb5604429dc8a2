package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"prodintel/internal/embedding"
	"prodintel/internal/logging"
	"prodintel/internal/types"
)

// ============================================================================
// SNIPPET INGESTION
// ============================================================================

// IngestSnippets stores research chunks for a product identity. Snippets
// without embeddings are stored anyway (embedding = NULL) and picked up later
// by the backfill job. IDs are assigned here when absent.
func (s *Store) IngestSnippets(snippets []types.KnowledgeSnippet) error {
	if len(snippets) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snippet ingest: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO knowledge_snippets
			(id, product_intelligence_id, content, embedding, metadata, source_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snippet insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range snippets {
		sn := &snippets[i]
		if sn.ID == "" {
			sn.ID = uuid.NewString()
		}
		if sn.CreatedAt.IsZero() {
			sn.CreatedAt = now
		}
		if sn.ProductIntelligenceID == 0 {
			return fmt.Errorf("snippet %s has no owning intelligence row", sn.ID)
		}

		embJSON, err := marshalEmbedding(sn.Embedding)
		if err != nil {
			return err
		}
		metaJSON, err := json.Marshal(sn.Metadata)
		if err != nil {
			return fmt.Errorf("serialize snippet metadata: %w", err)
		}

		if _, err := stmt.Exec(sn.ID, sn.ProductIntelligenceID, sn.Content,
			embJSON, string(metaJSON), sn.SourceURL, sn.CreatedAt); err != nil {
			return fmt.Errorf("insert snippet %s: %w", sn.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snippet ingest: %w", err)
	}
	logging.Index("ingested %d snippets for intelligence %d",
		len(snippets), snippets[0].ProductIntelligenceID)
	return nil
}

// ============================================================================
// SEMANTIC SEARCH
// ============================================================================

// SearchSnippets ranks the snippets owned by one product against a query
// embedding. The ownership filter is a hard SQL predicate, never a score
// penalty: snippets from other products must not appear however similar.
// Results below minSimilarity are dropped; ties on similarity break by
// created_at, newest first.
func (s *Store) SearchSnippets(productIntelligenceID int64, queryEmbedding []float32, k int, minSimilarity float64) ([]types.ScoredSnippet, error) {
	timer := logging.StartTimer(logging.CategoryIndex, "SearchSnippets")
	defer timer.StopWithThreshold(500 * time.Millisecond)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		k = 5
	}

	rows, err := s.db.Query(`
		SELECT id, product_intelligence_id, content, embedding, metadata, source_url, created_at
		FROM knowledge_snippets
		WHERE product_intelligence_id = ? AND embedding IS NOT NULL`,
		productIntelligenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query snippets for %d: %w", productIntelligenceID, err)
	}
	defer rows.Close()

	var candidates []types.ScoredSnippet
	for rows.Next() {
		sn, embJSON, err := scanSnippet(rows)
		if err != nil {
			logging.IndexDebug("skip unreadable snippet: %v", err)
			continue
		}

		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			logging.IndexDebug("skip snippet %s with corrupt embedding: %v", sn.ID, err)
			continue
		}
		sn.Embedding = vec

		similarity, err := embedding.CosineSimilarity(queryEmbedding, vec)
		if err != nil {
			logging.IndexDebug("skip snippet %s: %v", sn.ID, err)
			continue
		}
		if similarity < minSimilarity {
			continue
		}
		candidates = append(candidates, types.ScoredSnippet{Snippet: sn, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Snippet.CreatedAt.After(candidates[j].Snippet.CreatedAt)
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	logging.IndexDebug("search for intelligence %d: %d candidates above %.2f",
		productIntelligenceID, len(candidates), minSimilarity)
	return candidates, nil
}

// ============================================================================
// EMBEDDING BACKFILL
// ============================================================================

// ListSnippetsMissingEmbeddings returns snippets stored during embedding
// outages, oldest first.
func (s *Store) ListSnippetsMissingEmbeddings(limit int) ([]types.KnowledgeSnippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, product_intelligence_id, content, embedding, metadata, source_url, created_at
		FROM knowledge_snippets
		WHERE embedding IS NULL
		ORDER BY created_at ASC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unembedded snippets: %w", err)
	}
	defer rows.Close()

	var out []types.KnowledgeSnippet
	for rows.Next() {
		sn, _, err := scanSnippet(rows)
		if err != nil {
			continue
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// UpdateSnippetEmbedding fills in the vector for one snippet.
func (s *Store) UpdateSnippetEmbedding(id string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	embJSON, err := marshalEmbedding(vec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("UPDATE knowledge_snippets SET embedding = ? WHERE id = ?", embJSON, id)
	return err
}

// ListIntelligenceMissingEmbeddings returns intelligence rows whose row-level
// vector is absent, for the same backfill job.
func (s *Store) ListIntelligenceMissingEmbeddings(limit int) ([]*types.CompiledIntelligence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT `+intelligenceColumns+` FROM compiled_intelligence
		 WHERE intelligence_embedding IS NULL
		 ORDER BY compiled_at ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unembedded intelligence: %w", err)
	}
	defer rows.Close()

	var out []*types.CompiledIntelligence
	for rows.Next() {
		intel, err := scanIntelligence(rows)
		if err != nil {
			continue
		}
		out = append(out, intel)
	}
	return out, rows.Err()
}

// UpdateIntelligenceEmbedding fills in the row-level vector.
func (s *Store) UpdateIntelligenceEmbedding(id int64, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	embJSON, err := marshalEmbedding(vec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"UPDATE compiled_intelligence SET intelligence_embedding = ?, updated_at = ? WHERE id = ?",
		embJSON, time.Now().UTC(), id,
	)
	return err
}

// scanSnippet reads one snippet row. The raw embedding JSON is returned
// separately so search can decode it and listings can skip it.
func scanSnippet(rows *sql.Rows) (types.KnowledgeSnippet, string, error) {
	var sn types.KnowledgeSnippet
	var embJSON, metaJSON sql.NullString

	err := rows.Scan(&sn.ID, &sn.ProductIntelligenceID, &sn.Content,
		&embJSON, &metaJSON, &sn.SourceURL, &sn.CreatedAt)
	if err != nil {
		return sn, "", err
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &sn.Metadata); err != nil {
			return sn, "", fmt.Errorf("snippet %s: decode metadata: %w", sn.ID, err)
		}
	}
	return sn, embJSON.String, nil
}
