// Package store persists compiled product intelligence and knowledge
// snippets in SQLite. One row per canonical product URL, identified by its
// url_hash; snippets hang off their owning intelligence row and carry vector
// embeddings for semantic retrieval.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"

	"prodintel/internal/logging"
	"prodintel/internal/types"
)

// Store wraps the SQLite database holding intelligence rows and snippets.
type Store struct {
	db         *sql.DB
	mu         sync.RWMutex
	dbPath     string
	vectorDims int
}

// NewStore opens (or creates) the database at path and initializes the
// schema. vectorDims is pinned in the store metadata on first open; reopening
// with a different dimensionality fails with DimensionMismatchError so that
// vectors from incompatible embedding models never mix.
func NewStore(path string, vectorDims int) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewStore")
	defer timer.Stop()

	logging.Store("opening store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("set journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("set synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("set foreign_keys=ON: %v", err)
	}

	s := &Store{db: db, dbPath: path, vectorDims: vectorDims}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.checkDimensions(vectorDims); err != nil {
		db.Close()
		return nil, err
	}

	logging.StoreDebug("store schema initialized, %d-dim vectors", vectorDims)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS compiled_intelligence (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_url TEXT NOT NULL,
		url_hash TEXT NOT NULL UNIQUE,
		intelligence_data TEXT NOT NULL,
		intelligence_embedding TEXT,
		compilation_version INTEGER NOT NULL,
		compiled_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		last_verified_at DATETIME,
		reference_count INTEGER NOT NULL DEFAULT 0,
		last_accessed_at DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		quality_score REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_intelligence_url_hash
		ON compiled_intelligence(url_hash);
	CREATE INDEX IF NOT EXISTS idx_intelligence_last_accessed
		ON compiled_intelligence(last_accessed_at);

	CREATE TABLE IF NOT EXISTS knowledge_snippets (
		id TEXT PRIMARY KEY,
		product_intelligence_id INTEGER NOT NULL
			REFERENCES compiled_intelligence(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		embedding TEXT,
		metadata TEXT,
		source_url TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snippets_owner
		ON knowledge_snippets(product_intelligence_id);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// checkDimensions pins the vector dimensionality on first open and rejects
// mismatched reopens.
func (s *Store) checkDimensions(dims int) error {
	var stored string
	err := s.db.QueryRow("SELECT value FROM store_meta WHERE key = 'vector_dims'").Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec("INSERT INTO store_meta (key, value) VALUES ('vector_dims', ?)",
			strconv.Itoa(dims))
		if err != nil {
			return fmt.Errorf("record vector dims: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read vector dims: %w", err)
	}

	storedDims, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("corrupt vector_dims metadata %q: %w", stored, err)
	}
	if storedDims != dims {
		return &types.DimensionMismatchError{StoreDims: storedDims, EngineDims: dims}
	}
	return nil
}

// VectorDims returns the pinned embedding dimensionality.
func (s *Store) VectorDims() int {
	return s.vectorDims
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the underlying database.
func (s *Store) Close() error {
	logging.Store("closing store at %s", s.dbPath)
	return s.db.Close()
}
