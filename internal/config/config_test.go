package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.VectorDims != 768 {
		t.Errorf("VectorDims = %d, want 768 default", cfg.Store.VectorDims)
	}
	if cfg.Retrieval.MinSimilarity != 0.7 {
		t.Errorf("MinSimilarity = %f, want 0.7 default", cfg.Retrieval.MinSimilarity)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prodintel.yaml")
	content := `
store:
  database_path: /tmp/other.db
  vector_dims: 1536
cache:
  staleness_window: 24h
retrieval:
  top_k: 3
  min_similarity: 0.8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.VectorDims != 1536 {
		t.Errorf("VectorDims = %d, want 1536", cfg.Store.VectorDims)
	}
	if cfg.Cache.Staleness() != 24*time.Hour {
		t.Errorf("Staleness = %s, want 24h", cfg.Cache.Staleness())
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("TopK = %d, want 3", cfg.Retrieval.TopK)
	}
	// Untouched sections keep their defaults.
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("Provider = %q, want ollama default", cfg.Embedding.Provider)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Run("PRODINTEL_DB_PATH overrides database path", func(t *testing.T) {
		t.Setenv("PRODINTEL_DB_PATH", "/srv/intel.db")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "/srv/intel.db", cfg.Store.DatabasePath)
	})

	t.Run("PRODINTEL_EMBEDDING_PROVIDER overrides provider", func(t *testing.T) {
		t.Setenv("PRODINTEL_EMBEDDING_PROVIDER", "genai")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "genai", cfg.Embedding.Provider)
	})

	t.Run("env wins over file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prodintel.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store:\n  database_path: /from/file.db\n"), 0o644))
		t.Setenv("PRODINTEL_DB_PATH", "/from/env.db")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/from/env.db", cfg.Store.DatabasePath)
	})
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("store:\n  vector_dims: -4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for negative vector_dims")
	}
}

func TestDurationAccessors_FallBackOnGarbage(t *testing.T) {
	c := CacheConfig{StalenessWindow: "soon-ish"}
	if c.Staleness() != 30*24*time.Hour {
		t.Errorf("Staleness = %s, want 30-day fallback", c.Staleness())
	}

	e := EmbeddingConfig{}
	if e.EmbedTimeout() != 10*time.Second {
		t.Errorf("EmbedTimeout = %s, want 10s fallback", e.EmbedTimeout())
	}
}

func TestSaveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "prodintel.yaml")

	cfg := DefaultConfig()
	cfg.Store.VectorDims = 1024
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Store.VectorDims != 1024 {
		t.Errorf("VectorDims = %d after roundtrip", loaded.Store.VectorDims)
	}
}
