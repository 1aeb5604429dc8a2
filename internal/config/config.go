// Package config loads and validates the product intelligence store
// configuration from YAML, with environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Cache     CacheConfig     `yaml:"cache"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig configures the SQLite-backed intelligence store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`

	// VectorDims is the deployment-wide embedding dimensionality. The
	// configured embedding engine must produce vectors of exactly this
	// size; a mismatch is a fatal startup error.
	VectorDims int `yaml:"vector_dims"`
}

// EmbeddingConfig configures the embedding engine and its fallback.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai"
	Provider string `yaml:"provider"`

	// FallbackProvider is tried when the primary provider fails. Empty
	// disables fallback.
	FallbackProvider string `yaml:"fallback_provider"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`

	// Timeout for a single embed call, e.g. "10s".
	Timeout string `yaml:"timeout"`
}

// EmbedTimeout parses the embed timeout, defaulting to 10s.
func (c EmbeddingConfig) EmbedTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// CrawlerConfig configures product page fetching and extraction.
type CrawlerConfig struct {
	// RenderJS switches from the plain HTTP fetcher to the rod-driven
	// headless browser for pages that require JavaScript.
	RenderJS bool `yaml:"render_js"`

	Timeout      string `yaml:"timeout"` // e.g. "30s"
	UserAgent    string `yaml:"user_agent"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`

	// ChunkSize is the target size in characters for knowledge snippets
	// carved out of crawled page text.
	ChunkSize int `yaml:"chunk_size"`
}

// CrawlTimeout parses the crawl timeout, defaulting to 30s.
func (c CrawlerConfig) CrawlTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// CacheConfig configures the intelligence cache and refresh policy.
type CacheConfig struct {
	// StalenessWindow is the maximum age of last_verified_at before a row
	// becomes eligible for background refresh, e.g. "720h".
	StalenessWindow string `yaml:"staleness_window"`

	// CompileWait bounds how long a caller waits on an in-flight
	// compilation before receiving ErrLockTimeout. Empty means wait for
	// the crawl timeout plus the embed timeout.
	CompileWait string `yaml:"compile_wait"`

	// RefreshQueueSize bounds the background refresh queue.
	RefreshQueueSize int `yaml:"refresh_queue_size"`

	// GCRetention is how long a zero-reference row is kept before it is
	// eligible for garbage collection, e.g. "336h".
	GCRetention string `yaml:"gc_retention"`
}

// Staleness parses the staleness window, defaulting to 30 days.
func (c CacheConfig) Staleness() time.Duration {
	return parseDuration(c.StalenessWindow, 30*24*time.Hour)
}

// CompileWaitTimeout parses the compile wait bound; zero means no bound
// beyond the compile's own timeouts.
func (c CacheConfig) CompileWaitTimeout() time.Duration {
	return parseDuration(c.CompileWait, 0)
}

// Retention parses the GC retention window, defaulting to 14 days.
func (c CacheConfig) Retention() time.Duration {
	return parseDuration(c.GCRetention, 14*24*time.Hour)
}

// RetrievalConfig configures RAG defaults.
type RetrievalConfig struct {
	TopK          int     `yaml:"top_k"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

// LoggingConfig configures categorized logging.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "prodintel",
		Version: "1.0.0",

		Store: StoreConfig{
			DatabasePath: "data/prodintel.db",
			VectorDims:   768,
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			Timeout:        "10s",
		},

		Crawler: CrawlerConfig{
			RenderJS:     false,
			Timeout:      "30s",
			UserAgent:    "Mozilla/5.0 (compatible; prodintel/1.0)",
			MaxBodyBytes: 2 << 20,
			ChunkSize:    800,
		},

		Cache: CacheConfig{
			StalenessWindow:  "720h",
			RefreshQueueSize: 256,
			GCRetention:      "336h",
		},

		Retrieval: RetrievalConfig{
			TopK:          5,
			MinSimilarity: 0.7,
		},

		Logging: LoggingConfig{
			Dir:   "data",
			Level: "info",
		},
	}
}

// Load reads the config file at path, layered over defaults. A missing file
// is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets and deployment knobs come from the
// environment instead of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PRODINTEL_DB_PATH"); v != "" {
		cfg.Store.DatabasePath = v
	}
	if v := os.Getenv("PRODINTEL_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("PRODINTEL_GENAI_API_KEY"); v != "" {
		cfg.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("PRODINTEL_OLLAMA_ENDPOINT"); v != "" {
		cfg.Embedding.OllamaEndpoint = v
	}
	if v := os.Getenv("PRODINTEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c *Config) Validate() error {
	if c.Store.VectorDims <= 0 {
		return fmt.Errorf("store.vector_dims must be positive, got %d", c.Store.VectorDims)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("retrieval.min_similarity must be within [-1, 1], got %f", c.Retrieval.MinSimilarity)
	}
	return nil
}

// Save writes the config as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
