// Package main implements the prodintel CLI: compile product intelligence
// from URLs, retrieve RAG context, manage reference counts, and run store
// maintenance.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prodintel/internal/cache"
	"prodintel/internal/config"
	"prodintel/internal/crawler"
	"prodintel/internal/embedding"
	"prodintel/internal/logging"
	"prodintel/internal/rag"
	"prodintel/internal/store"
	"prodintel/internal/types"
)

var (
	configPath string
	dbPath     string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "prodintel",
	Short: "Product intelligence store",
	Long: `prodintel compiles product pages into structured, vector-indexed
intelligence and serves it back as ranked, citable context.

A product URL is canonicalized to a stable identity, crawled once, and
cached. Campaigns bind to the compiled row by reference count; research
snippets are owned by the product identity and retrieved by cosine
similarity to feed content generation.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "prodintel.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(bindCmd)
	rootCmd.AddCommand(unbindCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(ingestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired service components for one command invocation.
type app struct {
	cfg       *config.Config
	store     *store.Store
	cache     *cache.IntelligenceCache
	retriever *rag.Retriever
	crawler   *crawler.Extractor
}

// boot wires config, logging, store, embedding engine, crawler, and cache.
func boot() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.DatabasePath = dbPath
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	if err := logging.Initialize(logging.Options{
		Dir:   cfg.Logging.Dir,
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.JSON,
	}); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	logging.Boot("prodintel %s starting", cfg.Version)

	st, err := store.NewStore(cfg.Store.DatabasePath, cfg.Store.VectorDims)
	if err != nil {
		return nil, err
	}

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:         cfg.Embedding.Provider,
		FallbackProvider: cfg.Embedding.FallbackProvider,
		OllamaEndpoint:   cfg.Embedding.OllamaEndpoint,
		OllamaModel:      cfg.Embedding.OllamaModel,
		GenAIAPIKey:      cfg.Embedding.GenAIAPIKey,
		GenAIModel:       cfg.Embedding.GenAIModel,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	if engine.Dimensions() != st.VectorDims() {
		st.Close()
		return nil, &types.DimensionMismatchError{
			StoreDims:  st.VectorDims(),
			EngineDims: engine.Dimensions(),
		}
	}

	cr := crawler.New(crawler.Config{
		RenderJS:     cfg.Crawler.RenderJS,
		Timeout:      cfg.Crawler.CrawlTimeout(),
		UserAgent:    cfg.Crawler.UserAgent,
		MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
		ChunkSize:    cfg.Crawler.ChunkSize,
	})

	compileWait := cfg.Cache.CompileWaitTimeout()
	if compileWait <= 0 {
		compileWait = cfg.Crawler.CrawlTimeout() + cfg.Embedding.EmbedTimeout()
	}

	ic := cache.New(st, cr, engine, cache.Config{
		StalenessWindow:  cfg.Cache.Staleness(),
		CompileWait:      compileWait,
		EmbedTimeout:     cfg.Embedding.EmbedTimeout(),
		RefreshQueueSize: cfg.Cache.RefreshQueueSize,
		GCRetention:      cfg.Cache.Retention(),
	})

	return &app{
		cfg:       cfg,
		store:     st,
		cache:     ic,
		retriever: rag.NewRetriever(st, engine),
		crawler:   cr,
	}, nil
}

// shutdown tears the app down in reverse wiring order.
func (a *app) shutdown() {
	a.cache.Close()
	if err := a.crawler.Close(); err != nil {
		logging.Boot("crawler shutdown: %v", err)
	}
	if err := a.store.Close(); err != nil {
		logging.Boot("store shutdown: %v", err)
	}
	logging.Close()
}
