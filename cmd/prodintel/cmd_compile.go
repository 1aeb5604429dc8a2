package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"prodintel/internal/types"
)

// =============================================================================
// COMPILE & RETRIEVE COMMANDS
// =============================================================================

// compileCmd compiles (or returns cached) intelligence for a product URL.
var compileCmd = &cobra.Command{
	Use:   "compile <url>",
	Short: "Compile product intelligence for a URL",
	Long: `Compile product intelligence for a URL.

The URL is canonicalized first, so variants differing only by tracking
parameters or a trailing slash hit the same cached row. A cache miss
crawls the page, extracts structured facts, embeds them, and seeds the
knowledge index.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

var retrieveK int
var retrieveMinSim float64

// retrieveCmd runs a RAG query against one product identity.
var retrieveCmd = &cobra.Command{
	Use:   "retrieve <intelligence-id> <query>",
	Short: "Retrieve ranked research snippets for a product",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRetrieve,
}

func init() {
	retrieveCmd.Flags().IntVarP(&retrieveK, "top-k", "k", 0, "Max results (default from config)")
	retrieveCmd.Flags().Float64Var(&retrieveMinSim, "min-similarity", 0, "Similarity floor (default from config)")
}

func runCompile(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	intel, err := a.cache.GetOrCompile(ctx, args[0])
	if err != nil {
		var cf *types.CompilationFailedError
		if errors.As(err, &cf) {
			return fmt.Errorf("compilation failed (%s): %w", cf.Reason, cf.Err)
		}
		return err
	}

	printIntelligence(intel)
	return nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.shutdown()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	query := strings.Join(args[1:], " ")

	k := a.cfg.Retrieval.TopK
	if cmd.Flags().Changed("top-k") {
		k = retrieveK
	}
	// Changed, not a zero check: --min-similarity 0 is a legitimate request
	// for an unfiltered ranking.
	minSim := a.cfg.Retrieval.MinSimilarity
	if cmd.Flags().Changed("min-similarity") {
		minSim = retrieveMinSim
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := a.retriever.Retrieve(ctx, id, query, k, minSim)
	if err != nil {
		if errors.Is(err, types.ErrEmbeddingUnavailable) {
			return fmt.Errorf("embedding provider is down; generate from structured facts instead: %w", err)
		}
		return err
	}

	if result.Degraded {
		fmt.Println("⚠️  Semantic retrieval unavailable for this product (no embedding yet)")
		return nil
	}
	if len(result.Snippets) == 0 {
		fmt.Println("No supporting research above the similarity floor.")
		return nil
	}

	fmt.Printf("📚 %d snippets for query %q\n", len(result.Snippets), query)
	fmt.Println(strings.Repeat("─", 60))
	for _, s := range result.Snippets {
		fmt.Printf("[%d] (%.3f, %s) %s\n", s.Citation, s.Similarity, s.SourceType, truncateStr(s.Content, 160))
	}
	return nil
}

func printIntelligence(intel *types.CompiledIntelligence) {
	fmt.Printf("Intelligence #%d\n", intel.ID)
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("  URL:        %s\n", intel.ProductURL)
	fmt.Printf("  Hash:       %s\n", intel.URLHash)
	fmt.Printf("  Title:      %s\n", intel.Data.Title)
	if intel.Data.Price != "" {
		fmt.Printf("  Price:      %s %s\n", intel.Data.Price, intel.Data.Currency)
	}
	fmt.Printf("  Version:    %d\n", intel.CompilationVersion)
	fmt.Printf("  Status:     %s\n", intel.Status)
	fmt.Printf("  Quality:    %.2f\n", intel.QualityScore)
	fmt.Printf("  References: %d\n", intel.ReferenceCount)
	fmt.Printf("  Embedded:   %v\n", intel.HasEmbedding())
	fmt.Printf("  Compiled:   %s\n", intel.CompiledAt.Format(time.RFC3339))
	if intel.LastVerifiedAt != nil {
		fmt.Printf("  Verified:   %s\n", intel.LastVerifiedAt.Format(time.RFC3339))
	}
	for _, f := range intel.Data.Features {
		fmt.Printf("  • %s\n", truncateStr(f, 70))
	}
}

func parseID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid intelligence id %q", s)
	}
	return id, nil
}

func truncateStr(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
