package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"prodintel/internal/types"
)

// =============================================================================
// LIFECYCLE & MAINTENANCE COMMANDS
// =============================================================================

// refreshCmd refreshes one row, or sweeps the whole store for stale rows.
var refreshCmd = &cobra.Command{
	Use:   "refresh [intelligence-id]",
	Short: "Refresh stale intelligence",
	Long: `Refresh stale intelligence.

With an id, refreshes that row if stale (no-op when fresh). Without
arguments, sweeps the store and refreshes everything past the staleness
window.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

var bindCampaign string

// bindCmd registers a campaign binding against an intelligence row.
var bindCmd = &cobra.Command{
	Use:   "bind <intelligence-id>",
	Short: "Increment a product's reference count",
	Args:  cobra.ExactArgs(1),
	RunE:  runBind,
}

// unbindCmd releases a campaign binding.
var unbindCmd = &cobra.Command{
	Use:   "unbind <intelligence-id>",
	Short: "Decrement a product's reference count",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnbind,
}

// statusCmd moves a row through moderation review.
var statusCmd = &cobra.Command{
	Use:   "status <intelligence-id> <pending|approved|rejected>",
	Short: "Set a row's review status",
	Args:  cobra.ExactArgs(2),
	RunE:  runStatus,
}

// gcCmd removes unreferenced rows past the retention window.
var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect unreferenced intelligence",
	RunE:  runGC,
}

// statsCmd prints store-wide counters.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE:  runStats,
}

var backfillBatch int

// backfillCmd re-embeds rows stored during embedding outages.
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill missing embeddings",
	RunE:  runBackfill,
}

var ingestSource string

// ingestCmd adds manual research chunks to a product identity.
var ingestCmd = &cobra.Command{
	Use:   "ingest <intelligence-id> <text>...",
	Short: "Ingest research snippets for a product",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runIngest,
}

func init() {
	bindCmd.Flags().StringVar(&bindCampaign, "campaign", "", "Campaign id for log attribution")
	unbindCmd.Flags().StringVar(&bindCampaign, "campaign", "", "Campaign id for log attribution")
	backfillCmd.Flags().IntVar(&backfillBatch, "batch", 100, "Max rows per run")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "Source URL for attribution")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.shutdown()

	if len(args) == 1 {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		refreshed, err := a.cache.EnsureFresh(ctx, id)
		if err != nil {
			return err
		}
		if refreshed {
			fmt.Printf("✅ Refreshed intelligence %d\n", id)
		} else {
			fmt.Printf("Intelligence %d is fresh, nothing to do\n", id)
		}
		return nil
	}

	queued, err := a.cache.ScanStale(1000)
	if err != nil {
		return err
	}
	fmt.Printf("Queued %d stale rows for refresh\n", queued)
	// Let the background refresher drain before shutdown.
	deadline := time.After(5 * time.Minute)
	for a.cache.PendingRefreshes() > 0 {
		select {
		case <-deadline:
			fmt.Println("⚠️  Refresh still running at deadline; remaining rows stay stale until next run")
			return nil
		case <-time.After(time.Second):
		}
	}
	fmt.Println("✅ All stale rows refreshed")
	return nil
}

func runBind(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.shutdown()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	count, err := a.cache.Bind(bindCampaign, id)
	if err != nil {
		return err
	}
	fmt.Printf("Intelligence %d now has %d reference(s)\n", id, count)
	return nil
}

func runUnbind(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.shutdown()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	count, err := a.cache.Unbind(bindCampaign, id)
	if err != nil {
		return err
	}
	fmt.Printf("Intelligence %d now has %d reference(s)\n", id, count)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.shutdown()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	status := args[1]
	switch status {
	case types.StatusPending, types.StatusApproved, types.StatusRejected:
	default:
		return fmt.Errorf("invalid status %q (use pending, approved, or rejected)", status)
	}

	if err := a.store.SetStatus(id, status); err != nil {
		return err
	}
	fmt.Printf("Intelligence %d marked %s\n", id, status)
	return nil
}

func runGC(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.shutdown()

	deleted, err := a.cache.GarbageCollect()
	if err != nil {
		return err
	}
	fmt.Printf("🧹 Garbage collected %d intelligence row(s)\n", deleted)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.shutdown()

	st, err := a.cache.Stats()
	if err != nil {
		return err
	}

	fmt.Println("📊 Product Intelligence Store")
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("  Intelligence rows:   %d\n", st.IntelligenceRows)
	fmt.Printf("  With embedding:      %d\n", st.WithEmbedding)
	fmt.Printf("  Referenced:          %d\n", st.Referenced)
	fmt.Printf("  Pending / Appr / Rej: %d / %d / %d\n", st.Pending, st.Approved, st.Rejected)
	fmt.Printf("  Snippets:            %d (%d embedded)\n", st.Snippets, st.SnippetsEmbedded)
	fmt.Printf("  Average quality:     %.2f\n", st.AverageQuality)
	if st.OldestCompiledAt != nil {
		fmt.Printf("  Oldest compiled:     %s\n", st.OldestCompiledAt.Format(time.RFC3339))
	}
	return nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	filled, err := a.cache.BackfillEmbeddings(ctx, backfillBatch)
	if err != nil {
		return err
	}
	fmt.Printf("Backfilled %d embedding(s)\n", filled)
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := boot()
	if err != nil {
		return err
	}
	defer a.shutdown()

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := a.cache.IngestResearch(ctx, id, ingestSource, args[1:]); err != nil {
		return err
	}
	fmt.Printf("Ingested %d snippet(s) for intelligence %d\n", len(args)-1, id)
	return nil
}
