package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the index store",
	Long: `Commands for checking the configured index store.

Use --backend redis (default) with --redis host:port, or --backend bolt
with --db-path for a local file.`,
}

// ─── store ping ───────────────────────────────────────────────────────────────

var storePingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the store is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		if err := deps.Backend.Ping(cmd.Context()); err != nil {
			return err
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s reachable (%dms)\n", deps.Backend.Name(), time.Since(start).Milliseconds())
		}
		return nil
	},
}

// ─── store stats ──────────────────────────────────────────────────────────────

var storeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show layer count and, for bolt, per-type storage size",
	Example: `  oetime store stats
  oetime store stats --backend bolt --db-path ./oetime.db --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		keys, err := deps.Layers.ScanLayers(cmd.Context(), "*")
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		stats := &model.StoreStats{Backend: deps.Backend.Name(), Layers: len(keys)}

		if bb, ok := deps.Backend.(*store.BoltBackend); ok {
			stats.Backend = fmt.Sprintf("bolt (%s)", bb.Path())
			buckets, err := bb.Stats()
			if err != nil {
				return fmt.Errorf("reading bucket stats: %w", err)
			}
			for _, b := range buckets {
				stats.Buckets = append(stats.Buckets, model.BucketStats{Name: b.Name, Keys: b.Count, Bytes: b.Bytes})
			}
		}
		return emit(cmd, deps, newResult(model.KindStoreStats, "store stats", stats, len(keys), start))
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storePingCmd)
	storeCmd.AddCommand(storeStatsCmd)
}
