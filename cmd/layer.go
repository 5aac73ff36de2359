package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/pipeline"
	"github.com/nasa-gibs/oetime/internal/render"
)

var layerCmd = &cobra.Command{
	Use:   "layer",
	Short: "Inspect indexed layers",
}

// ─── layer show ───────────────────────────────────────────────────────────────

var layerShowCmd = &cobra.Command{
	Use:   "show <layer_key>",
	Short: "Show everything the index holds for one layer",
	Example: `  oetime layer show epsg4326:layer:MODIS_Aqua_CorrectedReflectance_TrueColor
  oetime layer show epsg4326:best:layer:GHRSST_L4_MUR --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		st, err := deps.Layers.Status(cmd.Context(), args[0])
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("no index entries for %s", args[0])
		}
		if err != nil {
			return err
		}
		return emit(cmd, deps, newResult(model.KindLayerStatus, "layer show", &st, st.DateCount, start))
	},
}

// ─── layer list ───────────────────────────────────────────────────────────────

var layerListCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List indexed layers",
	Long: `List every layer key that has index entries, with its date count, default
date and periods. The optional pattern is a glob over the layer key.`,
	Example: `  oetime layer list
  oetime layer list 'epsg4326:nrt:*' --format csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		pattern := "*"
		if len(args) == 1 {
			pattern = args[0]
		}

		deps, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		keys, err := deps.Layers.ScanLayers(cmd.Context(), pattern)
		if err != nil {
			return err
		}
		list := make([]model.LayerStatus, 0, len(keys))
		for _, k := range keys {
			st, err := deps.Layers.Status(cmd.Context(), k)
			if err != nil && !errors.Is(err, model.ErrNotFound) {
				return err
			}
			list = append(list, st)
		}

		if len(list) == 0 && resolveFormat(deps.Config.Format) == render.FormatTable {
			fmt.Fprintln(cmd.OutOrStdout(), "No layers indexed.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: oetime load -e endpoint.yaml or oetime scrape")
			return nil
		}
		return emit(cmd, deps, newResult(model.KindLayerList, "layer list", list, len(list), start))
	},
}

// ─── layer dates ──────────────────────────────────────────────────────────────

var layerDatesCmd = &cobra.Command{
	Use:   "dates <layer_key>",
	Short: "Print a layer's dates, one per line",
	Long: `Print the layer's DateSet in order. With --format jsonl each date is a
{"date": ...} record, the input format of 'oetime periods detect'.`,
	Example: `  oetime layer dates epsg4326:layer:A | tail -n 5
  oetime layer dates epsg4326:layer:A --format jsonl | oetime periods detect -f`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		dates, err := deps.Layers.Dates(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		if resolveFormat(deps.Config.Format) == render.FormatJSONL {
			return pipeline.WriteJSONL(w, dates)
		}
		return pipeline.WriteLines(w, dates)
	},
}

func init() {
	rootCmd.AddCommand(layerCmd)
	layerCmd.AddCommand(layerShowCmd)
	layerCmd.AddCommand(layerListCmd)
	layerCmd.AddCommand(layerDatesCmd)
}
