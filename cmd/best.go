package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/timeindex"
)

var bestCmd = &cobra.Command{
	Use:   "best",
	Short: "Resolve composite (best) layers",
	Long: `A composite layer serves each date from the highest-priority candidate
layer that has it. Candidates and their priorities come from the
composite's best_config; sources point at their composite with best_layer.`,
}

// ─── best calc ────────────────────────────────────────────────────────────────

var bestCalcDate string

var bestCalcCmd = &cobra.Command{
	Use:   "calc <source_key>",
	Short: "Resolve one date of the composite a source layer feeds",
	Long: `Look up the composite that <source_key> feeds (its :best_layer), pick the
candidate that serves --date, and update the composite's date map, dates
and periods. A date no candidate has any more is removed from the composite.`,
	Example: `  oetime best calc epsg4326:layer:MODIS_Terra_NRT -d 2024-06-01`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		r, err := deps.Resolver()
		if err != nil {
			return err
		}
		res, err := r.CalculateLayerBest(cmd.Context(), args[0], bestCalcDate)
		if err != nil {
			return err
		}
		if !res.Linked {
			return fmt.Errorf("%w: %s has no best_layer", model.ErrConfig, args[0])
		}
		if _, err := deps.Periods().CalculateLayerPeriods(cmd.Context(), res.BestKey, timeindex.Request{}); err != nil {
			return err
		}

		out := &model.BestMap{Key: res.BestKey, Dates: map[string]string{}}
		result := newResult(model.KindBestMap, "best calc", out, 0, start)
		if res.Candidate == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("no candidate has %s, removed from %s", res.Date, res.BestKey))
		} else {
			out.Dates[res.Date+"Z"] = res.Candidate
			result.Stats.Items = 1
		}
		return emit(cmd, deps, result)
	},
}

// ─── best recalc ──────────────────────────────────────────────────────────────

var bestRecalcCmd = &cobra.Command{
	Use:   "recalc <best_key>",
	Short: "Rebuild a composite layer from its candidates",
	Long: `Discard the composite's date map and dates, rebuild them from the current
dates of every candidate in priority order, and recompute its periods.`,
	Example: `  oetime best recalc epsg4326:best:layer:MODIS_Terra_CorrectedReflectance_TrueColor`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		r, err := deps.Resolver()
		if err != nil {
			return err
		}
		assign, err := r.RecalculateBest(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if _, err := deps.Periods().CalculateLayerPeriods(cmd.Context(), args[0], timeindex.Request{}); err != nil {
			return err
		}

		dates := make(map[string]string, len(assign))
		for d, c := range assign {
			dates[d+"Z"] = c
		}
		out := &model.BestMap{Key: args[0], Dates: dates}
		return emit(cmd, deps, newResult(model.KindBestMap, "best recalc", out, len(dates), start))
	},
}

func init() {
	rootCmd.AddCommand(bestCmd)
	bestCmd.AddCommand(bestCalcCmd)
	bestCmd.AddCommand(bestRecalcCmd)

	bestCalcCmd.Flags().StringVarP(&bestCalcDate, "date", "d", "", "date to resolve (required)")
	_ = bestCalcCmd.MarkFlagRequired("date")
}
