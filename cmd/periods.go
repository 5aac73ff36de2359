package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/periods"
	"github.com/nasa-gibs/oetime/internal/pipeline"
	"github.com/nasa-gibs/oetime/internal/timeindex"
)

var periodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "Compute layer coverage periods",
}

// ─── periods calc ─────────────────────────────────────────────────────────────

var periodsCalcFlags struct {
	Date       string
	Expiration bool
	Start      string
	End        string
	Keep       bool
	Smallest   bool
	Mirror     bool
}

var periodsCalcCmd = &cobra.Command{
	Use:   "calc <layer_key>",
	Short: "Recompute a layer's periods and default date",
	Long: `Recompute the coverage periods and default date of a layer from its stored
dates and period configuration, and write them back. Layers linked with
:copy_dates receive the same result.

With --date the date is added first; if the layer already has it nothing
else is written.`,
	Example: `  oetime periods calc epsg4326:layer:MODIS_Aqua_L3_SST
  oetime periods calc epsg4326:nrt:layer:VIIRS_SNPP_Fires -d 2024-06-01T12:36:00 -x
  oetime periods calc epsg4326:layer:GHRSST -s 2020-01-01 -e 2020-12-31 -k`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		from, err := parseOptionalTime(periodsCalcFlags.Start, "--start")
		if err != nil {
			return err
		}
		to, err := parseOptionalTime(periodsCalcFlags.End, "--end")
		if err != nil {
			return err
		}

		deps, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		res, err := deps.Periods().CalculateLayerPeriods(cmd.Context(), args[0], timeindex.Request{
			NewDate:              periodsCalcFlags.Date,
			Expiration:           periodsCalcFlags.Expiration,
			Start:                from,
			End:                  to,
			KeepExistingPeriods:  periodsCalcFlags.Keep,
			FindSmallestInterval: periodsCalcFlags.Smallest,
			Mirror:               periodsCalcFlags.Mirror,
		})
		if err != nil {
			return err
		}

		out := &model.LayerPeriods{
			Key:       args[0],
			Dates:     res.Dates,
			Periods:   res.Periods,
			Default:   res.Default,
			Unchanged: res.Unchanged,
		}
		result := newResult(model.KindPeriods, "periods calc", out, len(res.Periods), start)
		if len(res.Keys) > 1 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("also written to %v", res.Keys[1:]))
		}
		return emit(cmd, deps, result)
	},
}

// ─── periods detect ───────────────────────────────────────────────────────────

var periodsDetectFlags struct {
	Configs  []string
	Smallest bool
}

var periodsDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Compute periods for timestamps read from stdin",
	Long: `Run the interval engine offline: read timestamps from stdin, one per line
or as JSONL records with a "date" field, and print the periods and default
date a layer with those dates would get. Nothing is read from or written to
the store.`,
	Example: `  printf '2024-01-01\n2024-01-02\n2024-01-05\n' | oetime periods detect
  oetime layer dates epsg4326:layer:A --format jsonl | oetime periods detect --config 'DETECT/DETECT/P1D'
  cat dates.txt | oetime periods detect --config 'LATEST-P30D/LATEST' -f`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		if pipeline.IsStdinTTY() {
			deps.Logger.Warn("reading timestamps from terminal, end with Ctrl-D")
		}
		dates, bad, err := pipeline.ReadTimestamps(os.Stdin)
		for _, b := range bad {
			deps.Logger.Warn("skipping unparseable timestamp", zap.String("input", b))
		}
		if err != nil {
			return err
		}

		configs, err := periods.ParseConfigs(periodsDetectFlags.Configs)
		if err != nil {
			return err
		}
		list := periods.CalculateAll(dates, configs, periods.Options{FindSmallestInterval: periodsDetectFlags.Smallest})
		out := &model.LayerPeriods{
			Dates:   len(dates),
			Periods: list,
			Default: periods.DefaultDate(list, configs),
		}

		result := newResult(model.KindPeriods, "periods detect", out, len(list), start)
		if len(bad) > 0 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%d input lines skipped", len(bad)))
		}
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(periodsCmd)
	periodsCmd.AddCommand(periodsCalcCmd)
	periodsCmd.AddCommand(periodsDetectCmd)

	f := periodsCalcCmd.Flags()
	f.StringVarP(&periodsCalcFlags.Date, "date", "d", "", "add this date to the layer before recomputing")
	f.BoolVarP(&periodsCalcFlags.Expiration, "expiration", "x", false, "also record --date in the layer's expiration set")
	f.StringVarP(&periodsCalcFlags.Start, "start", "s", "", "ignore dates before this one")
	f.StringVarP(&periodsCalcFlags.End, "end", "e", "", "ignore dates after this one")
	f.BoolVarP(&periodsCalcFlags.Keep, "keep-existing", "k", false, "append to the stored periods instead of replacing them")
	f.BoolVarP(&periodsCalcFlags.Smallest, "find-smallest", "f", false, "detect the smallest interval instead of the first one")
	f.BoolVar(&periodsCalcFlags.Mirror, "mirror", false, "also write to the EPSG:3857 twin of an EPSG:4326 layer")

	d := periodsDetectCmd.Flags()
	d.StringArrayVarP(&periodsDetectFlags.Configs, "config", "c", nil, "period configuration (repeatable, default DETECT)")
	d.BoolVarP(&periodsDetectFlags.Smallest, "find-smallest", "f", false, "detect the smallest interval instead of the first one")
}
