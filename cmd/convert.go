package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/store"
)

var convertFlags struct {
	To          string
	LayerFilter string
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert :periods keys between sorted-set and set form",
	Long: `Older deployments stored a layer's periods as an unordered set; current
ones use a sorted set so that period order is preserved. convert rewrites
every matching :periods key to the requested type, each key in one atomic
step. Keys already of that type are left alone.`,
	Example: `  oetime convert --to zset
  oetime convert --to set --layer-filter 'MODIS_*'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		res, err := store.ConvertPeriods(cmd.Context(), deps.Backend, store.KeyType(convertFlags.To), convertFlags.LayerFilter)
		if err != nil {
			return err
		}
		deps.Logger.Info("periods keys converted",
			zap.String("pattern", res.Pattern),
			zap.String("to", res.To),
			zap.Int("converted", len(res.Converted)),
			zap.Int("unchanged", res.Unchanged))
		return emit(cmd, deps, newResult(model.KindConversion, "convert", &res, len(res.Converted), start))
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	f := convertCmd.Flags()
	f.StringVar(&convertFlags.To, "to", "zset", "destination type: zset|set")
	f.StringVar(&convertFlags.LayerFilter, "layer-filter", "*", "glob matched against the part of the key after \"layer:\"")
}
