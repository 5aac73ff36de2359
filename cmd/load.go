package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nasa-gibs/oetime/internal/layerconfig"
)

var loadFlags struct {
	Endpoint  string
	Tag       string
	Reproject bool
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Declare layers from their YAML configurations",
	Long: `Read the endpoint configuration, load every layer configuration it points
to and write each layer's period configuration, best-layer links and static
dates to the store. Leaf layers are then recomputed before the composite
layers that depend on them.

Configs are validated before anything is written: one invalid config aborts
the whole load. Tags are detected from the config path (all/, best/, nrt/,
std/) unless --tag is given.`,
	Example: `  oetime load -e /etc/onearth/config/endpoint/epsg4326_best.yaml
  oetime load -e endpoint.yaml --tag nrt --reproject`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		ep, err := layerconfig.LoadEndpoint(loadFlags.Endpoint)
		if err != nil {
			return err
		}
		configs, err := layerconfig.ReadLayerConfigs(ep.LayerConfigSource)
		if err != nil {
			return err
		}

		deps, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		deps.Logger.Info("loading layer configs",
			zap.String("endpoint", loadFlags.Endpoint),
			zap.String("source", ep.LayerConfigSource),
			zap.Int("configs", len(configs)))

		loader, err := deps.Loader()
		if err != nil {
			return err
		}
		report, err := loader.Apply(cmd.Context(), configs, layerconfig.Options{
			Tag:       loadFlags.Tag,
			Reproject: loadFlags.Reproject,
		})
		if err != nil {
			return err
		}

		if err := emit(cmd, deps, reportResult("load", report, start)); err != nil {
			return err
		}
		return strictCheck(report)
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)

	f := loadCmd.Flags()
	f.StringVarP(&loadFlags.Endpoint, "endpoint", "e", "", "endpoint configuration file (required)")
	f.StringVarP(&loadFlags.Tag, "tag", "t", "", "tag inserted after the projection (nrt, best, std, ...)")
	f.BoolVar(&loadFlags.Reproject, "reproject", false, "also declare EPSG:4326 layers under EPSG:3857")
	_ = loadCmd.MarkFlagRequired("endpoint")
}
