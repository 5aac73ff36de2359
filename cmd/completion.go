package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
)

// completionCmd wraps Cobra's shell completion generator. Commands that take
// a layer key also complete it from the configured store.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for oetime.

  # bash
  source <(oetime completion bash)

  # zsh
  source <(oetime completion zsh)

  # fish
  oetime completion fish | source

Layer keys complete from the store selected by --backend, --redis and
--db-path (or oetime.yaml), for example:

  oetime layer show epsg4326:layer:MODIS_<TAB>`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(cmd.OutOrStdout(), true)
		case "zsh":
			return root.GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return root.GenFishCompletion(cmd.OutOrStdout(), true)
		default:
			return root.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		}
	},
}

// completeLayerKeys offers indexed layer keys starting with toComplete for
// the first positional argument. A store that cannot be opened yields no
// suggestions rather than an error.
func completeLayerKeys(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	deps, err := openDeps(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer deps.Close()

	keys, err := deps.Layers.ScanLayers(ctx, escapeGlob(toComplete)+"*")
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return keys, cobra.ShellCompDirectiveNoFileComp
}

// escapeGlob quotes glob metacharacters so a partial key matches literally.
func escapeGlob(s string) string {
	return strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`).Replace(s)
}

func init() {
	rootCmd.AddCommand(completionCmd)

	for _, c := range []*cobra.Command{
		layerShowCmd, layerDatesCmd,
		periodsCalcCmd,
		bestCalcCmd, bestRecalcCmd,
	} {
		c.ValidArgsFunction = completeLayerKeys
	}
}
