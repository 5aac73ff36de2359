package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"

	"github.com/nasa-gibs/oetime/internal/config"
	"github.com/nasa-gibs/oetime/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage oetime configuration",
	Long:  `Read and write oetime configuration stored in oetime.yaml.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template oetime.yaml in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (delete it first to re-initialise)", path)
		}
		tmpl := config.Template()
		if err := config.WriteFile(path, tmpl); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Edit redis_addr (or set backend: bolt and db_path) to get started.")
		return nil
	},
}

var configGetShowSecrets bool

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.Redis)
		if err != nil {
			return err
		}

		password := cfg.RedactedPassword()
		if configGetShowSecrets {
			password = cfg.RedisPassword
		}
		if password == "" {
			password = "(not set)"
		}

		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}

		rows := [][]string{
			{"backend", cfg.Backend},
			{"redis_addr", cfg.RedisAddr},
			{"redis_password", password},
			{"redis_db", fmt.Sprintf("%d", cfg.RedisDB)},
			{"redis_cluster", cfg.RedisCluster},
			{"db_path", cfg.DBPath},
			{"default_format", cfg.Format},
			{"timeout", cfg.Timeout.String()},
			{"concurrency", fmt.Sprintf("%d", cfg.Concurrency)},
			{"rate", fmt.Sprintf("%.1f req/s", cfg.Rate)},
			{"s3_endpoint", cfg.S3Endpoint},
			{"s3_region", cfg.S3Region},
			{"s3_path_style", fmt.Sprintf("%t", cfg.S3PathStyle)},
			{"created_marker", cfg.CreatedMarker},
			{"best_order", cfg.BestOrder},
			{"log_level", cfg.LogLevel},
			{"log_format", cfg.LogFormat},
			{"log_file", cfg.LogFile},
			{"metrics_file", cfg.MetricsFile},
			{"config_file", src},
		}

		out := make(map[string]string, len(rows))
		for _, r := range rows {
			out[r[0]] = r[1]
		}
		switch resolveFormat(cfg.Format) {
		case render.FormatJSON:
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		case "yaml":
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(out)
		default:
			printKVTable(cmd.OutOrStdout(), rows)
			return nil
		}
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in oetime.yaml",
	Long: fmt.Sprintf(`Set a configuration value in oetime.yaml, creating the file from the
template when it does not exist.

Valid keys: %s`, strings.Join(config.Keys, ", ")),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])

		// Load existing file or start from template
		path := config.DefaultConfigFile
		f := config.Template()
		existing, err := config.ReadFile(path)
		switch {
		case err == nil:
			f = *existing
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}

		if err := f.Set(key, args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configGetCmd.Flags().BoolVar(&configGetShowSecrets, "show-secrets", false, "show the Redis password in plain text")
}

// printKVTable renders a two-column key/value table using aligned columns.
func printKVTable(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := strings.Repeat(" ", maxKey-len(r[0]))
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}
