package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nasa-gibs/oetime/internal/config"
	"github.com/nasa-gibs/oetime/internal/render"
	"github.com/nasa-gibs/oetime/internal/store"
)

// Version is the release string, overwritten at build time with
//
//	go build -ldflags "-X github.com/nasa-gibs/oetime/cmd.Version=v0.1.1"
var Version = "v0.1.0"

// BuildTime is optionally injected next to Version:
//
//	-ldflags "-X github.com/nasa-gibs/oetime/cmd.BuildTime=2026-02-16T12:00:00Z"
var BuildTime = ""

// versionInfo is the --format json payload. Backend and BestOrder are the
// resolved settings this invocation would index with; they are empty when
// oetime.yaml cannot be read.
type versionInfo struct {
	Version     string   `json:"version"`
	GoVersion   string   `json:"go_version"`
	GOOS        string   `json:"goos"`
	GOARCH      string   `json:"goarch"`
	BuildTime   string   `json:"build_time,omitempty"`
	BoltSchema  int      `json:"bolt_schema"`
	Backend     string   `json:"backend,omitempty"`
	BestOrder   string   `json:"best_order,omitempty"`
	ConfigPath  string   `json:"config_path,omitempty"`
	Formats     []string `json:"formats"`
	ConfigError string   `json:"config_error,omitempty"`
}

func currentVersion() versionInfo {
	info := versionInfo{
		Version:    Version,
		GoVersion:  runtime.Version(),
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		BuildTime:  BuildTime,
		BoltSchema: store.SchemaVersion,
		Formats:    render.Formats,
	}
	// version must work without a valid config, so a load error is reported
	// in the payload instead of failing the command.
	cfg, err := config.Load(globalFlags.Redis)
	if err != nil {
		info.ConfigError = err.Error()
		return info
	}
	info.Backend = cfg.Backend
	if globalFlags.Backend != "" {
		info.Backend = globalFlags.Backend
	}
	info.BestOrder = cfg.BestOrder
	info.ConfigPath = cfg.ConfigPath
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the oetime version, build and index settings",
	Long: `Print the oetime version, the Go build it came from, the bolt schema it
writes, and the store backend and best-layer priority order the current
oetime.yaml, environment and flags resolve to.

Examples:
  oetime version
  oetime version --backend bolt --format json
  oetime version --format json | jq .bolt_schema`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentVersion()
		switch globalFlags.Format {
		case render.FormatJSON:
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case render.FormatJSONL:
			b, err := json.Marshal(info)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b)
			return nil
		default:
			printVersion(cmd.OutOrStdout(), info)
			return nil
		}
	},
}

func printVersion(w io.Writer, info versionInfo) {
	fmt.Fprintf(w, "oetime      %s\n", info.Version)
	fmt.Fprintf(w, "go          %s %s/%s\n", info.GoVersion, info.GOOS, info.GOARCH)
	if info.BuildTime != "" {
		fmt.Fprintf(w, "built       %s\n", info.BuildTime)
	}
	fmt.Fprintf(w, "bolt schema %d\n", info.BoltSchema)
	if info.ConfigError != "" {
		fmt.Fprintf(w, "config      unreadable: %s\n", info.ConfigError)
		return
	}
	fmt.Fprintf(w, "backend     %s\n", info.Backend)
	fmt.Fprintf(w, "best order  %s\n", info.BestOrder)
	if info.ConfigPath != "" {
		fmt.Fprintf(w, "config      %s\n", info.ConfigPath)
	}
	fmt.Fprintf(w, "formats     %s\n", strings.Join(info.Formats, ", "))
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
