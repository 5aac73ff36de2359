// Package cmd implements the oetime CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nasa-gibs/oetime/internal/app"
	"github.com/nasa-gibs/oetime/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	Redis       string
	Backend     string
	DBPath      string
	Format      string
	Out         string
	Timeout     string
	Concurrency int
	Rate        float64
	LogLevel    string
	MetricsFile string
	Strict      bool
	Quiet       bool
	Verbose     bool
	Debug       bool
}

// rootCmd is the base command. Running `oetime` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "oetime",
	Short: "oetime: time index builder for tiled imagery layers",
	Long: `oetime maintains the time index a tile server uses to answer
"which dates does this layer have?" and "which source serves this date?".

For every layer it keeps the set of available dates, the compact ISO-8601
coverage periods computed from them, a default date, and for composite
("best") layers the candidate chosen for each date.

Quick start:
  oetime config init                         # create oetime.yaml
  oetime load -e endpoint.yaml               # declare layers from their configs
  oetime scrape --bucket my-tiles            # rebuild dates from object storage
  oetime layer show epsg4326:layer:MODIS_Aqua_CorrectedReflectance`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load(globalFlags.Redis)
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Backend != "" {
		cfg.Backend = globalFlags.Backend
	}
	if globalFlags.DBPath != "" {
		cfg.DBPath = globalFlags.DBPath
	}
	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		if d, err2 := time.ParseDuration(globalFlags.Timeout); err2 == nil {
			cfg.Timeout = d
		}
	}
	if globalFlags.Concurrency > 0 {
		cfg.Concurrency = globalFlags.Concurrency
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	if globalFlags.LogLevel != "" {
		cfg.LogLevel = globalFlags.LogLevel
	}
	if globalFlags.MetricsFile != "" {
		cfg.MetricsFile = globalFlags.MetricsFile
	}

	return app.New(cfg)
}

// openDeps is buildDeps plus a connected store. The caller must Close the
// returned deps.
func openDeps(ctx context.Context) (*app.Deps, error) {
	deps, err := buildDeps()
	if err != nil {
		return nil, err
	}
	if err := deps.OpenStore(ctx); err != nil {
		_ = deps.Close()
		return nil, err
	}
	return deps, nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.Redis, "redis", "",
		"Redis address host:port (overrides env OETIME_REDIS_ADDR and oetime.yaml)")
	pf.StringVar(&globalFlags.Backend, "backend", "",
		"index store: redis|bolt (default: redis)")
	pf.StringVar(&globalFlags.DBPath, "db-path", "",
		"bolt database file for --backend bolt")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"store connection timeout (e.g. 30s, 2m)")
	pf.IntVar(&globalFlags.Concurrency, "concurrency", 0,
		"max layers indexed in parallel (default: 10)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max S3 list requests per second (default: 50)")
	pf.StringVar(&globalFlags.LogLevel, "log-level", "",
		"log level: debug|info|warn|error (default: info)")
	pf.StringVar(&globalFlags.MetricsFile, "metrics-file", "",
		"write Prometheus metrics to this textfile on exit")
	pf.BoolVar(&globalFlags.Strict, "strict", false,
		"exit non-zero when any layer fails")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log every store operation decision")
}
