package cmd

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nasa-gibs/oetime/internal/app"
	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/scrape"
)

var scrapeFlags struct {
	Bucket      string
	Prefix      string
	Inventory   string
	Dir         string
	Layer       string
	Tag         string
	Reproject   bool
	CheckExists bool
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Rebuild layer dates from an object storage listing",
	Long: `List tile objects, map every key of the form
{proj}/{layer}/{YYYY}/{layer}-{YYYYDDDhhmmss}.{ext} to a layer date, and index each layer
found: dates are added, composite layers are resolved and periods are
recomputed. Layers are indexed in parallel (--concurrency).

Exactly one source is required:
  --bucket     list an S3 bucket (paced by --rate requests/s)
  --inventory  read an S3 inventory manifest (s3://bucket/key or a local file)
  --dir        walk a local directory laid out like the bucket

A key that cannot be mapped is logged, skipped and counted; the rest of the
listing is still indexed. An invalid --layer glob aborts the run before
anything is written.`,
	Example: `  oetime scrape --bucket gitc-deployment-mrf-archive
  oetime scrape --inventory s3://inventory/gitc/manifest.json --layer 'MODIS_*'
  oetime scrape --dir ./archive --backend bolt --check-exists`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer deps.Close()

		src, err := scrapeSource(cmd.Context(), deps)
		if err != nil {
			return err
		}
		p, err := deps.Pipeline()
		if err != nil {
			return err
		}

		deps.Logger.Info("scrape starting",
			zap.String("source", src.Name()),
			zap.Int("concurrency", deps.Config.Concurrency))
		report, err := p.Run(cmd.Context(), src, scrape.Options{
			LayerFilter: scrapeFlags.Layer,
			Tag:         scrapeFlags.Tag,
			Reproject:   scrapeFlags.Reproject,
			CheckExists: scrapeFlags.CheckExists,
			Concurrency: deps.Config.Concurrency,
			Marker:      deps.Config.CreatedMarker,
		})
		if report != nil && len(report.Layers) > 0 && err != nil {
			// Show what was indexed before the abort.
			_ = emit(cmd, deps, reportResult("scrape", report, start))
		}
		if err != nil {
			return err
		}

		if err := emit(cmd, deps, reportResult("scrape", report, start)); err != nil {
			return err
		}
		return strictCheck(report)
	},
}

// scrapeSource builds the listing source selected by the flags.
func scrapeSource(ctx context.Context, deps *app.Deps) (scrape.Source, error) {
	set := 0
	for _, v := range []string{scrapeFlags.Bucket, scrapeFlags.Inventory, scrapeFlags.Dir} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of --bucket, --inventory or --dir is required", model.ErrConfig)
	}
	if scrapeFlags.Layer != "" {
		if _, err := path.Match(scrapeFlags.Layer, ""); err != nil {
			return nil, fmt.Errorf("%w: invalid --layer pattern %q", model.ErrConfig, scrapeFlags.Layer)
		}
	}

	if scrapeFlags.Dir != "" {
		return scrape.DirSource{Root: scrapeFlags.Dir}, nil
	}

	// A local inventory manifest needs no AWS client.
	if scrapeFlags.Inventory != "" && !strings.HasPrefix(scrapeFlags.Inventory, "s3://") {
		f := scrape.DirFetcher{Root: filepath.Dir(scrapeFlags.Inventory)}
		return scrape.InventorySource{Manifest: filepath.Base(scrapeFlags.Inventory), ManifestFetcher: f}, nil
	}

	client, err := scrape.NewS3Client(ctx, scrape.S3Config{
		Region:         deps.Config.S3Region,
		Endpoint:       deps.Config.S3Endpoint,
		ForcePathStyle: deps.Config.S3PathStyle,
	})
	if err != nil {
		return nil, err
	}

	if scrapeFlags.Inventory != "" {
		bucket, key, err := splitS3URI(scrapeFlags.Inventory)
		if err != nil {
			return nil, err
		}
		return scrape.InventorySource{
			Manifest:        key,
			ManifestFetcher: scrape.S3Fetcher{Client: client, Bucket: bucket},
		}, nil
	}

	var limiter *rate.Limiter
	if deps.Config.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(deps.Config.Rate), 1)
	}
	return scrape.S3Source{
		Client:  client,
		Bucket:  scrapeFlags.Bucket,
		Prefix:  scrapeFlags.Prefix,
		Limiter: limiter,
	}, nil
}

var errS3URI = errors.New("expected s3://bucket/key")

// splitS3URI splits "s3://bucket/some/key" into bucket and key.
func splitS3URI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q: %w", model.ErrConfig, uri, errS3URI)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q: %w", model.ErrConfig, uri, errS3URI)
	}
	return bucket, key, nil
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	f := scrapeCmd.Flags()
	f.StringVarP(&scrapeFlags.Bucket, "bucket", "b", "", "S3 bucket name or URL to list")
	f.StringVar(&scrapeFlags.Prefix, "prefix", "", "only list keys under this prefix (with --bucket)")
	f.StringVarP(&scrapeFlags.Inventory, "inventory", "i", "", "S3 inventory manifest.json (s3://bucket/key or local path)")
	f.StringVarP(&scrapeFlags.Dir, "dir", "d", "", "local directory laid out like the bucket")
	f.StringVarP(&scrapeFlags.Layer, "layer", "l", "", "only index layers whose name matches this glob")
	f.StringVarP(&scrapeFlags.Tag, "tag", "t", "", "tag inserted after the projection (nrt, best, std, ...)")
	f.BoolVar(&scrapeFlags.Reproject, "reproject", false, "also index EPSG:4326 layers under EPSG:3857")
	f.BoolVar(&scrapeFlags.CheckExists, "check-exists", false, "skip the run when the created marker is already set")
}
