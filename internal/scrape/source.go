package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/time/rate"
)

// Source lists object keys of the form "{proj}/{layer}/{year}/{file}".
type Source interface {
	// Name identifies the source in reports and metrics.
	Name() string
	// List calls fn once per key. Returning an error from fn stops listing.
	List(ctx context.Context, fn func(key string) error) error
}

// ─── Local directory ──────────────────────────────────────────────────────────

// DirSource walks a local mirror of the bucket.
type DirSource struct {
	Root string
}

func (d DirSource) Name() string { return "dir" }

// List returns slash-separated paths relative to Root.
func (d DirSource) List(ctx context.Context, fn func(string) error) error {
	return filepath.WalkDir(d.Root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

// ─── S3 ───────────────────────────────────────────────────────────────────────

// S3Config holds the client settings for S3 and S3-compatible stores.
type S3Config struct {
	Region         string
	Endpoint       string // Optional: for S3-compatible APIs
	ForcePathStyle bool   // Optional: set true for S3-compatible APIs
}

// NewS3Client builds a client from the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// BucketName accepts a bare bucket name or a virtual-host style URL such as
// "https://my-bucket.s3.amazonaws.com".
func BucketName(s string) string {
	if strings.HasPrefix(s, "http") {
		if parts := strings.Split(s, "/"); len(parts) > 2 {
			return strings.Split(parts[2], ".")[0]
		}
	}
	return s
}

// S3Source pages through ListObjectsV2. Limiter, when set, paces page
// requests.
type S3Source struct {
	Client  s3.ListObjectsV2APIClient
	Bucket  string
	Prefix  string
	Limiter *rate.Limiter
}

func (s S3Source) Name() string { return "s3" }

func (s S3Source) List(ctx context.Context, fn func(string) error) error {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(BucketName(s.Bucket))}
	if s.Prefix != "" {
		in.Prefix = aws.String(s.Prefix)
	}
	pages := s3.NewListObjectsV2Paginator(s.Client, in)
	for pages.HasMorePages() {
		if s.Limiter != nil {
			if err := s.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		page, err := pages.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing s3://%s: %w", BucketName(s.Bucket), err)
		}
		for _, obj := range page.Contents {
			if err := fn(aws.ToString(obj.Key)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ─── Object fetchers (inventory) ──────────────────────────────────────────────

// Fetcher opens an object by key.
type Fetcher interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// GetObjectAPI is the part of *s3.Client an S3Fetcher uses.
type GetObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads objects from one bucket.
type S3Fetcher struct {
	Client GetObjectAPI
	Bucket string
}

func (f S3Fetcher) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := f.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching s3://%s/%s: %w", f.Bucket, key, err)
	}
	return out.Body, nil
}

// DirFetcher reads objects from a local directory. Keys that do not exist
// under Root are retried by base name, so a flat download of the inventory
// data files also works.
type DirFetcher struct {
	Root string
}

func (f DirFetcher) Open(_ context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(f.Root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		file, err = os.Open(filepath.Join(f.Root, filepath.Base(filepath.FromSlash(key))))
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}
