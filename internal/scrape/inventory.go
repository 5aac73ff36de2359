package scrape

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/nasa-gibs/oetime/internal/model"
)

// Manifest is the subset of an S3 inventory manifest.json the source reads.
type Manifest struct {
	SourceBucket      string `json:"sourceBucket"`
	DestinationBucket string `json:"destinationBucket"`
	FileFormat        string `json:"fileFormat"`
	FileSchema        string `json:"fileSchema"`
	Files             []struct {
		Key  string `json:"key"`
		Size int64  `json:"size"`
	} `json:"files"`
}

// DestinationBucketName strips the ARN prefix from DestinationBucket.
func (m Manifest) DestinationBucketName() string {
	return strings.TrimPrefix(m.DestinationBucket, "arn:aws:s3:::")
}

// ParseManifest decodes manifest.json and checks it lists gzip CSV files
// with a Key column.
func ParseManifest(r io.Reader) (Manifest, int, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return m, 0, fmt.Errorf("%w: inventory manifest: %v", model.ErrParse, err)
	}
	if m.FileFormat != "" && !strings.EqualFold(m.FileFormat, "CSV") {
		return m, 0, fmt.Errorf("%w: inventory format %q is not supported, want CSV", model.ErrConfig, m.FileFormat)
	}
	keyCol := -1
	for i, col := range strings.Split(m.FileSchema, ",") {
		if strings.TrimSpace(col) == "Key" {
			keyCol = i
			break
		}
	}
	if keyCol < 0 {
		return m, 0, fmt.Errorf("%w: inventory schema %q has no Key column", model.ErrConfig, m.FileSchema)
	}
	return m, keyCol, nil
}

// InventorySource reads object keys from an S3 inventory report instead of
// listing the bucket.
type InventorySource struct {
	// Manifest is the manifest.json key, opened with ManifestFetcher.
	Manifest        string
	ManifestFetcher Fetcher
	// DataFetcher opens the CSV files named in the manifest. When nil,
	// ManifestFetcher is used.
	DataFetcher Fetcher
}

func (s InventorySource) Name() string { return "inventory" }

func (s InventorySource) List(ctx context.Context, fn func(string) error) error {
	rc, err := s.ManifestFetcher.Open(ctx, s.Manifest)
	if err != nil {
		return fmt.Errorf("opening inventory manifest: %w", err)
	}
	m, keyCol, err := ParseManifest(rc)
	rc.Close()
	if err != nil {
		return err
	}

	data := s.DataFetcher
	if data == nil {
		data = s.ManifestFetcher
	}
	for _, f := range m.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := readInventoryFile(ctx, data, f.Key, keyCol, fn); err != nil {
			return err
		}
	}
	return nil
}

func readInventoryFile(ctx context.Context, data Fetcher, key string, keyCol int, fn func(string) error) error {
	rc, err := data.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("opening inventory file %s: %w", key, err)
	}
	defer rc.Close()

	zr, err := gzip.NewReader(rc)
	if err != nil {
		return fmt.Errorf("inventory file %s: %w", key, err)
	}
	defer zr.Close()

	cr := csv.NewReader(zr)
	cr.FieldsPerRecord = -1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: inventory file %s: %v", model.ErrParse, key, err)
		}
		if keyCol >= len(rec) {
			continue
		}
		// Inventory keys are URL-encoded.
		k, err := url.QueryUnescape(rec[keyCol])
		if err != nil {
			k = rec[keyCol]
		}
		if err := fn(k); err != nil {
			return err
		}
	}
}
