// Package scrape rebuilds the time index from object storage listings: keys
// are mapped to layer dates, grouped per layer and indexed by a bounded pool
// of workers.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nasa-gibs/oetime/internal/best"
	"github.com/nasa-gibs/oetime/internal/metrics"
	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/store"
	"github.com/nasa-gibs/oetime/internal/timeindex"
)

const (
	DefaultConcurrency = 10
	DefaultMarker      = "created"
)

// Options control one run.
type Options struct {
	// LayerFilter is a glob matched against the layer name. Empty means all.
	LayerFilter string
	// Tag is inserted after the projection in every layer key.
	Tag string
	// Reproject also indexes EPSG:4326 layers under EPSG:3857.
	Reproject bool
	// CheckExists skips the run when Marker is already set.
	CheckExists bool
	Concurrency int
	Marker      string
}

// Pipeline indexes listed keys into one store.
type Pipeline struct {
	layers  *store.Layers
	periods *timeindex.Service
	best    *best.Resolver
	log     *zap.Logger
	metrics *metrics.Metrics
}

// New returns a Pipeline. Logger and metrics may be nil.
func New(layers *store.Layers, periods *timeindex.Service, resolver *best.Resolver, log *zap.Logger, m *metrics.Metrics) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{layers: layers, periods: periods, best: resolver, log: log, metrics: m}
}

type unit struct {
	key   string
	dates []string
}

// Run lists src, indexes every layer found and returns the per-layer report.
// A failed layer does not stop the others; its error is recorded in the
// report. Run returns an error only for failures that abort the whole run:
// listing errors, fatal keys and cancellation.
func (p *Pipeline) Run(ctx context.Context, src Source, opts Options) (*model.Report, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Marker == "" {
		opts.Marker = DefaultMarker
	}
	report := &model.Report{Source: src.Name(), Layers: []model.LayerReport{}}

	if opts.CheckExists {
		exists, err := p.layers.Created(ctx, opts.Marker)
		if err != nil {
			return report, err
		}
		if exists {
			p.log.Info("index already created, skipping run", zap.String("marker", opts.Marker))
			report.Bypassed = true
			return report, nil
		}
	}

	units, err := p.collect(ctx, src, opts, report)
	if err != nil {
		return report, err
	}
	p.log.Info("listing complete",
		zap.String("source", src.Name()),
		zap.Int("listed", report.Listed),
		zap.Int("skipped", report.Skipped),
		zap.Int("layers", len(units)))

	results := make([]model.LayerReport, len(units))
	scheduled := 0
	g := new(errgroup.Group)
	g.SetLimit(opts.Concurrency)
	for i, u := range units {
		if ctx.Err() != nil {
			break
		}
		i, u := i, u
		scheduled++
		// In-flight units run to completion even if ctx is cancelled.
		uctx := context.WithoutCancel(ctx)
		g.Go(func() error {
			results[i] = p.index(uctx, u, opts.Reproject)
			return nil
		})
	}
	_ = g.Wait()
	report.Layers = append(report.Layers, results[:scheduled]...)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run interrupted after %d of %d layers: %w", scheduled, len(units), err)
	}
	if err := p.layers.MarkCreated(ctx, opts.Marker, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return report, err
	}
	return report, nil
}

func (p *Pipeline) collect(ctx context.Context, src Source, opts Options, report *model.Report) ([]unit, error) {
	groups := map[string]map[string]struct{}{}
	err := src.List(ctx, func(k string) error {
		report.Listed++
		p.metrics.Listed(src.Name())

		r := classify(k, opts.LayerFilter)
		switch r.Outcome {
		case model.OutcomeFatal:
			return r.Err
		case model.OutcomeSkip:
			p.skip(report, k, r)
			return nil
		}

		lk := store.LayerKey(r.Projection, opts.Tag, r.Layer)
		if groups[lk] == nil {
			groups[lk] = map[string]struct{}{}
		}
		groups[lk][r.Date] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}

	units := make([]unit, 0, len(groups))
	for k, set := range groups {
		u := unit{key: k, dates: make([]string, 0, len(set))}
		for d := range set {
			u.dates = append(u.dates, d)
		}
		sort.Strings(u.dates)
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].key < units[j].key })
	return units, nil
}

// classify maps key and applies the layer filter. A malformed filter is the
// only fatal outcome: it would drop every key, so the run stops before any
// write.
func classify(key, filter string) KeyResult {
	r := MapKey(key)
	if r.Outcome != model.OutcomeOk || filter == "" {
		return r
	}
	ok, err := path.Match(filter, r.Layer)
	switch {
	case err != nil:
		return KeyResult{
			Outcome: model.OutcomeFatal,
			Err:     fmt.Errorf("%w: layer filter %q: %w", model.ErrConfig, filter, err),
		}
	case !ok:
		return KeyResult{Outcome: model.OutcomeSkip, Reason: ReasonFilter}
	}
	return r
}

func (p *Pipeline) skip(report *model.Report, key string, r KeyResult) {
	report.Skipped++
	p.metrics.Skipped(r.Reason)
	if r.Err != nil {
		p.log.Warn("skipping key", zap.String("key", key), zap.String("reason", r.Reason), zap.Error(r.Err))
		return
	}
	p.log.Debug("skipping key", zap.String("key", key), zap.String("reason", r.Reason))
}

// index runs one layer unit: dates, then best resolution, then periods.
func (p *Pipeline) index(ctx context.Context, u unit, reproject bool) model.LayerReport {
	start := time.Now()
	rep := model.LayerReport{Key: u.key}

	err := p.indexLayer(ctx, u, reproject, &rep)
	if err != nil {
		rep.Error = err.Error()
		p.log.Error("layer failed", zap.String("layer", u.key), zap.Error(err))
	} else {
		p.log.Info("layer indexed",
			zap.String("layer", u.key),
			zap.Int("dates", rep.Dates),
			zap.String("default", rep.Default),
			zap.Duration("took", time.Since(start)))
	}
	p.metrics.Unit(rep.Dates, time.Since(start), err)
	return rep
}

func (p *Pipeline) indexLayer(ctx context.Context, u unit, reproject bool, rep *model.LayerReport) error {
	keys := []string{u.key}
	if reproject && store.Projection(u.key) == store.ProjGeographic {
		if m, ok := store.MirrorKey(u.key); ok {
			keys = append(keys, m)
			rep.Mirrors = append(rep.Mirrors, m)
		}
	}

	for _, k := range keys {
		added, err := p.layers.AddDates(ctx, k, u.dates...)
		if err != nil {
			return fmt.Errorf("adding dates to %s: %w", k, err)
		}
		if k == u.key {
			rep.Dates = int(added)
		}
	}

	var composites []string
	for _, k := range keys {
		bestKey, err := p.resolve(ctx, k, u.dates)
		if err != nil {
			return err
		}
		if bestKey != "" {
			composites = append(composites, bestKey)
			if k == u.key {
				rep.BestLayer = bestKey
			}
		}
	}

	var errs []error
	for _, k := range append(keys, composites...) {
		res, err := p.periods.CalculateLayerPeriods(ctx, k, timeindex.Request{})
		if err != nil {
			errs = append(errs, fmt.Errorf("periods for %s: %w", k, err))
			continue
		}
		if k == u.key {
			rep.Periods, rep.Default = res.Periods, res.Default
		}
	}
	return errors.Join(errs...)
}

// resolve updates the composite fed by key for each date and returns the
// composite key, or "" when key feeds none.
func (p *Pipeline) resolve(ctx context.Context, key string, dates []string) (string, error) {
	var bestKey string
	for _, d := range dates {
		res, err := p.best.CalculateLayerBest(ctx, key, d)
		if err != nil {
			return "", fmt.Errorf("best layer for %s at %s: %w", key, d, err)
		}
		if !res.Linked {
			return "", nil
		}
		bestKey = res.BestKey
	}
	return bestKey, nil
}
