package layerconfig

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nasa-gibs/oetime/internal/best"
	"github.com/nasa-gibs/oetime/internal/metrics"
	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/store"
	"github.com/nasa-gibs/oetime/internal/timeindex"
)

// Options control one Apply.
type Options struct {
	// Tag overrides path-based tag detection for every config.
	Tag string
	// Reproject duplicates EPSG:4326 declarations under EPSG:3857.
	Reproject bool
}

// Loader writes layer declarations to the store and indexes the layers.
type Loader struct {
	layers   *store.Layers
	periods  *timeindex.Service
	resolver *best.Resolver
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// NewLoader returns a Loader. Logger and metrics may be nil.
func NewLoader(layers *store.Layers, periods *timeindex.Service, resolver *best.Resolver, log *zap.Logger, m *metrics.Metrics) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{layers: layers, periods: periods, resolver: resolver, log: log, metrics: m}
}

type entry struct {
	cfg LayerConfig
	key string
}

// Apply writes every config, then recomputes leaf layers before the
// composites that read them. Invalid configs fail the call before anything
// is written; failures while indexing one layer are recorded in its report.
func (l *Loader) Apply(ctx context.Context, configs []LayerConfig, opts Options) (*model.Report, error) {
	report := &model.Report{Source: "config", Layers: []model.LayerReport{}}

	var entries []entry
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return report, err
		}
		k := c.Key(opts.Tag)
		entries = append(entries, entry{cfg: c, key: k})
		if opts.Reproject {
			if m, ok := store.MirrorKey(k); ok {
				entries = append(entries, entry{cfg: c, key: m})
			}
		}
	}
	report.Listed = len(configs)

	for _, e := range entries {
		if err := l.declare(ctx, e); err != nil {
			return report, fmt.Errorf("declaring %s: %w", e.key, err)
		}
	}

	// Leaves first: composites read their candidates' DateSets.
	sort.SliceStable(entries, func(i, j int) bool {
		return !entries[i].cfg.IsComposite() && entries[j].cfg.IsComposite()
	})
	declared := map[string]bool{}
	for _, e := range entries {
		declared[e.key] = true
	}

	var fed []string
	for _, e := range entries {
		report.Layers = append(report.Layers, l.index(ctx, e))
		if e.cfg.BestLayer != "" && !e.cfg.IsComposite() {
			bk := store.SiblingKey(e.key, e.cfg.BestLayer)
			if !declared[bk] {
				declared[bk] = true
				fed = append(fed, bk)
			}
		}
	}

	// Composites fed by a loaded leaf but declared elsewhere.
	for _, bk := range fed {
		cands, err := l.resolver.Candidates(ctx, bk)
		if err != nil || len(cands) == 0 {
			continue
		}
		report.Layers = append(report.Layers, l.index(ctx, entry{key: bk, cfg: LayerConfig{BestConfig: cands}}))
	}
	return report, nil
}

// declare writes the layer's configuration keys.
func (l *Loader) declare(ctx context.Context, e entry) error {
	c := e.cfg
	configs := []string(c.TimeConfig)
	if c.Static && len(configs) == 0 {
		configs = []string{best.StaticPeriod}
	}
	if len(configs) > 0 {
		if err := l.layers.SetConfigs(ctx, e.key, configs); err != nil {
			return err
		}
		l.log.Info("time config set", zap.String("layer", e.key), zap.Strings("config", configs))
	} else {
		l.log.Debug("no time configuration found", zap.String("layer", e.key), zap.String("path", c.Path))
	}

	if c.IsComposite() {
		if err := l.layers.SetBestConfig(ctx, e.key, c.BestConfig); err != nil {
			return err
		}
		for _, cand := range c.BestConfig {
			if err := l.layers.SetBestLayer(ctx, store.SiblingKey(e.key, cand.Layer), c.LayerID); err != nil {
				return err
			}
		}
	}
	if c.BestLayer != "" {
		if err := l.layers.SetBestLayer(ctx, e.key, c.BestLayer); err != nil {
			return err
		}
	}
	if c.Static && !c.IsComposite() {
		if _, err := l.layers.AddDates(ctx, e.key, best.StaticStart, best.StaticEnd); err != nil {
			return err
		}
	}
	return nil
}

// index recomputes one declared layer.
func (l *Loader) index(ctx context.Context, e entry) model.LayerReport {
	start := time.Now()
	rep := model.LayerReport{Key: e.key, BestLayer: e.cfg.BestLayer}
	err := l.indexLayer(ctx, e, &rep)
	if err != nil {
		rep.Error = err.Error()
		l.log.Error("layer failed", zap.String("layer", e.key), zap.Error(err))
	} else {
		l.log.Info("layer indexed",
			zap.String("layer", e.key),
			zap.Strings("periods", rep.Periods),
			zap.String("default", rep.Default))
	}
	l.metrics.Unit(0, time.Since(start), err)
	return rep
}

func (l *Loader) indexLayer(ctx context.Context, e entry, rep *model.LayerReport) error {
	if e.cfg.IsComposite() {
		if e.cfg.Static {
			cands, err := l.resolver.Candidates(ctx, e.key)
			if err != nil {
				return err
			}
			if err := l.resolver.SeedStatic(ctx, e.key, cands[0].Layer); err != nil {
				return err
			}
		} else if _, err := l.resolver.RecalculateBest(ctx, e.key); err != nil {
			if !errors.Is(err, model.ErrConfig) {
				return err
			}
			l.log.Warn("composite has no candidates", zap.String("layer", e.key))
		}
	}

	res, err := l.periods.CalculateLayerPeriods(ctx, e.key, timeindex.Request{})
	if err != nil {
		return err
	}
	rep.Dates = res.Dates
	rep.Periods = res.Periods
	rep.Default = res.Default
	return nil
}
