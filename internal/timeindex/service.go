// Package timeindex recomputes a layer's coverage periods and default date
// from its DateSet and PeriodConfig and writes them back to the store.
package timeindex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/periods"
	"github.com/nasa-gibs/oetime/internal/store"
)

// Request controls one recompute.
type Request struct {
	// NewDate, when set, is added to the DateSet of every target first. If
	// the layer already has it, nothing else is written.
	NewDate string
	// Expiration also records NewDate in the layer's expiration set.
	Expiration bool
	// Start and End limit the dates the periods are computed from.
	Start *time.Time
	End   *time.Time
	// KeepExistingPeriods appends the computed periods instead of replacing
	// the stored list.
	KeepExistingPeriods  bool
	FindSmallestInterval bool
	// Mirror also writes to the EPSG:3857 twin of an EPSG:4326 layer.
	Mirror bool
}

// Result describes what a recompute wrote.
type Result struct {
	Keys      []string
	Dates     int
	Periods   []string
	Default   string
	Unchanged bool
}

// Service recomputes layer periods against one store.
type Service struct {
	layers *store.Layers
	log    *zap.Logger
}

// New returns a Service. A nil logger discards output.
func New(layers *store.Layers, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{layers: layers, log: log}
}

// CalculateLayerPeriods recomputes the PeriodList and DefaultDate of key and
// of every layer that shares its dates (copy_dates link, projection mirror).
func (s *Service) CalculateLayerPeriods(ctx context.Context, key string, req Request) (Result, error) {
	targets, err := s.targets(ctx, key, req.Mirror)
	if err != nil {
		return Result{}, err
	}
	res := Result{Keys: targets}

	if req.NewDate != "" {
		date, err := model.NormalizeTimestamp(req.NewDate)
		if err != nil {
			return res, err
		}
		for i, t := range targets {
			added, err := s.layers.AddDates(ctx, t, date)
			if err != nil {
				return res, err
			}
			if req.Expiration {
				if err := s.layers.AddExpiration(ctx, t, date); err != nil {
					return res, err
				}
			}
			if i == 0 && added == 0 {
				s.log.Debug("date already indexed, no changes made",
					zap.String("layer", key), zap.String("date", date))
				res.Unchanged = true
				return res, nil
			}
		}
	}

	raw, err := s.layers.Dates(ctx, key)
	if err != nil {
		return res, err
	}
	dates, bad := periods.ParseDates(raw)
	for _, b := range bad {
		s.log.Warn("skipping unparseable date", zap.String("layer", key), zap.String("date", b))
	}
	res.Dates = len(dates)

	rawConfigs, err := s.layers.Configs(ctx, key)
	if err != nil {
		return res, err
	}
	configs, err := periods.ParseConfigs(rawConfigs)
	if err != nil {
		return res, fmt.Errorf("layer %s: %w", key, err)
	}

	opts := periods.Options{Start: req.Start, End: req.End, FindSmallestInterval: req.FindSmallestInterval}
	res.Periods = periods.CalculateAll(dates, configs, opts)
	res.Default = periods.DefaultDate(res.Periods, configs)
	if res.Default == "" {
		s.log.Warn("no default date could be determined", zap.String("layer", key))
	}

	for _, t := range targets {
		if req.KeepExistingPeriods {
			err = s.layers.AppendPeriods(ctx, t, res.Periods, res.Default)
		} else {
			err = s.layers.ReplacePeriods(ctx, t, res.Periods, res.Default)
		}
		if err != nil {
			return res, err
		}
	}

	s.log.Debug("periods calculated",
		zap.String("layer", key),
		zap.Int("dates", res.Dates),
		zap.Strings("periods", res.Periods),
		zap.String("default", res.Default))
	return res, nil
}

func (s *Service) targets(ctx context.Context, key string, mirror bool) ([]string, error) {
	targets := []string{key}
	cp, ok, err := s.layers.CopyTarget(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		targets = append(targets, cp)
	}
	if mirror {
		if m, ok := store.MirrorKey(key); ok {
			targets = append(targets, m)
		}
	}
	return targets, nil
}
