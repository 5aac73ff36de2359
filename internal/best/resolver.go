// Package best resolves composite ("best") layers: for every date it picks
// the highest-priority candidate source layer that has data for it.
//
// A composite's BestConfig ranks candidates by score. The resolver keeps the
// composite's BestDateMap (date -> candidate) and DateSet in step with the
// candidates' DateSets, either one date at a time as sources are ingested or
// by a full rebuild.
package best

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/store"
)

// Sentinel dates that make a static composite resolve for any request.
const (
	StaticStart = "1900-01-01T00:00:00"
	StaticEnd   = "2899-12-31T00:00:00"
	// StaticPeriod is the PeriodConfig covering both sentinels.
	StaticPeriod = "1900-01-01/2899-12-31/P1000Y"
)

// Order decides which end of the score range is checked first.
type Order int

const (
	// Ascending checks the lowest score first.
	Ascending Order = iota
	// Descending checks the highest score first.
	Descending
)

// ParseOrder accepts "ascending" / "asc" and "descending" / "desc".
// An empty string is Ascending.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "ascending", "asc":
		return Ascending, nil
	case "descending", "desc":
		return Descending, nil
	}
	return Ascending, fmt.Errorf("%w: invalid best priority order %q, must be ascending or descending", model.ErrConfig, s)
}

func (o Order) String() string {
	if o == Descending {
		return "descending"
	}
	return "ascending"
}

// Result reports an incremental resolution.
type Result struct {
	BestKey   string
	Date      string
	Candidate string // "" when no candidate covers Date
	Linked    bool   // false when the source feeds no composite
}

// Resolver maintains BestDateMaps in one store.
type Resolver struct {
	layers *store.Layers
	order  Order
	log    *zap.Logger
}

// New returns a Resolver. A nil logger discards output.
func New(layers *store.Layers, order Order, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{layers: layers, order: order, log: log}
}

// Candidates returns the composite's BestConfig in the order candidates are
// checked. Equal scores keep the order they were configured in.
func (r *Resolver) Candidates(ctx context.Context, bestKey string) ([]model.Candidate, error) {
	cands, err := r.layers.BestConfig(ctx, bestKey)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Priority != b.Priority {
			if r.order == Descending {
				return a.Priority > b.Priority
			}
			return a.Priority < b.Priority
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.Layer < b.Layer
	})
	return cands, nil
}

// CalculateLayerBest resolves one date that was just added to sourceKey.
// If the source is linked to a composite, the composite's BestDateMap entry
// for date is set to the first candidate whose DateSet holds it, or removed
// when none does. A composite without a BestConfig is seeded with the source
// as its only candidate.
func (r *Resolver) CalculateLayerBest(ctx context.Context, sourceKey, date string) (Result, error) {
	bestKey, linked, err := r.layers.BestLayer(ctx, sourceKey)
	if err != nil || !linked {
		return Result{}, err
	}
	date, err = model.NormalizeTimestamp(date)
	if err != nil {
		return Result{}, err
	}
	res := Result{BestKey: bestKey, Date: date, Linked: true}

	cands, err := r.Candidates(ctx, bestKey)
	if err != nil {
		return res, err
	}
	if len(cands) == 0 {
		name := store.LayerName(sourceKey)
		if err := r.layers.AddCandidate(ctx, bestKey, name, 0); err != nil {
			return res, err
		}
		cands = []model.Candidate{{Layer: name}}
	}

	for _, c := range cands {
		ok, err := r.layers.HasDate(ctx, store.SiblingKey(bestKey, c.Layer), date)
		if err != nil {
			return res, err
		}
		if ok {
			res.Candidate = c.Layer
			if err := r.layers.SetBest(ctx, bestKey, date, c.Layer); err != nil {
				return res, err
			}
			r.log.Debug("best layer resolved",
				zap.String("best", bestKey), zap.String("date", date), zap.String("candidate", c.Layer))
			return res, nil
		}
	}

	if err := r.layers.ClearBest(ctx, bestKey, date); err != nil {
		return res, err
	}
	r.log.Warn("no candidate covers date, removed from best layer",
		zap.String("best", bestKey), zap.String("date", date))
	return res, nil
}

// RecalculateBest rebuilds the composite's BestDateMap and DateSet from the
// current DateSets of its candidates and returns the new map.
func (r *Resolver) RecalculateBest(ctx context.Context, bestKey string) (map[string]string, error) {
	cands, err := r.Candidates(ctx, bestKey)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: %s has no best_config", model.ErrConfig, bestKey)
	}

	assign := map[string]string{}
	for _, c := range cands {
		dates, err := r.layers.Dates(ctx, store.SiblingKey(bestKey, c.Layer))
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			if _, claimed := assign[d]; !claimed {
				assign[d] = c.Layer
			}
		}
	}

	if err := r.layers.ReplaceBest(ctx, bestKey, assign); err != nil {
		return nil, err
	}
	r.log.Info("best layer rebuilt",
		zap.String("best", bestKey), zap.Int("candidates", len(cands)), zap.Int("dates", len(assign)))
	return assign, nil
}

// SeedStatic points a static composite at candidate for every date by
// mapping both sentinel dates to it.
func (r *Resolver) SeedStatic(ctx context.Context, bestKey, candidate string) error {
	if _, ok, err := r.layers.Backend().ZScore(ctx, bestKey+store.SuffixBestConfig, candidate); err != nil {
		return err
	} else if !ok {
		if err := r.layers.AddCandidate(ctx, bestKey, candidate, 0); err != nil {
			return err
		}
	}
	for _, d := range []string{StaticStart, StaticEnd} {
		if err := r.layers.SetBest(ctx, bestKey, d, candidate); err != nil {
			return err
		}
	}
	return nil
}
