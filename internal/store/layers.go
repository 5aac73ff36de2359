package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/nasa-gibs/oetime/internal/model"
)

// Layers reads and writes per-layer index entries. Every method takes a
// layer key such as "epsg4326:layer:MODIS_Aqua_Aerosol" and appends the
// entity suffix itself.
type Layers struct {
	b Backend
}

// NewLayers wraps a backend.
func NewLayers(b Backend) *Layers {
	return &Layers{b: b}
}

// Backend returns the underlying backend.
func (l *Layers) Backend() Backend { return l.b }

// ─── Dates ────────────────────────────────────────────────────────────────────

// AddDates adds members to the layer's DateSet and returns how many were new.
func (l *Layers) AddDates(ctx context.Context, key string, dates ...string) (int64, error) {
	n, err := l.b.ZAdd(ctx, key+SuffixDates, 0, dates...)
	if err != nil {
		return 0, fmt.Errorf("adding dates to %s: %w", key, err)
	}
	return n, nil
}

// AddExpiration adds dates to the layer's expiration set.
func (l *Layers) AddExpiration(ctx context.Context, key string, dates ...string) error {
	if _, err := l.b.ZAdd(ctx, key+SuffixExpiration, 0, dates...); err != nil {
		return fmt.Errorf("adding expiration to %s: %w", key, err)
	}
	return nil
}

// RemoveDates drops members from the layer's DateSet.
func (l *Layers) RemoveDates(ctx context.Context, key string, dates ...string) error {
	return l.b.ZRem(ctx, key+SuffixDates, dates...)
}

// Dates returns the layer's DateSet in ascending order.
func (l *Layers) Dates(ctx context.Context, key string) ([]string, error) {
	dates, err := l.b.ZRange(ctx, key+SuffixDates)
	if err != nil {
		return nil, fmt.Errorf("reading dates of %s: %w", key, err)
	}
	return dates, nil
}

// HasDate reports whether date is in the layer's DateSet.
func (l *Layers) HasDate(ctx context.Context, key, date string) (bool, error) {
	_, ok, err := l.b.ZScore(ctx, key+SuffixDates, date)
	return ok, err
}

// ─── Period configs ───────────────────────────────────────────────────────────

// Configs returns the layer's PeriodConfig strings, sorted.
func (l *Layers) Configs(ctx context.Context, key string) ([]string, error) {
	cfgs, err := l.b.SMembers(ctx, key+SuffixConfig)
	if err != nil {
		return nil, fmt.Errorf("reading config of %s: %w", key, err)
	}
	sort.Strings(cfgs)
	return cfgs, nil
}

// SetConfigs replaces the layer's PeriodConfig strings.
func (l *Layers) SetConfigs(ctx context.Context, key string, configs []string) error {
	return l.b.Atomic(ctx, func(tx Batch) error {
		tx.Del(key + SuffixConfig)
		tx.SAdd(key+SuffixConfig, configs...)
		return nil
	})
}

// ─── Periods & default ────────────────────────────────────────────────────────

// Periods returns the layer's PeriodList and the type of the key that holds
// it. Unordered (legacy) sets are returned sorted.
func (l *Layers) Periods(ctx context.Context, key string) ([]string, KeyType, error) {
	t, err := l.b.Type(ctx, key+SuffixPeriods)
	if err != nil {
		return nil, TypeNone, err
	}
	var ps []string
	switch t {
	case TypeZSet:
		ps, err = l.b.ZRange(ctx, key+SuffixPeriods)
	case TypeSet:
		ps, err = l.b.SMembers(ctx, key+SuffixPeriods)
		sort.Strings(ps)
	case TypeNone:
	default:
		return nil, t, fmt.Errorf("%s%s: %w", key, SuffixPeriods, ErrWrongType)
	}
	return ps, t, err
}

// Default returns the layer's DefaultDate.
func (l *Layers) Default(ctx context.Context, key string) (string, bool, error) {
	return l.b.Get(ctx, key+SuffixDefault)
}

// ReplacePeriods swaps in a freshly computed PeriodList and DefaultDate in
// one atomic batch. An empty def leaves the current default alone.
func (l *Layers) ReplacePeriods(ctx context.Context, key string, periods []string, def string) error {
	err := l.b.Atomic(ctx, func(tx Batch) error {
		tx.Del(key + SuffixPeriods)
		tx.ZAdd(key+SuffixPeriods, 0, periods...)
		if def != "" {
			tx.Set(key+SuffixDefault, def)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing periods of %s: %w", key, err)
	}
	return nil
}

// AppendPeriods adds periods without removing existing ones, keeping the
// key's current type.
func (l *Layers) AppendPeriods(ctx context.Context, key string, periods []string, def string) error {
	t, err := l.b.Type(ctx, key+SuffixPeriods)
	if err != nil {
		return err
	}
	err = l.b.Atomic(ctx, func(tx Batch) error {
		if t == TypeSet {
			tx.SAdd(key+SuffixPeriods, periods...)
		} else {
			tx.ZAdd(key+SuffixPeriods, 0, periods...)
		}
		if def != "" {
			tx.Set(key+SuffixDefault, def)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("appending periods of %s: %w", key, err)
	}
	return nil
}

// ─── Links ────────────────────────────────────────────────────────────────────

// CopyTarget returns the key of the layer that mirrors key's index, if any.
func (l *Layers) CopyTarget(ctx context.Context, key string) (string, bool, error) {
	name, ok, err := l.b.Get(ctx, key+SuffixCopyDates)
	if err != nil || !ok {
		return "", false, err
	}
	return SiblingKey(key, name), true, nil
}

// SetCopyDates links key to another layer that receives the same dates.
func (l *Layers) SetCopyDates(ctx context.Context, key, name string) error {
	return l.b.Set(ctx, key+SuffixCopyDates, name)
}

// BestLayer returns the key of the composite layer fed by key, if any.
func (l *Layers) BestLayer(ctx context.Context, key string) (string, bool, error) {
	name, ok, err := l.b.Get(ctx, key+SuffixBestLayer)
	if err != nil || !ok {
		return "", false, err
	}
	return SiblingKey(key, name), true, nil
}

// SetBestLayer links key to the composite layer name.
func (l *Layers) SetBestLayer(ctx context.Context, key, name string) error {
	return l.b.Set(ctx, key+SuffixBestLayer, name)
}

// ─── Best config & map ────────────────────────────────────────────────────────

// BestConfig returns the composite's candidates with their priority and
// insertion ordinal, in stored score order. Candidates without a recorded
// ordinal sort after the ones that have one.
func (l *Layers) BestConfig(ctx context.Context, bestKey string) ([]model.Candidate, error) {
	ms, err := l.b.ZRangeWithScores(ctx, bestKey+SuffixBestConfig)
	if err != nil {
		return nil, fmt.Errorf("reading best config of %s: %w", bestKey, err)
	}
	order, err := l.b.HGetAll(ctx, bestKey+SuffixBestOrder)
	if err != nil {
		return nil, err
	}
	out := make([]model.Candidate, len(ms))
	for i, m := range ms {
		ord := math.MaxInt32
		if v, ok := order[m.Name]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				ord = n
			}
		}
		out[i] = model.Candidate{Layer: m.Name, Priority: m.Score, Ordinal: ord}
	}
	return out, nil
}

// SetBestConfig replaces the composite's candidates. Ordinals are taken
// from slice order.
func (l *Layers) SetBestConfig(ctx context.Context, bestKey string, cands []model.Candidate) error {
	return l.b.Atomic(ctx, func(tx Batch) error {
		tx.Del(bestKey+SuffixBestConfig, bestKey+SuffixBestOrder)
		for i, c := range cands {
			tx.ZAdd(bestKey+SuffixBestConfig, c.Priority, c.Layer)
			tx.HSet(bestKey+SuffixBestOrder, c.Layer, strconv.Itoa(i))
		}
		return nil
	})
}

// AddCandidate appends a candidate after the existing ones.
func (l *Layers) AddCandidate(ctx context.Context, bestKey, name string, priority float64) error {
	cands, err := l.BestConfig(ctx, bestKey)
	if err != nil {
		return err
	}
	return l.b.Atomic(ctx, func(tx Batch) error {
		tx.ZAdd(bestKey+SuffixBestConfig, priority, name)
		tx.HSet(bestKey+SuffixBestOrder, name, strconv.Itoa(len(cands)))
		return nil
	})
}

// RemoveCandidate drops a candidate from the composite's BestConfig.
func (l *Layers) RemoveCandidate(ctx context.Context, bestKey, name string) error {
	return l.b.Atomic(ctx, func(tx Batch) error {
		tx.ZRem(bestKey+SuffixBestConfig, name)
		tx.HDel(bestKey+SuffixBestOrder, name)
		return nil
	})
}

// BestMap returns the composite's date -> candidate map. Keys carry the
// trailing "Z" as stored.
func (l *Layers) BestMap(ctx context.Context, bestKey string) (map[string]string, error) {
	return l.b.HGetAll(ctx, bestKey+SuffixBest)
}

// SetBest records that candidate supplies date for the composite.
func (l *Layers) SetBest(ctx context.Context, bestKey, date, candidate string) error {
	return l.b.Atomic(ctx, func(tx Batch) error {
		tx.HSet(bestKey+SuffixBest, date+"Z", candidate)
		tx.ZAdd(bestKey+SuffixDates, 0, date)
		return nil
	})
}

// ClearBest prunes date from the composite's map and DateSet.
func (l *Layers) ClearBest(ctx context.Context, bestKey, date string) error {
	return l.b.Atomic(ctx, func(tx Batch) error {
		tx.HDel(bestKey+SuffixBest, date+"Z")
		tx.ZRem(bestKey+SuffixDates, date)
		return nil
	})
}

// ReplaceBest swaps in a rebuilt date -> candidate map and the matching
// composite DateSet.
func (l *Layers) ReplaceBest(ctx context.Context, bestKey string, assign map[string]string) error {
	dates := make([]string, 0, len(assign))
	for d := range assign {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return l.b.Atomic(ctx, func(tx Batch) error {
		tx.Del(bestKey+SuffixBest, bestKey+SuffixDates)
		for _, d := range dates {
			tx.HSet(bestKey+SuffixBest, d+"Z", assign[d])
		}
		tx.ZAdd(bestKey+SuffixDates, 0, dates...)
		return nil
	})
}

// ─── Bootstrap marker ─────────────────────────────────────────────────────────

// Created reports whether the bootstrap marker exists.
func (l *Layers) Created(ctx context.Context, marker string) (bool, error) {
	return l.b.Exists(ctx, marker)
}

// MarkCreated writes the bootstrap marker.
func (l *Layers) MarkCreated(ctx context.Context, marker, stamp string) error {
	return l.b.Set(ctx, marker, stamp)
}

// ─── Listing ──────────────────────────────────────────────────────────────────

// ScanLayers returns the sorted layer keys matching pattern that have at
// least one index entry.
func (l *Layers) ScanLayers(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	seen := map[string]bool{}
	err := l.b.Scan(ctx, pattern+":*", func(k string) error {
		if lk, ok := TrimSuffix(k); ok {
			seen[lk] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", pattern, err)
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Status gathers every entry of one layer.
func (l *Layers) Status(ctx context.Context, key string) (model.LayerStatus, error) {
	st := model.LayerStatus{Key: key}

	dates, err := l.Dates(ctx, key)
	if err != nil {
		return st, err
	}
	st.DateCount = len(dates)
	if len(dates) > 0 {
		st.FirstDate, st.LastDate = dates[0], dates[len(dates)-1]
	}
	if st.Periods, _, err = l.Periods(ctx, key); err != nil {
		return st, err
	}
	if st.Default, _, err = l.Default(ctx, key); err != nil {
		return st, err
	}
	if st.Configs, err = l.Configs(ctx, key); err != nil {
		return st, err
	}
	if best, ok, err := l.b.Get(ctx, key+SuffixBestLayer); err != nil {
		return st, err
	} else if ok {
		st.BestLayer = best
	}
	if st.BestConfig, err = l.BestConfig(ctx, key); err != nil {
		return st, err
	}
	if st.BestMap, err = l.BestMap(ctx, key); err != nil {
		return st, err
	}

	if st.DateCount == 0 && len(st.Periods) == 0 && st.Default == "" &&
		len(st.Configs) == 0 && st.BestLayer == "" && len(st.BestConfig) == 0 && len(st.BestMap) == 0 {
		return st, fmt.Errorf("layer %s: %w", key, model.ErrNotFound)
	}
	return st, nil
}
