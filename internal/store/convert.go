package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/nasa-gibs/oetime/internal/model"
)

// ConvertPeriods rewrites every ":periods" key matching layerFilter to the
// target type ("zset" or "set"). Keys already of that type are counted as
// unchanged. Each key is swapped in a single atomic batch.
func ConvertPeriods(ctx context.Context, b Backend, to KeyType, layerFilter string) (model.Conversion, error) {
	if layerFilter == "" {
		layerFilter = "*"
	}
	res := model.Conversion{
		Pattern:   "*layer:" + layerFilter + SuffixPeriods,
		To:        string(to),
		Converted: []string{},
	}
	if to != TypeZSet && to != TypeSet {
		return res, fmt.Errorf("%w: invalid destination type %q, must be zset or set", model.ErrConfig, to)
	}

	var keys []string
	if err := b.Scan(ctx, res.Pattern, func(k string) error {
		keys = append(keys, k)
		return nil
	}); err != nil {
		return res, err
	}
	sort.Strings(keys)

	for _, k := range keys {
		t, err := b.Type(ctx, k)
		if err != nil {
			return res, err
		}
		if t == to {
			res.Unchanged++
			continue
		}

		var members []string
		switch t {
		case TypeSet:
			members, err = b.SMembers(ctx, k)
		case TypeZSet:
			members, err = b.ZRange(ctx, k)
		default:
			res.Unchanged++
			continue
		}
		if err != nil {
			return res, err
		}

		err = b.Atomic(ctx, func(tx Batch) error {
			tx.Del(k)
			if to == TypeZSet {
				tx.ZAdd(k, 0, members...)
			} else {
				tx.SAdd(k, members...)
			}
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("converting %s: %w", k, err)
		}
		res.Converted = append(res.Converted, k)
	}
	return res, nil
}
