// Package periods compacts a layer's timestamps into ISO-8601 coverage
// periods of the form "start/end/duration".
//
// A period covers a run of dates sampled at a fixed calendar interval. The
// interval is either forced by the layer's period config or detected from the
// dates: the delta between the first two dates when the first two deltas
// agree, otherwise the smallest delta found anywhere in the series. Every
// break in the cadence closes the current period and opens a new one.
package periods

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nasa-gibs/oetime/internal/model"
)

// Options narrows a calculation.
type Options struct {
	// Start and End, when set, limit the calculation to dates inside the
	// window. Periods that straddle a boundary are trimmed to the first or
	// last date inside it.
	Start *time.Time
	End   *time.Time
	// FindSmallestInterval always derives the interval from the smallest
	// delta in the series instead of trusting the first two deltas.
	FindSmallestInterval bool
}

type span struct {
	start, end time.Time
	interval   Interval
}

// Calculate returns the periods covering dates under cfg, ascending by
// start. Dates need not be sorted or unique.
func Calculate(dates []time.Time, cfg Config, opts Options) []string {
	sorted := sortUnique(dates)

	if len(sorted) == 0 {
		if cfg.Start.Kind == BoundDetect || cfg.End.Kind == BoundDetect {
			return nil
		}
		if cfg.Start.Kind == BoundLatestMinus || cfg.End.Kind == BoundLatest {
			return nil
		}
	}

	var forcedStart, forcedEnd *time.Time
	switch cfg.Start.Kind {
	case BoundFixed:
		t := cfg.Start.Time
		forcedStart = &t
	case BoundLatestMinus:
		t := cfg.Start.Back.Delta().SubtractFrom(sorted[len(sorted)-1])
		forcedStart = &t
	}
	switch cfg.End.Kind {
	case BoundFixed:
		t := cfg.End.Time
		forcedEnd = &t
	case BoundLatest:
		t := sorted[len(sorted)-1]
		forcedEnd = &t
	}

	if opts.Start != nil {
		if forcedEnd != nil && forcedEnd.Before(*opts.Start) {
			return nil
		} else if forcedStart != nil && opts.Start.After(*forcedStart) {
			forcedStart = opts.Start
		}
	}
	if opts.End != nil {
		if forcedStart != nil && forcedStart.After(*opts.End) {
			return nil
		} else if forcedEnd != nil && opts.End.Before(*forcedEnd) {
			forcedEnd = opts.End
		}
	}

	var spans []span
	if forcedStart != nil && forcedEnd != nil && cfg.Interval != nil {
		spans = []span{{start: *forcedStart, end: *forcedEnd, interval: *cfg.Interval}}
	} else {
		trimmed := window(sorted, first(forcedStart, opts.Start), first(forcedEnd, opts.End))
		switch {
		case len(trimmed) > 1:
			var delta RelDelta
			if cfg.Interval != nil {
				delta = cfg.Interval.Delta()
			} else {
				delta = detectInterval(trimmed, opts.FindSmallestInterval)
			}
			spans = breaks(trimmed, delta)
		case len(trimmed) == 1:
			iv := defaultInterval
			if cfg.Interval != nil {
				iv = *cfg.Interval
			}
			spans = []span{{start: trimmed[0], end: trimmed[0], interval: iv}}
		}

		if len(spans) > 0 {
			if forcedStart != nil {
				spans[0].start = *forcedStart
			}
			if forcedEnd != nil {
				spans[len(spans)-1].end = *forcedEnd
			}
		}
	}

	out := make([]string, 0, len(spans))
	for _, s := range spans {
		if cfg.Interval != nil {
			s.interval = *cfg.Interval
		}
		out = append(out, format(s))
	}
	return out
}

// CalculateAll runs Calculate for every config and concatenates the results
// in config order. Periods from different configs are never merged, even
// when they overlap.
func CalculateAll(dates []time.Time, configs []Config, opts Options) []string {
	if len(configs) == 0 {
		configs = []Config{{}}
	}
	var out []string
	for _, c := range configs {
		out = append(out, Calculate(dates, c, opts)...)
	}
	return out
}

var midnight = regexp.MustCompile(`T00:00:00Z?`)

// DefaultDate picks the date a client should use when it asks for none: the
// end of the latest period, or failing that the latest date written in a
// non-DETECT config. It returns "" when neither exists.
func DefaultDate(periods []string, configs []Config) string {
	if len(periods) > 0 {
		sorted := append([]string(nil), periods...)
		sort.Strings(sorted)
		parts := strings.Split(sorted[len(sorted)-1], "/")
		def := parts[0]
		if len(parts) > 1 {
			def = parts[1]
		}
		if !strings.Contains(periods[len(periods)-1], "PT") {
			def = midnight.ReplaceAllString(def, "")
		}
		return def
	}

	for i := len(configs) - 1; i >= 0; i-- {
		raw := configs[i].String()
		if strings.Contains(raw, Detect) {
			continue
		}
		parts := strings.Split(raw, "/")
		for j := len(parts) - 1; j >= 0; j-- {
			if dateLike.MatchString(parts[j]) {
				return parts[j]
			}
		}
		return ""
	}
	return ""
}

var dateLike = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// ParseDates converts stored DateSet members, skipping the ones that do not
// parse. The rejected members are returned so callers can log them.
func ParseDates(raw []string) ([]time.Time, []string) {
	out := make([]time.Time, 0, len(raw))
	var bad []string
	for _, s := range raw {
		t, err := model.ParseTimestamp(s)
		if err != nil {
			bad = append(bad, s)
			continue
		}
		out = append(out, t)
	}
	return out, bad
}

// ─── internals ────────────────────────────────────────────────────────────────

func sortUnique(dates []time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))
	seen := make(map[int64]bool, len(dates))
	for _, d := range dates {
		d = d.UTC().Truncate(time.Second)
		if seen[d.Unix()] {
			continue
		}
		seen[d.Unix()] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func first(a, b *time.Time) *time.Time {
	if a != nil {
		return a
	}
	return b
}

// window drops dates before lo and after hi.
func window(dates []time.Time, lo, hi *time.Time) []time.Time {
	i, j := 0, len(dates)
	if lo != nil {
		for i < j && dates[i].Before(*lo) {
			i++
		}
	}
	if hi != nil {
		for j > i && dates[j-1].After(*hi) {
			j--
		}
	}
	return dates[i:j]
}

func detectInterval(dates []time.Time, smallest bool) RelDelta {
	firstDelta := Between(dates[0], dates[1])
	if !smallest && len(dates) > 2 && firstDelta == Between(dates[1], dates[2]) {
		return firstDelta
	}
	lo := 0
	min := dates[1].Sub(dates[0])
	for i := 1; i < len(dates)-1; i++ {
		if d := dates[i+1].Sub(dates[i]); d < min {
			min = d
			lo = i
		}
	}
	return Between(dates[lo], dates[lo+1])
}

// breaks walks the dates and closes a period wherever the next date is not
// exactly one delta after the previous one.
func breaks(dates []time.Time, delta RelDelta) []span {
	iv := delta.Interval()
	var out []span
	start, prev := dates[0], dates[0]
	for _, d := range dates[1:] {
		if !delta.AddTo(prev).Equal(d) {
			out = append(out, span{start: start, end: prev, interval: iv})
			start = d
		}
		prev = d
	}
	return append(out, span{start: start, end: prev, interval: iv})
}

// format renders a span. Whole-day and longer intervals drop midnight times,
// and drop the Z suffix when no time remains anywhere in the string.
func format(s span) string {
	const layout = "2006-01-02T15:04:05"
	str := s.start.Format(layout) + "Z/" + s.end.Format(layout) + "Z/" + s.interval.String()
	if s.interval.Subdaily() {
		return str
	}
	str = strings.ReplaceAll(str, "T00:00:00", "")
	if !strings.Contains(str, "T") {
		str = strings.ReplaceAll(str, "Z", "")
	}
	return str
}
