package periods

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"

	"github.com/nasa-gibs/oetime/internal/model"
)

// Detect is the config token that asks for a value to be derived from dates.
const Detect = "DETECT"

// ─── Intervals ────────────────────────────────────────────────────────────────

// Unit is the single calendar unit of an Interval.
type Unit int

const (
	UnitYear Unit = iota
	UnitMonth
	UnitDay
	UnitHour
	UnitMinute
	UnitSecond
)

// Interval is a single-component ISO-8601 duration such as P1D or PT6M.
type Interval struct {
	Size int
	Unit Unit
}

// Subdaily reports whether the interval is expressed in hours, minutes or
// seconds.
func (iv Interval) Subdaily() bool { return iv.Unit >= UnitHour }

// Delta converts the interval to a RelDelta.
func (iv Interval) Delta() RelDelta {
	switch iv.Unit {
	case UnitYear:
		return RelDelta{Years: iv.Size}
	case UnitMonth:
		return RelDelta{Months: iv.Size}
	case UnitDay:
		return RelDelta{Days: iv.Size}
	case UnitHour:
		return RelDelta{Hours: iv.Size}
	case UnitMinute:
		return RelDelta{Minutes: iv.Size}
	default:
		return RelDelta{Seconds: iv.Size}
	}
}

func (iv Interval) letter() string {
	return [...]string{"Y", "M", "D", "H", "M", "S"}[iv.Unit]
}

// String renders the ISO-8601 form, e.g. "P1M" or "PT1M".
func (iv Interval) String() string {
	if iv.Subdaily() {
		return "PT" + strconv.Itoa(iv.Size) + iv.letter()
	}
	return "P" + strconv.Itoa(iv.Size) + iv.letter()
}

// defaultInterval labels a period built from a single date.
var defaultInterval = Interval{Size: 1, Unit: UnitDay}

var shorthand = regexp.MustCompile(`(-|P|PT)(\d+)(\D+)`)

// ParseInterval parses an ISO-8601 duration with exactly one component.
// The legacy minute spelling "PT6MM" and the LATEST shorthand "-3M" (months),
// "-6MM" (minutes) and "-6H" are accepted as well.
func ParseInterval(s string) (Interval, error) {
	iso, err := toISO(s)
	if err != nil {
		return Interval{}, err
	}
	d, err := duration.Parse(iso)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: invalid duration %q: %v", model.ErrParse, s, err)
	}
	if d.Negative {
		return Interval{}, fmt.Errorf("%w: negative duration %q", model.ErrParse, s)
	}

	var found []Interval
	for _, c := range []struct {
		v float64
		u Unit
	}{
		{d.Years, UnitYear},
		{d.Months, UnitMonth},
		{d.Weeks * 7, UnitDay},
		{d.Days, UnitDay},
		{d.Hours, UnitHour},
		{d.Minutes, UnitMinute},
		{d.Seconds, UnitSecond},
	} {
		if c.v == 0 {
			continue
		}
		if c.v != math.Trunc(c.v) || c.v < 0 {
			return Interval{}, fmt.Errorf("%w: duration %q must use whole units", model.ErrParse, s)
		}
		found = append(found, Interval{Size: int(c.v), Unit: c.u})
	}
	if len(found) != 1 {
		return Interval{}, fmt.Errorf("%w: duration %q must have exactly one non-zero component", model.ErrParse, s)
	}
	return found[0], nil
}

// toISO rewrites the accepted spellings into plain ISO-8601.
func toISO(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "P") && !strings.HasSuffix(s, "MM") {
		return s, nil
	}
	m := shorthand.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("%w: invalid duration %q", model.ErrParse, s)
	}
	prefix, count, unit := m[1], m[2], m[3]
	switch {
	case unit == "Y" || unit == "D":
		return "P" + count + unit, nil
	case unit == "M" && prefix != "PT":
		return "P" + count + "M", nil
	case unit == "M" || unit == "MM":
		return "PT" + count + "M", nil
	case unit == "H" || unit == "S":
		return "PT" + count + unit, nil
	}
	return "", fmt.Errorf("%w: invalid interval unit in %q, must be Y, M, D, H, MM, or S", model.ErrParse, s)
}

// ─── Bounds ───────────────────────────────────────────────────────────────────

// BoundKind selects how a period boundary is determined.
type BoundKind int

const (
	// BoundDetect derives the boundary from the dates.
	BoundDetect BoundKind = iota
	// BoundFixed pins the boundary to Bound.Time.
	BoundFixed
	// BoundLatest pins an end boundary to the most recent date.
	BoundLatest
	// BoundLatestMinus pins a start boundary to the most recent date minus
	// Bound.Back.
	BoundLatestMinus
)

// Bound is one side of a PeriodConfig.
type Bound struct {
	Kind BoundKind
	Time time.Time
	Back Interval
}

// Config is a decoded PeriodConfig string. The zero value is "DETECT".
type Config struct {
	Start    Bound
	End      Bound
	Interval *Interval
	raw      string
}

// Forced reports whether nothing in the config is derived from dates.
func (c Config) Forced() bool {
	return c.Start.Kind != BoundDetect && c.End.Kind != BoundDetect && c.Interval != nil
}

// String returns the config as written.
func (c Config) String() string {
	if c.raw == "" {
		return Detect
	}
	return c.raw
}

// ParseConfig decodes a PeriodConfig string:
//
//	DETECT
//	start                       e.g. 2024-01-01 or LATEST-3M
//	start/end                   end may be a date, DETECT or LATEST
//	start/period                e.g. DETECT/PT6M
//	start/end/period            e.g. 2024-01-01/2024-01-10/P5D
//
// A start of "false" behaves like DETECT.
func ParseConfig(s string) (Config, error) {
	s = strings.TrimSpace(s)
	cfg := Config{raw: s}
	parts := strings.Split(s, "/")

	var startTok, endTok, periodTok = parts[0], Detect, Detect
	switch len(parts) {
	case 1:
	case 2:
		if strings.Contains(parts[1], "P") {
			periodTok = parts[1]
		} else {
			endTok = parts[1]
		}
	case 3:
		endTok, periodTok = parts[1], parts[2]
	default:
		return Config{}, fmt.Errorf("%w: period config %q has too many parts", model.ErrParse, s)
	}

	var err error
	if cfg.Start, err = parseStart(startTok); err != nil {
		return Config{}, fmt.Errorf("period config %q: %w", s, err)
	}
	if cfg.End, err = parseEnd(endTok); err != nil {
		return Config{}, fmt.Errorf("period config %q: %w", s, err)
	}
	if periodTok != Detect {
		iv, err := ParseInterval(periodTok)
		if err != nil {
			return Config{}, fmt.Errorf("period config %q: %w", s, err)
		}
		cfg.Interval = &iv
	}
	return cfg, nil
}

// ParseConfigs decodes every string, failing on the first malformed one.
// An empty input yields a single DETECT config.
func ParseConfigs(raw []string) ([]Config, error) {
	if len(raw) == 0 {
		return []Config{{}}, nil
	}
	out := make([]Config, 0, len(raw))
	for _, s := range raw {
		c, err := ParseConfig(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseStart(tok string) (Bound, error) {
	switch {
	case tok == Detect || tok == "" || strings.Contains(tok, "false"):
		return Bound{Kind: BoundDetect}, nil
	case strings.HasPrefix(tok, "LATEST"):
		back, err := ParseInterval(strings.TrimPrefix(tok, "LATEST"))
		if err != nil {
			return Bound{}, err
		}
		return Bound{Kind: BoundLatestMinus, Back: back}, nil
	}
	t, err := model.ParseTimestamp(tok)
	if err != nil {
		return Bound{}, err
	}
	return Bound{Kind: BoundFixed, Time: t}, nil
}

func parseEnd(tok string) (Bound, error) {
	switch tok {
	case Detect, "":
		return Bound{Kind: BoundDetect}, nil
	case "LATEST":
		return Bound{Kind: BoundLatest}, nil
	}
	t, err := model.ParseTimestamp(tok)
	if err != nil {
		return Bound{}, err
	}
	return Bound{Kind: BoundFixed, Time: t}, nil
}
