package periods

import (
	"fmt"
	"time"
)

// RelDelta is a calendar-relative difference between two instants. Month
// arithmetic clips to the last day of the target month, so 2024-01-31 plus one
// month is 2024-02-29. Two deltas are equal when all fields match; one month
// and thirty-one days are different intervals.
type RelDelta struct {
	Years   int
	Months  int
	Days    int
	Hours   int
	Minutes int
	Seconds int
}

// IsZero reports whether every field is zero.
func (d RelDelta) IsZero() bool { return d == RelDelta{} }

// AddTo returns t shifted forward by d. Years and months are applied first,
// then the fixed-length fields.
func (d RelDelta) AddTo(t time.Time) time.Time {
	t = addMonths(t, d.Years*12+d.Months)
	return t.Add(time.Duration(d.Days)*24*time.Hour +
		time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Minutes)*time.Minute +
		time.Duration(d.Seconds)*time.Second)
}

// SubtractFrom returns t shifted backward by d.
func (d RelDelta) SubtractFrom(t time.Time) time.Time {
	return d.negate().AddTo(t)
}

func (d RelDelta) negate() RelDelta {
	return RelDelta{-d.Years, -d.Months, -d.Days, -d.Hours, -d.Minutes, -d.Seconds}
}

// Interval returns the single-component interval used to label a period
// sampled at d: the most significant non-zero field.
func (d RelDelta) Interval() Interval {
	switch {
	case d.Years != 0:
		return Interval{Size: d.Years, Unit: UnitYear}
	case d.Months != 0:
		return Interval{Size: d.Months, Unit: UnitMonth}
	case d.Days != 0:
		return Interval{Size: d.Days, Unit: UnitDay}
	case d.Hours != 0:
		return Interval{Size: d.Hours, Unit: UnitHour}
	case d.Minutes != 0:
		return Interval{Size: d.Minutes, Unit: UnitMinute}
	default:
		return Interval{Size: d.Seconds, Unit: UnitSecond}
	}
}

func (d RelDelta) String() string {
	return fmt.Sprintf("%dy%dm%dd%dh%dmin%ds", d.Years, d.Months, d.Days, d.Hours, d.Minutes, d.Seconds)
}

// Between returns the calendar delta that takes from to to: from plus the
// result equals to.
func Between(from, to time.Time) RelDelta {
	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	mark := addMonths(from, months)
	if to.Before(from) {
		for to.After(mark) {
			months++
			mark = addMonths(from, months)
		}
	} else {
		for to.Before(mark) {
			months--
			mark = addMonths(from, months)
		}
	}

	d := RelDelta{}
	sign := 1
	if months < 0 {
		sign = -1
	}
	d.Years = sign * ((sign * months) / 12)
	d.Months = sign * ((sign * months) % 12)

	rest := int64(to.Sub(mark) / time.Second)
	sign = 1
	if rest < 0 {
		sign = -1
		rest = -rest
	}
	d.Days = sign * int(rest/86400)
	rest %= 86400
	d.Hours = sign * int(rest/3600)
	rest %= 3600
	d.Minutes = sign * int(rest/60)
	d.Seconds = sign * int(rest%60)
	return d
}

func addMonths(t time.Time, n int) time.Time {
	if n == 0 {
		return t
	}
	total := int(t.Month()) - 1 + n
	year := t.Year() + total/12
	month := total % 12
	if month < 0 {
		month += 12
		year--
	}
	day := t.Day()
	if last := daysIn(year, time.Month(month+1)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month+1), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
