package periods

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBetween(t *testing.T) {
	cases := []struct {
		name     string
		from, to time.Time
		want     RelDelta
	}{
		{"one day", day(2024, 1, 1), day(2024, 1, 2), RelDelta{Days: 1}},
		{"one month", day(2024, 1, 1), day(2024, 2, 1), RelDelta{Months: 1}},
		{"clipped month", day(2024, 1, 31), day(2024, 2, 29), RelDelta{Months: 1}},
		{"month and days", day(2024, 2, 29), day(2024, 3, 31), RelDelta{Months: 1, Days: 2}},
		{"one year", day(2023, 3, 1), day(2024, 3, 1), RelDelta{Years: 1}},
		{"six hours", day(2024, 1, 1), day(2024, 1, 1).Add(6 * time.Hour), RelDelta{Hours: 6}},
		{"mixed clock", day(2024, 1, 1), day(2024, 1, 1).Add(6*time.Minute + 40*time.Second), RelDelta{Minutes: 6, Seconds: 40}},
		{"backwards", day(2024, 2, 1), day(2024, 1, 1), RelDelta{Months: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Between(tc.from, tc.to))
		})
	}
}

func TestBetweenRoundTrips(t *testing.T) {
	pairs := [][2]time.Time{
		{day(2024, 1, 1), day(2025, 7, 15)},
		{day(2024, 1, 31), day(2024, 4, 30)},
		{day(2023, 12, 31), day(2024, 1, 1).Add(90 * time.Minute)},
	}
	for _, p := range pairs {
		assert.True(t, Between(p[0], p[1]).AddTo(p[0]).Equal(p[1]), "%v -> %v", p[0], p[1])
	}
}

func TestAddToClipsMonthEnd(t *testing.T) {
	assert.Equal(t, day(2024, 2, 29), RelDelta{Months: 1}.AddTo(day(2024, 1, 31)))
	assert.Equal(t, day(2023, 2, 28), RelDelta{Months: 1}.AddTo(day(2023, 1, 31)))
	assert.Equal(t, day(2023, 12, 1), RelDelta{Months: 3}.SubtractFrom(day(2024, 3, 1)))
	assert.Equal(t, day(2025, 2, 28), RelDelta{Years: 1}.AddTo(day(2024, 2, 29)))
}

func TestRelDeltaInterval(t *testing.T) {
	assert.Equal(t, Interval{1, UnitMonth}, RelDelta{Months: 1, Days: 2}.Interval())
	assert.Equal(t, Interval{2, UnitDay}, RelDelta{Days: 2}.Interval())
	assert.Equal(t, Interval{6, UnitMinute}, RelDelta{Minutes: 6, Seconds: 40}.Interval())
	assert.True(t, RelDelta{}.IsZero())
}
