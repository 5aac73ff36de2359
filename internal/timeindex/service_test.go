package timeindex_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/store"
	"github.com/nasa-gibs/oetime/internal/timeindex"
)

func setup(t *testing.T) (*store.Layers, *timeindex.Service) {
	t.Helper()
	b, err := store.OpenBolt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	layers := store.NewLayers(b)
	return layers, timeindex.New(layers, nil)
}

func seed(t *testing.T, l *store.Layers, key string, dates ...string) {
	t.Helper()
	_, err := l.AddDates(context.Background(), key, dates...)
	require.NoError(t, err)
}

func periodsOf(t *testing.T, l *store.Layers, key string) ([]string, string) {
	t.Helper()
	ctx := context.Background()
	ps, _, err := l.Periods(ctx, key)
	require.NoError(t, err)
	def, _, err := l.Default(ctx, key)
	require.NoError(t, err)
	return ps, def
}

const key = "epsg4326:layer:Test_Layer"

func TestCalculateDetect(t *testing.T) {
	l, svc := setup(t)
	seed(t, l, key, "2024-01-01T00:00:00", "2024-01-03T00:00:00", "2024-01-07T00:00:00")

	res, err := svc.CalculateLayerPeriods(context.Background(), key, timeindex.Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01/2024-01-03/P2D", "2024-01-07/2024-01-07/P2D"}, res.Periods)

	ps, def := periodsOf(t, l, key)
	assert.Equal(t, res.Periods, ps)
	assert.Equal(t, "2024-01-07", def)
}

func TestCalculateIsIdempotent(t *testing.T) {
	l, svc := setup(t)
	ctx := context.Background()
	seed(t, l, key, "2024-01-01T00:00:00", "2024-01-02T00:00:00", "2024-02-01T00:00:00")
	require.NoError(t, l.SetConfigs(ctx, key, []string{"DETECT", "LATEST-1M"}))

	_, err := svc.CalculateLayerPeriods(ctx, key, timeindex.Request{})
	require.NoError(t, err)
	ps1, def1 := periodsOf(t, l, key)

	_, err = svc.CalculateLayerPeriods(ctx, key, timeindex.Request{})
	require.NoError(t, err)
	ps2, def2 := periodsOf(t, l, key)

	assert.Equal(t, ps1, ps2)
	assert.Equal(t, def1, def2)
}

func TestCalculateMultipleConfigs(t *testing.T) {
	l, svc := setup(t)
	ctx := context.Background()
	seed(t, l, key,
		"2024-03-10T12:00:00", "2024-03-10T13:00:00", "2024-03-10T14:00:00",
		"2024-03-10T15:00:00", "2024-03-10T19:00:00")
	require.NoError(t, l.SetConfigs(ctx, key, []string{
		"DETECT/2024-03-10T14:00:00",
		"2025-01-01T09:00:00/2025-01-01T10:00:00/PT1H",
	}))

	_, err := svc.CalculateLayerPeriods(ctx, key, timeindex.Request{})
	require.NoError(t, err)
	ps, def := periodsOf(t, l, key)
	assert.Equal(t, []string{
		"2024-03-10T12:00:00Z/2024-03-10T14:00:00Z/PT1H",
		"2025-01-01T09:00:00Z/2025-01-01T10:00:00Z/PT1H",
	}, ps)
	assert.Equal(t, "2025-01-01T10:00:00Z", def)
}

func TestCalculateNewDateAddsAndRecomputes(t *testing.T) {
	l, svc := setup(t)
	ctx := context.Background()
	seed(t, l, key, "2024-01-01T00:00:00", "2024-01-02T00:00:00")

	res, err := svc.CalculateLayerPeriods(ctx, key, timeindex.Request{NewDate: "2024-01-03", Expiration: true})
	require.NoError(t, err)
	assert.False(t, res.Unchanged)
	assert.Equal(t, []string{"2024-01-01/2024-01-03/P1D"}, res.Periods)

	exp, err := l.Backend().ZRange(ctx, key+store.SuffixExpiration)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-03T00:00:00"}, exp)

	// Same date again: nothing is rewritten.
	require.NoError(t, l.ReplacePeriods(ctx, key, []string{"sentinel"}, "sentinel"))
	res, err = svc.CalculateLayerPeriods(ctx, key, timeindex.Request{NewDate: "2024-01-03T00:00:00Z"})
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	ps, _ := periodsOf(t, l, key)
	assert.Equal(t, []string{"sentinel"}, ps)
}

func TestCalculateRejectsBadNewDate(t *testing.T) {
	_, svc := setup(t)
	_, err := svc.CalculateLayerPeriods(context.Background(), key, timeindex.Request{NewDate: "yesterday"})
	assert.ErrorIs(t, err, model.ErrParse)
}

func TestCalculateKeepExistingPeriods(t *testing.T) {
	l, svc := setup(t)
	ctx := context.Background()
	seed(t, l, key,
		"2025-03-10T12:00:00", "2025-03-10T13:00:00", "2025-03-10T14:00:00",
		"2025-03-10T18:00:00", "2025-03-10T19:00:00")

	_, err := svc.CalculateLayerPeriods(ctx, key, timeindex.Request{NewDate: "2025-03-10T20:00:00"})
	require.NoError(t, err)
	ps, def := periodsOf(t, l, key)
	assert.Equal(t, []string{
		"2025-03-10T12:00:00Z/2025-03-10T14:00:00Z/PT1H",
		"2025-03-10T18:00:00Z/2025-03-10T20:00:00Z/PT1H",
	}, ps)
	assert.Equal(t, "2025-03-10T20:00:00Z", def)

	require.NoError(t, l.Backend().Del(ctx, key+store.SuffixDates))
	_, err = svc.CalculateLayerPeriods(ctx, key, timeindex.Request{
		NewDate:             "2025-03-10T23:00:00",
		KeepExistingPeriods: true,
	})
	require.NoError(t, err)
	ps, def = periodsOf(t, l, key)
	assert.Equal(t, []string{
		"2025-03-10T12:00:00Z/2025-03-10T14:00:00Z/PT1H",
		"2025-03-10T18:00:00Z/2025-03-10T20:00:00Z/PT1H",
		"2025-03-10T23:00:00Z/2025-03-10T23:00:00Z/P1D",
	}, ps)
	assert.Equal(t, "2025-03-10T23:00:00Z", def)
}

func TestCalculateKeepExistingOnLegacySet(t *testing.T) {
	l, svc := setup(t)
	ctx := context.Background()
	require.NoError(t, l.Backend().SAdd(ctx, key+store.SuffixPeriods, "2017-01-01/2018-01-01/P1D"))
	require.NoError(t, l.SetConfigs(ctx, key, []string{"DETECT/P1D"}))

	_, err := svc.CalculateLayerPeriods(ctx, key, timeindex.Request{NewDate: "2018-01-05", KeepExistingPeriods: true})
	require.NoError(t, err)

	ps, typ, err := l.Periods(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, store.TypeSet, typ)
	assert.Equal(t, []string{"2017-01-01/2018-01-01/P1D", "2018-01-05/2018-01-05/P1D"}, ps)
}

func TestCalculateWindow(t *testing.T) {
	l, svc := setup(t)
	seed(t, l, key, "2024-01-01T00:00:00", "2024-01-02T00:00:00", "2024-01-03T00:00:00")
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	res, err := svc.CalculateLayerPeriods(context.Background(), key, timeindex.Request{Start: &start})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02/2024-01-03/P1D"}, res.Periods)
}

func TestCalculateCopyDatesAndMirror(t *testing.T) {
	l, svc := setup(t)
	ctx := context.Background()
	require.NoError(t, l.SetCopyDates(ctx, key, "Copy_Destination_1"))
	require.NoError(t, l.SetConfigs(ctx, key, []string{"DETECT/2020-12-01/P1M"}))

	for _, d := range []string{"2018-12-01", "2019-01-01", "2019-02-01"} {
		_, err := svc.CalculateLayerPeriods(ctx, key, timeindex.Request{NewDate: d, Mirror: true})
		require.NoError(t, err)
	}

	for _, k := range []string{key, "epsg4326:layer:Copy_Destination_1", "epsg3857:layer:Test_Layer"} {
		ps, def := periodsOf(t, l, k)
		assert.Equal(t, []string{"2018-12-01/2020-12-01/P1M"}, ps, k)
		assert.Equal(t, "2020-12-01", def, k)

		dates, err := l.Dates(ctx, k)
		require.NoError(t, err)
		assert.Len(t, dates, 3, k)
	}
}

func TestCalculateRejectsMalformedConfig(t *testing.T) {
	l, svc := setup(t)
	ctx := context.Background()
	seed(t, l, key, "2024-01-01T00:00:00")
	require.NoError(t, l.SetConfigs(ctx, key, []string{"2024-01-01/2024-01-10/P1DT2H"}))

	_, err := svc.CalculateLayerPeriods(ctx, key, timeindex.Request{})
	assert.ErrorIs(t, err, model.ErrParse)
}
