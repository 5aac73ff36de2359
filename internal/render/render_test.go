package render_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/render"
)

func result(kind string, data interface{}) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Command:     "test",
		Data:        data,
	}
}

func report() *model.Report {
	return &model.Report{
		Source:  "dir",
		Listed:  5,
		Skipped: 1,
		Layers: []model.LayerReport{
			{Key: "epsg4326:layer:A", Dates: 3, Default: "2024-01-03", Periods: []string{"2024-01-01/2024-01-03/P1D"}},
			{Key: "epsg4326:layer:B", Error: "connection refused"},
		},
	}
}

func renderString(t *testing.T, r *model.Result, format string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, render.Render(&buf, r, format))
	return buf.String()
}

func TestReportTableListsFailures(t *testing.T) {
	out := renderString(t, result(model.KindReport, report()), render.FormatTable)

	assert.Contains(t, out, "dir: 5 keys listed, 1 skipped, 2 layers, 1 failed")
	assert.Contains(t, out, "2024-01-01/2024-01-03/P1D")
	assert.Contains(t, out, "Failed layers:")
	assert.Contains(t, out, "connection refused")
}

func TestReportBypassed(t *testing.T) {
	out := renderString(t, result(model.KindReport, &model.Report{Source: "s3", Bypassed: true}), render.FormatTable)
	assert.Contains(t, out, "already created")
	assert.NotContains(t, out, "LAYER")
}

func TestReportJSONL(t *testing.T) {
	out := renderString(t, result(model.KindReport, report()), render.FormatJSONL)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var l model.LayerReport
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &l))
	assert.Equal(t, "epsg4326:layer:B", l.Key)
	assert.True(t, l.Failed())
}

func TestJSONEnvelope(t *testing.T) {
	out := renderString(t, result(model.KindPeriods, &model.LayerPeriods{Periods: []string{"a"}}), render.FormatJSON)

	var env struct {
		Kind string             `json:"kind"`
		Data model.LayerPeriods `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, model.KindPeriods, env.Kind)
	assert.Equal(t, []string{"a"}, env.Data.Periods)
}

func TestPeriodsTable(t *testing.T) {
	p := &model.LayerPeriods{
		Key:     "epsg4326:layer:A",
		Dates:   4,
		Periods: []string{"2024-01-01/2024-01-02/P1D", "2024-01-05/2024-01-06/P1D"},
		Default: "2024-01-06",
	}
	out := renderString(t, result(model.KindPeriods, p), render.FormatTable)
	assert.Contains(t, out, "epsg4326:layer:A (4 dates)")
	assert.Contains(t, out, "2024-01-05/2024-01-06/P1D")
	assert.True(t, strings.HasSuffix(out, "Default: 2024-01-06\n"), out)

	p.Unchanged = true
	out = renderString(t, result(model.KindPeriods, p), render.FormatTable)
	assert.Contains(t, out, "no changes made")
	assert.NotContains(t, out, "Default:")
}

func TestBestMapCSVSorted(t *testing.T) {
	b := &model.BestMap{Key: "k", Dates: map[string]string{
		"2024-01-02T00:00:00Z": "Layer_NRT",
		"2024-01-01T00:00:00Z": "Layer_STD",
	}}
	out := renderString(t, result(model.KindBestMap, b), render.FormatCSV)
	assert.Equal(t, "date,candidate\n2024-01-01T00:00:00Z,Layer_STD\n2024-01-02T00:00:00Z,Layer_NRT\n", out)
}

func TestLayerListTSV(t *testing.T) {
	list := []model.LayerStatus{{Key: "epsg4326:layer:A", DateCount: 2, Default: "2024-01-02", Periods: []string{"p1", "p2"}}}
	out := renderString(t, result(model.KindLayerList, list), render.FormatTSV)
	assert.Equal(t, "layer\tdates\tdefault\tperiods\nepsg4326:layer:A\t2\t2024-01-02\tp1 p2\n", out)
}

func TestLayerStatusMarkdown(t *testing.T) {
	s := &model.LayerStatus{
		Key:        "epsg4326:layer:Best",
		DateCount:  1,
		BestConfig: []model.Candidate{{Layer: "A|B", Priority: 1}},
	}
	out := renderString(t, result(model.KindLayerStatus, s), render.FormatMD)
	assert.Contains(t, out, "| FIELD | VALUE |")
	assert.Contains(t, out, `A\|B (1)`)
}

func TestConversionTable(t *testing.T) {
	c := &model.Conversion{Pattern: "*", To: "zset", Converted: []string{"epsg4326:layer:A:periods"}, Unchanged: 2}
	out := renderString(t, result(model.KindConversion, c), render.FormatTable)
	assert.Contains(t, out, "epsg4326:layer:A:periods")
	assert.Contains(t, out, "1 converted, 2 already zset")
}

func TestUnknownKindFallsBackToJSON(t *testing.T) {
	out := renderString(t, result("other", map[string]int{"n": 1}), render.FormatTable)
	assert.Contains(t, out, `"kind": "other"`)
}

func TestWrongDataTypeIsAnError(t *testing.T) {
	var buf bytes.Buffer
	err := render.Render(&buf, result(model.KindReport, "nope"), render.FormatTable)
	assert.Error(t, err)
}

func TestPrintFooter(t *testing.T) {
	r := result(model.KindReport, report())
	r.Warnings = []string{"1 layer failed"}
	r.Stats = model.ResultStats{DurationMs: 12, Items: 2}

	var buf bytes.Buffer
	render.PrintFooter(&buf, r, false)
	assert.Equal(t, "⚠  1 layer failed\n", buf.String())

	buf.Reset()
	render.PrintFooter(&buf, r, true)
	assert.Contains(t, buf.String(), "2 items • 12ms")
	assert.Contains(t, buf.String(), "2024-01-02T03:04:05Z")
}
