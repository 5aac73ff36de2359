package layerconfig_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-gibs/oetime/internal/best"
	"github.com/nasa-gibs/oetime/internal/layerconfig"
	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/store"
	"github.com/nasa-gibs/oetime/internal/timeindex"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newLoader(t *testing.T) (*store.Layers, *layerconfig.Loader) {
	t.Helper()
	b, err := store.OpenBolt(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	layers := store.NewLayers(b)
	resolver := best.New(layers, best.Ascending, nil)
	return layers, layerconfig.NewLoader(layers, timeindex.New(layers, nil), resolver, nil, nil)
}

// ─── Parsing ──────────────────────────────────────────────────────────────────

func TestLoadEndpoint(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, filepath.Join(dir, "ok.yaml"), "layer_config_source: /etc/onearth/config/layers/epsg4326/std/\ntime_service_uri: http://localhost/time_service/time\n")
	ep, err := layerconfig.LoadEndpoint(ok)
	require.NoError(t, err)
	assert.Equal(t, "/etc/onearth/config/layers/epsg4326/std/", ep.LayerConfigSource)

	missing := writeFile(t, filepath.Join(dir, "missing.yaml"), "time_service_uri: http://localhost/\n")
	_, err = layerconfig.LoadEndpoint(missing)
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestReadLayerConfigShapes(t *testing.T) {
	dir := t.TempDir()
	single := writeFile(t, filepath.Join(dir, "single.yaml"), `
layer_id: MODIS_Terra_Aerosol
projection: EPSG:4326
time_config: DETECT/P1D
best_layer: MODIS_Combined_Aerosol
`)
	c, err := layerconfig.ReadLayerConfig(single)
	require.NoError(t, err)
	assert.Equal(t, layerconfig.StringList{"DETECT/P1D"}, c.TimeConfig)
	assert.Equal(t, "epsg4326", c.Prefix())
	assert.False(t, c.IsComposite())

	list := writeFile(t, filepath.Join(dir, "list.yaml"), `
layer_id: MODIS_Combined_Aerosol
projection: EPSG:4326
time_config:
  - DETECT
  - 2030-01-01/2030-01-10/P1D
best_config:
  MODIS_Terra_Aerosol: 2
  MODIS_Aqua_Aerosol: 1
`)
	c, err = layerconfig.ReadLayerConfig(list)
	require.NoError(t, err)
	assert.Equal(t, layerconfig.StringList{"DETECT", "2030-01-01/2030-01-10/P1D"}, c.TimeConfig)
	assert.Equal(t, layerconfig.Priorities{
		{Layer: "MODIS_Terra_Aerosol", Priority: 2, Ordinal: 0},
		{Layer: "MODIS_Aqua_Aerosol", Priority: 1, Ordinal: 1},
	}, c.BestConfig)
	assert.True(t, c.IsComposite())

	bad := writeFile(t, filepath.Join(dir, "bad.yaml"), "layer_id: L\nprojection: EPSG:4326\nbest_config: [a, b]\n")
	_, err = layerconfig.ReadLayerConfig(bad)
	assert.ErrorIs(t, err, model.ErrConfig)

	noProj := writeFile(t, filepath.Join(dir, "noproj.yaml"), "layer_id: L\n")
	_, err = layerconfig.ReadLayerConfig(noProj)
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestReadLayerConfigsDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.yaml"), "layer_id: B\nprojection: EPSG:4326\n")
	writeFile(t, filepath.Join(dir, "a.yaml"), "layer_id: A\nprojection: EPSG:4326\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "nested", "c.yaml"), "layer_id: C\nprojection: EPSG:4326\n")

	cs, err := layerconfig.ReadLayerConfigs(dir)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "A", cs[0].LayerID)
	assert.Equal(t, "B", cs[1].LayerID)

	_, err = layerconfig.ReadLayerConfigs(filepath.Join(dir, "absent"))
	assert.ErrorIs(t, err, model.ErrConfig)
}

func TestDetectTag(t *testing.T) {
	cases := map[string]string{
		"/etc/onearth/layers/epsg4326/best/MODIS.yaml": "best",
		"/etc/onearth/layers/epsg4326/nrt/MODIS.yaml":  "nrt",
		"layers/std/MODIS.yaml":                        "std",
		"/etc/onearth/all/best/MODIS.yaml":             "all",
		"/etc/onearth/layers/MODIS_best.yaml":          "",
		"/etc/install/MODIS.yaml":                      "",
	}
	for path, want := range cases {
		assert.Equal(t, want, layerconfig.DetectTag(path), path)
	}

	c := layerconfig.LayerConfig{LayerID: "L", Projection: "EPSG:4326", Path: "/cfg/std/L.yaml"}
	assert.Equal(t, "epsg4326:std:layer:L", c.Key(""))
	assert.Equal(t, "epsg4326:nrt:layer:L", c.Key("nrt"))
}

// ─── Apply ────────────────────────────────────────────────────────────────────

func TestApplyIndexesLeavesThenComposites(t *testing.T) {
	layers, loader := newLoader(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "std")

	// The composite sorts first by file name; Apply still rebuilds it last.
	writeFile(t, filepath.Join(dir, "a_best.yaml"), `
layer_id: Layer_Best
projection: EPSG:4326
best_config:
  Layer_A: 0
  Layer_B: 1
`)
	writeFile(t, filepath.Join(dir, "b_layer_a.yaml"), `
layer_id: Layer_A
projection: EPSG:4326
time_config: DETECT
`)
	writeFile(t, filepath.Join(dir, "c_layer_b.yaml"), `
layer_id: Layer_B
projection: EPSG:4326
time_config: [DETECT]
`)
	const (
		keyA    = "epsg4326:std:layer:Layer_A"
		keyB    = "epsg4326:std:layer:Layer_B"
		bestKey = "epsg4326:std:layer:Layer_Best"
	)
	_, err := layers.AddDates(ctx, keyA, "2024-01-01T00:00:00", "2024-01-02T00:00:00")
	require.NoError(t, err)
	_, err = layers.AddDates(ctx, keyB, "2024-01-02T00:00:00", "2024-01-03T00:00:00")
	require.NoError(t, err)

	cs, err := layerconfig.ReadLayerConfigs(dir)
	require.NoError(t, err)
	report, err := loader.Apply(ctx, cs, layerconfig.Options{})
	require.NoError(t, err)
	assert.Empty(t, report.Failures())
	require.Len(t, report.Layers, 3)
	assert.Equal(t, bestKey, report.Layers[2].Key)

	for _, k := range []string{keyA, keyB} {
		linked, ok, err := layers.BestLayer(ctx, k)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, bestKey, linked)

		cfgs, err := layers.Configs(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, []string{"DETECT"}, cfgs)
	}

	bm, err := layers.BestMap(ctx, bestKey)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"2024-01-01T00:00:00Z": "Layer_A",
		"2024-01-02T00:00:00Z": "Layer_A",
		"2024-01-03T00:00:00Z": "Layer_B",
	}, bm)
	assert.Equal(t, []string{"2024-01-01/2024-01-03/P1D"}, report.Layers[2].Periods)
	assert.Equal(t, "2024-01-03", report.Layers[2].Default)
}

func TestApplyStaticLayers(t *testing.T) {
	layers, loader := newLoader(t)
	ctx := context.Background()
	cs := []layerconfig.LayerConfig{
		{LayerID: "Coastlines", Projection: "EPSG:4326", Static: true, BestLayer: "Coastlines_Best"},
		{LayerID: "Coastlines_Best", Projection: "EPSG:4326", Static: true,
			BestConfig: layerconfig.Priorities{{Layer: "Coastlines"}}},
	}

	report, err := loader.Apply(ctx, cs, layerconfig.Options{})
	require.NoError(t, err)
	assert.Empty(t, report.Failures())

	for _, k := range []string{"epsg4326:layer:Coastlines", "epsg4326:layer:Coastlines_Best"} {
		ps, _, err := layers.Periods(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, []string{best.StaticPeriod}, ps, k)
		def, _, err := layers.Default(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, "2899-12-31", def, k)
	}

	bm, err := layers.BestMap(ctx, "epsg4326:layer:Coastlines_Best")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		best.StaticStart + "Z": "Coastlines",
		best.StaticEnd + "Z":   "Coastlines",
	}, bm)
}

func TestApplyReprojectAndTag(t *testing.T) {
	layers, loader := newLoader(t)
	ctx := context.Background()
	cs := []layerconfig.LayerConfig{
		{LayerID: "L", Projection: "EPSG:4326", TimeConfig: layerconfig.StringList{"2020-01-01/2020-01-05/P1D"}},
	}

	report, err := loader.Apply(ctx, cs, layerconfig.Options{Tag: "nrt", Reproject: true})
	require.NoError(t, err)
	require.Len(t, report.Layers, 2)

	for _, k := range []string{"epsg4326:nrt:layer:L", "epsg3857:nrt:layer:L"} {
		ps, _, err := layers.Periods(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, []string{"2020-01-01/2020-01-05/P1D"}, ps, k)
	}
}

func TestApplyRejectsInvalidConfigBeforeWriting(t *testing.T) {
	layers, loader := newLoader(t)
	ctx := context.Background()
	cs := []layerconfig.LayerConfig{
		{LayerID: "Good", Projection: "EPSG:4326", TimeConfig: layerconfig.StringList{"DETECT"}},
		{LayerID: "", Projection: "EPSG:4326"},
	}
	_, err := loader.Apply(ctx, cs, layerconfig.Options{})
	assert.ErrorIs(t, err, model.ErrConfig)

	keys, err := layers.ScanLayers(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestApplyRebuildsCompositeDeclaredElsewhere(t *testing.T) {
	layers, loader := newLoader(t)
	ctx := context.Background()
	const bestKey = "epsg4326:layer:Best"
	require.NoError(t, layers.SetBestConfig(ctx, bestKey, []model.Candidate{{Layer: "Leaf"}}))
	_, err := layers.AddDates(ctx, "epsg4326:layer:Leaf", "2024-05-01T00:00:00")
	require.NoError(t, err)

	report, err := loader.Apply(ctx, []layerconfig.LayerConfig{
		{LayerID: "Leaf", Projection: "EPSG:4326", BestLayer: "Best"},
	}, layerconfig.Options{})
	require.NoError(t, err)
	require.Len(t, report.Layers, 2)
	assert.Equal(t, bestKey, report.Layers[1].Key)

	bm, err := layers.BestMap(ctx, bestKey)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"2024-05-01T00:00:00Z": "Leaf"}, bm)
}
