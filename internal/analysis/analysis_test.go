package analysis

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terralens/forestmap/internal/config"
	"github.com/terralens/forestmap/internal/landcover"
	"github.com/terralens/forestmap/internal/provider"
	"github.com/terralens/forestmap/internal/resilience"
)

type fakeProvider struct {
	scene     *provider.Scene
	sceneErr  error
	maskRef   string
	rasterRef string
	hist      provider.Histogram
	renderURL string
	renderErr error

	gotStart, gotEnd string
}

func (f *fakeProvider) SearchScenes(_ context.Context, _ provider.Geometry, startDate, endDate string) (*provider.Scene, error) {
	f.gotStart, f.gotEnd = startDate, endDate
	return f.scene, f.sceneErr
}

func (f *fakeProvider) ProtectedMask(context.Context, provider.Geometry, string) (string, error) {
	return f.maskRef, nil
}

func (f *fakeProvider) CreateClassification(context.Context, provider.Geometry, string, string, string) (string, error) {
	return f.rasterRef, nil
}

func (f *fakeProvider) RenderURL(context.Context, string, provider.Geometry, int, map[int][3]uint8) (string, error) {
	return f.renderURL, f.renderErr
}

func (f *fakeProvider) Histogram(context.Context, string, provider.Geometry, int) (provider.Histogram, error) {
	return f.hist, nil
}

type fakeObjects struct {
	descriptors map[string][]byte
	pngs        map[string]image.Image
	jsons       map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{
		descriptors: make(map[string][]byte),
		pngs:        make(map[string]image.Image),
		jsons:       make(map[string][]byte),
	}
}

func (f *fakeObjects) DownloadDescriptor(_ context.Context, key string) ([]byte, error) {
	data, ok := f.descriptors[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return data, nil
}

func (f *fakeObjects) UploadPNG(_ context.Context, name string, img image.Image) (string, error) {
	key := "results/" + name
	f.pngs[key] = img
	return key, nil
}

func (f *fakeObjects) UploadJSON(_ context.Context, name string, data []byte) (string, error) {
	key := "results/" + name
	f.jsons[key] = data
	return key, nil
}

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		StartDate:          "2024-01-01",
		EndDate:            "2024-03-01",
		CloudThreshold:     35,
		MaxTileExtentKm:    30,
		TileScale:          20,
		StatsScale:         10,
		MaxConcurrentTiles: 2,
		FetchAttempts:      1,
		FetchTimeoutSecs:   2,
		FetchBackoffSecs:   1,
	}
}

const testDescriptor = `{
	"area": 100,
	"city_geometry": "POLYGON ((0 0, 0.01 0, 0.01 0.01, 0 0.01, 0 0))",
	"bbox_west": 0,
	"bbox_south": 0,
	"bbox_east": 0.01,
	"bbox_north": 0.01
}`

func tileServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	c := landcover.NaturalForest.Color()
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "image/png")
		require.NoError(t, png.Encode(rw, img))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunEndToEnd(t *testing.T) {
	srv := tileServer(t)
	client := &fakeProvider{
		scene:     &provider.Scene{Count: 4, CloudCover: 12.5, AcquisitionDate: "2024-02-14"},
		maskRef:   "mask-1",
		rasterRef: "raster-1",
		renderURL: srv.URL,
		hist:      provider.Histogram{int(landcover.NaturalForest): 1},
	}
	objects := newFakeObjects()
	objects.descriptors["uploads/test.json"] = []byte(testDescriptor)

	p := New(client, provider.NewGeometryCache(8), objects, testAnalysisConfig())
	outcome, err := p.Run(context.Background(), "uploads/test.json")
	require.NoError(t, err)

	assert.Equal(t, "2024-02-14", outcome.ImageDate)
	assert.Equal(t, "results/2024-02-14-+0.01+0.01-natural_forest_classification.png", outcome.MapKey)
	assert.Equal(t, "results/2024-02-14-+0.01+0.01-natural_forest_stats.json", outcome.StatsKey)

	require.NotNil(t, outcome.Report)
	assert.Equal(t, 100.0, outcome.Report.NaturalForestKm2)
	assert.Equal(t, 100.0, outcome.Report.ForestAreaKm2)
	assert.Equal(t, 100.0, outcome.Report.NaturalForestPercentage)
	assert.Zero(t, outcome.Report.OtherTreesKm2)

	img, ok := objects.pngs[outcome.MapKey]
	require.True(t, ok)
	// Legend panel and title band extend beyond the map canvas.
	assert.Greater(t, img.Bounds().Dx(), 200)
	assert.Greater(t, img.Bounds().Dy(), 60)

	assert.Contains(t, string(objects.jsons[outcome.StatsKey]), `"natural_forest"`)
}

func TestRunWindowOverridesDates(t *testing.T) {
	srv := tileServer(t)
	client := &fakeProvider{
		scene:     &provider.Scene{Count: 2, CloudCover: 5, AcquisitionDate: "2023-07-01"},
		maskRef:   "mask-1",
		rasterRef: "raster-1",
		renderURL: srv.URL,
		hist:      provider.Histogram{int(landcover.Water): 1},
	}
	objects := newFakeObjects()
	objects.descriptors["uploads/test.json"] = []byte(testDescriptor)

	p := New(client, provider.NewGeometryCache(8), objects, testAnalysisConfig())
	_, err := p.RunWindow(context.Background(), "uploads/test.json", "2023-06-01", "2023-08-01")
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01", client.gotStart)
	assert.Equal(t, "2023-08-01", client.gotEnd)
}

func TestRunUsesConfiguredWindowByDefault(t *testing.T) {
	client := &fakeProvider{scene: &provider.Scene{Count: 0}}
	objects := newFakeObjects()
	objects.descriptors["uploads/test.json"] = []byte(testDescriptor)

	p := New(client, provider.NewGeometryCache(8), objects, testAnalysisConfig())
	_, err := p.Run(context.Background(), "uploads/test.json")
	require.ErrorIs(t, err, ErrNoImagery)
	assert.Equal(t, "2024-01-01", client.gotStart)
	assert.Equal(t, "2024-03-01", client.gotEnd)
}

func TestRunNoImagery(t *testing.T) {
	client := &fakeProvider{scene: &provider.Scene{Count: 0}}
	objects := newFakeObjects()
	objects.descriptors["uploads/test.json"] = []byte(testDescriptor)

	p := New(client, provider.NewGeometryCache(8), objects, testAnalysisConfig())
	_, err := p.Run(context.Background(), "uploads/test.json")
	require.ErrorIs(t, err, ErrNoImagery)
}

func TestRunTooCloudy(t *testing.T) {
	client := &fakeProvider{scene: &provider.Scene{Count: 3, CloudCover: 62.0, AcquisitionDate: "2024-02-14"}}
	objects := newFakeObjects()
	objects.descriptors["uploads/test.json"] = []byte(testDescriptor)

	p := New(client, provider.NewGeometryCache(8), objects, testAnalysisConfig())
	_, err := p.Run(context.Background(), "uploads/test.json")
	require.ErrorIs(t, err, ErrTooCloudy)
}

func TestRunMalformedDescriptor(t *testing.T) {
	objects := newFakeObjects()
	objects.descriptors["uploads/bad.json"] = []byte(`{"area": 100, "city_geometry": "POINT (1 2)"}`)

	p := New(&fakeProvider{}, provider.NewGeometryCache(8), objects, testAnalysisConfig())
	_, err := p.Run(context.Background(), "uploads/bad.json")
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestRunAllTilesFail(t *testing.T) {
	client := &fakeProvider{
		scene:     &provider.Scene{Count: 4, CloudCover: 10, AcquisitionDate: "2024-02-14"},
		maskRef:   "mask-1",
		rasterRef: "raster-1",
		renderErr: fmt.Errorf("render backend down"),
		hist:      provider.Histogram{int(landcover.Water): 1},
	}
	objects := newFakeObjects()
	objects.descriptors["uploads/test.json"] = []byte(testDescriptor)

	p := New(client, provider.NewGeometryCache(8), objects, testAnalysisConfig())
	_, err := p.Run(context.Background(), "uploads/test.json")
	require.ErrorIs(t, err, ErrNoTilesMerged)
}

func TestRunProviderUnavailable(t *testing.T) {
	client := &fakeProvider{
		sceneErr: resilience.NewTransientError(fmt.Errorf("status 503"), http.StatusServiceUnavailable),
	}
	objects := newFakeObjects()
	objects.descriptors["uploads/test.json"] = []byte(testDescriptor)

	p := New(client, provider.NewGeometryCache(8), objects, testAnalysisConfig())
	_, err := p.Run(context.Background(), "uploads/test.json")
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestMaskMonth(t *testing.T) {
	assert.Equal(t, "202402", maskMonth("2024-02-14"))
	assert.Equal(t, "202402", maskMonth("2024-02"))
	assert.Equal(t, "current", maskMonth(""))
	assert.Equal(t, "current", maskMonth("2024"))
}
