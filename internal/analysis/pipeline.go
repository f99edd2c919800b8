// Package analysis orchestrates a full natural-forest classification run:
// boundary descriptor in, map image and area statistics out.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/forestmap/internal/boundary"
	"github.com/terralens/forestmap/internal/config"
	"github.com/terralens/forestmap/internal/mosaic"
	"github.com/terralens/forestmap/internal/provider"
	"github.com/terralens/forestmap/internal/resilience"
	"github.com/terralens/forestmap/internal/stats"
	"github.com/terralens/forestmap/internal/tiling"
)

// ObjectStore is the subset of the storage client the pipeline needs.
type ObjectStore interface {
	DownloadDescriptor(ctx context.Context, key string) ([]byte, error)
	UploadPNG(ctx context.Context, name string, img image.Image) (string, error)
	UploadJSON(ctx context.Context, name string, data []byte) (string, error)
}

// Outcome is what a successful run produces.
type Outcome struct {
	ImageDate string        `json:"image_date"`
	MapKey    string        `json:"map_key"`
	StatsKey  string        `json:"stats_key"`
	Report    *stats.Report `json:"report"`
}

// Pipeline wires the provider client, object store, and imaging stages
// into one run.
type Pipeline struct {
	client  provider.Client
	geoms   *provider.GeometryCache
	objects ObjectStore
	cfg     config.AnalysisConfig
}

// New builds a pipeline from configured components.
func New(client provider.Client, geoms *provider.GeometryCache, objects ObjectStore, cfg config.AnalysisConfig) *Pipeline {
	return &Pipeline{
		client:  client,
		geoms:   geoms,
		objects: objects,
		cfg:     cfg,
	}
}

// Run executes the full classification for the boundary descriptor at
// descriptorKey over the configured imagery window.
func (p *Pipeline) Run(ctx context.Context, descriptorKey string) (*Outcome, error) {
	return p.RunWindow(ctx, descriptorKey, "", "")
}

// RunWindow is Run with a caller-supplied imagery window; empty dates
// fall back to the configured ones.
func (p *Pipeline) RunWindow(ctx context.Context, descriptorKey, startDate, endDate string) (*Outcome, error) {
	if startDate == "" {
		startDate = p.cfg.StartDate
	}
	if endDate == "" {
		endDate = p.cfg.EndDate
	}

	log := zap.L().With(zap.String("descriptor_key", descriptorKey))
	started := time.Now()

	data, err := p.objects.DownloadDescriptor(ctx, descriptorKey)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: download descriptor %s", descriptorKey)
	}

	b, err := boundary.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	wktText, err := b.WKT()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	region, err := p.geoms.Convert(wktText)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	log.Info("starting analysis",
		zap.Float64("area_km2", b.AreaKm2),
		zap.String("start_date", startDate),
		zap.String("end_date", endDate))

	scene, err := p.searchScenes(ctx, region, startDate, endDate)
	if err != nil {
		return nil, err
	}

	rasterRef, err := p.classify(ctx, region, scene, startDate, endDate)
	if err != nil {
		return nil, err
	}

	hist, err := p.client.Histogram(ctx, rasterRef, region, p.cfg.StatsScale)
	if err != nil {
		return nil, providerErr(err, "histogram")
	}
	report := stats.Compute(scene.AcquisitionDate, hist, b.AreaKm2)
	log.Info("computed statistics",
		zap.Float64("forest_km2", report.ForestAreaKm2),
		zap.Float64("natural_forest_km2", report.NaturalForestKm2))

	final, err := p.buildMap(ctx, b, rasterRef, scene.AcquisitionDate)
	if err != nil {
		return nil, err
	}

	outcome, err := p.uploadArtifacts(ctx, b, scene.AcquisitionDate, final, report)
	if err != nil {
		return nil, err
	}

	log.Info("analysis complete",
		zap.String("image_date", outcome.ImageDate),
		zap.String("map_key", outcome.MapKey),
		zap.Duration("elapsed", time.Since(started)))
	return outcome, nil
}

// searchScenes gates the run on imagery availability and cloud cover.
func (p *Pipeline) searchScenes(ctx context.Context, region provider.Geometry, startDate, endDate string) (*provider.Scene, error) {
	scene, err := p.client.SearchScenes(ctx, region, startDate, endDate)
	if err != nil {
		return nil, providerErr(err, "scene search")
	}
	if scene.Count == 0 {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoImagery, startDate, endDate)
	}
	if scene.CloudCover > p.cfg.CloudThreshold {
		return nil, fmt.Errorf("%w: %.1f%% exceeds threshold %.1f%%",
			ErrTooCloudy, scene.CloudCover, p.cfg.CloudThreshold)
	}
	return scene, nil
}

// classify resolves the protected-area mask for the scene's month and
// requests the enhanced classification raster.
func (p *Pipeline) classify(ctx context.Context, region provider.Geometry, scene *provider.Scene, startDate, endDate string) (string, error) {
	maskRef, err := p.client.ProtectedMask(ctx, region, maskMonth(scene.AcquisitionDate))
	if err != nil {
		return "", providerErr(err, "protected mask")
	}

	rasterRef, err := p.client.CreateClassification(ctx, region, startDate, endDate, maskRef)
	if err != nil {
		return "", providerErr(err, "classification")
	}
	return rasterRef, nil
}

// buildMap fetches tiles, composites the mosaic, clips it to the
// boundary, and attaches the legend.
func (p *Pipeline) buildMap(ctx context.Context, b *boundary.Boundary, rasterRef, imageDate string) (image.Image, error) {
	tiles := tiling.Plan(b, p.cfg.MaxTileExtentKm)

	fetcher := mosaic.NewFetcher(p.client, mosaic.FetchConfig{
		Scale:    p.cfg.TileScale,
		Attempts: p.cfg.FetchAttempts,
		Backoff:  time.Duration(p.cfg.FetchBackoffSecs) * time.Second,
		Timeout:  time.Duration(p.cfg.FetchTimeoutSecs) * time.Second,
	})
	coord := mosaic.NewCoordinator(fetcher, p.cfg.MaxConcurrentTiles)
	results := coord.FetchAll(ctx, rasterRef, imageDate, tiles)

	canvas, err := mosaic.Compose(b.BBox, results)
	if err != nil {
		if errors.Is(err, mosaic.ErrNoTiles) {
			return nil, fmt.Errorf("%w: all %d tile fetches failed", ErrNoTilesMerged, len(tiles))
		}
		return nil, eris.Wrap(err, "analysis: compose mosaic")
	}

	masked := mosaic.ApplyBoundaryMask(canvas, b)
	return mosaic.AttachLegend(masked, imageDate), nil
}

// uploadArtifacts writes the map PNG and statistics JSON to object
// storage under date- and location-derived names.
func (p *Pipeline) uploadArtifacts(ctx context.Context, b *boundary.Boundary, imageDate string, img image.Image, report *stats.Report) (*Outcome, error) {
	prefix := fmt.Sprintf("%s-%s", imageDate, b.BBox.CenterTag())

	mapKey, err := p.objects.UploadPNG(ctx, prefix+"-natural_forest_classification.png", img)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: upload map")
	}

	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "analysis: marshal report")
	}
	statsKey, err := p.objects.UploadJSON(ctx, prefix+"-natural_forest_stats.json", reportJSON)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: upload stats")
	}

	return &Outcome{
		ImageDate: imageDate,
		MapKey:    mapKey,
		StatsKey:  statsKey,
		Report:    report,
	}, nil
}

// maskMonth converts an ISO acquisition date to the provider's YYYYMM
// snapshot key, or "current" when the date is unusable.
func maskMonth(date string) string {
	if len(date) < 7 {
		return "current"
	}
	return date[:4] + date[5:7]
}

// providerErr maps provider failures onto the pipeline taxonomy:
// transient exhaustion becomes ErrProviderUnavailable, everything else
// passes through.
func providerErr(err error, op string) error {
	if resilience.IsTransient(err) {
		return fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, op, err)
	}
	return eris.Wrapf(err, "analysis: %s", op)
}
