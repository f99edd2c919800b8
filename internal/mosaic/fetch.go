package mosaic

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/forestmap/internal/landcover"
	"github.com/terralens/forestmap/internal/provider"
	"github.com/terralens/forestmap/internal/resilience"
	"github.com/terralens/forestmap/internal/tiling"
)

// FetchConfig controls per-tile retrieval.
type FetchConfig struct {
	// Scale is the ground-sample distance, in meters per pixel, requested
	// for rendered tiles.
	Scale int

	// Attempts is the total number of tries per tile before the tile is
	// given up as a soft failure.
	Attempts int

	// Backoff is the fixed delay between attempts.
	Backoff time.Duration

	// Timeout bounds each download request.
	Timeout time.Duration
}

// DefaultFetchConfig returns the production tile-fetch settings.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Scale:    20,
		Attempts: 3,
		Backoff:  2 * time.Second,
		Timeout:  120 * time.Second,
	}
}

// Result is one successfully fetched tile: its plan entry and the decoded
// rendered raster.
type Result struct {
	Tile  tiling.Tile
	Image image.Image
}

// Fetcher retrieves rendered tile rasters from the classification provider.
// A render request yields a transient download URL; the URL is fetched and
// decoded. The whole sequence retries as a unit with a fixed backoff, and
// exhaustion is reported as an error the coordinator absorbs.
type Fetcher struct {
	client     provider.Client
	downloader *http.Client
	cfg        FetchConfig
}

// NewFetcher creates a tile fetcher.
func NewFetcher(client provider.Client, cfg FetchConfig) *Fetcher {
	if cfg.Scale <= 0 {
		cfg.Scale = 20
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Fetcher{
		client:     client,
		downloader: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

// Fetch retrieves the rendered raster for one tile of the classification.
func (f *Fetcher) Fetch(ctx context.Context, rasterRef string, tile tiling.Tile) (*Result, error) {
	region, err := provider.RectGeometry(tile.Rect.West, tile.Rect.South, tile.Rect.East, tile.Rect.North)
	if err != nil {
		return nil, err
	}

	retry := resilience.FixedRetryConfig(f.cfg.Attempts, f.cfg.Backoff)
	retry.OnRetry = func(attempt int, err error) {
		zap.L().Warn("tile fetch retry",
			zap.Int("tile", tile.Index),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	img, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (image.Image, error) {
		url, err := f.client.RenderURL(ctx, rasterRef, region, f.cfg.Scale, landcover.Palette())
		if err != nil {
			return nil, err
		}
		return f.download(ctx, url)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "mosaic: tile %d fetch exhausted", tile.Index)
	}

	return &Result{Tile: tile, Image: img}, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "mosaic: build download request")
	}

	resp, err := f.downloader.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "mosaic: download tile")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("mosaic: tile download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "mosaic: read tile body")
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		// The provider occasionally serves non-PNG encodings; fall back to
		// the registered decoders before giving up.
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, eris.Wrap(err, "mosaic: decode tile image")
		}
	}
	return img, nil
}
