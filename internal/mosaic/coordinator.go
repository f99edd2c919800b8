package mosaic

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/terralens/forestmap/internal/tiling"
)

// maxFetchWorkers caps the tile fetch pool regardless of tile count.
const maxFetchWorkers = 10

// Coordinator runs the tile fetcher over a planned tile set under bounded
// concurrency. Individual tile failures are absorbed; the caller decides
// what an empty result set means.
type Coordinator struct {
	fetcher *Fetcher
	workers int
}

// NewCoordinator creates a coordinator with the given worker cap. A cap of
// zero or less uses the default.
func NewCoordinator(fetcher *Fetcher, workers int) *Coordinator {
	if workers <= 0 {
		workers = maxFetchWorkers
	}
	return &Coordinator{fetcher: fetcher, workers: workers}
}

// FetchAll fetches every planned tile and returns the successful results.
// Completion order is irrelevant: each result carries its own geographic
// placement. imageDate labels log lines only.
func (c *Coordinator) FetchAll(ctx context.Context, rasterRef, imageDate string, tiles []tiling.Tile) []Result {
	if len(tiles) == 0 {
		return nil
	}

	workers := c.workers
	if len(tiles) < workers {
		workers = len(tiles)
	}

	log := zap.L().With(
		zap.String("image_date", imageDate),
		zap.Int("tiles", len(tiles)),
		zap.Int("workers", workers),
	)
	log.Info("fetching tiles")

	slots := make([]*Result, len(tiles))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, tile := range tiles {
		g.Go(func() error {
			res, err := c.fetcher.Fetch(gCtx, rasterRef, tile)
			if err != nil {
				log.Warn("tile dropped after retries",
					zap.Int("tile", tile.Index),
					zap.Error(err),
				)
				return nil //nolint:nilerr // per-tile failures don't fail the fetch phase
			}
			slots[i] = res
			return nil
		})
	}

	_ = g.Wait()

	results := make([]Result, 0, len(tiles))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}

	log.Info("tile fetch complete",
		zap.Int("succeeded", len(results)),
		zap.Int("failed", len(tiles)-len(results)),
	)
	return results
}
