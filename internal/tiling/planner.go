package tiling

import (
	"math"

	"go.uber.org/zap"

	"github.com/terralens/forestmap/internal/boundary"
)

// DefaultMaxExtentKm is the default maximum tile edge length. The remote
// provider rejects render requests over regions much larger than this at
// the pipeline's ground-sample distance.
const DefaultMaxExtentKm = 30.0

// areaProxyThresholdKm2 is the width*height product above which the
// planner widens the tile extent to keep the tile count reasonable for
// very large regions.
const areaProxyThresholdKm2 = 1000.0

// Tile is one sub-rectangle of the boundary's bounding box, scheduled for
// independent retrieval. Index is stable across a plan and used only for
// bookkeeping; tile order carries no semantic meaning.
type Tile struct {
	Index int
	Rect  boundary.BBox
}

// Plan splits the boundary's bounding box into tiles no wider than
// maxExtentKm kilometers per side, keeping only tiles that intersect the
// true polygon. A boundary small enough to fit a single tile yields exactly
// one tile covering the whole box.
func Plan(b *boundary.Boundary, maxExtentKm float64) []Tile {
	if maxExtentKm <= 0 {
		maxExtentKm = DefaultMaxExtentKm
	}

	box := b.BBox
	widthKm := box.WidthKm()
	heightKm := box.HeightKm()

	if widthKm <= maxExtentKm && heightKm <= maxExtentKm {
		zap.L().Debug("boundary fits a single tile",
			zap.Float64("width_km", widthKm),
			zap.Float64("height_km", heightKm),
		)
		if !b.IntersectsRect(box) {
			return nil
		}
		return []Tile{{Index: 0, Rect: box}}
	}

	// Widen the tile extent for very large regions to bound the number of
	// remote render calls.
	if widthKm*heightKm > areaProxyThresholdKm2 {
		maxExtentKm = math.Min(60, math.Max(30, maxExtentKm))
	}

	numX := int(math.Ceil(widthKm / maxExtentKm))
	numY := int(math.Ceil(heightKm / maxExtentKm))
	if numX < 1 {
		numX = 1
	}
	if numY < 1 {
		numY = 1
	}

	stepX := box.Width() / float64(numX)
	stepY := box.Height() / float64(numY)

	var tiles []Tile
	for i := 0; i < numX; i++ {
		for j := 0; j < numY; j++ {
			rect := boundary.BBox{
				West:  box.West + float64(i)*stepX,
				East:  box.West + float64(i+1)*stepX,
				South: box.South + float64(j)*stepY,
				North: box.South + float64(j+1)*stepY,
			}
			// Skip tiles over areas the boundary mask would black out anyway.
			if !b.IntersectsRect(rect) {
				continue
			}
			tiles = append(tiles, Tile{Index: len(tiles), Rect: rect})
		}
	}

	zap.L().Debug("planned tiles",
		zap.Int("grid_x", numX),
		zap.Int("grid_y", numY),
		zap.Int("kept", len(tiles)),
	)
	return tiles
}
