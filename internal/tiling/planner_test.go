package tiling

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terralens/forestmap/internal/boundary"
)

// squareBoundary builds a square boundary of the given side length in
// degrees, centered on the equator so degree/km conversion is uniform.
func squareBoundary(t *testing.T, sideDeg float64) *boundary.Boundary {
	t.Helper()
	h := sideDeg / 2
	wkt := fmt.Sprintf("POLYGON ((%[1]f %[2]f, %[3]f %[2]f, %[3]f %[4]f, %[1]f %[4]f, %[1]f %[2]f))",
		-h, -h, h, h)
	b, err := boundary.FromDescriptor(boundary.Descriptor{
		AreaKm2:      1,
		CityGeometry: wkt,
		BBoxWest:     -h, BBoxSouth: -h, BBoxEast: h, BBoxNorth: h,
	})
	require.NoError(t, err)
	return b
}

func TestPlanSingleTileWhenSmall(t *testing.T) {
	// 0.1 deg is ~11 km, well under the 30 km default.
	b := squareBoundary(t, 0.1)
	tiles := Plan(b, DefaultMaxExtentKm)
	require.Len(t, tiles, 1)
	assert.Equal(t, b.BBox, tiles[0].Rect)
	assert.Equal(t, 0, tiles[0].Index)
}

func TestPlanSingleTileWithHugeExtent(t *testing.T) {
	// Unit square at the equator with a 5000 km limit: one tile.
	b := squareBoundary(t, 1)
	tiles := Plan(b, 5000)
	require.Len(t, tiles, 1)
	assert.Equal(t, b.BBox, tiles[0].Rect)
}

func TestPlanGridCoversBoxExactly(t *testing.T) {
	// 1 deg is ~111 km: a 30 km extent needs a 4x4 grid, and the square
	// polygon equals its bbox so no tile is filtered.
	b := squareBoundary(t, 1)
	tiles := Plan(b, DefaultMaxExtentKm)
	require.Len(t, tiles, 16)

	// Union reconstructs the box: steps abut exactly with no overlap.
	box := b.BBox
	stepX := box.Width() / 4
	stepY := box.Height() / 4
	seen := make(map[[2]int]bool)
	for _, tile := range tiles {
		i := int(math.Round((tile.Rect.West - box.West) / stepX))
		j := int(math.Round((tile.Rect.South - box.South) / stepY))
		assert.InDelta(t, box.West+float64(i)*stepX, tile.Rect.West, 1e-9)
		assert.InDelta(t, box.West+float64(i+1)*stepX, tile.Rect.East, 1e-9)
		assert.InDelta(t, box.South+float64(j)*stepY, tile.Rect.South, 1e-9)
		assert.InDelta(t, box.South+float64(j+1)*stepY, tile.Rect.North, 1e-9)
		seen[[2]int{i, j}] = true
	}
	assert.Len(t, seen, 16, "each grid cell appears exactly once")
}

func TestPlanFiltersTilesOutsidePolygon(t *testing.T) {
	// An L-shaped polygon inside a 1x1 degree box: the top-right corner of
	// the box has no polygon coverage, so its tiles must be dropped.
	wkt := "POLYGON ((0 0, 1 0, 1 0.2, 0.2 0.2, 0.2 1, 0 1, 0 0))"
	b, err := boundary.FromDescriptor(boundary.Descriptor{
		AreaKm2:      1,
		CityGeometry: wkt,
		BBoxWest:     0, BBoxSouth: 0, BBoxEast: 1, BBoxNorth: 1,
	})
	require.NoError(t, err)

	tiles := Plan(b, DefaultMaxExtentKm)
	require.NotEmpty(t, tiles)
	assert.Less(t, len(tiles), 16, "corner tiles away from the L must be filtered")
	for _, tile := range tiles {
		assert.True(t, b.IntersectsRect(tile.Rect),
			"tile %d does not intersect the polygon", tile.Index)
	}
	// Indexes are contiguous from zero.
	for i, tile := range tiles {
		assert.Equal(t, i, tile.Index)
	}
}

func TestPlanAdaptiveWideningForLargeRegions(t *testing.T) {
	// 5 degrees is ~555 km per side (area proxy >> 1000 km^2). With a
	// requested 30 km extent the planner may widen up to 60 km; either way
	// the grid must stay within the widened bounds.
	b := squareBoundary(t, 5)
	tiles := Plan(b, DefaultMaxExtentKm)
	require.NotEmpty(t, tiles)

	// ceil(555/30) = 19 per side unwidened; widened minimum is ceil(555/60) = 10.
	n := int(math.Sqrt(float64(len(tiles))))
	assert.GreaterOrEqual(t, n, 10)
	assert.LessOrEqual(t, n, 19)
}

func TestPlanDegenerateBoundary(t *testing.T) {
	// A degenerate sliver far from its bbox quadrant yields no tiles but
	// must not panic or divide by zero.
	b, err := boundary.FromDescriptor(boundary.Descriptor{
		AreaKm2:      0,
		CityGeometry: "POLYGON ((0 0, 0.001 0, 0.001 0.001, 0 0.001, 0 0))",
		BBoxWest:     5, BBoxSouth: 5, BBoxEast: 6, BBoxNorth: 6,
	})
	require.NoError(t, err)
	tiles := Plan(b, DefaultMaxExtentKm)
	assert.Empty(t, tiles)
}
