package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terralens/forestmap/internal/landcover"
	"github.com/terralens/forestmap/internal/provider"
)

func TestComputeForestAggregates(t *testing.T) {
	hist := provider.Histogram{
		int(landcover.Trees):         40,
		int(landcover.NaturalForest): 10,
		int(landcover.Water):         50,
	}

	r := Compute("2024-02-14", hist, 100)

	assert.Equal(t, "2024-02-14", r.Date)
	assert.Equal(t, 100.0, r.TotalAreaKm2)
	assert.Equal(t, 10.0, r.NaturalForestKm2)
	assert.Equal(t, 40.0, r.OtherTreesKm2)
	assert.Equal(t, 50.0, r.ForestAreaKm2)
	assert.Equal(t, 20.0, r.NaturalForestPercentage)
	assert.Equal(t, 80.0, r.OtherTreesPercentage)

	require.Len(t, r.LandCoverClasses, 3)
	assert.Equal(t, ClassEntry{AreaKm2: 50, Percentage: 50}, r.LandCoverClasses["water"])
	assert.Equal(t, ClassEntry{AreaKm2: 40, Percentage: 40}, r.LandCoverClasses["trees"])
	assert.Equal(t, ClassEntry{AreaKm2: 10, Percentage: 10}, r.LandCoverClasses["natural_forest"])
}

func TestComputeEmptyHistogram(t *testing.T) {
	r := Compute("2024-02-14", provider.Histogram{}, 250)

	assert.Equal(t, 250.0, r.TotalAreaKm2)
	assert.Zero(t, r.ForestAreaKm2)
	assert.Zero(t, r.NaturalForestPercentage)
	assert.Zero(t, r.OtherTreesPercentage)
	assert.Empty(t, r.LandCoverClasses)
}

func TestComputeNoForestNoDivideByZero(t *testing.T) {
	hist := provider.Histogram{int(landcover.Water): 100}
	r := Compute("2024-02-14", hist, 10)

	assert.Equal(t, 10.0, r.LandCoverClasses["water"].AreaKm2)
	assert.Zero(t, r.ForestAreaKm2)
	assert.Zero(t, r.NaturalForestPercentage)
	assert.Zero(t, r.OtherTreesPercentage)
}

func TestComputeIgnoresUnknownClasses(t *testing.T) {
	hist := provider.Histogram{
		int(landcover.Grass): 30,
		99:                   70,
	}
	r := Compute("2024-02-14", hist, 100)

	require.Len(t, r.LandCoverClasses, 1)
	// Unknown counts still contribute to the pixel sum, so the known
	// class keeps its true proportion.
	assert.Equal(t, 30.0, r.LandCoverClasses["grass"].AreaKm2)
}

func TestComputeRounding(t *testing.T) {
	hist := provider.Histogram{
		int(landcover.Trees): 1,
		int(landcover.Water): 2,
	}
	r := Compute("2024-02-14", hist, 1)

	assert.Equal(t, 0.33333, r.LandCoverClasses["trees"].AreaKm2)
	assert.Equal(t, 0.66667, r.LandCoverClasses["water"].AreaKm2)
}

func TestComputeRoundsAreaNotProportion(t *testing.T) {
	hist := provider.Histogram{
		int(landcover.Trees): 1,
		int(landcover.Water): 2,
	}
	r := Compute("2024-02-14", hist, 3)

	// 1/3 of 3 km² is exactly 1; rounding must apply to the scaled
	// area, not the raw proportion.
	assert.Equal(t, 1.0, r.LandCoverClasses["trees"].AreaKm2)
	assert.Equal(t, 2.0, r.LandCoverClasses["water"].AreaKm2)
}

func TestComputeFractionalCounts(t *testing.T) {
	hist := provider.Histogram{
		int(landcover.Trees): 12.5,
		int(landcover.Water): 37.5,
	}
	r := Compute("2024-02-14", hist, 200)

	assert.Equal(t, 50.0, r.LandCoverClasses["trees"].AreaKm2)
	assert.Equal(t, 150.0, r.LandCoverClasses["water"].AreaKm2)
}

func TestBreakdownSortedByAreaDesc(t *testing.T) {
	hist := provider.Histogram{
		int(landcover.Water): 10,
		int(landcover.Trees): 60,
		int(landcover.Built): 30,
	}
	r := Compute("2024-02-14", hist, 100)

	rows := r.Breakdown()
	require.Len(t, rows, 3)
	assert.Equal(t, "trees", rows[0].Name)
	assert.Equal(t, "built", rows[1].Name)
	assert.Equal(t, "water", rows[2].Name)
}
