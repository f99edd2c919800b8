// Package stats turns a classification pixel histogram into land-cover
// area figures scaled to the boundary's ground-truth area.
package stats

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/terralens/forestmap/internal/landcover"
	"github.com/terralens/forestmap/internal/provider"
)

// ClassEntry is one land-cover class in the report.
type ClassEntry struct {
	AreaKm2    float64 `json:"area_km2"`
	Percentage float64 `json:"percentage"`
}

// Report is the per-run area breakdown written alongside the map image.
// Forest figures aggregate the trees and natural_forest classes; their
// percentages are relative to the combined forest area, everything else
// is relative to the total boundary area.
type Report struct {
	Date                    string                `json:"date"`
	TotalAreaKm2            float64               `json:"total_area_km2"`
	ForestAreaKm2           float64               `json:"forest_area_km2"`
	NaturalForestKm2        float64               `json:"natural_forest_km2"`
	NaturalForestPercentage float64               `json:"natural_forest_percentage"`
	OtherTreesKm2           float64               `json:"other_trees_km2"`
	OtherTreesPercentage    float64               `json:"other_trees_percentage"`
	LandCoverClasses        map[string]ClassEntry `json:"land_cover_classes"`
}

// Compute scales histogram pixel counts to areas. Counts are treated as
// proportions of the total pixel sum, so partial pixels from reduced-
// resolution sampling are handled the same as whole ones. Every derived
// figure is rounded to 5 decimal places.
func Compute(date string, hist provider.Histogram, totalAreaKm2 float64) *Report {
	r := &Report{
		Date:             date,
		TotalAreaKm2:     round5(totalAreaKm2),
		LandCoverClasses: make(map[string]ClassEntry),
	}

	var pixelSum float64
	for _, count := range hist {
		pixelSum += count
	}
	if pixelSum <= 0 {
		return r
	}

	areas := make(map[landcover.Class]float64)
	for id, count := range hist {
		class := landcover.Class(id)
		if !class.Valid() {
			zap.L().Warn("ignoring unknown class in histogram", zap.Int("class_id", id))
			continue
		}
		area := round5(count / pixelSum * totalAreaKm2)
		areas[class] = area
		if area > 0 {
			r.LandCoverClasses[class.Name()] = ClassEntry{
				AreaKm2:    area,
				Percentage: round5(area / totalAreaKm2 * 100),
			}
		}
	}

	r.OtherTreesKm2 = areas[landcover.Trees]
	r.NaturalForestKm2 = areas[landcover.NaturalForest]
	r.ForestAreaKm2 = round5(r.OtherTreesKm2 + r.NaturalForestKm2)
	if r.ForestAreaKm2 > 0 {
		r.NaturalForestPercentage = round5(r.NaturalForestKm2 / r.ForestAreaKm2 * 100)
		r.OtherTreesPercentage = round5(r.OtherTreesKm2 / r.ForestAreaKm2 * 100)
	}
	return r
}

// Breakdown returns the report's classes ordered by area, largest first.
func (r *Report) Breakdown() []BreakdownRow {
	rows := make([]BreakdownRow, 0, len(r.LandCoverClasses))
	for name, entry := range r.LandCoverClasses {
		rows = append(rows, BreakdownRow{Name: name, ClassEntry: entry})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AreaKm2 != rows[j].AreaKm2 {
			return rows[i].AreaKm2 > rows[j].AreaKm2
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// BreakdownRow pairs a class name with its report entry.
type BreakdownRow struct {
	Name string
	ClassEntry
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
