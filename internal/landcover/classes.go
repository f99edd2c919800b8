package landcover

import (
	"image/color"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Class is a per-pixel land-cover class code as produced by the
// classification provider.
type Class int

// Class codes. The first ten match the provider's base classification;
// NaturalForest is the enhanced class assigned to tree pixels inside
// protected areas.
const (
	Water Class = iota
	Trees
	Grass
	FloodedVegetation
	Crops
	ShrubAndScrub
	Built
	Bare
	SnowAndIce
	Cloud
	NaturalForest

	NumClasses = 11
)

// names holds the canonical snake_case class keys, indexed by class code.
// This is the order classes appear in the map legend and the stats report.
var names = [NumClasses]string{
	"water",
	"trees",
	"grass",
	"flooded_vegetation",
	"crops",
	"shrub_and_scrub",
	"built",
	"bare",
	"snow_and_ice",
	"cloud",
	"natural_forest",
}

// palette maps class codes to render colors. Unmapped pixels render black.
var palette = [NumClasses]color.NRGBA{
	{65, 155, 223, 255},  // water
	{57, 125, 73, 255},   // trees
	{136, 176, 83, 255},  // grass
	{122, 135, 198, 255}, // flooded_vegetation
	{228, 150, 53, 255},  // crops
	{223, 195, 90, 255},  // shrub_and_scrub
	{196, 40, 27, 255},   // built
	{165, 155, 143, 255}, // bare
	{179, 159, 225, 255}, // snow_and_ice
	{0, 0, 0, 255},       // cloud
	{0, 64, 0, 255},      // natural_forest
}

var titleCaser = cases.Title(language.English)

// Valid reports whether c is a known class code.
func (c Class) Valid() bool {
	return c >= 0 && c < NumClasses
}

// Name returns the canonical snake_case key for the class.
func (c Class) Name() string {
	if !c.Valid() {
		return "unknown"
	}
	return names[c]
}

// Color returns the render color for the class.
func (c Class) Color() color.NRGBA {
	if !c.Valid() {
		return color.NRGBA{0, 0, 0, 255}
	}
	return palette[c]
}

// Label returns the human-readable legend label for the class,
// e.g. "shrub_and_scrub" becomes "Shrub & Scrub".
func (c Class) Label() string {
	s := strings.ReplaceAll(c.Name(), "_and_", " & ")
	s = strings.ReplaceAll(s, "_", " ")
	return titleCaser.String(s)
}

// All returns every class in legend order.
func All() []Class {
	out := make([]Class, NumClasses)
	for i := range out {
		out[i] = Class(i)
	}
	return out
}

// ByName returns the class for a canonical key, or -1 if unknown.
func ByName(name string) Class {
	for i, n := range names {
		if n == name {
			return Class(i)
		}
	}
	return Class(-1)
}

// Palette returns the class-code to RGB mapping sent with render requests,
// keyed by numeric class code.
func Palette() map[int][3]uint8 {
	out := make(map[int][3]uint8, NumClasses)
	for i, c := range palette {
		out[i] = [3]uint8{c.R, c.G, c.B}
	}
	return out
}
