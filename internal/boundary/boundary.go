package boundary

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// BBox is an axis-aligned geographic bounding box in degrees.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// kmPerDegLat is the equirectangular approximation used throughout the
// pipeline: one degree of latitude spans 111 km.
const kmPerDegLat = 111.0

// Width returns the box width in degrees of longitude.
func (b BBox) Width() float64 { return b.East - b.West }

// Height returns the box height in degrees of latitude.
func (b BBox) Height() float64 { return b.North - b.South }

// MidLat returns the latitude midpoint of the box.
func (b BBox) MidLat() float64 { return (b.South + b.North) / 2 }

// Center returns the box center as (lat, lon).
func (b BBox) Center() (float64, float64) {
	return b.MidLat(), (b.West + b.East) / 2
}

// WidthKm returns the box width in kilometers, with longitude degrees
// scaled by the cosine of the latitude midpoint.
func (b BBox) WidthKm() float64 {
	return b.Width() * kmPerDegLat * math.Cos(b.MidLat()*math.Pi/180)
}

// HeightKm returns the box height in kilometers.
func (b BBox) HeightKm() float64 {
	return b.Height() * kmPerDegLat
}

// Valid reports whether the box has positive extent and plausible
// geographic coordinates.
func (b BBox) Valid() bool {
	return b.West < b.East && b.South < b.North &&
		b.West >= -180 && b.East <= 180 &&
		b.South >= -90 && b.North <= 90
}

// CenterTag formats the box center as a signed 2-decimal "+lat+lon" pair,
// used in output artifact names (e.g. "+40.12-74.01").
func (b BBox) CenterTag() string {
	lat, lon := b.Center()
	return fmt.Sprintf("%+.2f%+.2f", round2(lat), round2(lon))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Descriptor is the boundary/area JSON document pulled from object storage.
type Descriptor struct {
	AreaKm2      float64 `json:"area"`
	CityGeometry string  `json:"city_geometry"`
	BBoxWest     float64 `json:"bbox_west"`
	BBoxSouth    float64 `json:"bbox_south"`
	BBoxEast     float64 `json:"bbox_east"`
	BBoxNorth    float64 `json:"bbox_north"`
}

// Boundary is a parsed administrative boundary: the true polygon, its
// bounding box, and the externally supplied ground-truth area. The
// ground-truth area is authoritative for all reported statistics; pixel
// counts only ever determine relative proportions.
type Boundary struct {
	Geometry geom.T
	BBox     BBox
	AreaKm2  float64
}

// Parse decodes a boundary descriptor document and validates its geometry.
func Parse(data []byte) (*Boundary, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, eris.Wrap(err, "boundary: decode descriptor")
	}
	return FromDescriptor(d)
}

// FromDescriptor validates a decoded descriptor and parses its WKT geometry.
func FromDescriptor(d Descriptor) (*Boundary, error) {
	if d.CityGeometry == "" {
		return nil, eris.New("boundary: missing required field city_geometry")
	}

	g, err := wkt.Unmarshal(d.CityGeometry)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: parse city_geometry wkt")
	}

	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
	default:
		return nil, eris.Errorf("boundary: city_geometry must be a polygon or multipolygon, got %T", g)
	}
	if len(g.FlatCoords()) == 0 {
		return nil, eris.New("boundary: city_geometry is empty")
	}

	bbox := BBox{West: d.BBoxWest, South: d.BBoxSouth, East: d.BBoxEast, North: d.BBoxNorth}
	if !bbox.Valid() {
		return nil, eris.Errorf("boundary: invalid bbox [%v %v %v %v]",
			d.BBoxWest, d.BBoxSouth, d.BBoxEast, d.BBoxNorth)
	}
	if d.AreaKm2 < 0 {
		return nil, eris.Errorf("boundary: negative area %v", d.AreaKm2)
	}

	return &Boundary{Geometry: g, BBox: bbox, AreaKm2: d.AreaKm2}, nil
}

// WKT returns the boundary geometry serialized back to WKT. This is the
// normalized key used for provider geometry conversion and caching.
func (b *Boundary) WKT() (string, error) {
	s, err := wkt.Marshal(b.Geometry)
	if err != nil {
		return "", eris.Wrap(err, "boundary: marshal wkt")
	}
	return s, nil
}

// ExteriorRings returns the exterior ring of each polygon part as
// (lon, lat) coordinate slices. Interior rings (holes) are not returned;
// the mask fill works on exterior rings only.
func (b *Boundary) ExteriorRings() [][]geom.Coord {
	return exteriorRings(b.Geometry)
}

func exteriorRings(g geom.T) [][]geom.Coord {
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumLinearRings() == 0 {
			return nil
		}
		return [][]geom.Coord{t.LinearRing(0).Coords()}
	case *geom.MultiPolygon:
		var rings [][]geom.Coord
		for i := 0; i < t.NumPolygons(); i++ {
			p := t.Polygon(i)
			if p.NumLinearRings() > 0 {
				rings = append(rings, p.LinearRing(0).Coords())
			}
		}
		return rings
	default:
		return nil
	}
}
