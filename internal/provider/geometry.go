package provider

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// Geometry is a polygon in the provider's spatial-query representation
// (GeoJSON geometry).
type Geometry = json.RawMessage

// EncodeGeometry converts a parsed polygon into the provider's geometry
// representation.
func EncodeGeometry(g geom.T) (Geometry, error) {
	data, err := geojson.Marshal(g)
	if err != nil {
		return nil, eris.Wrap(err, "provider: encode geometry")
	}
	return data, nil
}

// GeometryCache memoizes WKT-to-provider-geometry conversions, keyed by the
// normalized WKT serialization. The same boundary is converted for scene
// search, classification, and histogram calls within one run; the cache
// makes those conversions free after the first.
type GeometryCache struct {
	cache *memoCache[Geometry]
}

// NewGeometryCache creates a cache bounded to maxEntries conversions.
func NewGeometryCache(maxEntries int) *GeometryCache {
	return &GeometryCache{cache: newMemoCache[Geometry](maxEntries)}
}

// Convert parses a WKT polygon and returns its provider representation,
// memoized by the WKT text.
func (c *GeometryCache) Convert(wktText string) (Geometry, error) {
	if g, ok := c.cache.get(wktText); ok {
		return g, nil
	}

	parsed, err := wkt.Unmarshal(wktText)
	if err != nil {
		return nil, eris.Wrap(err, "provider: parse wkt")
	}
	encoded, err := EncodeGeometry(parsed)
	if err != nil {
		return nil, err
	}

	c.cache.put(wktText, encoded)
	return encoded, nil
}

// Len returns the number of memoized conversions.
func (c *GeometryCache) Len() int {
	return c.cache.len()
}

// RectGeometry builds the provider geometry for an axis-aligned rectangle
// given as west, south, east, north. Tile render regions use this directly,
// bypassing WKT.
func RectGeometry(west, south, east, north float64) (Geometry, error) {
	ring := [][]geom.Coord{{
		{west, south}, {east, south}, {east, north}, {west, north}, {west, south},
	}}
	poly := geom.NewPolygon(geom.XY)
	if _, err := poly.SetCoords(ring); err != nil {
		return nil, eris.Wrap(err, "provider: build rect geometry")
	}
	return EncodeGeometry(poly)
}
