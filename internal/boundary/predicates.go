package boundary

import (
	"github.com/twpayne/go-geom"
)

// go-geom models geometry but ships no boolean predicates, so the two the
// tiler needs (point-in-polygon, rectangle/polygon intersection) live here.

// ContainsPoint reports whether the point (lon, lat) falls inside any
// exterior ring of the boundary, by even-odd ray casting. Holes are not
// subtracted, matching the mask fill behavior.
func (b *Boundary) ContainsPoint(lon, lat float64) bool {
	for _, ring := range b.ExteriorRings() {
		if pointInRing(lon, lat, ring) {
			return true
		}
	}
	return false
}

// IntersectsRect reports whether the axis-aligned rectangle intersects the
// boundary polygon. True when any polygon vertex lies inside the rectangle,
// any rectangle corner lies inside the polygon, or any polygon edge crosses
// a rectangle edge.
func (b *Boundary) IntersectsRect(r BBox) bool {
	rings := b.ExteriorRings()

	for _, ring := range rings {
		for _, c := range ring {
			if c[0] >= r.West && c[0] <= r.East && c[1] >= r.South && c[1] <= r.North {
				return true
			}
		}
	}

	corners := [4][2]float64{
		{r.West, r.South}, {r.East, r.South}, {r.East, r.North}, {r.West, r.North},
	}
	for _, p := range corners {
		if b.ContainsPoint(p[0], p[1]) {
			return true
		}
	}

	edges := [4][4]float64{
		{r.West, r.South, r.East, r.South},
		{r.East, r.South, r.East, r.North},
		{r.East, r.North, r.West, r.North},
		{r.West, r.North, r.West, r.South},
	}
	for _, ring := range rings {
		for i := 0; i+1 < len(ring); i++ {
			for _, e := range edges {
				if segmentsIntersect(
					ring[i][0], ring[i][1], ring[i+1][0], ring[i+1][1],
					e[0], e[1], e[2], e[3],
				) {
					return true
				}
			}
		}
	}

	return false
}

// pointInRing implements even-odd ray casting against a closed ring.
func pointInRing(lon, lat float64, ring []geom.Coord) bool {
	inside := false
	n := len(ring)
	if n < 3 {
		return false
	}
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// segmentsIntersect reports whether segments (x1,y1)-(x2,y2) and
// (x3,y3)-(x4,y4) intersect, using orientation tests.
func segmentsIntersect(x1, y1, x2, y2, x3, y3, x4, y4 float64) bool {
	d1 := cross(x3, y3, x4, y4, x1, y1)
	d2 := cross(x3, y3, x4, y4, x2, y2)
	d3 := cross(x1, y1, x2, y2, x3, y3)
	d4 := cross(x1, y1, x2, y2, x4, y4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	// Collinear touch cases.
	if d1 == 0 && onSegment(x3, y3, x4, y4, x1, y1) {
		return true
	}
	if d2 == 0 && onSegment(x3, y3, x4, y4, x2, y2) {
		return true
	}
	if d3 == 0 && onSegment(x1, y1, x2, y2, x3, y3) {
		return true
	}
	if d4 == 0 && onSegment(x1, y1, x2, y2, x4, y4) {
		return true
	}
	return false
}

func cross(ax, ay, bx, by, px, py float64) float64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func onSegment(ax, ay, bx, by, px, py float64) bool {
	return min(ax, bx) <= px && px <= max(ax, bx) &&
		min(ay, by) <= py && py <= max(ay, by)
}
