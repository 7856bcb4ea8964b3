package zones

import (
	"github.com/ctessum/geom"
)

// intersects reports whether a and b share any point, including polygons
// that only touch along an edge or at a vertex.
func intersects(a, b geom.Polygonal) bool {
	if !boundsTouch(a.Bounds(), b.Bounds()) {
		return false
	}
	if isect := a.Intersection(b); isect != nil && isect.Area() > 0 {
		return true
	}
	return edgesTouch(a, b)
}

func boundsTouch(a, b *geom.Bounds) bool {
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X &&
		a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y
}

// edgesTouch tests every ring segment of a against every ring segment of b.
// Only reached when the clipped intersection has no area.
func edgesTouch(a, b geom.Polygonal) bool {
	for _, pa := range a.Polygons() {
		for _, ra := range pa {
			for _, pb := range b.Polygons() {
				for _, rb := range pb {
					if ringsTouch(ra, rb) {
						return true
					}
				}
			}
		}
	}
	return false
}

func ringsTouch(a, b geom.Path) bool {
	for i := range a {
		p1, p2 := a[i], a[(i+1)%len(a)]
		for j := range b {
			q1, q2 := b[j], b[(j+1)%len(b)]
			if segmentsIntersect(p1, p2, q1, q2) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 geom.Point) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(q1, q2, p1)) ||
		(d2 == 0 && onSegment(q1, q2, p2)) ||
		(d3 == 0 && onSegment(p1, p2, q1)) ||
		(d4 == 0 && onSegment(p1, p2, q2))
}

func orient(a, b, c geom.Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// onSegment assumes c is collinear with a-b.
func onSegment(a, b, c geom.Point) bool {
	return min(a.X, b.X) <= c.X && c.X <= max(a.X, b.X) &&
		min(a.Y, b.Y) <= c.Y && c.Y <= max(a.Y, b.Y)
}
