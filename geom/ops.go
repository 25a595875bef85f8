package geom

import (
	"math"
	"sort"

	"github.com/ifaistartup/go-geoai"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// Polygons decomposes a geometry into its polygons, dropping any point or
// line members.
func Polygons(g orb.Geometry) []orb.Polygon {

	switch g := g.(type) {
	case orb.Polygon:
		if len(g) > 0 && len(g[0]) > 0 {
			return []orb.Polygon{g}
		}
	case orb.MultiPolygon:
		out := make([]orb.Polygon, 0, len(g))
		for _, p := range g {
			out = append(out, Polygons(p)...)
		}
		return out
	case orb.Bound:
		return []orb.Polygon{g.ToPolygon()}
	case orb.Collection:
		var out []orb.Polygon
		for _, m := range g {
			out = append(out, Polygons(m)...)
		}
		return out
	}

	return nil
}

// Area returns the planar area of a geometry, zero for points and lines.
func Area(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	return math.Abs(planar.Area(g))
}

// Largest returns the polygon of mp with the greatest area.
func Largest(mp orb.MultiPolygon) (orb.Polygon, bool) {

	best, bestArea := -1, 0.0

	for i, p := range mp {
		if a := Area(p); best < 0 || a > bestArea {
			best, bestArea = i, a
		}
	}

	if best < 0 {
		return nil, false
	}

	return mp[best], true
}

// Repair returns a valid version of p. Self-intersecting polygons are
// dissolved and only the largest resulting polygon is kept. An
// INVALID_GEOMETRY error is returned when nothing with area remains.
func Repair(p orb.Polygon) (orb.Polygon, error) {

	if len(p) == 0 || len(p[0]) < 4 {
		return nil, geoai.Errorf(geoai.InvalidGeometry, "geom.Repair", "polygon has %d exterior points", exteriorLen(p))
	}

	fixed, ok := Largest(Union(p))

	if !ok || Area(fixed) == 0 {
		return nil, geoai.Errorf(geoai.InvalidGeometry, "geom.Repair", "polygon has no area")
	}

	return fixed, nil
}

func exteriorLen(p orb.Polygon) int {
	if len(p) == 0 {
		return 0
	}
	return len(p[0])
}

// Simplify applies Douglas-Peucker with the given tolerance to a copy of p.
func Simplify(p orb.Polygon, tolerance float64) orb.Polygon {
	return simplify.DouglasPeucker(tolerance).Polygon(p.Clone())
}

// ConvexHull returns the counter-clockwise closed hull ring of the points,
// or nil when the points span no area.
func ConvexHull(points []orb.Point) orb.Ring {

	pts := make([]orb.Point, len(points))
	copy(pts, points)

	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	// drop duplicates
	uniq := pts[:0]

	for i, p := range pts {
		if i == 0 || p != pts[i-1] {
			uniq = append(uniq, p)
		}
	}

	pts = uniq

	if len(pts) < 3 {
		return nil
	}

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	hull := make([]orb.Point, 0, 2*len(pts))

	// lower chain
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// upper chain
	lower := len(hull) + 1

	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// the last point repeats the first, closing the ring
	if len(hull) < 4 {
		return nil
	}

	return orb.Ring(hull)
}

// NearestPoint returns the point of polygon p closest to pt. A point inside
// p is its own nearest point.
func NearestPoint(pt orb.Point, p orb.Polygon) orb.Point {

	if len(p) == 0 {
		return pt
	}

	if planar.PolygonContains(p, pt) {
		return pt
	}

	best := pt
	bestDist := math.Inf(1)

	for _, r := range p {
		for i := 0; i+1 < len(r); i++ {
			q := closestOnSegment(r[i], r[i+1], pt)

			if d := planar.DistanceSquared(q, pt); d < bestDist {
				best, bestDist = q, d
			}
		}
	}

	return best
}

func closestOnSegment(a, b, p orb.Point) orb.Point {

	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy

	if l2 == 0 {
		return a
	}

	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / l2
	t = math.Max(0, math.Min(1, t))

	return orb.Point{a[0] + t*dx, a[1] + t*dy}
}

// BoxIoU is the intersection over union of two axis aligned boxes.
func BoxIoU(a, b orb.Bound) float64 {

	w := math.Min(a.Max[0], b.Max[0]) - math.Max(a.Min[0], b.Min[0])
	h := math.Min(a.Max[1], b.Max[1]) - math.Max(a.Min[1], b.Min[1])

	if w <= 0 || h <= 0 {
		return 0
	}

	inter := w * h
	union := boundArea(a) + boundArea(b) - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}

func boundArea(b orb.Bound) float64 {
	return (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1])
}

// Circle approximates a disc of radius r around c with n segments.
func Circle(c orb.Point, r float64, n int) orb.Polygon {

	if n < 4 {
		n = 4
	}

	ring := make(orb.Ring, 0, n+1)

	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, orb.Point{c[0] + r*math.Cos(a), c[1] + r*math.Sin(a)})
	}

	return orb.Polygon{append(ring, ring[0])}
}

// RoundRing rounds every vertex to the nearest integer.
func RoundRing(r orb.Ring) orb.Ring {

	out := make(orb.Ring, len(r))

	for i, p := range r {
		out[i] = orb.Point{math.Round(p[0]), math.Round(p[1])}
	}

	return out
}
