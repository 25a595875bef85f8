package geom

import (
	"math"
	"sort"

	clipper "github.com/ctessum/go.clipper"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// maxScaled is the largest absolute integer coordinate handed to Clipper,
// kept inside its 64-bit arithmetic range
const maxScaled = 4e8

// Join is the corner style used when offsetting polygons.
type Join int

const (
	JoinRound Join = iota
	JoinSquare
	JoinMiter
)

func (j Join) clipper() clipper.JoinType {
	switch j {
	case JoinSquare:
		return clipper.JtSquare
	case JoinMiter:
		return clipper.JtMiter
	}
	return clipper.JtRound
}

// scaleFor picks a power of ten scale so the largest coordinate magnitude
// plus margin maps close to maxScaled.
func scaleFor(margin float64, mps ...orb.MultiPolygon) float64 {

	extent := math.Abs(margin)

	for _, mp := range mps {
		for _, p := range mp {
			for _, r := range p {
				for _, pt := range r {
					extent = math.Max(extent, math.Abs(pt[0])+math.Abs(margin))
					extent = math.Max(extent, math.Abs(pt[1])+math.Abs(margin))
				}
			}
		}
	}

	if extent == 0 {
		return 1e6
	}

	return math.Pow(10, math.Floor(math.Log10(maxScaled/extent)))
}

// toPaths converts polygons to Clipper paths with outer rings wound
// counter-clockwise and holes clockwise so non-zero filling unions them.
func toPaths(mp orb.MultiPolygon, scale float64) clipper.Paths {

	var paths clipper.Paths

	for _, p := range mp {
		for i, r := range p {
			path := ringToPath(r, scale)

			if len(path) < 3 {
				continue
			}

			ccw := pathArea(path) > 0

			if (i == 0) != ccw {
				reversePath(path)
			}

			paths = append(paths, path)
		}
	}

	return paths
}

func ringToPath(r orb.Ring, scale float64) clipper.Path {

	n := len(r)

	if n > 1 && r[0] == r[n-1] {
		n--
	}

	path := make(clipper.Path, 0, n)

	for _, pt := range r[:n] {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(math.Round(pt[0] * scale)),
			Y: clipper.CInt(math.Round(pt[1] * scale)),
		})
	}

	return path
}

func pathArea(path clipper.Path) float64 {

	var a float64

	for i, j := 0, len(path)-1; i < len(path); j, i = i, i+1 {
		a += float64(path[j].X)*float64(path[i].Y) - float64(path[i].X)*float64(path[j].Y)
	}

	return a / 2
}

func reversePath(path clipper.Path) {
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
}

func pathToRing(path clipper.Path, scale float64) orb.Ring {

	r := make(orb.Ring, 0, len(path)+1)

	for _, pt := range path {
		r = append(r, orb.Point{float64(pt.X) / scale, float64(pt.Y) / scale})
	}

	return append(r, r[0])
}

// fromPaths rebuilds polygons from a Clipper solution. Rings sharing the
// winding of the largest ring are exteriors, the others are holes assigned
// to the smallest exterior that contains them.
func fromPaths(paths clipper.Paths, scale float64) orb.MultiPolygon {

	type ring struct {
		r    orb.Ring
		area float64
	}

	var rings []ring
	var largest float64

	for _, path := range paths {
		if len(path) < 3 {
			continue
		}

		a := pathArea(path)

		if a == 0 {
			continue
		}

		rings = append(rings, ring{r: pathToRing(path, scale), area: a})

		if math.Abs(a) > math.Abs(largest) {
			largest = a
		}
	}

	var outers, holes []ring

	for _, r := range rings {
		if (r.area > 0) == (largest > 0) {
			outers = append(outers, r)
		} else {
			holes = append(holes, r)
		}
	}

	// deterministic output, largest polygon first
	sort.SliceStable(outers, func(i, j int) bool {
		return math.Abs(outers[i].area) > math.Abs(outers[j].area)
	})

	mp := make(orb.MultiPolygon, len(outers))

	for i, o := range outers {
		mp[i] = orb.Polygon{orientRing(o.r, true)}
	}

	for _, h := range holes {
		best := -1

		for i, o := range outers {
			if !planar.RingContains(o.r, h.r[0]) {
				continue
			}

			if best < 0 || math.Abs(o.area) < math.Abs(outers[best].area) {
				best = i
			}
		}

		if best >= 0 {
			mp[best] = append(mp[best], orientRing(h.r, false))
		}
	}

	return mp
}

// orientRing returns r wound counter-clockwise when ccw is set, clockwise
// otherwise.
func orientRing(r orb.Ring, ccw bool) orb.Ring {

	if (r.Orientation() == orb.CCW) != ccw {
		r = r.Clone()
		r.Reverse()
	}

	return r
}

func execute(ct clipper.ClipType, subject, clip orb.MultiPolygon) orb.MultiPolygon {

	scale := scaleFor(0, subject, clip)

	c := clipper.NewClipper(clipper.IoStrictlySimple)
	c.AddPaths(toPaths(subject, scale), clipper.PtSubject, true)

	if len(clip) > 0 {
		c.AddPaths(toPaths(clip, scale), clipper.PtClip, true)
	}

	solution, ok := c.Execute1(ct, clipper.PftNonZero, clipper.PftNonZero)

	if !ok {
		return nil
	}

	return fromPaths(solution, scale)
}

// Union dissolves the given polygons into non-overlapping polygons.
func Union(polys ...orb.Polygon) orb.MultiPolygon {

	if len(polys) == 0 {
		return nil
	}

	return execute(clipper.CtUnion, orb.MultiPolygon(polys), nil)
}

// UnionAll dissolves several multipolygons.
func UnionAll(mps ...orb.MultiPolygon) orb.MultiPolygon {

	var all []orb.Polygon

	for _, mp := range mps {
		all = append(all, mp...)
	}

	return Union(all...)
}

// Intersection returns the area covered by both a and b.
func Intersection(a, b orb.MultiPolygon) orb.MultiPolygon {

	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	return execute(clipper.CtIntersection, a, b)
}

// Difference returns the area of a not covered by b.
func Difference(a, b orb.MultiPolygon) orb.MultiPolygon {

	if len(a) == 0 {
		return nil
	}

	if len(b) == 0 {
		return execute(clipper.CtUnion, a, nil)
	}

	return execute(clipper.CtDifference, a, b)
}

// Buffer grows (d > 0) or shrinks (d < 0) polygons by distance d.
func Buffer(mp orb.MultiPolygon, d float64, join Join) orb.MultiPolygon {

	if len(mp) == 0 {
		return nil
	}

	if d == 0 {
		return execute(clipper.CtUnion, mp, nil)
	}

	scale := scaleFor(d, mp)

	co := clipper.NewClipperOffset()
	co.ArcTolerance = math.Max(0.25, math.Abs(d)*scale*0.002)

	for _, path := range toPaths(mp, scale) {
		co.AddPath(path, join.clipper(), clipper.EtClosedPolygon)
	}

	solution := co.Execute(d * scale)

	// offsetting may leave overlapping rings, dissolve them
	c := clipper.NewClipper(clipper.IoStrictlySimple)
	c.AddPaths(solution, clipper.PtSubject, true)
	dissolved, ok := c.Execute1(clipper.CtUnion, clipper.PftNonZero, clipper.PftNonZero)

	if !ok {
		return fromPaths(solution, scale)
	}

	return fromPaths(dissolved, scale)
}

// Open removes parts thinner than 2r by eroding then dilating by r.
func Open(mp orb.MultiPolygon, r float64, join Join) orb.MultiPolygon {
	return Buffer(Buffer(mp, -r, join), r, join)
}
