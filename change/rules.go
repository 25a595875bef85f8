package change

import (
	"math"
	"sort"

	"github.com/ifaistartup/go-geoai/geom"
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

const (
	// an area ratio inside (unchangedLow, unchangedHigh) keeps a polygon
	// unchanged
	unchangedLow  = 0.8
	unchangedHigh = 1.2
)

// anchor returns the point a geometry is matched by
func anchor(g orb.Geometry) orb.Point {

	if p, ok := g.(orb.Point); ok {
		return p
	}

	c, _ := planar.CentroidArea(g)

	return c
}

// ComparePoints matches every old point, in order, with the closest
// unmatched new point within eps metres. Distances of geographic layers are
// haversine distances.
func ComparePoints(old, new []Object, eps float64, geographic bool) map[Status][]Entry {

	out := make(map[Status][]Entry)

	pts := make([]orb.Point, len(new))
	bounds := make([]orb.Bound, len(new))

	for i, o := range new {
		pts[i] = anchor(o.Geometry)
		bounds[i] = pts[i].Bound()
	}

	idx := geom.NewIndex(bounds)
	matched := make([]bool, len(new))

	var hits []int

	for _, o := range old {
		p := anchor(o.Geometry)

		var search orb.Bound
		var dist func(a, b orb.Point) float64

		if geographic {
			search = orbgeo.BoundPad(p.Bound(), eps)
			dist = orbgeo.DistanceHaversine
		} else {
			search = p.Bound().Pad(eps)
			dist = planar.Distance
		}

		hits = idx.Search(search, hits)
		sort.Ints(hits)

		best := -1
		bestDist := math.Inf(1)

		for _, j := range hits {
			if matched[j] {
				continue
			}

			if d := dist(p, pts[j]); d <= eps && d < bestDist {
				best, bestDist = j, d
			}
		}

		if best < 0 {
			out[Deleted] = append(out[Deleted], Entry{Geometry: o.Geometry, NameOld: o.Name})
			continue
		}

		matched[best] = true
		out[Unchanged] = append(out[Unchanged], Entry{
			Geometry: o.Geometry,
			NameOld:  o.Name,
			NameNew:  new[best].Name,
		})
	}

	for j, o := range new {
		if !matched[j] {
			out[Added] = append(out[Added], Entry{Geometry: o.Geometry, NameNew: o.Name})
		}
	}

	return out
}

func multi(g orb.Geometry) orb.MultiPolygon {
	return orb.MultiPolygon(geom.Polygons(g))
}

type candidate struct {
	index int
	ratio float64
}

// ComparePolygons pairs every old polygon with the unmatched new polygon
// covering the largest share of it, provided that share exceeds ratio.
// Pairs of similar area are unchanged, other pairs are changed and keep the
// larger polygon.
func ComparePolygons(old, new []Object, ratio float64) map[Status][]Entry {

	out := make(map[Status][]Entry)

	polys := make([]orb.MultiPolygon, len(new))
	areas := make([]float64, len(new))
	bounds := make([]orb.Bound, len(new))

	for i, o := range new {
		polys[i] = multi(o.Geometry)
		areas[i] = geom.Area(polys[i])
		bounds[i] = o.Geometry.Bound()
	}

	idx := geom.NewIndex(bounds)
	matched := make([]bool, len(new))

	var hits []int

	for _, o := range old {
		op := multi(o.Geometry)
		area := geom.Area(op)

		var cands []candidate

		if area > 0 {
			hits = idx.Search(o.Geometry.Bound(), hits)

			for _, j := range hits {
				r := geom.Area(geom.Intersection(op, polys[j])) / area

				if r > ratio {
					cands = append(cands, candidate{index: j, ratio: r})
				}
			}
		}

		sort.SliceStable(cands, func(a, b int) bool {
			if cands[a].ratio != cands[b].ratio {
				return cands[a].ratio > cands[b].ratio
			}
			return cands[a].index < cands[b].index
		})

		pair := -1

		for _, c := range cands {
			if !matched[c.index] {
				pair = c.index
				break
			}
		}

		if pair < 0 {
			out[Deleted] = append(out[Deleted], Entry{Geometry: o.Geometry, NameOld: o.Name})
			continue
		}

		matched[pair] = true
		e := Entry{Geometry: o.Geometry, NameOld: o.Name, NameNew: new[pair].Name}

		if q := areas[pair] / area; q > unchangedLow && q < unchangedHigh {
			out[Unchanged] = append(out[Unchanged], e)
			continue
		}

		if areas[pair] > area {
			e.Geometry = new[pair].Geometry
		}

		out[Changed] = append(out[Changed], e)
	}

	for j, o := range new {
		if !matched[j] {
			out[Added] = append(out[Added], Entry{Geometry: o.Geometry, NameNew: o.Name})
		}
	}

	return out
}

// CompareRoads dissolves both layers and splits them into the removed, kept
// and new surface. Removed and new surfaces are opened by r to drop slivers
// along unchanged edges.
func CompareRoads(old, new []Object, r float64) map[Status][]Entry {

	dissolve := func(objs []Object) orb.MultiPolygon {
		mps := make([]orb.MultiPolygon, len(objs))
		for i, o := range objs {
			mps[i] = multi(o.Geometry)
		}
		return geom.UnionAll(mps...)
	}

	o := dissolve(old)
	n := dissolve(new)

	buckets := map[Status]orb.MultiPolygon{
		Deleted:   geom.Open(geom.Difference(o, n), r, geom.JoinSquare),
		Unchanged: geom.Intersection(o, n),
		Added:     geom.Open(geom.Difference(n, o), r, geom.JoinSquare),
	}

	out := make(map[Status][]Entry)

	for s, mp := range buckets {
		for _, p := range mp {
			if geom.Area(p) > 0 {
				out[s] = append(out[s], Entry{Geometry: p})
			}
		}
	}

	return out
}
