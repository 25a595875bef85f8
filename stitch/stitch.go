// Package stitch joins per tile polygons of one class into whole objects.
//
// Tiles only keep predictions inside their authoritative interior, so an
// object crossing a seam arrives as one piece per tile. Pieces of right and
// lower neighbour tiles that face each other across the seam are bridged by
// the convex hull of their close point pairs and everything is dissolved.
package stitch

import (
	"image"
	"sort"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/config"
	"github.com/ifaistartup/go-geoai/geom"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/ifaistartup/go-geoai/preprocess"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"
)

const logTag = "stitch: "

// Piece is a polygon predicted in one tile, in source image coordinates
type Piece struct {
	Tile       geoai.TileID
	Polygon    orb.Polygon
	Confidence float64
}

// Object is a stitched polygon with the tiles and best confidence of the
// pieces it was made from
type Object struct {
	Polygon    orb.Polygon
	Confidence float64
	Tiles      []geoai.TileID
}

// Params control the stitching of one class
type Params struct {
	// EdgeVicinity is the distance in pixels within which a piece counts as
	// touching a neighbour tile, and within which two pieces may be joined
	EdgeVicinity float64
	// Vicinity bounds the distance of the point pairs bridging two pieces
	Vicinity float64
	// Surface enables the treatment of stuff classes
	Surface bool
	// Shrink erodes surface pieces before joining
	Shrink float64
	// OpenRadius erodes the joined surfaces further, splitting them at thin
	// necks
	OpenRadius float64
	// Buffer grows the largest part of each eroded surface back
	Buffer float64
}

// ParamsFor returns the parameters for class, road like classes use the wider
// road vicinities
func ParamsFor(c config.StitchConfig, class string, stuff []string) Params {

	p := Params{
		EdgeVicinity: c.EdgeVicinity,
		Vicinity:     c.Vicinity,
	}

	if kind, _ := geoai.ClassKindOf(class); kind == geoai.RoadClass {
		p.EdgeVicinity = c.RoadEdgeVicinity
		p.Vicinity = c.RoadVicinity
	}

	if geoai.IsStuff(class, stuff) {
		p.Surface = true
		p.Shrink = c.PieceShrink
		p.OpenRadius = c.OpenRadius
		p.Buffer = c.RoadBuffer
	}

	return p
}

// Stitcher joins pieces over the tile grid of a layout. Pieces and params are
// in source pixels, the layout is in pixels of the image scaled by scale.
type Stitcher struct {
	layout preprocess.Layout
	scale  float64
}

// New returns a stitcher for the tile grid of l, cut from the source image
// scaled by scale
func New(l preprocess.Layout, scale float64) *Stitcher {

	if scale <= 0 {
		scale = 1
	}

	return &Stitcher{layout: l, scale: scale}
}

// interior returns the interior of a tile in source pixels as a closed bound
func (s *Stitcher) interior(t geoai.TileID) orb.Bound {
	r := s.layout.Interior(t.Row, t.Col)
	return rectBound(r, s.scale)
}

func rectBound(r image.Rectangle, scale float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(r.Min.X) / scale, float64(r.Min.Y) / scale},
		Max: orb.Point{float64(r.Max.X) / scale, float64(r.Max.Y) / scale},
	}
}

func (s *Stitcher) inGrid(t geoai.TileID) bool {
	return t.Row >= 0 && t.Col >= 0 && t.Row < s.layout.Rows && t.Col < s.layout.Cols
}

// Join stitches the pieces of a single class. The result does not depend on
// the order of pieces.
func (s *Stitcher) Join(pieces []Piece, p Params) []Object {

	valid := s.prepare(pieces, p)

	if len(valid) == 0 {
		return nil
	}

	bounds := make([]orb.Bound, len(valid))
	byTile := make(map[geoai.TileID][]int)

	for i, pc := range valid {
		bounds[i] = pc.Polygon.Bound()
		byTile[pc.Tile] = append(byTile[pc.Tile], i)
	}

	idx := geom.NewIndex(bounds)

	polys := make([]orb.Polygon, 0, len(valid))

	for _, pc := range valid {
		polys = append(polys, pc.Polygon)
	}

	joins := 0
	var results []int

	for row := 0; row < s.layout.Rows; row++ {
		for col := 0; col < s.layout.Cols; col++ {
			tile := geoai.TileID{Row: row, Col: col}

			if len(byTile[tile]) == 0 {
				continue
			}

			for _, nb := range []geoai.TileID{{Row: row, Col: col + 1}, {Row: row + 1, Col: col}} {

				if !s.inGrid(nb) || len(byTile[nb]) == 0 {
					continue
				}

				edge := s.edgeCandidates(idx, valid, tile, nb, p.EdgeVicinity, results)

				for _, a := range edge {
					for _, b := range byTile[nb] {

						if polygonDistance(valid[a].Polygon, valid[b].Polygon) > p.EdgeVicinity {
							continue
						}

						hull := joiningPolygon(valid[a].Polygon, valid[b].Polygon, p.Vicinity)

						if hull == nil {
							continue
						}

						polys = append(polys, orb.Polygon{hull})
						joins++
					}
				}
			}
		}
	}

	merged := geom.Polygons(geom.Union(polys...))

	if p.Surface {
		merged = surface(merged, p)
	}

	log.Debug(logTag+"joined tiles", zap.Int("pieces", len(valid)),
		zap.Int("joins", joins), zap.Int("objects", len(merged)))

	return attribute(merged, valid, idx, p.Surface)
}

// prepare repairs the pieces and shrinks surfaces, pieces that cannot be
// repaired are dropped
func (s *Stitcher) prepare(pieces []Piece, p Params) []Piece {

	out := make([]Piece, 0, len(pieces))

	for _, pc := range pieces {
		poly, err := geom.Repair(pc.Polygon)

		if err != nil {
			log.Debug(logTag+"dropping piece", zap.Int("row", pc.Tile.Row),
				zap.Int("col", pc.Tile.Col), zap.Error(err))
			continue
		}

		if !p.Surface || p.Shrink <= 0 {
			pc.Polygon = poly
			out = append(out, pc)
			continue
		}

		for _, shrunk := range geom.Buffer(orb.MultiPolygon{poly}, -p.Shrink, geom.JoinRound) {
			out = append(out, Piece{Tile: pc.Tile, Polygon: shrunk, Confidence: pc.Confidence})
		}
	}

	return out
}

// edgeCandidates returns the pieces of tile whose bounds, grown by vicinity
// toward nb, reach the interior of nb
func (s *Stitcher) edgeCandidates(idx *geom.Index, pieces []Piece, tile, nb geoai.TileID,
	vicinity float64, results []int) []int {

	area := s.interior(nb)

	if nb.Col > tile.Col {
		area.Min[0] -= vicinity
	} else {
		area.Min[1] -= vicinity
	}

	results = idx.Search(area, results)
	out := make([]int, 0, len(results))

	for _, i := range results {
		if pieces[i].Tile == tile {
			out = append(out, i)
		}
	}

	sort.Ints(out)

	return out
}

// polygonDistance is the smallest distance between the vertices of one
// polygon and the other polygon. Pieces of different tiles never cross, so
// this equals the distance between the polygons.
func polygonDistance(a, b orb.Polygon) float64 {

	best := -1.0

	for _, pair := range [2][2]orb.Polygon{{a, b}, {b, a}} {
		for _, r := range pair[0] {
			for _, v := range r {
				d := planar.Distance(v, geom.NearestPoint(v, pair[1]))

				if best < 0 || d < best {
					best = d
				}

				if best == 0 {
					return 0
				}
			}
		}
	}

	return best
}

// joiningPolygon returns the convex hull of the vertices of a and b that lie
// within vicinity of the other polygon together with their nearest points.
// At least two such pairs are required.
func joiningPolygon(a, b orb.Polygon, vicinity float64) orb.Ring {

	points := make([]orb.Point, 0)
	pairs := 0

	for _, pair := range [2][2]orb.Polygon{{a, b}, {b, a}} {
		for _, v := range pair[0][0] {
			q := geom.NearestPoint(v, pair[1])

			if planar.Distance(v, q) < vicinity {
				points = append(points, v, q)
				pairs++
			}
		}
	}

	if pairs < 2 {
		return nil
	}

	return geom.ConvexHull(points)
}

// surface erodes joined stuff polygons by the open radius, keeps the largest
// part of a polygon split by the erosion and grows it by the buffer. Thin
// artifacts vanish and the seams healed by the join stay filled.
func surface(polys []orb.Polygon, p Params) []orb.Polygon {

	out := make([]orb.Polygon, 0, len(polys))

	for _, poly := range polys {
		g := orb.MultiPolygon{poly}

		if p.OpenRadius > 0 {
			g = geom.Buffer(g, -p.OpenRadius, geom.JoinRound)
		}

		largest, ok := geom.Largest(g)

		if !ok || geom.Area(largest) == 0 {
			continue
		}

		if p.Buffer > 0 {
			grown, ok := geom.Largest(geom.Buffer(orb.MultiPolygon{largest}, p.Buffer, geom.JoinRound))

			if !ok {
				continue
			}

			largest = grown
		}

		out = append(out, largest)
	}

	return out
}

// attribute links every stitched polygon back to the pieces it covers
func attribute(polys []orb.Polygon, pieces []Piece, idx *geom.Index, surface bool) []Object {

	objects := make([]Object, 0, len(polys))
	var results []int

	for _, poly := range polys {
		obj := Object{Polygon: poly}
		seen := make(map[geoai.TileID]bool)

		results = idx.Search(poly.Bound(), results)
		sort.Ints(results)

		for _, i := range results {
			pc := pieces[i]

			if !surface && !covers(poly, pc.Polygon[0][0]) {
				continue
			}

			if pc.Confidence > obj.Confidence {
				obj.Confidence = pc.Confidence
			}

			if !seen[pc.Tile] {
				seen[pc.Tile] = true
				obj.Tiles = append(obj.Tiles, pc.Tile)
			}
		}

		sort.Slice(obj.Tiles, func(i, j int) bool {
			if obj.Tiles[i].Row != obj.Tiles[j].Row {
				return obj.Tiles[i].Row < obj.Tiles[j].Row
			}
			return obj.Tiles[i].Col < obj.Tiles[j].Col
		})

		objects = append(objects, obj)
	}

	return objects
}

// covers reports whether pt is inside poly or within half a pixel of it,
// vertices move slightly when dissolved
func covers(poly orb.Polygon, pt orb.Point) bool {
	return planar.PolygonContains(poly, pt) || planar.Distance(pt, geom.NearestPoint(pt, poly)) < 0.5
}
