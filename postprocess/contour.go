package postprocess

import (
	"image"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gocv.io/x/gocv"
)

// minContourPoints is the smallest number of distinct vertices a contour
// needs to be kept as a polygon
const minContourPoints = 4

// maskPolygons traces the outlines of the non zero regions of a binary mask.
// Each outer contour becomes a polygon holding its holes, coordinates are
// shifted by dx, dy.
func maskPolygons(mask gocv.Mat, dx, dy float64) []orb.Polygon {

	hierarchy := gocv.NewMat()
	defer hierarchy.Close()

	contours := gocv.FindContoursWithParams(mask, &hierarchy,
		gocv.RetrievalCComp, gocv.ChainApproxSimple)
	defer contours.Close()

	n := contours.Size()

	if n == 0 || hierarchy.Empty() {
		return nil
	}

	polys := make([]orb.Polygon, 0)
	outers := make(map[int]int)

	// hierarchy entries are [next, previous, first child, parent]
	for i := 0; i < n; i++ {
		h := hierarchy.GetVeciAt(0, i)

		if h[3] != -1 {
			continue
		}

		outers[i] = len(polys)
		polys = append(polys, orb.Polygon{contourRing(contours.At(i).ToPoints(), dx, dy)})
	}

	for i := 0; i < n; i++ {
		h := hierarchy.GetVeciAt(0, i)

		if h[3] == -1 {
			continue
		}

		j, ok := outers[int(h[3])]

		if !ok {
			continue
		}

		hole := contourRing(contours.At(i).ToPoints(), dx, dy)

		if len(hole) < 4 {
			continue
		}

		polys[j] = append(polys[j], hole)
	}

	return polys
}

// contourRing converts contour points to a closed ring
func contourRing(pts []image.Point, dx, dy float64) orb.Ring {

	ring := make(orb.Ring, 0, len(pts)+1)

	for _, p := range pts {
		ring = append(ring, orb.Point{float64(p.X) + dx, float64(p.Y) + dy})
	}

	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}

	return ring
}

// vertexCount returns the number of distinct vertices of the exterior ring
func vertexCount(p orb.Polygon) int {

	if len(p) == 0 {
		return 0
	}

	r := p[0]

	if len(r) > 1 && r[0] == r[len(r)-1] {
		return len(r) - 1
	}

	return len(r)
}

// largestPolygon returns the polygon with the largest exterior area
func largestPolygon(polys []orb.Polygon) (orb.Polygon, bool) {

	best := -1
	bestArea := -1.0

	for i, p := range polys {
		a := planar.Area(p[0])

		if a < 0 {
			a = -a
		}

		if a > bestArea {
			best = i
			bestArea = a
		}
	}

	if best < 0 {
		return nil, false
	}

	return polys[best], true
}
