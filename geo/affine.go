// Package geo converts between pixel, world file and CRS coordinates.
package geo

import (
	"fmt"
	"math"

	"github.com/ifaistartup/go-geoai"
	"github.com/paulmach/orb"
)

// AffineGeo maps pixel (x, y) to world (A*x + B*y + C, D*x + E*y + F). The
// coefficients follow the world file convention where (C, F) is the centre
// of the upper left pixel.
type AffineGeo struct {
	A float64 `json:"A"`
	B float64 `json:"B"`
	C float64 `json:"C"`
	D float64 `json:"D"`
	E float64 `json:"E"`
	F float64 `json:"F"`
}

// Identity is the affine that leaves pixel coordinates unchanged.
var Identity = AffineGeo{A: 1, E: 1}

// FromGDAL converts a GDAL geotransform, which references the outer corner
// of the upper left pixel, to world file coefficients.
func FromGDAL(gt [6]float64) AffineGeo {
	return AffineGeo{
		A: gt[1],
		B: gt[2],
		C: gt[0] + gt[1]/2 + gt[2]/2,
		D: gt[4],
		E: gt[5],
		F: gt[3] + gt[4]/2 + gt[5]/2,
	}
}

// GDAL returns the geotransform equivalent of a.
func (a AffineGeo) GDAL() [6]float64 {
	return [6]float64{
		a.C - a.A/2 - a.B/2, a.A, a.B,
		a.F - a.D/2 - a.E/2, a.D, a.E,
	}
}

// Det is the determinant of the linear part.
func (a AffineGeo) Det() float64 {
	return a.A*a.E - a.D*a.B
}

// PixelToWorld maps an image pixel coordinate to world coordinates.
func (a AffineGeo) PixelToWorld(x, y float64) (float64, float64) {
	return a.A*x + a.B*y + a.C, a.D*x + a.E*y + a.F
}

// WorldToPixel maps world coordinates back to pixel coordinates.
func (a AffineGeo) WorldToPixel(wx, wy float64) (float64, float64, error) {

	inv, err := a.Inverse()

	if err != nil {
		return 0, 0, err
	}

	x, y := inv.PixelToWorld(wx, wy)
	return x, y, nil
}

// Inverse returns the affine mapping world to pixel coordinates.
func (a AffineGeo) Inverse() (AffineGeo, error) {

	det := a.Det()

	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return AffineGeo{}, geoai.NewError(geoai.DegenerateTransform, "AffineGeo.Inverse",
			fmt.Errorf("determinant of %+v is %v", a, det))
	}

	ia := a.E / det
	ib := -a.B / det
	id := -a.D / det
	ie := a.A / det

	return AffineGeo{
		A: ia,
		B: ib,
		C: -(ia*a.C + ib*a.F),
		D: id,
		E: ie,
		F: -(id*a.C + ie*a.F),
	}, nil
}

// Apply maps every vertex of g through the affine.
func (a AffineGeo) Apply(g orb.Geometry) orb.Geometry {

	pt := func(p orb.Point) orb.Point {
		x, y := a.PixelToWorld(p[0], p[1])
		return orb.Point{x, y}
	}

	ring := func(r orb.Ring) orb.Ring {
		out := make(orb.Ring, len(r))
		for i, p := range r {
			out[i] = pt(p)
		}
		return out
	}

	poly := func(p orb.Polygon) orb.Polygon {
		out := make(orb.Polygon, len(p))
		for i, r := range p {
			out[i] = ring(r)
		}
		return out
	}

	switch g := g.(type) {
	case orb.Point:
		return pt(g)
	case orb.MultiPoint:
		out := make(orb.MultiPoint, len(g))
		for i, p := range g {
			out[i] = pt(p)
		}
		return out
	case orb.LineString:
		return orb.LineString(ring(orb.Ring(g)))
	case orb.Ring:
		return ring(g)
	case orb.Polygon:
		return poly(g)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for i, p := range g {
			out[i] = poly(p)
		}
		return out
	case orb.Bound:
		return poly(g.ToPolygon())
	case orb.Collection:
		out := make(orb.Collection, len(g))
		for i, m := range g {
			out[i] = a.Apply(m)
		}
		return out
	}

	return g
}

// ProjectPolygon maps a pixel polygon to world coordinates.
func (a AffineGeo) ProjectPolygon(p orb.Polygon) orb.Polygon {
	return a.Apply(p).(orb.Polygon)
}

// Footprint returns the world polygon covered by a width x height image.
func (a AffineGeo) Footprint(width, height int) orb.Polygon {

	// pixel centres sit half a pixel in from the outer edge
	corners := []orb.Point{
		{-0.5, -0.5},
		{float64(width) - 0.5, -0.5},
		{float64(width) - 0.5, float64(height) - 0.5},
		{-0.5, float64(height) - 0.5},
	}

	ring := make(orb.Ring, 0, 5)

	for _, c := range corners {
		x, y := a.PixelToWorld(c[0], c[1])
		ring = append(ring, orb.Point{x, y})
	}

	return orb.Polygon{append(ring, ring[0])}
}
