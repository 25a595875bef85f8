package render

import (
	"image"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/geom"
	"github.com/paulmach/orb"
	"gocv.io/x/gocv"
)

// DefaultAlpha is the opacity of feature masks
const DefaultAlpha = 0.4

// ringPoints converts a ring in pixel coordinates to image points
func ringPoints(r orb.Ring) []image.Point {

	pts := make([]image.Point, 0, len(r))

	for _, p := range r {
		pts = append(pts, image.Pt(int(p[0]+0.5), int(p[1]+0.5)))
	}

	return pts
}

// FeatureMask renders the polygon features as a transparent overlay on top
// of the whole image, holes are left unpainted
func FeatureMask(img *gocv.Mat, features []geoai.Feature, alpha float64) {

	// draw every mask on a copy and blend it back in one pass, pixels
	// outside the masks keep their values
	overlay := img.Clone()
	defer overlay.Close()

	for _, f := range features {
		for _, p := range geom.Polygons(f.Geometry) {
			if len(p) == 0 || len(p[0]) < 3 {
				continue
			}

			rings := make([][]image.Point, 0, len(p))

			for _, r := range p {
				rings = append(rings, ringPoints(r))
			}

			pv := gocv.NewPointsVectorFromPoints(rings)
			// even-odd filling of the rings leaves the holes out
			gocv.FillPoly(&overlay, pv, ClassColor(f.ClassID))
			pv.Close()
		}
	}

	gocv.AddWeighted(*img, 1-alpha, overlay, alpha, 0, img)
}

// FeatureOutline draws the exterior rings of the polygon features
func FeatureOutline(img *gocv.Mat, features []geoai.Feature, lineThickness int) {

	for _, f := range features {
		for _, p := range geom.Polygons(f.Geometry) {
			if len(p) == 0 || len(p[0]) < 2 {
				continue
			}

			pv := gocv.NewPointsVectorFromPoints([][]image.Point{ringPoints(p[0])})
			gocv.Polylines(img, pv, true, ClassColor(f.ClassID), lineThickness)
			pv.Close()
		}
	}
}
