package reconcile

import (
	"gocv.io/x/gocv"

	"github.com/paulmach/orb"
)

// ContentZone returns the outline of the non black part of an image, the
// largest external contour of the image thresholded at zero. It returns
// false when the image is entirely black.
func ContentZone(img gocv.Mat) (orb.Polygon, bool) {

	gray := gocv.NewMat()
	defer gray.Close()

	if img.Channels() == 1 {
		img.CopyTo(&gray)
	} else {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	}

	bin := gocv.NewMat()
	defer bin.Close()

	gocv.Threshold(gray, &bin, 0, 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(bin, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best := -1
	bestArea := 0.0

	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); best < 0 || a > bestArea {
			best = i
			bestArea = a
		}
	}

	if best < 0 {
		return nil, false
	}

	pts := contours.At(best).ToPoints()

	if len(pts) < 3 {
		return nil, false
	}

	ring := make(orb.Ring, 0, len(pts)+1)

	for _, p := range pts {
		ring = append(ring, orb.Point{float64(p.X), float64(p.Y)})
	}

	ring = append(ring, ring[0])

	return orb.Polygon{ring}, true
}

// Empty reports whether a tile holds no content, ie. every pixel is black
func Empty(tile gocv.Mat) bool {

	gray := gocv.NewMat()
	defer gray.Close()

	if tile.Channels() == 1 {
		return gocv.CountNonZero(tile) == 0
	}

	gocv.CvtColor(tile, &gray, gocv.ColorBGRToGray)

	return gocv.CountNonZero(gray) == 0
}
