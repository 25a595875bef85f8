package render

import (
	"fmt"

	"github.com/ifaistartup/go-geoai"
	"gocv.io/x/gocv"
)

// Draw paints the features, in pixel coordinates, on img: translucent
// masks first, then outlines, boxes and labels
func Draw(img *gocv.Mat, features []geoai.Feature, alpha float64) {

	FeatureMask(img, features, alpha)
	FeatureOutline(img, features, 2)
	FeatureBoxes(img, features, DefaultLabelStyle(), 2)
}

// Visualize reads the source image, draws the features on it and writes
// the result to dst as JPEG
func Visualize(src, dst string, features []geoai.Feature) error {

	img := gocv.IMRead(src, gocv.IMReadColor)

	if img.Empty() {
		return geoai.Errorf(geoai.BadInput, "render.Visualize", "error reading image %s", src)
	}

	defer img.Close()

	Draw(&img, features, DefaultAlpha)

	if !gocv.IMWrite(dst, img) {
		return fmt.Errorf("error writing visualization %s", dst)
	}

	return nil
}
