package preprocess

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Resizer defines the struct used for rescaling a source image before it is
// tiled
type Resizer struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// scale is the factor applied to both axes
	scale float64
	// resize dimensions
	resizeW int
	resizeH int
}

// NewResizer returns a resizer scaling a srcWidth x srcHeight image by scale.
// A scale <= 0 fits the whole image into a single tileSize square.
func NewResizer(srcWidth, srcHeight, tileSize int, scale float64) *Resizer {
	r := &Resizer{
		srcWidth:  srcWidth,
		srcHeight: srcHeight,
		scale:     ScaleFactor(scale, srcWidth, srcHeight, tileSize),
	}

	// precalculate scaling dimensions
	r.resizeW = int(math.Round(float64(srcWidth) * r.scale))
	r.resizeH = int(math.Round(float64(srcHeight) * r.scale))

	if r.resizeW < 1 {
		r.resizeW = 1
	}

	if r.resizeH < 1 {
		r.resizeH = 1
	}

	return r
}

// ScaleFactor resolves the scale of a model set, a value <= 0 means the
// largest factor fitting the image into one tile.
func ScaleFactor(scale float64, width, height, tileSize int) float64 {

	if scale > 0 {
		return scale
	}

	return math.Min(float64(tileSize)/float64(height), float64(tileSize)/float64(width))
}

// Resize scales src into dest. Area interpolation is used when shrinking and
// linear interpolation when enlarging.
func (r *Resizer) Resize(src gocv.Mat, dest *gocv.Mat) {

	if r.resizeW == src.Cols() && r.resizeH == src.Rows() {
		src.CopyTo(dest)
		return
	}

	interp := gocv.InterpolationArea

	if r.scale > 1 {
		interp = gocv.InterpolationLinear
	}

	gocv.Resize(src, dest, image.Pt(r.resizeW, r.resizeH), 0, 0, interp)
}

// ToSource maps a coordinate of the resized image back to the source image.
func (r *Resizer) ToSource(x, y float64) (float64, float64) {
	return x / r.scale, y / r.scale
}

// ScaleFactor returns the scale factor applied by the resize
func (r *Resizer) ScaleFactor() float64 {
	return r.scale
}

// Width returns the width of the resized image
func (r *Resizer) Width() int {
	return r.resizeW
}

// Height returns the height of the resized image
func (r *Resizer) Height() int {
	return r.resizeH
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}
