package postprocess

import (
	"fmt"
	"image"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/postprocess/result"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// DeepLabV3 decodes semantic segmentation logits of shape (1, C, H, W) where
// channel 0 is the background and channel i+1 is class i of the model
type DeepLabV3 struct {
	model   geoai.ModelInfo
	frame   Frame
	classes classFilter
	idGen   *result.IDGenerator
}

// NewDeepLabV3 returns an instance of the DeepLabV3 post processor
func NewDeepLabV3(m geoai.ModelInfo, f Frame) *DeepLabV3 {
	return &DeepLabV3{
		model:   m,
		frame:   f,
		classes: newClassFilter(m),
		idGen:   result.NewIDGenerator(),
	}
}

func (d *DeepLabV3) Model() geoai.ModelInfo {
	return d.model
}

func (d *DeepLabV3) InputName() string {
	return "input"
}

func (d *DeepLabV3) OutputNames() []string {
	return []string{"output"}
}

// Decode computes the label map of one tile and returns one polygon per
// connected region of every used class within the tile interior
func (d *DeepLabV3) Decode(outputs []geoai.Tensor) ([]result.Prediction, error) {

	t, err := findOutput(outputs, "output")

	if err != nil {
		return nil, err
	}

	labels, err := argmaxLabels(t)

	if err != nil {
		return nil, err
	}

	size := d.frame.TileSize
	k := d.frame.Overlap

	// label ids must not be blended, so resize with nearest neighbour
	tile := image.NewGray(image.Rect(0, 0, size, size))
	draw.NearestNeighbor.Scale(tile, tile.Bounds(), labels, labels.Bounds(), draw.Src, nil)

	interior := tile.SubImage(image.Rect(k, k, size-k, size-k)).(*image.Gray)
	side := size - 2*k
	buf := make([]uint8, 0, side*side)

	for y := 0; y < side; y++ {
		off := interior.PixOffset(k, k+y)
		buf = append(buf, interior.Pix[off:off+side]...)
	}

	labelMat, err := gocv.NewMatFromBytes(side, side, gocv.MatTypeCV8U, buf)

	if err != nil {
		return nil, fmt.Errorf("error creating label Mat: %w", err)
	}

	defer labelMat.Close()

	preds := make([]result.Prediction, 0)

	for i := range d.model.ClassNames {
		name, ok := d.classes.name(i)

		if !ok {
			continue
		}

		mask := gocv.NewMat()
		id := gocv.NewScalar(float64(i+1), 0, 0, 0)
		gocv.InRangeWithScalar(labelMat, id, id, &mask)

		for _, poly := range maskPolygons(mask, float64(k), float64(k)) {

			// too few points to be a valid outline
			if vertexCount(poly) < minContourPoints {
				continue
			}

			preds = append(preds, result.Prediction{
				ID:          d.idGen.Next(),
				Class:       i,
				ClassName:   name,
				Probability: 1,
				Box:         result.BoxOf(poly),
				Polygon:     poly,
			})
		}

		mask.Close()
	}

	return preds, nil
}

// argmaxLabels returns the index of the largest channel per pixel
func argmaxLabels(t geoai.Tensor) (*image.Gray, error) {

	if t.Rank() != 4 || len(t.Data) != t.Elements() {
		return nil, fmt.Errorf("output %s: expected rank 4 tensor, got %v", t.Name, t.Shape)
	}

	channels := int(t.Shape[1])
	h := int(t.Shape[2])
	w := int(t.Shape[3])

	if channels < 1 || channels > 256 {
		return nil, fmt.Errorf("output %s: unsupported channel count %d", t.Name, channels)
	}

	area := h * w
	labels := image.NewGray(image.Rect(0, 0, w, h))

	for p := 0; p < area; p++ {
		best := 0
		bestVal := t.Data[p]

		for c := 1; c < channels; c++ {
			if v := t.Data[c*area+p]; v > bestVal {
				best = c
				bestVal = v
			}
		}

		labels.Pix[p] = uint8(best)
	}

	return labels, nil
}
