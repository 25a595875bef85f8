package postprocess

import (
	"fmt"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/postprocess/result"
)

// YOLOv8 defines the struct for YOLOv8 detection model post processing
type YOLOv8 struct {
	// Params are the Model configuration parameters
	Params  YOLOv8Params
	model   geoai.ModelInfo
	frame   Frame
	classes classFilter
	// idGen provides the next number for each prediction ID
	idGen *result.IDGenerator
}

// YOLOv8Params defines the struct containing the YOLOv8 parameters to use
// for post processing operations
type YOLOv8Params struct {
	// BoxThreshold is the minimum probability score required for a bounding box
	// region to be considered for processing
	BoxThreshold float32
	// NMSThreshold is the Non-Maximum Suppression threshold used for defining
	// the maximum allowed Intersection Over Union (IoU) between two
	// bounding boxes of the same class for both to be kept
	NMSThreshold float32
	// MaxObjectNumber is the maximum number of objects detected that can be
	// returned
	MaxObjectNumber int
}

// YOLOv8DetParams returns the parameters used for box detectors:
// - Box Threshold: 0.5
// - NMS Threshold: 0.7
// - Maximum Object Number: 300
func YOLOv8DetParams() YOLOv8Params {
	return YOLOv8Params{
		BoxThreshold:    0.5,
		NMSThreshold:    0.7,
		MaxObjectNumber: 300,
	}
}

// NewYOLOv8 returns an instance of the YOLOv8 post processor
func NewYOLOv8(m geoai.ModelInfo, f Frame, p YOLOv8Params) *YOLOv8 {
	return &YOLOv8{
		Params:  p,
		model:   m,
		frame:   f,
		classes: newClassFilter(m),
		idGen:   result.NewIDGenerator(),
	}
}

func (y *YOLOv8) Model() geoai.ModelInfo {
	return y.model
}

func (y *YOLOv8) InputName() string {
	return "images"
}

func (y *YOLOv8) OutputNames() []string {
	return []string{"output0"}
}

// Decode takes the model outputs of one tile and returns the detected boxes
// clipped to the tile interior
func (y *YOLOv8) Decode(outputs []geoai.Tensor) ([]result.Prediction, error) {

	t, err := findOutput(outputs, "output0")

	if err != nil {
		return nil, err
	}

	numClass := len(y.model.ClassNames)
	out, err := newYOLOOutput(t, 4+numClass)

	if err != nil {
		return nil, err
	}

	cands := detectCandidates(out, numClass, y.Params, y.frame.TileSize)
	lo, hi := y.frame.interior()

	preds := make([]result.Prediction, 0, len(cands))

	for _, c := range cands {
		name, ok := y.classes.name(c.class)

		if !ok {
			continue
		}

		box := result.BoxRect{
			Left:   clamp(c.box.Left, lo, hi),
			Right:  clamp(c.box.Right, lo, hi),
			Top:    clamp(c.box.Top, lo, hi),
			Bottom: clamp(c.box.Bottom, lo, hi),
		}

		// box lies entirely in the overlap margin
		if box.Empty() {
			continue
		}

		preds = append(preds, result.Prediction{
			ID:          y.idGen.Next(),
			Class:       c.class,
			ClassName:   name,
			Probability: c.prob,
			Box:         box,
			Polygon:     box.Polygon(),
		})
	}

	return preds, nil
}

// yoloOutput gives access to a YOLOv8 head output of shape
// (1, channels, anchors), exports with the transposed (1, anchors, channels)
// layout are accepted too
type yoloOutput struct {
	data       []float32
	channels   int
	anchors    int
	transposed bool
}

func newYOLOOutput(t geoai.Tensor, channels int) (yoloOutput, error) {

	if t.Rank() != 3 || len(t.Data) != t.Elements() {
		return yoloOutput{}, fmt.Errorf("output %s: expected rank 3 tensor, got %v", t.Name, t.Shape)
	}

	a, b := int(t.Shape[1]), int(t.Shape[2])

	switch {
	case a == channels:
		return yoloOutput{data: t.Data, channels: channels, anchors: b}, nil
	case b == channels:
		return yoloOutput{data: t.Data, channels: channels, anchors: a, transposed: true}, nil
	}

	return yoloOutput{}, fmt.Errorf("output %s: shape %v does not hold %d channels", t.Name, t.Shape, channels)
}

// at returns channel c of anchor i
func (o yoloOutput) at(c, i int) float32 {

	if o.transposed {
		return o.data[i*o.channels+c]
	}

	return o.data[c*o.anchors+i]
}

// candidate is a box kept after non maximum suppression
type candidate struct {
	// anchor is the output column the box was decoded from
	anchor int
	class  int
	prob   float32
	box    result.BoxRect
}

// detectCandidates decodes the boxes of a YOLOv8 head scoring above the box
// threshold, runs per class NMS and returns the survivors by descending
// score. Boxes are clamped to the tile.
func detectCandidates(out yoloOutput, numClass int, p YOLOv8Params, tileSize int) []candidate {

	var cands []candidate

	for i := 0; i < out.anchors; i++ {

		best := -1
		bestScore := p.BoxThreshold

		for c := 0; c < numClass; c++ {
			if score := out.at(4+c, i); score > bestScore {
				best, bestScore = c, score
			}
		}

		if best < 0 {
			continue
		}

		cx, cy := float64(out.at(0, i)), float64(out.at(1, i))
		w, h := float64(out.at(2, i)), float64(out.at(3, i))

		cands = append(cands, candidate{
			anchor: i,
			class:  best,
			prob:   bestScore,
			box:    result.BoxRect{Left: cx - w/2, Top: cy - h/2, Right: cx + w/2, Bottom: cy + h/2},
		})
	}

	cands = nms(cands, float64(p.NMSThreshold))

	if len(cands) > p.MaxObjectNumber {
		cands = cands[:p.MaxObjectNumber]
	}

	size := float64(tileSize)

	for i := range cands {
		b := &cands[i].box
		b.Left, b.Right = clamp(b.Left, 0, size), clamp(b.Right, 0, size)
		b.Top, b.Bottom = clamp(b.Top, 0, size), clamp(b.Bottom, 0, size)
	}

	return cands
}
