package postprocess

import (
	"fmt"
	"image"
	"math"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/geom"
	"github.com/ifaistartup/go-geoai/postprocess/result"
	"github.com/paulmach/orb"
	"gocv.io/x/gocv"
)

// YOLOv8Seg defines the struct for YOLOv8Seg model inference post processing
type YOLOv8Seg struct {
	// Params are the Model configuration parameters
	Params  YOLOv8SegParams
	model   geoai.ModelInfo
	frame   Frame
	classes classFilter
	idGen   *result.IDGenerator
}

// YOLOv8SegParams defines the struct containing the YOLOv8Seg parameters to use
// for post processing operations
type YOLOv8SegParams struct {
	YOLOv8Params
	// Epsilon is the Douglas-Peucker tolerance in pixels applied to the
	// instance outlines
	Epsilon float64
	// ParallelBoxes is the number of boxes above which the mask coefficients
	// are multiplied with the prototypes on all CPUs
	ParallelBoxes int
}

// YOLOv8SegDefaultParams returns the parameters used for instance
// segmentation models:
// - Box Threshold: 0.15
// - NMS Threshold: 0.7
// - Maximum Object Number: 300
// - Epsilon: 0.3
func YOLOv8SegDefaultParams() YOLOv8SegParams {
	return YOLOv8SegParams{
		YOLOv8Params: YOLOv8Params{
			BoxThreshold:    0.15,
			NMSThreshold:    0.7,
			MaxObjectNumber: 300,
		},
		Epsilon:       0.3,
		ParallelBoxes: 6,
	}
}

// NewYOLOv8Seg returns an instance of the YOLOv8Seg post processor
func NewYOLOv8Seg(m geoai.ModelInfo, f Frame, p YOLOv8SegParams) *YOLOv8Seg {
	return &YOLOv8Seg{
		Params:  p,
		model:   m,
		frame:   f,
		classes: newClassFilter(m),
		idGen:   result.NewIDGenerator(),
	}
}

func (y *YOLOv8Seg) Model() geoai.ModelInfo {
	return y.model
}

func (y *YOLOv8Seg) InputName() string {
	return "images"
}

func (y *YOLOv8Seg) OutputNames() []string {
	return []string{"output0", "output1"}
}

// Decode takes the detection head output0 and the prototype masks output1 of
// one tile and returns an outline per instance. Masks are restricted to the
// instance box and the tile interior, instances whose outline has fewer than
// four vertices are dropped.
func (y *YOLOv8Seg) Decode(outputs []geoai.Tensor) ([]result.Prediction, error) {

	t0, err := findOutput(outputs, "output0")

	if err != nil {
		return nil, err
	}

	t1, err := findOutput(outputs, "output1")

	if err != nil {
		return nil, err
	}

	if t1.Rank() != 4 || len(t1.Data) != t1.Elements() {
		return nil, fmt.Errorf("output %s: expected rank 4 prototype tensor, got %v", t1.Name, t1.Shape)
	}

	protoChannel := int(t1.Shape[1])
	protoHeight := int(t1.Shape[2])
	protoWidth := int(t1.Shape[3])
	protoArea := protoHeight * protoWidth

	numClass := len(y.model.ClassNames)
	out, err := newYOLOOutput(t0, 4+numClass+protoChannel)

	if err != nil {
		return nil, err
	}

	cands := detectCandidates(out, numClass, y.Params.YOLOv8Params, y.frame.TileSize)

	// drop unused classes before computing masks
	kept := cands[:0]

	for _, c := range cands {
		if _, ok := y.classes.name(c.class); ok {
			kept = append(kept, c)
		}
	}

	boxesNum := len(kept)

	if boxesNum == 0 {
		return nil, nil
	}

	coeffs := make([]float32, boxesNum*protoChannel)

	for b, c := range kept {
		for k := 0; k < protoChannel; k++ {
			coeffs[b*protoChannel+k] = out.at(4+numClass+k, c.anchor)
		}
	}

	masks := make([]uint8, boxesNum*protoArea)

	protoMasks(coeffs, t1.Data, boxesNum, protoChannel, protoArea,
		maskWorkers(boxesNum, y.Params.ParallelBoxes), masks)

	preds := make([]result.Prediction, 0, boxesNum)

	for b, c := range kept {
		poly, ok, err := y.instancePolygon(masks[b*protoArea:(b+1)*protoArea],
			protoHeight, protoWidth, c.box)

		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		name, _ := y.classes.name(c.class)

		preds = append(preds, result.Prediction{
			ID:          y.idGen.Next(),
			Class:       c.class,
			ClassName:   name,
			Probability: c.prob,
			Box:         result.BoxOf(poly),
			Polygon:     poly,
		})
	}

	return preds, nil
}

// instancePolygon upsamples a prototype resolution mask to the tile, crops it
// to the instance box within the tile interior and returns the outline of
// its largest region
func (y *YOLOv8Seg) instancePolygon(protoMask []uint8, protoHeight, protoWidth int,
	box result.BoxRect) (orb.Polygon, bool, error) {

	size := y.frame.TileSize
	k := y.frame.Overlap

	x1 := maxInt(k, int(math.Floor(box.Left)))
	y1 := maxInt(k, int(math.Floor(box.Top)))
	x2 := minInt(size-k, int(math.Ceil(box.Right)))
	y2 := minInt(size-k, int(math.Ceil(box.Bottom)))

	if x2 <= x1 || y2 <= y1 {
		return nil, false, nil
	}

	src, err := gocv.NewMatFromBytes(protoHeight, protoWidth, gocv.MatTypeCV8U, protoMask)

	if err != nil {
		return nil, false, fmt.Errorf("error creating mask Mat: %w", err)
	}

	defer src.Close()

	full := gocv.NewMat()
	defer full.Close()

	gocv.Resize(src, &full, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)
	gocv.Threshold(full, &full, 127, maskValue, gocv.ThresholdBinary)

	roi := full.Region(image.Rect(x1, y1, x2, y2))
	defer roi.Close()

	crop := roi.Clone()
	defer crop.Close()

	poly, ok := largestPolygon(maskPolygons(crop, float64(x1), float64(y1)))

	if !ok {
		return nil, false, nil
	}

	poly = geom.Simplify(poly, y.Params.Epsilon)

	if vertexCount(poly) < minContourPoints {
		return nil, false, nil
	}

	return poly, true, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
