// Package postprocess decodes the raw output tensors of the supported model
// architectures into per tile predictions.
package postprocess

import (
	"fmt"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/postprocess/result"
)

// Frame describes the tile a model was run on
type Frame struct {
	// TileSize is the square size of the tile in pixels
	TileSize int
	// Overlap is the context margin on each side of the tile, predictions
	// are only kept in [Overlap, TileSize-Overlap)
	Overlap int
}

// interior returns the authoritative range of the tile on both axes
func (f Frame) interior() (float64, float64) {
	return float64(f.Overlap), float64(f.TileSize - f.Overlap)
}

// Adapter decodes the outputs of one model for a single tile
type Adapter interface {
	// Model returns the description of the model decoded
	Model() geoai.ModelInfo
	// InputName is the name of the model input tensor
	InputName() string
	// OutputNames are the names of the output tensors Decode needs
	OutputNames() []string
	// Decode turns the outputs of one image into predictions, the outputs
	// must have a leading batch dimension of 1
	Decode(outputs []geoai.Tensor) ([]result.Prediction, error)
}

type adapterFactory func(m geoai.ModelInfo, f Frame) Adapter

// adapters maps a model type to the decoder of its outputs. Supporting a new
// architecture adds an entry here.
var adapters = map[geoai.ModelType]adapterFactory{
	geoai.ModelDet: func(m geoai.ModelInfo, f Frame) Adapter {
		return NewYOLOv8(m, f, YOLOv8DetParams())
	},
	geoai.ModelSegInstance: func(m geoai.ModelInfo, f Frame) Adapter {
		return NewYOLOv8Seg(m, f, YOLOv8SegDefaultParams())
	},
	geoai.ModelSegSemantic: func(m geoai.ModelInfo, f Frame) Adapter {
		return NewDeepLabV3(m, f)
	},
}

// NewAdapter returns the decoder for the model's type
func NewAdapter(m geoai.ModelInfo, overlap int) (Adapter, error) {

	if err := m.Validate(); err != nil {
		return nil, err
	}

	t, err := geoai.ParseModelType(string(m.Type))

	if err != nil {
		return nil, geoai.NewError(geoai.BadInput, "postprocess.NewAdapter", err)
	}

	factory, ok := adapters[t]

	if !ok {
		return nil, geoai.Errorf(geoai.BadInput, "postprocess.NewAdapter",
			"no adapter for model type %q", t)
	}

	if overlap < 0 || 2*overlap >= m.TileSize {
		return nil, geoai.Errorf(geoai.BadInput, "postprocess.NewAdapter",
			"overlap %d does not fit tile size %d", overlap, m.TileSize)
	}

	return factory(m, Frame{TileSize: m.TileSize, Overlap: overlap}), nil
}

// classFilter resolves model class ids to names and drops classes outside of
// the model's used class names
type classFilter struct {
	names []string
	used  map[string]bool
}

func newClassFilter(m geoai.ModelInfo) classFilter {

	used := make(map[string]bool)

	for _, c := range m.EffectiveClassNames() {
		used[c] = true
	}

	return classFilter{names: m.ClassNames, used: used}
}

// name returns the class name of id and whether it is kept
func (c classFilter) name(id int) (string, bool) {

	if id < 0 || id >= len(c.names) {
		return "", false
	}

	n := c.names[id]

	return n, n != "" && c.used[n]
}

// findOutput returns the output tensor called name
func findOutput(outputs []geoai.Tensor, name string) (geoai.Tensor, error) {

	for _, o := range outputs {
		if o.Name == name {
			return o, nil
		}
	}

	return geoai.Tensor{}, fmt.Errorf("model output %q missing", name)
}
