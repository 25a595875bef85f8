package geoai

import (
	"fmt"
	"strconv"
)

// ModelType selects the adapter used to decode a model's outputs.
type ModelType string

const (
	// ModelDet is a YOLOv8 style box detector
	ModelDet ModelType = "det"
	// ModelSegInstance is a YOLOv8 style instance segmenter
	ModelSegInstance ModelType = "seg_instance"
	// ModelSegSemantic is a DeepLabv3 style semantic segmenter
	ModelSegSemantic ModelType = "seg_semantic"
)

// ParseModelType accepts the canonical names as well as the architecture
// names used in model repositories.
func ParseModelType(s string) (ModelType, error) {
	switch s {
	case "det", "yolov8_det":
		return ModelDet, nil
	case "seg_instance", "yolov8", "yolov8_seg":
		return ModelSegInstance, nil
	case "seg_semantic", "deeplabv3":
		return ModelSegSemantic, nil
	}
	return "", fmt.Errorf("unknown model type %q", s)
}

// ModelInfo describes a model served by the inference backend.
type ModelInfo struct {
	// Name of the model in the server's repository
	Name string
	Type ModelType
	// ClassNames the model was trained with, indexed by model class id
	ClassNames []string
	// UsedClassNames restricts the output to a subset of ClassNames, all
	// classes are used when empty
	UsedClassNames []string
	// TileSize is the square input size of the model
	TileSize int
	// ScaleFactor rescales the image before tiling, a value <= 0 fits the
	// whole image into a single tile
	ScaleFactor float64
	// BatchSize is the number of tiles sent in one request, defaults to 1
	BatchSize int
}

// Validate checks the model description is usable.
func (m ModelInfo) Validate() error {

	if m.Name == "" {
		return NewError(BadInput, "ModelInfo.Validate", fmt.Errorf("model name is empty"))
	}

	if _, err := ParseModelType(string(m.Type)); err != nil {
		return NewError(BadInput, "ModelInfo.Validate", err)
	}

	if m.TileSize <= 0 {
		return Errorf(BadInput, "ModelInfo.Validate", "model %s has tile size %d", m.Name, m.TileSize)
	}

	if len(m.ClassNames) == 0 {
		return Errorf(BadInput, "ModelInfo.Validate", "model %s has no class names", m.Name)
	}

	return nil
}

// SetKey is the key models are grouped under, "{scale_factor}_{tile_size}".
func (m ModelInfo) SetKey() string {
	return strconv.FormatFloat(m.ScaleFactor, 'g', -1, 64) + "_" + strconv.Itoa(m.TileSize)
}

// EffectiveClassNames returns the class names the model contributes to a
// run, ie. UsedClassNames restricted to ClassNames.
func (m ModelInfo) EffectiveClassNames() []string {

	if len(m.UsedClassNames) == 0 {
		return m.ClassNames
	}

	known := make(map[string]bool, len(m.ClassNames))

	for _, c := range m.ClassNames {
		known[c] = true
	}

	var out []string

	for _, c := range m.UsedClassNames {
		if known[c] {
			out = append(out, c)
		}
	}

	return out
}

// Batch returns the batch size with the default applied.
func (m ModelInfo) Batch() int {
	if m.BatchSize < 1 {
		return 1
	}
	return m.BatchSize
}

// ModelSet is every model sharing the same tile size and scale factor.
// Inference over an image is done once per set.
type ModelSet struct {
	Key         string
	TileSize    int
	ScaleFactor float64
	// Overlap is the context margin k in pixels on each side of a tile
	Overlap int
	Models  []ModelInfo
}

// GroupModelSets groups models by SetKey keeping first appearance order.
// The overlap of each set is int(tile_size * relativeOverlap).
func GroupModelSets(models []ModelInfo, relativeOverlap float64) []ModelSet {

	var sets []ModelSet
	index := make(map[string]int)

	for _, m := range models {
		key := m.SetKey()

		i, ok := index[key]

		if !ok {
			i = len(sets)
			index[key] = i
			sets = append(sets, ModelSet{
				Key:         key,
				TileSize:    m.TileSize,
				ScaleFactor: m.ScaleFactor,
				Overlap:     int(float64(m.TileSize) * relativeOverlap),
			})
		}

		sets[i].Models = append(sets[i].Models, m)
	}

	return sets
}

// CommonClassNames returns the ordered union of the effective class names of
// all models. A feature's ClassID is its index in this list.
func CommonClassNames(models []ModelInfo) []string {

	var names []string
	seen := make(map[string]bool)

	for _, m := range models {
		for _, c := range m.EffectiveClassNames() {
			if !seen[c] {
				seen[c] = true
				names = append(names, c)
			}
		}
	}

	return names
}

// ClassIndex returns the position of name in names or -1.
func ClassIndex(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
