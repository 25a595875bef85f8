package postprocess

import (
	"math"
	"testing"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/postprocess/result"
)

// headTensor builds a (1, channels, anchors) tensor from per anchor columns
func headTensor(name string, columns [][]float32) geoai.Tensor {

	anchors := len(columns)
	channels := len(columns[0])
	data := make([]float32, channels*anchors)

	for i, col := range columns {
		for c, v := range col {
			data[c*anchors+i] = v
		}
	}

	return geoai.NewTensor(name, []int64{1, int64(channels), int64(anchors)}, data)
}

func boxEqual(a, b result.BoxRect) bool {
	const eps = 1e-4
	return math.Abs(a.Left-b.Left) < eps && math.Abs(a.Right-b.Right) < eps &&
		math.Abs(a.Top-b.Top) < eps && math.Abs(a.Bottom-b.Bottom) < eps
}

func detModel(used ...string) geoai.ModelInfo {
	return geoai.ModelInfo{
		Name:           "det",
		Type:           geoai.ModelDet,
		ClassNames:     []string{"buildings", "trees"},
		UsedClassNames: used,
		TileSize:       64,
		ScaleFactor:    1,
	}
}

func TestBoxIoU(t *testing.T) {

	box := func(l, t, r, b float64) result.BoxRect {
		return result.BoxRect{Left: l, Top: t, Right: r, Bottom: b}
	}

	tests := []struct {
		name string
		a    result.BoxRect
		b    result.BoxRect
		want float64
	}{
		{"identical", box(0, 0, 10, 10), box(0, 0, 10, 10), 1},
		{"disjoint", box(0, 0, 10, 10), box(20, 20, 30, 30), 0},
		{"half", box(0, 0, 10, 10), box(5, 0, 15, 10), 50.0 / 150.0},
		{"degenerate", box(0, 0, 0, 0), box(0, 0, 0, 0), 0},
	}

	for _, tc := range tests {
		if got := boxIoU(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Test failed for %s: expected %f, got %f", tc.name, tc.want, got)
		}
	}
}

func TestNMSIsPerClass(t *testing.T) {

	cands := []candidate{
		{anchor: 0, class: 0, prob: 0.6, box: result.BoxRect{Left: 1, Right: 11, Bottom: 10}},
		{anchor: 1, class: 0, prob: 0.9, box: result.BoxRect{Left: 0, Right: 10, Bottom: 10}},
		{anchor: 2, class: 1, prob: 0.5, box: result.BoxRect{Left: 1, Right: 11, Bottom: 10}},
	}

	kept := nms(cands, 0.5)

	if len(kept) != 2 || kept[0].anchor != 1 || kept[1].anchor != 2 {
		t.Errorf("Test failed: expected anchors [1 2], got %v", kept)
	}
}

func yoloColumns() [][]float32 {
	return [][]float32{
		// cx, cy, w, h, buildings, trees
		{30, 30, 20, 20, 0.9, 0},
		{31, 30, 20, 20, 0.8, 0},
		{4, 30, 6, 6, 0, 0.95},
		{60, 30, 10, 10, 0, 0.6},
		{40, 40, 10, 10, 0.2, 0.3},
	}
}

func TestYOLOv8Decode(t *testing.T) {

	a, err := NewAdapter(detModel(), 8)

	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}

	preds, err := a.Decode([]geoai.Tensor{headTensor("output0", yoloColumns())})

	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(preds) != 2 {
		t.Fatalf("Test failed: expected 2 predictions, got %d", len(preds))
	}

	want := []struct {
		class string
		box   result.BoxRect
	}{
		{"buildings", result.BoxRect{Left: 20, Right: 40, Top: 20, Bottom: 40}},
		{"trees", result.BoxRect{Left: 55, Right: 56, Top: 25, Bottom: 35}},
	}

	for i, w := range want {
		if preds[i].ClassName != w.class {
			t.Errorf("Test failed for prediction %d: expected class %s, got %s", i, w.class, preds[i].ClassName)
		}

		if !boxEqual(preds[i].Box, w.box) {
			t.Errorf("Test failed for prediction %d: expected box %+v, got %+v", i, w.box, preds[i].Box)
		}

		if len(preds[i].Polygon) != 1 || len(preds[i].Polygon[0]) != 5 {
			t.Errorf("Test failed for prediction %d: expected closed rectangle, got %v", i, preds[i].Polygon)
		}
	}

	if preds[0].ID == preds[1].ID {
		t.Errorf("Test failed: prediction IDs are not unique")
	}
}

func TestYOLOv8DecodeUsedClassesAndLayout(t *testing.T) {

	a, err := NewAdapter(detModel("trees"), 8)

	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}

	// transposed (1, anchors, channels) export
	cols := yoloColumns()
	data := make([]float32, 0)

	for _, c := range cols {
		data = append(data, c...)
	}

	out := geoai.NewTensor("output0", []int64{1, int64(len(cols)), 6}, data)

	preds, err := a.Decode([]geoai.Tensor{out})

	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(preds) != 1 || preds[0].ClassName != "trees" || preds[0].Class != 1 {
		t.Errorf("Test failed: expected a single trees prediction, got %+v", preds)
	}

	// wrong channel count is rejected
	bad := geoai.NewTensor("output0", []int64{1, 7, 1}, make([]float32, 7))

	if _, err := a.Decode([]geoai.Tensor{bad}); err == nil {
		t.Errorf("Test failed: expected error for mismatched output shape")
	}

	if _, err := a.Decode(nil); err == nil {
		t.Errorf("Test failed: expected error for missing output")
	}
}

func TestYOLOv8SegDecode(t *testing.T) {

	m := geoai.ModelInfo{
		Name:        "seg",
		Type:        geoai.ModelSegInstance,
		ClassNames:  []string{"buildings"},
		TileSize:    64,
		ScaleFactor: 1,
	}

	a, err := NewAdapter(m, 8)

	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}

	// cx, cy, w, h, score, mask coefficient
	head := headTensor("output0", [][]float32{
		{32, 32, 32, 32, 0.9, 1},
		{50, 12, 8, 8, 0.8, -1},
	})

	protos := make([]float32, 16*16)

	for i := range protos {
		protos[i] = 1
	}

	proto := geoai.NewTensor("output1", []int64{1, 1, 16, 16}, protos)

	preds, err := a.Decode([]geoai.Tensor{head, proto})

	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	// the second instance has an empty mask
	if len(preds) != 1 {
		t.Fatalf("Test failed: expected 1 prediction, got %d", len(preds))
	}

	want := result.BoxRect{Left: 16, Right: 47, Top: 16, Bottom: 47}

	if !boxEqual(preds[0].Box, want) {
		t.Errorf("Test failed: expected box %+v, got %+v", want, preds[0].Box)
	}

	if vertexCount(preds[0].Polygon) != 4 {
		t.Errorf("Test failed: expected 4 vertices, got %d", vertexCount(preds[0].Polygon))
	}

	if math.Abs(float64(preds[0].Probability)-0.9) > 1e-6 {
		t.Errorf("Test failed: expected probability 0.9, got %f", preds[0].Probability)
	}
}

func TestDeepLabDecode(t *testing.T) {

	m := geoai.ModelInfo{
		Name:        "roads",
		Type:        geoai.ModelSegSemantic,
		ClassNames:  []string{"roads", "tracks"},
		TileSize:    64,
		ScaleFactor: 1,
	}

	a, err := NewAdapter(m, 8)

	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}

	// background, roads, tracks logits on an 8x8 grid, roads fill cells 2..5
	const side = 8
	data := make([]float32, 3*side*side)

	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			p := y*side + x

			if x >= 2 && x <= 5 && y >= 2 && y <= 5 {
				data[side*side+p] = 5
			} else {
				data[p] = 5
			}
		}
	}

	out := geoai.NewTensor("output", []int64{1, 3, side, side}, data)

	preds, err := a.Decode([]geoai.Tensor{out})

	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(preds) != 1 {
		t.Fatalf("Test failed: expected 1 prediction, got %d", len(preds))
	}

	if preds[0].ClassName != "roads" || preds[0].Probability != 1 {
		t.Errorf("Test failed: expected roads with probability 1, got %s %f",
			preds[0].ClassName, preds[0].Probability)
	}

	want := result.BoxRect{Left: 16, Right: 47, Top: 16, Bottom: 47}

	if !boxEqual(preds[0].Box, want) {
		t.Errorf("Test failed: expected box %+v, got %+v", want, preds[0].Box)
	}
}

func TestNewAdapter(t *testing.T) {

	tests := []struct {
		typ     geoai.ModelType
		overlap int
		input   string
		outputs int
		fail    bool
	}{
		{geoai.ModelDet, 8, "images", 1, false},
		{"yolov8", 8, "images", 2, false},
		{"deeplabv3", 0, "input", 1, false},
		{geoai.ModelDet, 32, "", 0, true},
		{"unet", 8, "", 0, true},
	}

	for _, tc := range tests {
		m := detModel()
		m.Type = tc.typ

		a, err := NewAdapter(m, tc.overlap)

		if tc.fail {
			if err == nil {
				t.Errorf("Test failed for %s: expected error", tc.typ)
			}
			continue
		}

		if err != nil {
			t.Errorf("Test failed for %s: %v", tc.typ, err)
			continue
		}

		if a.InputName() != tc.input || len(a.OutputNames()) != tc.outputs {
			t.Errorf("Test failed for %s: got input %s outputs %v", tc.typ, a.InputName(), a.OutputNames())
		}
	}
}

func TestPredictionTranslate(t *testing.T) {

	box := result.BoxRect{Left: 1, Right: 3, Top: 2, Bottom: 4}
	p := result.Prediction{Box: box, Polygon: box.Polygon()}

	q := p.Translate(10, 20)

	if !boxEqual(q.Box, result.BoxRect{Left: 11, Right: 13, Top: 22, Bottom: 24}) {
		t.Errorf("Test failed: unexpected box %+v", q.Box)
	}

	if p.Polygon[0][0][0] != 1 {
		t.Errorf("Test failed: Translate modified the source polygon")
	}

	if q.Polygon[0][2][0] != 13 || q.Polygon[0][2][1] != 24 {
		t.Errorf("Test failed: unexpected vertex %v", q.Polygon[0][2])
	}
}
