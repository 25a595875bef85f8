package dispatch

import (
	"context"
	"errors"
	"image"
	"math"
	"sort"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/config"
)

func buildingModel() geoai.ModelInfo {
	return geoai.ModelInfo{
		Name:        "buildings-det",
		Type:        geoai.ModelDet,
		ClassNames:  []string{"buildings"},
		TileSize:    64,
		ScaleFactor: 1,
		BatchSize:   4,
	}
}

// centreBox answers every image with one 10x10 box in the tile centre
func centreBox(model string, inputs []geoai.Tensor) ([]geoai.Tensor, error) {

	n := int(inputs[0].Shape[0])
	data := make([]float32, 0, n*5)

	for i := 0; i < n; i++ {
		data = append(data, 32, 32, 10, 10, 0.9)
	}

	return []geoai.Tensor{geoai.NewTensor("output0", []int64{int64(n), 5, 1}, data)}, nil
}

func newMock() *geoai.MockBackend {

	b := geoai.NewMockBackend()
	b.Register("buildings-det", geoai.ModelConfig{
		MaxBatchSize: 4,
		Inputs:       []geoai.TensorConfig{{Name: "images", DataType: "FP32", Dims: []int64{3, 64, 64}}},
	}, centreBox)

	return b
}

func testSetup(b geoai.Backend) (*Dispatcher, []geoai.ModelSet) {

	models := []geoai.ModelInfo{buildingModel()}
	sets := geoai.GroupModelSets(models, 0.125)

	c := config.Defaults()
	d := New(b, c.Stitch, c.Reconcile.StuffClasses, geoai.CommonClassNames(models))

	return d, sets
}

func greyImage() gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(100, 100, 100, 0), 100, 200, gocv.MatTypeCV8UC3)
}

func TestRun(t *testing.T) {

	b := newMock()
	d, sets := testSetup(b)

	if len(sets) != 1 || sets[0].Overlap != 8 {
		t.Fatalf("Test failed: unexpected model sets %+v", sets)
	}

	img := greyImage()
	defer img.Close()

	features, err := d.Run(context.Background(), img, sets)

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 5x3 tiles of 48 px, boxes of the last row and column fall in the padding
	if len(features) != 8 {
		t.Fatalf("Test failed: expected 8 features, got %d", len(features))
	}

	if calls := b.Calls("buildings-det"); calls != 4 {
		t.Errorf("Test failed: expected 4 infer calls for 15 tiles, got %d", calls)
	}

	for i, f := range features {
		if f.ObjectNum != i {
			t.Errorf("Test failed for feature %d: object number %d", i, f.ObjectNum)
		}

		if f.ClassName != "buildings" || f.ClassID != 0 {
			t.Errorf("Test failed for feature %d: class %s (%d)", i, f.ClassName, f.ClassID)
		}

		w := f.Bound.Max[0] - f.Bound.Min[0]
		h := f.Bound.Max[1] - f.Bound.Min[1]

		if math.Abs(w-10) > 1e-6 || math.Abs(h-10) > 1e-6 {
			t.Errorf("Test failed for feature %d: expected 10x10 box, got %+v", i, f.Bound)
		}

		if f.Bound.Max[0] > 200 || f.Bound.Max[1] > 100 {
			t.Errorf("Test failed for feature %d: box outside the image %+v", i, f.Bound)
		}

		if len(f.SourceTiles) != 1 {
			t.Errorf("Test failed for feature %d: expected one source tile, got %v", i, f.SourceTiles)
		}
	}

	first := features[0].Bound

	if math.Abs(first.Min[0]-19) > 1e-6 || math.Abs(first.Min[1]-19) > 1e-6 {
		t.Errorf("Test failed: expected first box at 19,19, got %+v", first)
	}
}

// pairedBoxes answers every image with two 10x10 boxes, one on the left edge
// of the tile interior and one 6 px to its right
func pairedBoxes(model string, inputs []geoai.Tensor) ([]geoai.Tensor, error) {

	n := int(inputs[0].Shape[0])
	data := make([]float32, 0, n*10)

	for i := 0; i < n; i++ {
		data = append(data,
			13, 29, // cx
			25, 25, // cy
			10, 10, // w
			10, 10, // h
			0.9, 0.9, // score
		)
	}

	return []geoai.Tensor{geoai.NewTensor("output0", []int64{int64(n), 5, 2}, data)}, nil
}

func TestRunHalfScaleKeepsSourceDistances(t *testing.T) {

	b := geoai.NewMockBackend()
	b.Register("buildings-det", geoai.ModelConfig{
		MaxBatchSize: 4,
		Inputs:       []geoai.TensorConfig{{Name: "images", DataType: "FP32", Dims: []int64{3, 64, 64}}},
	}, pairedBoxes)

	m := buildingModel()
	m.ScaleFactor = 0.5
	models := []geoai.ModelInfo{m}

	c := config.Defaults()
	d := New(b, c.Stitch, c.Reconcile.StuffClasses, geoai.CommonClassNames(models))

	img := greyImage()
	defer img.Close()

	features, err := d.Run(context.Background(), img, geoai.GroupModelSets(models, 0.125))

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// the right box of a tile and the left box of its neighbour are 22 scaled
	// px apart, 44 source px, beyond the 40 px edge vicinity
	if len(features) != 5 {
		t.Fatalf("Test failed: expected 5 unjoined features, got %d", len(features))
	}

	sort.Slice(features, func(i, j int) bool {
		return features[i].Bound.Min[0] < features[j].Bound.Min[0]
	})

	tests := []struct {
		minX float64
		maxX float64
	}{
		{0, 20},
		{32, 52},
		{96, 116},
		{128, 148},
		{192, 200},
	}

	for i, tc := range tests {
		bd := features[i].Bound

		if math.Abs(bd.Min[0]-tc.minX) > 1e-6 || math.Abs(bd.Max[0]-tc.maxX) > 1e-6 {
			t.Errorf("Test failed for feature %d: expected x extent %v..%v, got %+v", i, tc.minX, tc.maxX, bd)
		}

		if math.Abs(bd.Min[1]-24) > 1e-6 || math.Abs(bd.Max[1]-44) > 1e-6 {
			t.Errorf("Test failed for feature %d: expected y extent 24..44, got %+v", i, bd)
		}

		if features[i].SourceScale != 0.5 {
			t.Errorf("Test failed for feature %d: source scale %v", i, features[i].SourceScale)
		}
	}
}

func TestRunSkipsEmptyTiles(t *testing.T) {

	b := newMock()
	d, sets := testSetup(b)

	img := greyImage()
	defer img.Close()

	black := img.Region(image.Rect(100, 0, 200, 100))
	black.SetTo(gocv.NewScalar(0, 0, 0, 0))
	black.Close()

	if _, err := d.Run(context.Background(), img, sets); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// the last two tile columns see only black
	if calls := b.Calls("buildings-det"); calls != 3 {
		t.Errorf("Test failed: expected 3 infer calls for 9 tiles, got %d", calls)
	}
}

func TestRunCancelled(t *testing.T) {

	b := newMock()
	d, sets := testSetup(b)

	img := greyImage()
	defer img.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Run(ctx, img, sets)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Test failed: expected context.Canceled, got %v", err)
	}

	if calls := b.Calls("buildings-det"); calls != 0 {
		t.Errorf("Test failed: expected no infer calls, got %d", calls)
	}
}

func TestRunUnavailableModel(t *testing.T) {

	d, sets := testSetup(geoai.NewMockBackend())

	img := greyImage()
	defer img.Close()

	_, err := d.Run(context.Background(), img, sets)

	if geoai.KindOf(err) != geoai.InferenceUnavailable {
		t.Errorf("Test failed: expected INFERENCE_UNAVAILABLE, got %v", err)
	}
}

func TestInstances(t *testing.T) {

	b := newMock()
	d, sets := testSetup(b)

	img := greyImage()
	defer img.Close()

	features, err := d.Instances(context.Background(), img, sets)

	if err != nil {
		t.Fatalf("Instances failed: %v", err)
	}

	// every tile reports its box, including those in the padding
	if len(features) != 15 {
		t.Errorf("Test failed: expected 15 instances, got %d", len(features))
	}
}
