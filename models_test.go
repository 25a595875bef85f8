package geoai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestGroupModelSets(t *testing.T) {

	models := []ModelInfo{
		{Name: "buildings", Type: ModelSegInstance, ClassNames: []string{"buildings"}, TileSize: 1280, ScaleFactor: 0.5},
		{Name: "trees", Type: ModelSegInstance, ClassNames: []string{"trees", "palm_tree"}, TileSize: 1280, ScaleFactor: 1},
		{Name: "roads", Type: ModelSegSemantic, ClassNames: []string{"roads", "tracks"}, TileSize: 1280, ScaleFactor: 0.5},
	}

	sets := GroupModelSets(models, 0.1)

	if len(sets) != 2 {
		t.Fatalf("got %d sets; want 2", len(sets))
	}

	if sets[0].Key != "0.5_1280" || len(sets[0].Models) != 2 {
		t.Errorf("Test failed for set 0: key %s with %d models", sets[0].Key, len(sets[0].Models))
	}

	if sets[1].Key != "1_1280" || sets[1].Overlap != 128 {
		t.Errorf("Test failed for set 1: key %s overlap %d", sets[1].Key, sets[1].Overlap)
	}

	names := CommonClassNames(models)
	want := []string{"buildings", "trees", "palm_tree", "roads", "tracks"}

	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("common classes = %v; want %v", names, want)
	}
}

func TestEffectiveClassNames(t *testing.T) {

	m := ModelInfo{ClassNames: []string{"a", "b", "c"}, UsedClassNames: []string{"c", "x", "a"}}

	if got := fmt.Sprint(m.EffectiveClassNames()); got != "[c a]" {
		t.Errorf("effective classes = %s; want [c a]", got)
	}

	m.UsedClassNames = nil

	if got := len(m.EffectiveClassNames()); got != 3 {
		t.Errorf("effective classes = %d; want 3", got)
	}
}

func TestParseModelType(t *testing.T) {

	tests := []struct {
		in   string
		want ModelType
		ok   bool
	}{
		{"yolov8", ModelSegInstance, true},
		{"yolov8_det", ModelDet, true},
		{"deeplabv3", ModelSegSemantic, true},
		{"seg_semantic", ModelSegSemantic, true},
		{"transformer", "", false},
	}

	for _, tc := range tests {
		got, err := ParseModelType(tc.in)

		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("Test failed for %s: got %s, err %v", tc.in, got, err)
		}
	}
}

func TestErrorKinds(t *testing.T) {

	err := fmt.Errorf("run failed: %w", NewError(MissingGeodata, "geo.Load", errors.New("no world file")))

	if !errors.Is(err, ErrMissingGeodata) {
		t.Error("errors.Is did not match the sentinel")
	}

	if errors.Is(err, ErrBadInput) {
		t.Error("errors.Is matched a different kind")
	}

	if KindOf(err) != MissingGeodata || !KindOf(err).Fatal() {
		t.Errorf("KindOf = %s", KindOf(err))
	}

	if InvalidGeometry.Fatal() || EmptyTile.Fatal() {
		t.Error("local kinds reported as fatal")
	}
}

func TestMockBackendDimensionFix(t *testing.T) {

	mock := NewMockBackend()

	var got []int64

	mock.Register("m", ModelConfig{Inputs: []TensorConfig{{Name: "images", Dims: []int64{3, -1, -1}}}, MaxBatchSize: 8},
		func(model string, inputs []Tensor) ([]Tensor, error) {
			got = inputs[0].Shape
			return []Tensor{NewTensor("output", []int64{1}, []float32{1})}, nil
		})

	if _, err := mock.Infer(context.Background(), "m", []Tensor{input()}, []string{"output"}); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	if len(got) != 4 || got[0] != 1 {
		t.Errorf("shape = %v; want batch dimension prepended", got)
	}

	if _, err := mock.Infer(context.Background(), "missing", nil, nil); KindOf(err) != InferenceUnavailable {
		t.Errorf("missing model error = %v", err)
	}

	if _, err := mock.Infer(context.Background(), "m", []Tensor{input()}, []string{"nope"}); err == nil {
		t.Error("expected error for unknown output")
	}
}

func TestReadClassNames(t *testing.T) {

	names, err := ReadClassNames(strings.NewReader("# buildings model\nbuildings\n\n  palm_tree \nLights pole\n"))

	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}

	want := []string{"buildings", "palm_tree", "Lights pole"}

	if len(names) != len(want) {
		t.Fatalf("Test failed: expected %v, got %v", want, names)
	}

	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Test failed at %d: expected %q, got %q", i, want[i], names[i])
		}
	}

	if _, err := LoadClassNames("missing.txt"); KindOf(err) != BadInput {
		t.Errorf("Test failed: expected a bad input error, got %v", err)
	}
}
