package reconcile

import (
	"image"
	"math"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/geom"
	"github.com/paulmach/orb"
)

func rectFeature(num int, class string, x1, y1, x2, y2 float64) geoai.Feature {
	p := orb.Polygon{orb.Ring{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}, {x1, y1}}}
	return geoai.Feature{
		ObjectNum:  num,
		ClassName:  class,
		Confidence: 0.9,
		Geometry:   p,
		Bound:      p.Bound(),
	}
}

func TestSuppressNonLargest(t *testing.T) {

	features := []geoai.Feature{
		rectFeature(0, "buildings", 0, 0, 10, 10),
		// IoU 100/121 with the larger box below
		rectFeature(1, "trees", 0, 0, 11, 11),
		rectFeature(2, "buildings", 50, 50, 60, 60),
		// stuff overlapping everything
		rectFeature(3, "roads", 0, 0, 60, 60),
		// equal box, lower object number wins
		rectFeature(4, "buildings", 50, 50, 60, 60),
	}

	kept := SuppressNonLargest(features, 0.4, geoai.DefaultStuffClasses)

	want := []int{1, 2, 3}

	if len(kept) != len(want) {
		t.Fatalf("Test failed: expected %d features, got %d", len(want), len(kept))
	}

	for i, num := range want {
		if kept[i].ObjectNum != num {
			t.Errorf("Test failed for position %d: expected object %d, got %d", i, num, kept[i].ObjectNum)
		}
	}

	// no remaining pair of things overlaps above the threshold
	for i := range kept {
		for j := i + 1; j < len(kept); j++ {
			if geoai.IsStuff(kept[i].ClassName, geoai.DefaultStuffClasses) ||
				geoai.IsStuff(kept[j].ClassName, geoai.DefaultStuffClasses) {
				continue
			}

			if iou := geom.BoxIoU(kept[i].Bound, kept[j].Bound); iou > 0.4 {
				t.Errorf("Test failed: objects %d and %d overlap with IoU %f",
					kept[i].ObjectNum, kept[j].ObjectNum, iou)
			}
		}
	}
}

func TestRenumber(t *testing.T) {

	features := []geoai.Feature{
		rectFeature(7, "buildings", 0, 0, 1, 1),
		rectFeature(3, "buildings", 0, 0, 1, 1),
		rectFeature(9, "buildings", 0, 0, 1, 1),
	}

	Renumber(features)

	for i, f := range features {
		if f.ObjectNum != i {
			t.Errorf("Test failed for position %d: got object %d", i, f.ObjectNum)
		}
	}
}

func TestClipToZone(t *testing.T) {

	zone := orb.Polygon{orb.Ring{{0, 0}, {79, 0}, {79, 99}, {0, 99}, {0, 0}}}

	features := []geoai.Feature{
		rectFeature(0, "buildings", 10, 10, 20, 20),
		// straddles the zone edge
		rectFeature(1, "buildings", 70, 10, 90, 20),
		// entirely outside
		rectFeature(2, "buildings", 85, 10, 95, 20),
		{ObjectNum: 3, ClassName: "trees_solo", Geometry: orb.Point{50, 50}},
		{ObjectNum: 4, ClassName: "trees_solo", Geometry: orb.Point{90, 50}},
	}

	clipped := ClipToZone(features, zone)

	if len(clipped) != 3 {
		t.Fatalf("Test failed: expected 3 features, got %d", len(clipped))
	}

	if clipped[1].ObjectNum != 1 {
		t.Fatalf("Test failed: expected object 1 second, got %d", clipped[1].ObjectNum)
	}

	if math.Abs(clipped[1].Bound.Max[0]-79) > 1e-6 {
		t.Errorf("Test failed: expected clipped edge at 79, got %f", clipped[1].Bound.Max[0])
	}

	if a := geom.Area(clipped[1].Geometry); math.Abs(a-90) > 1e-6 {
		t.Errorf("Test failed: expected clipped area 90, got %f", a)
	}

	if clipped[2].ObjectNum != 3 {
		t.Errorf("Test failed: expected the inside point to survive, got object %d", clipped[2].ObjectNum)
	}
}

func TestContentZone(t *testing.T) {

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(120, 120, 120, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()

	// right fifth is black
	black := img.Region(image.Rect(80, 0, 100, 100))
	black.SetTo(gocv.NewScalar(0, 0, 0, 0))
	black.Close()

	zone, ok := ContentZone(img)

	if !ok {
		t.Fatalf("Test failed: expected a content zone")
	}

	b := zone.Bound()

	if b.Min[0] != 0 || b.Max[0] != 79 || b.Min[1] != 0 || b.Max[1] != 99 {
		t.Errorf("Test failed: unexpected zone bound %+v", b)
	}

	// a feature across the boundary is clipped, one beyond it is dropped
	out := Reconcile([]geoai.Feature{
		rectFeature(5, "buildings", 70, 10, 90, 20),
		rectFeature(6, "buildings", 85, 30, 95, 40),
	}, zone, Params{IoU: 0.4, Stuff: geoai.DefaultStuffClasses})

	if len(out) != 1 {
		t.Fatalf("Test failed: expected 1 feature, got %d", len(out))
	}

	if out[0].ObjectNum != 0 || out[0].Bound.Max[0] > 79 {
		t.Errorf("Test failed: unexpected feature %+v", out[0])
	}
}

func TestEmptyTile(t *testing.T) {

	tile := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 8, 8, gocv.MatTypeCV8UC3)
	defer tile.Close()

	if !Empty(tile) {
		t.Errorf("Test failed: black tile not reported empty")
	}

	if _, ok := ContentZone(tile); ok {
		t.Errorf("Test failed: black tile has a content zone")
	}

	tile.SetUCharAt(3, 3*3+1, 10)

	if Empty(tile) {
		t.Errorf("Test failed: tile with content reported empty")
	}
}
