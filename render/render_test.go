package render

import (
	"testing"

	"github.com/ifaistartup/go-geoai"
	"github.com/paulmach/orb"
	"gocv.io/x/gocv"
)

func TestFeatureMask(t *testing.T) {

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer img.Close()

	square := orb.Polygon{
		orb.Ring{{20, 20}, {80, 20}, {80, 80}, {20, 80}, {20, 20}},
		orb.Ring{{40, 40}, {40, 60}, {60, 60}, {60, 40}, {40, 40}},
	}

	features := []geoai.Feature{{ClassID: 0, ClassName: "building", Geometry: square}}

	FeatureMask(&img, features, DefaultAlpha)

	clr := ClassColor(0)

	tests := []struct {
		name    string
		x, y    int
		painted bool
	}{
		{"inside", 30, 30, true},
		{"hole", 50, 50, false},
		{"outside", 5, 5, false},
	}

	for _, tc := range tests {
		// BGR order
		r := img.GetVecbAt(tc.y, tc.x)[2]

		if tc.painted {
			want := uint8(float64(clr.R) * DefaultAlpha)
			if r < want-1 || r > want+1 {
				t.Errorf("Test failed for %s: expected red %d, got %d", tc.name, want, r)
			}
		} else if r != 0 {
			t.Errorf("Test failed for %s: expected unpainted pixel, got red %d", tc.name, r)
		}
	}
}

func TestClassColor(t *testing.T) {

	if ClassColor(len(classColors)) != ClassColor(0) {
		t.Errorf("Test failed: palette does not wrap")
	}

	if ClassColor(-1) != ClassColor(1) {
		t.Errorf("Test failed: negative class id")
	}
}

func TestFeatureText(t *testing.T) {

	tests := []struct {
		f    geoai.Feature
		want string
	}{
		{geoai.Feature{ClassName: "buildings", ObjectNum: 3, Confidence: 0.9}, "buildings 3 0.90"},
		{geoai.Feature{ClassName: "palm_tree", ObjectNum: 0}, "palm_tree 0"},
	}

	for _, tc := range tests {
		if got := featureText(tc.f); got != tc.want {
			t.Errorf("Test failed: expected %q, got %q", tc.want, got)
		}
	}
}
