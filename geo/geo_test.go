package geo

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ifaistartup/go-geoai"
	"github.com/paulmach/orb"
)

func TestAffineRoundTrip(t *testing.T) {

	affines := []AffineGeo{
		{A: 0.1, E: -0.1, C: 500000, F: 2700000},
		{A: 0.5, B: 0.02, D: -0.03, E: -0.5, C: 44.1, F: 33.3},
		{A: 1.2e-5, E: -1.2e-5, C: 46.7, F: 24.7},
	}

	for _, a := range affines {
		for _, px := range []orb.Point{{0, 0}, {4095, 4095}, {1234.5, 17.25}} {
			wx, wy := a.PixelToWorld(px[0], px[1])
			x, y, err := a.WorldToPixel(wx, wy)

			if err != nil {
				t.Fatalf("Test failed, unexpected error: %v", err)
			}

			if math.Abs(x-px[0]) > 1e-6 || math.Abs(y-px[1]) > 1e-6 {
				t.Errorf("Test failed for %+v at %v, round trip gave (%v, %v)", a, px, x, y)
			}
		}
	}
}

func TestDegenerateTransform(t *testing.T) {

	a := AffineGeo{A: 1, B: 2, D: 2, E: 4}

	if _, _, err := a.WorldToPixel(1, 1); geoai.KindOf(err) != geoai.DegenerateTransform {
		t.Errorf("Test failed, expected DEGENERATE_TRANSFORM, got %v", err)
	}
}

func TestGDALConversion(t *testing.T) {

	gt := [6]float64{500000, 0.1, 0, 2700000, 0, -0.1}
	a := FromGDAL(gt)

	if a.C != 500000.05 || a.F != 2699999.95 {
		t.Errorf("Test failed, expected pixel centre origin, got C=%v F=%v", a.C, a.F)
	}

	if back := a.GDAL(); back != gt {
		t.Errorf("Test failed, expected %v, got %v", gt, back)
	}
}

func TestWorldFileOrder(t *testing.T) {

	dir := t.TempDir()
	path := filepath.Join(dir, "img.jgw")

	a := AffineGeo{A: 0.5, B: 0.01, C: 300, D: 0.02, E: -0.5, F: 900}

	if err := WriteWorldFile(path, a); err != nil {
		t.Fatalf("Test failed, unexpected error: %v", err)
	}

	raw, _ := os.ReadFile(path)
	want := "0.5\n0.02\n0.01\n-0.5\n300\n900\n"

	if string(raw) != want {
		t.Errorf("Test failed, expected lines A,D,B,E,C,F %q, got %q", want, string(raw))
	}

	got, err := ReadWorldFile(path)

	if err != nil || got != a {
		t.Errorf("Test failed, read back %+v (%v)", got, err)
	}

	if _, err := ReadWorldFile(filepath.Join(dir, "none.jgw")); geoai.KindOf(err) != geoai.MissingGeodata {
		t.Errorf("Test failed, expected MISSING_GEODATA, got %v", err)
	}

	os.WriteFile(path, []byte("1\n2\n3\n"), 0o644)

	if _, err := ReadWorldFile(path); geoai.KindOf(err) != geoai.BadInput {
		t.Errorf("Test failed, expected BAD_INPUT for short file, got %v", err)
	}
}

func TestWorldFilePath(t *testing.T) {

	tests := map[string]string{
		"/a/b/scene.jpg": "/a/b/scene.jgw",
		"scene.TIF":      "scene.tfw",
		"x.png":          "x.pgw",
		"x.bmp":          "x.wld",
	}

	for in, want := range tests {
		if got := WorldFilePath(in); got != want {
			t.Errorf("Test failed for %s, expected %s, got %s", in, want, got)
		}
	}
}

func TestTFW(t *testing.T) {

	path := filepath.Join(t.TempDir(), "run_tfw.json")
	in := TFW{ImageWidth: 10, ImageHeight: 20, CRS: "EPSG:32638", WorldFile: AffineGeo{A: 1, E: -1, C: 5, F: 6}}

	if err := WriteTFW(path, in); err != nil {
		t.Fatalf("Test failed, unexpected error: %v", err)
	}

	raw, _ := os.ReadFile(path)

	for _, key := range []string{`"image_width"`, `"CRS"`, `"worldfile"`, `"A"`, `"F"`} {
		if !contains(string(raw), key) {
			t.Errorf("Test failed, %s missing from %s", key, raw)
		}
	}

	out, err := ReadTFW(path)

	if err != nil || out != in {
		t.Errorf("Test failed, read back %+v (%v)", out, err)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestMergeExtents(t *testing.T) {

	left := Extent{Affine: AffineGeo{A: 1, E: -1, C: 0.5, F: 99.5}, Width: 100, Height: 100}
	right := Extent{Affine: AffineGeo{A: 1, E: -1, C: 100.5, F: 79.5}, Width: 100, Height: 100}

	merged, err := MergeExtents([]Extent{right, left})

	if err != nil {
		t.Fatalf("Test failed, unexpected error: %v", err)
	}

	if merged.Affine.C != 0.5 || merged.Affine.F != 99.5 {
		t.Errorf("Test failed, expected origin (0.5, 99.5), got (%v, %v)", merged.Affine.C, merged.Affine.F)
	}

	if merged.Width != 200 || merged.Height != 120 {
		t.Errorf("Test failed, expected 200x120, got %dx%d", merged.Width, merged.Height)
	}

	if _, err := MergeExtents(nil); geoai.KindOf(err) != geoai.EmptyInput {
		t.Errorf("Test failed, expected EMPTY_INPUT, got %v", err)
	}
}

func TestReadAuxSRS(t *testing.T) {

	path := filepath.Join(t.TempDir(), "img.jpg.aux.xml")
	body := `<PAMDataset>
  <SRS dataAxisToSRSAxisMapping="1,2">PROJCS["WGS 84 / UTM zone 38N"]</SRS>
</PAMDataset>`

	os.WriteFile(path, []byte(body), 0o644)

	srs, err := ReadAuxSRS(path)

	if err != nil || srs != `PROJCS["WGS 84 / UTM zone 38N"]` {
		t.Errorf("Test failed, got %q (%v)", srs, err)
	}
}

func TestReproject(t *testing.T) {

	g, err := Reproject(orb.Point{45, 0}, EPSG4326, EPSG(3857))

	if err != nil {
		t.Fatalf("Test failed, unexpected error: %v", err)
	}

	p := g.(orb.Point)

	if math.Abs(p[0]-5009377.085697311) > 1e-3 || math.Abs(p[1]) > 1e-3 {
		t.Errorf("Test failed, got %v", p)
	}

	tr, err := NewTransformer(EPSG(3857), EPSG4326)

	if err != nil {
		t.Fatalf("Test failed, unexpected error: %v", err)
	}

	defer tr.Close()

	pts, err := tr.Points([]orb.Point{p})

	if err != nil || math.Abs(pts[0][0]-45) > 1e-9 {
		t.Errorf("Test failed for inverse transform, got %v (%v)", pts, err)
	}

	if geographic, err := IsGeographic(EPSG4326); err != nil || !geographic {
		t.Errorf("Test failed, EPSG:4326 should be geographic")
	}

	if _, err := Reproject(orb.Point{0, 0}, "EPSG:abc", EPSG4326); geoai.KindOf(err) != geoai.CRSConversion {
		t.Errorf("Test failed, expected CRS_CONVERSION, got %v", err)
	}
}
