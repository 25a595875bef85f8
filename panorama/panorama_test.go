package panorama

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/ifaistartup/go-geoai"
)

// sizes of a LAS 1.2 header and a point format 0 record
const (
	lasHeaderSize   = 227
	lasRecordLength = 20
)

// writeLAS encodes pts as a LAS 1.2 file with point format 0
func writeLAS(t *testing.T, path string, pts []r3.Vector) {

	t.Helper()

	le := binary.LittleEndian
	hdr := make([]byte, lasHeaderSize)

	copy(hdr, "LASF")
	hdr[24], hdr[25] = 1, 2
	le.PutUint16(hdr[94:], lasHeaderSize)
	le.PutUint32(hdr[96:], lasHeaderSize)
	hdr[104] = 0
	le.PutUint16(hdr[105:], lasRecordLength)
	le.PutUint32(hdr[107:], uint32(len(pts)))
	le.PutUint32(hdr[111:], uint32(len(pts)))

	scale := 0.001
	offset := [3]float64{100, 200, 0}

	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}

	for _, p := range pts {
		for i, v := range [3]float64{p.X, p.Y, p.Z} {
			lo[i] = math.Min(lo[i], v)
			hi[i] = math.Max(hi[i], v)
		}
	}

	for i := 0; i < 3; i++ {
		le.PutUint64(hdr[131+8*i:], math.Float64bits(scale))
		le.PutUint64(hdr[155+8*i:], math.Float64bits(offset[i]))

		if len(pts) > 0 {
			// max then min per axis
			le.PutUint64(hdr[179+16*i:], math.Float64bits(hi[i]))
			le.PutUint64(hdr[187+16*i:], math.Float64bits(lo[i]))
		}
	}

	var buf bytes.Buffer
	buf.Write(hdr)

	for _, p := range pts {
		rec := make([]byte, lasRecordLength)
		le.PutUint32(rec[0:], uint32(int32(math.Round((p.X-offset[0])/scale))))
		le.PutUint32(rec[4:], uint32(int32(math.Round((p.Y-offset[1])/scale))))
		le.PutUint32(rec[8:], uint32(int32(math.Round((p.Z-offset[2])/scale))))
		buf.Write(rec)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Test failed writing LAS: %v", err)
	}
}

func vectorsClose(a, b r3.Vector, tol float64) bool {
	return a.Sub(b).Norm() <= tol
}

func TestNameMatcher(t *testing.T) {

	tests := []struct {
		pattern string
		name    string
		scene   int
		image   int
		face    Face
		ok      bool
	}{
		{`pano_(\d+)_(\d+)_(\d+)\.jpg`, "pano_000003_000012_2.jpg", 3, 12, FaceFront, true},
		{`pano_(\d+)_(\d+)_(\d+)\.jpg`, "pano_000003_000012_7.jpg", 0, 0, 0, false},
		{`pano_(\d+)_(\d+)_(\d+)\.jpg`, "image.jpg", 0, 0, 0, false},
		{"scene{0}-img{1}-f{2}.jpg", "scene5-img40-f4.jpg", 5, 40, FaceTop, true},
		{"f{2}_{1}_{0}.jpg", "f1_2_3.jpg", 3, 2, FaceLeft, true},
		{"f{2}_{1}_{0}.jpg", "xf1_2_3.jpg", 0, 0, 0, false},
	}

	for _, tc := range tests {
		m, err := NewNameMatcher(tc.pattern)

		if err != nil {
			t.Fatalf("Test failed for pattern %s: %v", tc.pattern, err)
		}

		scene, image, face, ok := m.Parse(tc.name)

		if ok != tc.ok {
			t.Errorf("Test failed for %s: expected ok %v, got %v", tc.name, tc.ok, ok)
			continue
		}

		if ok && (scene != tc.scene || image != tc.image || face != tc.face) {
			t.Errorf("Test failed for %s: expected %d/%d/%d, got %d/%d/%d",
				tc.name, tc.scene, tc.image, tc.face, scene, image, face)
		}
	}

	for _, bad := range []string{`pano_(\d+)\.jpg`, "pano_{0}_{1}.jpg", `pano_(\d+`} {
		if _, err := NewNameMatcher(bad); err == nil {
			t.Errorf("Test failed for pattern %s: expected an error", bad)
		}
	}
}

func TestParseTrajectory(t *testing.T) {

	csv := strings.Join([]string{
		"file_name\tprojectedX[m]\tprojectedY[m]\tprojectedZ[m]\theading[deg]\tpitch[deg]\troll[deg]\tlatitude[deg]\tlongitude[deg]",
		"pano_000001_000002\t401234.5\t2712345.25\t12.5\t91.5\t-0.5\t0.25\t24.5\t56.1",
	}, "\n")

	traj, err := parseTrajectory(strings.NewReader(csv))

	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}

	p, err := traj.Pose(1, 2)

	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}

	want := r3.Vector{X: 401234.5, Y: 2712345.25, Z: 12.5}

	if p.Position != want || p.Heading != 91.5 || p.Pitch != -0.5 || p.Roll != 0.25 ||
		p.Lat != 24.5 || p.Lon != 56.1 {
		t.Errorf("Test failed: unexpected pose %+v", p)
	}

	if _, err := traj.Pose(1, 3); err == nil {
		t.Errorf("Test failed: expected an error for a missing pose")
	}

	if _, err := parseTrajectory(strings.NewReader("file_name\tprojectedX[m]\n")); err == nil {
		t.Errorf("Test failed: expected an error for missing columns")
	}
}

func TestReadLAS(t *testing.T) {

	pts := []r3.Vector{
		{X: 100.5, Y: 200.25, Z: 3},
		{X: 101, Y: 199, Z: -1.125},
		{X: 150.001, Y: 250.002, Z: 10.003},
	}

	path := t.TempDir() + "/cloud.las"
	writeLAS(t, path, pts)

	got, err := ReadLAS(path)

	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}

	if len(got) != len(pts) {
		t.Fatalf("Test failed: expected %d points, got %d", len(pts), len(got))
	}

	for i := range pts {
		if !vectorsClose(got[i], pts[i], 1e-6) {
			t.Errorf("Test failed for point %d: expected %v, got %v", i, pts[i], got[i])
		}
	}

	if _, err := ReadLAS(t.TempDir() + "/missing.las"); geoai.KindOf(err) != geoai.BadInput {
		t.Errorf("Test failed: expected BAD_INPUT for a missing file, got %v", err)
	}
}

func TestVoxelDownsample(t *testing.T) {

	pts := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 0.2, Y: 0.2, Z: 0.2},
		{X: 1.1, Y: 0, Z: 0},
		{X: 1.3, Y: 0.2, Z: 0},
	}

	got := VoxelDownsample(pts, 0.5)

	want := []r3.Vector{
		{X: 0.1, Y: 0.1, Z: 0.1},
		{X: 1.2, Y: 0.1, Z: 0},
	}

	if len(got) != len(want) {
		t.Fatalf("Test failed: expected %d points, got %d", len(want), len(got))
	}

	for i := range want {
		if !vectorsClose(got[i], want[i], 1e-9) {
			t.Errorf("Test failed for voxel %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestCameraProjection(t *testing.T) {

	pose := Pose{Position: r3.Vector{X: 5, Y: 5, Z: 1}, Heading: 90}

	// rounding of the rotations may move a pixel by one
	centre := func(a int) bool { return a >= 639 && a <= 641 }

	tests := []struct {
		face  Face
		point r3.Vector
		ok    bool
		check func(u, v int) bool
	}{
		// straight ahead at the centre
		{FaceBack, r3.Vector{X: 15, Y: 5, Z: 1}, true, func(u, v int) bool { return centre(u) && centre(v) }},
		// left of the driving direction is left in the image
		{FaceBack, r3.Vector{X: 15, Y: 7, Z: 1}, true, func(u, v int) bool { return u < 600 && centre(v) }},
		// above is up in the image
		{FaceBack, r3.Vector{X: 15, Y: 5, Z: 3}, true, func(u, v int) bool { return centre(u) && v < 600 }},
		// behind the camera
		{FaceFront, r3.Vector{X: 15, Y: 5, Z: 1}, false, nil},
		{FaceFront, r3.Vector{X: -5, Y: 5, Z: 1}, true, func(u, v int) bool { return centre(u) && centre(v) }},
		{FaceTop, r3.Vector{X: 5, Y: 5, Z: 11}, true, func(u, v int) bool { return centre(u) && centre(v) }},
		{FaceBottom, r3.Vector{X: 5, Y: 5, Z: -9}, true, func(u, v int) bool { return centre(u) && centre(v) }},
	}

	for i, tc := range tests {
		cam, err := NewCamera(pose, tc.face, 1280)

		if err != nil {
			t.Fatalf("Test failed for case %d: %v", i, err)
		}

		if !vectorsClose(cam.Position(), pose.Position, 1e-9) {
			t.Errorf("Test failed for case %d: camera at %v", i, cam.Position())
		}

		u, v, ok := cam.Project(cam.ToCamera(tc.point))

		if ok != tc.ok {
			t.Errorf("Test failed for case %d: expected ok %v, got %v", i, tc.ok, ok)
			continue
		}

		if ok && !tc.check(u, v) {
			t.Errorf("Test failed for case %d: unexpected pixel %d,%d", i, u, v)
		}
	}
}

func TestVisibleHidesFarPoints(t *testing.T) {

	cam, err := NewCamera(Pose{Heading: 90}, FaceBack, 1280)

	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}

	// the ray projects in the middle of a depth buffer cell
	pts := []r3.Vector{
		{X: 10, Y: 0.96875, Z: 0.34375},
		// same ray, behind the first point
		{X: 20, Y: 1.9375, Z: 0.6875},
		// within the depth tolerance
		{X: 10.5, Y: 1.0171875, Z: 0.3609375},
		// out of range
		{X: 40, Y: 5, Z: 0},
	}

	vis := Visible(cam, pts, 30)

	if len(vis) != 2 || vis[0].Index != 0 || vis[1].Index != 2 {
		t.Errorf("Test failed: unexpected visible points %+v", vis)
	}
}

func TestVisibleOccluder(t *testing.T) {

	cam, err := NewCamera(Pose{Heading: 90}, FaceBack, 1280)

	if err != nil {
		t.Fatalf("Test failed: %v", err)
	}

	target := r3.Vector{X: 20, Y: 1.9375, Z: 0.6875}

	tests := []struct {
		name    string
		pts     []r3.Vector
		visible bool
	}{
		{"target alone", []r3.Vector{target}, true},
		{"occluder on the ray", []r3.Vector{target, {X: 10, Y: 0.96875, Z: 0.34375}}, false},
		{"occluder listed first", []r3.Vector{{X: 10, Y: 0.96875, Z: 0.34375}, target}, false},
		{"occluder beside the ray", []r3.Vector{target, {X: 10, Y: -2, Z: 0.34375}}, true},
		{"occluder behind the target", []r3.Vector{target, {X: 30, Y: 2.90625, Z: 1.03125}}, true},
	}

	for _, tc := range tests {
		seen := false

		for _, p := range Visible(cam, tc.pts, 0) {
			if tc.pts[p.Index] == target {
				seen = true
			}
		}

		if seen != tc.visible {
			t.Errorf("Test failed for %s: expected target visible %v, got %v", tc.name, tc.visible, seen)
		}
	}
}

func TestDBSCAN(t *testing.T) {

	var pts []r3.Vector

	for i := 0; i < 5; i++ {
		pts = append(pts, r3.Vector{X: float64(i) * 0.5})
	}

	for i := 0; i < 4; i++ {
		pts = append(pts, r3.Vector{X: 10, Y: float64(i) * 0.5})
	}

	// isolated
	pts = append(pts, r3.Vector{X: 50})

	labels := DBSCAN(pts, 0.6, 2)

	want := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, Noise}

	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("Test failed for point %d: expected label %d, got %d", i, want[i], labels[i])
		}
	}

	clusters := Clusters(labels)

	if len(clusters) != 2 || len(clusters[0]) != 5 || len(clusters[1]) != 4 {
		t.Errorf("Test failed: unexpected clusters %v", clusters)
	}

	// a minimum larger than any neighbourhood leaves only noise
	for i, l := range DBSCAN(pts, 0.6, 4) {
		if l != Noise {
			t.Errorf("Test failed for point %d: expected noise, got %d", i, l)
		}
	}
}

func TestFilterClusters(t *testing.T) {

	pts := make([]r3.Vector, 12)

	for i := 0; i < 8; i++ {
		pts[i] = r3.Vector{X: float64(i) * 0.1}
	}

	for i := 8; i < 12; i++ {
		pts[i] = r3.Vector{X: 20 + float64(i)*0.1}
	}

	clusters := ClassClusters{
		ClassPalmTree:  {{0, 1, 2}},
		ClassTreesSolo: {{3, 4, 5, 6, 7}},
		ClassBuilding:  {{7, 8, 9}, {3}},
	}

	filterClusters(pts, clusters)

	if _, ok := clusters[ClassPalmTree]; ok {
		t.Errorf("Test failed: expected the smaller palm cluster to be dropped")
	}

	if len(clusters[ClassTreesSolo]) != 1 {
		t.Errorf("Test failed: expected the tree cluster to remain, got %v", clusters[ClassTreesSolo])
	}

	b := clusters[ClassBuilding]

	if len(b) != 1 || len(b[0]) != 2 || b[0][0] != 8 || b[0][1] != 9 {
		t.Errorf("Test failed: expected building cluster [8 9], got %v", b)
	}
}

func TestClusterFootprints(t *testing.T) {

	var pts []r3.Vector
	var ids []int

	// a 4 x 2 m slab sampled every 0.25 m
	for x := 0.0; x < 4; x += 0.25 {
		for y := 0.0; y < 2; y += 0.25 {
			ids = append(ids, len(pts))
			pts = append(pts, r3.Vector{X: 100 + x, Y: 50 + y, Z: 3})
		}
	}

	polys := ClusterFootprints(pts, ids, 0.5)

	if len(polys) != 1 {
		t.Fatalf("Test failed: expected one footprint, got %d", len(polys))
	}

	b := polys[0].Bound()

	if math.Abs(b.Min[0]-100) > 1e-9 || math.Abs(b.Min[1]-50) > 1e-9 ||
		math.Abs(b.Max[0]-103.5) > 1e-9 || math.Abs(b.Max[1]-51.5) > 1e-9 {
		t.Errorf("Test failed: unexpected footprint bound %v", b)
	}
}
