package panorama

import (
	"image"
	"image/color"
	"math"
	"sort"

	"gocv.io/x/gocv"

	"github.com/golang/geo/r3"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// class names with dedicated handling
const (
	ClassBuilding   = "building"
	ClassPalmTree   = "palm_tree"
	ClassTreesSolo  = "trees_solo"
	ClassTreesGroup = "trees_group"
	ClassSignboard  = "signboard"
)

const (
	// nearestEps and nearestMinSamples cluster the points of a single mask
	nearestEps        = 1
	nearestMinSamples = 2
	// duplicateDistance is the centroid distance under which a palm and a
	// tree cluster are the same object
	duplicateDistance = 2
)

// Detection is one instance found on a face image. Polygon coordinates are
// relative to the image size, in [0, 1].
type Detection struct {
	Class      string
	Confidence float64
	Polygon    orb.Polygon
}

// Target is the set of cloud points attributed to one detection
type Target struct {
	Class string
	IDs   []int
}

// Params of the point cloud fusion
type Params struct {
	// Classes localized in the cloud, in output order
	Classes []string
	// FaceSize is the side of the face images in pixels
	FaceSize int
	// Range bounds the distance of the points considered visible
	Range float64
	// ImageEps is the clustering distance of the points of one mask
	ImageEps float64
	// Eps and MinSamples of the per scene clustering, MinSamples falls back
	// to DefaultMinSamples for classes it does not name
	Eps        float64
	MinSamples map[string]int
	// UpperFaceBuilding relabels every detection of the top face as building
	UpperFaceBuilding bool
	// BuildingVoxel is the grid size of building footprints
	BuildingVoxel float64
}

// DefaultMinSamples of classes without a specific value
const DefaultMinSamples = 2

func (p Params) minSamples(class string) int {
	if n, ok := p.MinSamples[class]; ok && n > 0 {
		return n
	}
	return DefaultMinSamples
}

func (p Params) wants(class string) bool {
	for _, c := range p.Classes {
		if c == class {
			return true
		}
	}
	return false
}

// relabel returns the class a detection of face is fused as
func (p Params) relabel(class string, face Face) string {

	if face == FaceTop && p.UpperFaceBuilding {
		return ClassBuilding
	}

	if class == ClassTreesGroup {
		return ClassTreesSolo
	}

	return class
}

// ImageTargets attributes the visible points of the cloud to the detections
// of one face image
func ImageTargets(pts []r3.Vector, cam *Camera, face Face, dets []Detection, p Params) []Target {

	if len(dets) == 0 {
		return nil
	}

	var visible []Projected
	var targets []Target

	for _, d := range dets {
		class := p.relabel(d.Class, face)

		if !p.wants(class) {
			continue
		}

		if visible == nil {
			visible = Visible(cam, pts, p.Range)
		}

		ids := maskTargets(visible, d.Polygon, cam.Size())

		if len(ids) == 0 {
			continue
		}

		if class != ClassSignboard && class != ClassBuilding {
			ids = nearestCluster(pts, ids, cam.Position(), p.ImageEps)
		}

		if len(ids) == 0 {
			continue
		}

		targets = append(targets, Target{Class: class, IDs: ids})
	}

	return targets
}

// maskTargets rasterizes a normalized polygon on a size x size mask and
// returns the points projected inside it
func maskTargets(visible []Projected, poly orb.Polygon, size int) []int {

	if len(poly) == 0 || len(poly[0]) < 3 {
		return nil
	}

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size, size, gocv.MatTypeCV8U)
	defer mask.Close()

	ring := make([]image.Point, 0, len(poly[0]))

	for _, pt := range poly[0] {
		ring = append(ring, image.Pt(int(pt[0]*float64(size)), int(pt[1]*float64(size))))
	}

	pv := gocv.NewPointsVectorFromPoints([][]image.Point{ring})
	defer pv.Close()

	gocv.FillPoly(&mask, pv, color.RGBA{R: 255, G: 255, B: 255, A: 0})

	var ids []int

	for _, pr := range visible {
		if mask.GetUCharAt(pr.V, pr.U) != 0 {
			ids = append(ids, pr.Index)
		}
	}

	return ids
}

// nearestCluster keeps the cluster of ids whose centroid is closest to pos
func nearestCluster(pts []r3.Vector, ids []int, pos r3.Vector, eps float64) []int {

	if eps <= 0 {
		eps = nearestEps
	}

	sub := make([]r3.Vector, len(ids))

	for i, id := range ids {
		sub[i] = pts[id]
	}

	clusters := Clusters(DBSCAN(sub, eps, nearestMinSamples))

	best := -1
	bestDist := math.Inf(1)

	for i, c := range clusters {
		if d := centroid(sub, c).Sub(pos).Norm(); d < bestDist {
			best = i
			bestDist = d
		}
	}

	if best < 0 {
		return nil
	}

	out := make([]int, len(clusters[best]))

	for i, j := range clusters[best] {
		out[i] = ids[j]
	}

	return out
}

// centroid is the mean of the indexed points
func centroid(pts []r3.Vector, ids []int) r3.Vector {

	xs := make([]float64, len(ids))
	ys := make([]float64, len(ids))
	zs := make([]float64, len(ids))

	for i, id := range ids {
		xs[i], ys[i], zs[i] = pts[id].X, pts[id].Y, pts[id].Z
	}

	return r3.Vector{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil), Z: stat.Mean(zs, nil)}
}

// ClassClusters are the clusters of each class, as point indices
type ClassClusters map[string][][]int

// ClusterScene merges the targets of every image of a scene per class and
// clusters them
func ClusterScene(pts []r3.Vector, targets []Target, p Params) ClassClusters {

	ids := make(map[string]map[int]bool)

	for _, t := range targets {
		if ids[t.Class] == nil {
			ids[t.Class] = make(map[int]bool)
		}

		for _, id := range t.IDs {
			ids[t.Class][id] = true
		}
	}

	clusters := make(ClassClusters)

	for _, class := range p.Classes {
		set := ids[class]
		need := p.minSamples(class)

		if len(set) < need {
			continue
		}

		unique := make([]int, 0, len(set))

		for id := range set {
			unique = append(unique, id)
		}

		sort.Ints(unique)

		sub := make([]r3.Vector, len(unique))

		for i, id := range unique {
			sub[i] = pts[id]
		}

		for _, c := range Clusters(DBSCAN(sub, p.Eps, need)) {
			members := make([]int, len(c))

			for i, j := range c {
				members[i] = unique[j]
			}

			clusters[class] = append(clusters[class], members)
		}

		log.Debug(logTag+"clustered class", zap.String("class", class),
			zap.Int("points", len(unique)), zap.Int("clusters", len(clusters[class])))
	}

	filterClusters(pts, clusters)

	return clusters
}

// filterClusters removes palm and tree duplicates and the points of
// exclusive classes claimed by other classes
func filterClusters(pts []r3.Vector, clusters ClassClusters) {

	if len(clusters[ClassPalmTree]) > 0 && len(clusters[ClassTreesSolo]) > 0 {
		clusters[ClassPalmTree], clusters[ClassTreesSolo] =
			dropDuplicates(pts, clusters[ClassPalmTree], clusters[ClassTreesSolo])
	}

	for _, class := range []string{ClassPalmTree, ClassBuilding, ClassSignboard} {
		if _, ok := clusters[class]; ok {
			dropClaimed(clusters, class)
		}
	}

	for class, cs := range clusters {
		if len(cs) == 0 {
			delete(clusters, class)
		}
	}
}

// dropDuplicates drops the smaller of any two clusters of a and b whose
// centroids are within duplicateDistance. Equal sizes drop the one of a.
func dropDuplicates(pts []r3.Vector, a, b [][]int) ([][]int, [][]int) {

	ca := make([]r3.Vector, len(a))
	cb := make([]r3.Vector, len(b))

	for i, c := range a {
		ca[i] = centroid(pts, c)
	}

	for j, c := range b {
		cb[j] = centroid(pts, c)
	}

	dropA := make([]bool, len(a))
	dropB := make([]bool, len(b))

	for i := range a {
		for j := range b {
			if dropB[j] || ca[i].Sub(cb[j]).Norm() > duplicateDistance {
				continue
			}

			if len(a[i]) > len(b[j]) {
				dropB[j] = true
				continue
			}

			dropA[i] = true
			break
		}
	}

	return keepClusters(a, dropA), keepClusters(b, dropB)
}

func keepClusters(cs [][]int, drop []bool) [][]int {

	out := make([][]int, 0, len(cs))

	for i, c := range cs {
		if !drop[i] {
			out = append(out, c)
		}
	}

	return out
}

// dropClaimed removes from the clusters of class every point belonging to a
// cluster of another class
func dropClaimed(clusters ClassClusters, class string) {

	claimed := make(map[int]bool)

	for other, cs := range clusters {
		if other == class {
			continue
		}

		for _, c := range cs {
			for _, id := range c {
				claimed[id] = true
			}
		}
	}

	var kept [][]int

	for _, c := range clusters[class] {
		var rest []int

		for _, id := range c {
			if !claimed[id] {
				rest = append(rest, id)
			}
		}

		if len(rest) > 0 {
			kept = append(kept, rest)
		}
	}

	clusters[class] = kept
}

// ClusterPoint is the representative point of a cluster, the XY centroid
// at the height of its lowest point
func ClusterPoint(pts []r3.Vector, ids []int) r3.Vector {

	c := centroid(pts, ids)
	c.Z = math.Inf(1)

	for _, id := range ids {
		c.Z = math.Min(c.Z, pts[id].Z)
	}

	return c
}

// ClusterFootprints rasterizes the XY of a cluster on a grid of voxel size
// and returns the outlines of its external contours
func ClusterFootprints(pts []r3.Vector, ids []int, voxel float64) []orb.Polygon {

	if len(ids) == 0 || voxel <= 0 {
		return nil
	}

	minX, minY := math.Inf(1), math.Inf(1)

	for _, id := range ids {
		minX = math.Min(minX, pts[id].X/voxel)
		minY = math.Min(minY, pts[id].Y/voxel)
	}

	cells := make([]image.Point, len(ids))
	w, h := 0, 0

	for i, id := range ids {
		cells[i] = image.Pt(int(pts[id].X/voxel-minX), int(pts[id].Y/voxel-minY))
		w = maxInt(w, cells[i].X+1)
		h = maxInt(h, cells[i].Y+1)
	}

	grid := make([]byte, w*h)

	for _, c := range cells {
		grid[c.Y*w+c.X] = 255
	}

	img, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, grid)

	if err != nil {
		log.Error(logTag+"footprint raster failed", zap.Error(err))
		return nil
	}

	defer img.Close()

	contours := gocv.FindContours(img, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var out []orb.Polygon

	for i := 0; i < contours.Size(); i++ {
		cnt := contours.At(i).ToPoints()

		// a polygon needs three corners
		if len(cnt) < 3 {
			continue
		}

		ring := make(orb.Ring, 0, len(cnt)+1)

		for _, pt := range cnt {
			ring = append(ring, orb.Point{
				(float64(pt.X) + minX) * voxel,
				(float64(pt.Y) + minY) * voxel,
			})
		}

		ring = append(ring, ring[0])
		out = append(out, orb.Polygon{ring})
	}

	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
