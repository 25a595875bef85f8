package panorama

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Noise is the DBSCAN label of points outside any cluster
const Noise = -1

// indexedPoint is a cloud point that remembers its position in the input
type indexedPoint struct {
	p   kdtree.Point
	idx int
}

func (q indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return q.p[d] - c.(indexedPoint).p[d]
}

func (q indexedPoint) Dims() int {
	return len(q.p)
}

// Distance is the squared euclidean distance
func (q indexedPoint) Distance(c kdtree.Comparable) float64 {
	return q.p.Distance(c.(indexedPoint).p)
}

type cloud []indexedPoint

func (c cloud) Index(i int) kdtree.Comparable {
	return c[i]
}

func (c cloud) Len() int {
	return len(c)
}

func (c cloud) Slice(start, end int) kdtree.Interface {
	return c[start:end]
}

func (c cloud) Pivot(d kdtree.Dim) int {
	return plane{cloud: c, Dim: d}.Pivot()
}

// plane sorts a cloud along one dimension
type plane struct {
	cloud
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	return p.cloud[i].p[p.Dim] < p.cloud[j].p[p.Dim]
}

func (p plane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{cloud: p.cloud[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.cloud[i], p.cloud[j] = p.cloud[j], p.cloud[i]
}

// Index answers radius queries over a point set
type Index struct {
	tree *kdtree.Tree
	pts  []kdtree.Point
}

// NewIndex builds a kd-tree over pts
func NewIndex(pts []r3.Vector) *Index {

	c := make(cloud, len(pts))
	kp := make([]kdtree.Point, len(pts))

	for i, p := range pts {
		kp[i] = kdtree.Point{p.X, p.Y, p.Z}
		c[i] = indexedPoint{p: kp[i], idx: i}
	}

	idx := &Index{pts: kp}

	if len(c) > 0 {
		idx.tree = kdtree.New(c, false)
	}

	return idx
}

// Within returns the indices of the points within eps of point i, i
// included
func (x *Index) Within(i int, eps float64) []int {

	if x.tree == nil {
		return nil
	}

	keep := kdtree.NewDistKeeper(eps * eps)
	x.tree.NearestSet(keep, indexedPoint{p: x.pts[i], idx: i})

	out := make([]int, 0, len(keep.Heap))

	for _, c := range keep.Heap {
		// the keeper holds a sentinel without a point
		if c.Comparable == nil {
			continue
		}

		out = append(out, c.Comparable.(indexedPoint).idx)
	}

	return out
}

// DBSCAN clusters pts and returns one label per point, Noise for points
// outside any cluster. A point with at least minSamples points within eps,
// itself included, is a core point. Clusters are numbered from zero in
// order of their first core point.
func DBSCAN(pts []r3.Vector, eps float64, minSamples int) []int {

	labels := make([]int, len(pts))

	for i := range labels {
		labels[i] = Noise
	}

	idx := NewIndex(pts)
	visited := make([]bool, len(pts))
	cluster := 0

	for i := range pts {
		if visited[i] {
			continue
		}

		visited[i] = true
		neighbours := idx.Within(i, eps)

		if len(neighbours) < minSamples {
			continue
		}

		labels[i] = cluster
		queue := append([]int(nil), neighbours...)

		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == Noise {
				labels[j] = cluster
			}

			if visited[j] {
				continue
			}

			visited[j] = true
			more := idx.Within(j, eps)

			if len(more) >= minSamples {
				queue = append(queue, more...)
			}
		}

		cluster++
	}

	return labels
}

// Clusters groups the indices of labelled points per cluster
func Clusters(labels []int) [][]int {

	var out [][]int

	for i, l := range labels {
		if l == Noise {
			continue
		}

		for len(out) <= l {
			out = append(out, nil)
		}

		out[l] = append(out[l], i)
	}

	return out
}
