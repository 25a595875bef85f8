package geom

import (
	flatbush "github.com/bmharper/flatbush-go"
	"github.com/paulmach/orb"
)

// Index is a static packed R-tree over bounding boxes.
type Index struct {
	fb    *flatbush.Flatbush64
	count int
}

// NewIndex builds an index whose item i is bounds[i].
func NewIndex(bounds []orb.Bound) *Index {

	idx := &Index{count: len(bounds)}

	if len(bounds) == 0 {
		return idx
	}

	idx.fb = flatbush.NewFlatbush64()
	idx.fb.Reserve(len(bounds))

	for _, b := range bounds {
		idx.fb.Add(b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	}

	idx.fb.Finish()

	return idx
}

// Search appends to results the items whose bounds intersect b. The
// results slice is reused to avoid allocations.
func (idx *Index) Search(b orb.Bound, results []int) []int {

	if idx.fb == nil {
		return results[:0]
	}

	return idx.fb.SearchFast(b.Min[0], b.Min[1], b.Max[0], b.Max[1], results)
}

// Len returns the number of indexed items.
func (idx *Index) Len() int {
	return idx.count
}
