package postprocess

import (
	"math"
	"sort"

	"github.com/ifaistartup/go-geoai/postprocess/result"
)

// clamp restricts val to the range lo and hi
func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(val, hi))
}

// boxIoU works out the Intersection over Union of two boxes
func boxIoU(a, b result.BoxRect) float64 {

	w := math.Max(0, math.Min(a.Right, b.Right)-math.Max(a.Left, b.Left))
	h := math.Max(0, math.Min(a.Bottom, b.Bottom)-math.Max(a.Top, b.Top))
	inter := w * h

	union := (a.Right-a.Left)*(a.Bottom-a.Top) + (b.Right-b.Left)*(b.Bottom-b.Top) - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}

// nms sorts cands by descending probability and drops every box overlapping
// a better box of the same class by more than threshold. Ties keep the
// anchor order.
func nms(cands []candidate, threshold float64) []candidate {

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].prob > cands[j].prob
	})

	kept := make([]candidate, 0, len(cands))

	for _, c := range cands {
		suppressed := false

		for _, k := range kept {
			if k.class == c.class && boxIoU(k.box, c.box) > threshold {
				suppressed = true
				break
			}
		}

		if !suppressed {
			kept = append(kept, c)
		}
	}

	return kept
}
