// Package reconcile filters the stitched features of all model sets into the
// final feature set of a run.
package reconcile

import (
	"sort"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/geom"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"
)

const logTag = "reconcile: "

// Params of the reconciliation
type Params struct {
	// IoU above which the smaller of two thing features is suppressed
	IoU float64
	// Stuff classes bypass suppression
	Stuff []string
}

// Reconcile clips features to the content zone when one is given, removes
// duplicates by non largest suppression and numbers the survivors densely
// from zero
func Reconcile(features []geoai.Feature, zone orb.Polygon, p Params) []geoai.Feature {

	if zone != nil {
		features = ClipToZone(features, zone)
	}

	kept := SuppressNonLargest(features, p.IoU, p.Stuff)
	Renumber(kept)

	log.Debug(logTag+"reconciled features", zap.Int("in", len(features)),
		zap.Int("out", len(kept)))

	return kept
}

// SuppressNonLargest keeps, among thing features whose boxes overlap with an
// IoU above threshold, only the one with the largest box. Equal areas are
// decided by the lower object number. Stuff features are always kept and
// the input order is preserved.
func SuppressNonLargest(features []geoai.Feature, threshold float64, stuff []string) []geoai.Feature {

	things := make([]int, 0, len(features))

	for i, f := range features {
		if !geoai.IsStuff(f.ClassName, stuff) {
			things = append(things, i)
		}
	}

	// candidates by decreasing box area
	sort.SliceStable(things, func(a, b int) bool {
		fa, fb := features[things[a]], features[things[b]]

		if aa, ab := fa.BoundArea(), fb.BoundArea(); aa != ab {
			return aa > ab
		}

		return fa.ObjectNum < fb.ObjectNum
	})

	suppressed := make([]bool, len(features))

	for i, base := range things {
		if suppressed[base] {
			continue
		}

		for _, other := range things[i+1:] {
			if suppressed[other] {
				continue
			}

			if geom.BoxIoU(features[base].Bound, features[other].Bound) > threshold {
				suppressed[other] = true
			}
		}
	}

	out := make([]geoai.Feature, 0, len(features))

	for i, f := range features {
		if !suppressed[i] {
			out = append(out, f)
		}
	}

	return out
}

// ClipToZone intersects every feature with zone. Features left without area
// are dropped, features split in several parts yield one feature per part.
// Points are kept when they lie in the zone.
func ClipToZone(features []geoai.Feature, zone orb.Polygon) []geoai.Feature {

	z := orb.MultiPolygon{zone}
	out := make([]geoai.Feature, 0, len(features))

	for _, f := range features {
		switch g := f.Geometry.(type) {
		case orb.Point:
			if planar.PolygonContains(zone, g) {
				out = append(out, f)
			}

		case orb.Polygon:
			for _, part := range geom.Intersection(orb.MultiPolygon{g}, z) {

				if geom.Area(part) == 0 {
					continue
				}

				clipped := f
				clipped.Geometry = part
				clipped.Bound = part.Bound()
				out = append(out, clipped)
			}

		default:
			log.Warn(logTag+"unsupported geometry in clip", zap.String("class", f.ClassName))
		}
	}

	return out
}

// Renumber assigns object numbers 0..n-1 in slice order
func Renumber(features []geoai.Feature) {
	for i := range features {
		features[i].ObjectNum = i
	}
}
