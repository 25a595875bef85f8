// Package change compares two vector layers of the same class and sorts
// their objects into deleted, unchanged, added and changed buckets.
//
// The rule depends on the class kind: points are matched by proximity,
// polygons by overlap and area ratio, and road surfaces are compared as
// dissolved areas.
package change

import (
	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/geo"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

const logTag = "change: "

// Status of an object between the old and new layer
type Status int

const (
	Deleted Status = iota
	Unchanged
	Added
	Changed
)

// Statuses lists every status in output order
var Statuses = []Status{Deleted, Unchanged, Added, Changed}

func (s Status) String() string {
	switch s {
	case Deleted:
		return "deleted"
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Changed:
		return "changed"
	}
	return "unknown"
}

// Object is one named geometry of a layer
type Object struct {
	Name     string
	Geometry orb.Geometry
}

// Layer holds the objects of one class
type Layer struct {
	Class   string
	CRS     string
	Objects []Object
}

// Entry is one output object of a bucket. NameOld and NameNew name the
// matched objects, either is empty when the object has no counterpart.
type Entry struct {
	Geometry orb.Geometry
	NameOld  string
	NameNew  string
}

// Result of the comparison of one class
type Result struct {
	Class   string
	Kind    geoai.ClassKind
	Buckets map[Status][]Entry
}

// Params of the comparison rules
type Params struct {
	// PointVicinity is the match distance of points in metres
	PointVicinity float64
	// AreaRatio is the overlap over old area above which polygons may match
	AreaRatio float64
	// OpenRadius in metres removes slivers of road differences
	OpenRadius float64
}

// Compare sorts the objects of two layers of the same class. Layers in
// different CRSs are rejected.
func Compare(old, new Layer, p Params) (*Result, error) {

	if old.Class != new.Class {
		return nil, geoai.Errorf(geoai.BadInput, "change.Compare",
			"comparing class %s with %s", old.Class, new.Class)
	}

	geographic := false

	if (old.CRS == "") != (new.CRS == "") {
		return nil, geoai.Errorf(geoai.BadInput, "change.Compare",
			"class %s has a layer without CRS", old.Class)
	}

	if old.CRS != "" {
		same, err := geo.SameCRS(old.CRS, new.CRS)

		if err != nil {
			return nil, err
		}

		if !same {
			return nil, geoai.Errorf(geoai.BadInput, "change.Compare",
				"class %s layers are in different CRSs", old.Class)
		}

		if geographic, err = geo.IsGeographic(old.CRS); err != nil {
			return nil, err
		}
	}

	kind := kindOf(old, new)
	res := &Result{Class: old.Class, Kind: kind, Buckets: make(map[Status][]Entry)}

	var entries map[Status][]Entry

	switch kind {
	case geoai.PointClass:
		entries = ComparePoints(old.Objects, new.Objects, p.PointVicinity, geographic)
	case geoai.RoadClass:
		r := p.OpenRadius

		if geographic {
			r = metresToDegrees(r)
		}

		entries = CompareRoads(old.Objects, new.Objects, r)
	default:
		entries = ComparePolygons(old.Objects, new.Objects, p.AreaRatio)
	}

	for s, e := range entries {
		res.Buckets[s] = e
	}

	log.Info(logTag+"compared class", zap.String("class", res.Class), zap.Stringer("kind", kind),
		zap.Int("deleted", len(res.Buckets[Deleted])), zap.Int("unchanged", len(res.Buckets[Unchanged])),
		zap.Int("added", len(res.Buckets[Added])), zap.Int("changed", len(res.Buckets[Changed])))

	return res, nil
}

// kindOf returns the registered kind of the class. Classes missing from the
// kind table are compared as points when both layers hold only points.
func kindOf(old, new Layer) geoai.ClassKind {

	if k, ok := geoai.ClassKindOf(old.Class); ok {
		return k
	}

	n := 0

	for _, l := range []Layer{old, new} {
		for _, o := range l.Objects {
			if _, ok := o.Geometry.(orb.Point); !ok {
				return geoai.PolygonClass
			}
			n++
		}
	}

	if n == 0 {
		return geoai.PolygonClass
	}

	return geoai.PointClass
}

// metresPerDegree along the equator
const metresPerDegree = 111320

func metresToDegrees(m float64) float64 {
	return m / metresPerDegree
}
