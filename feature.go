package geoai

import (
	"github.com/paulmach/orb"
)

// TileID identifies a tile by its row and column in the tile grid.
type TileID struct {
	Row int
	Col int
}

// Feature is one reconciled object of a run in image pixel coordinates (or
// world coordinates once projected).
type Feature struct {
	// ObjectNum is unique and dense across a run once reconciled
	ObjectNum int
	// ClassID is the index of ClassName in the run's common class list
	ClassID    int
	ClassName  string
	Confidence float64
	// Geometry is an orb.Polygon or orb.Point
	Geometry orb.Geometry
	// Bound is the axis aligned bounding box of Geometry
	Bound orb.Bound
	// SourceScale is the scale factor of the model set that produced it
	SourceScale float64
	SourceTiles []TileID
}

// Area of the feature's bounding box.
func (f Feature) BoundArea() float64 {
	return (f.Bound.Max[0] - f.Bound.Min[0]) * (f.Bound.Max[1] - f.Bound.Min[1])
}

// Polygon returns the feature geometry as a polygon if it is one.
func (f Feature) Polygon() (orb.Polygon, bool) {
	p, ok := f.Geometry.(orb.Polygon)
	return p, ok
}
