package result

import (
	"github.com/paulmach/orb"
)

// BoxRect are the dimensions of the bounding box of a detected object in
// tile pixels
type BoxRect struct {
	Left   float64
	Right  float64
	Top    float64
	Bottom float64
}

// Bound returns the box as an orb.Bound
func (b BoxRect) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.Left, b.Top},
		Max: orb.Point{b.Right, b.Bottom},
	}
}

// Empty reports whether the box has no area
func (b BoxRect) Empty() bool {
	return b.Right <= b.Left || b.Bottom <= b.Top
}

// Polygon returns the box as a closed counter clockwise rectangle
func (b BoxRect) Polygon() orb.Polygon {
	return orb.Polygon{orb.Ring{
		{b.Left, b.Top},
		{b.Left, b.Bottom},
		{b.Right, b.Bottom},
		{b.Right, b.Top},
		{b.Left, b.Top},
	}}
}

// Prediction is a single object found by a model in one tile. Coordinates
// are tile pixels relative to the tile's top left corner, including the
// overlap margin.
type Prediction struct {
	// ID is unique per adapter
	ID int64
	// Class is the index of ClassName in the model's class list
	Class     int
	ClassName string
	// Probability is the confidence score of the object, semantic
	// segmentation always reports 1
	Probability float32
	// Box is the bounding box of Polygon
	Box BoxRect
	// Polygon is the object outline
	Polygon orb.Polygon
}

// Translate returns a copy of the prediction shifted by dx, dy
func (p Prediction) Translate(dx, dy float64) Prediction {

	out := p
	out.Box = BoxRect{
		Left:   p.Box.Left + dx,
		Right:  p.Box.Right + dx,
		Top:    p.Box.Top + dy,
		Bottom: p.Box.Bottom + dy,
	}

	out.Polygon = make(orb.Polygon, len(p.Polygon))

	for i, r := range p.Polygon {
		nr := make(orb.Ring, len(r))

		for j, pt := range r {
			nr[j] = orb.Point{pt[0] + dx, pt[1] + dy}
		}

		out.Polygon[i] = nr
	}

	return out
}

// BoxOf returns the bounding box of a polygon's exterior
func BoxOf(p orb.Polygon) BoxRect {

	if len(p) == 0 || len(p[0]) == 0 {
		return BoxRect{}
	}

	b := p[0].Bound()

	return BoxRect{Left: b.Min[0], Top: b.Min[1], Right: b.Max[0], Bottom: b.Max[1]}
}
