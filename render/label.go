package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// LabelStyle sets how feature labels are written above their boxes
type LabelStyle struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	// Pad around the text inside the filled label box
	Pad int
}

// DefaultLabelStyle returns small white text on the class color
func DefaultLabelStyle() LabelStyle {
	return LabelStyle{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		Pad:       4,
	}
}

// label is a text queued for drawing once every outline is painted
type label struct {
	text   string
	clr    color.RGBA
	anchor image.Point
}

// draw writes the label with its bottom left corner at the anchor, moved
// down when it would leave the top of the image
func (l label) draw(img *gocv.Mat, s LabelStyle) {

	size := gocv.GetTextSize(l.text, s.Face, s.Scale, s.Thickness)

	top := l.anchor.Y - size.Y - 2*s.Pad

	if top < 0 {
		top = 0
	}

	box := image.Rect(l.anchor.X, top, l.anchor.X+size.X+2*s.Pad, top+size.Y+2*s.Pad)

	gocv.Rectangle(img, box, l.clr, -1)
	gocv.PutTextWithParams(img, l.text, image.Pt(box.Min.X+s.Pad, box.Max.Y-s.Pad),
		s.Face, s.Scale, s.Color, s.Thickness, gocv.LineAA, false)
}
