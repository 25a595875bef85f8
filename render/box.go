package render

import (
	"fmt"
	"image"

	"github.com/ifaistartup/go-geoai"
	"gocv.io/x/gocv"
)

// pointRadius of point features in pixels
const pointRadius = 6

// featureText is the label of a feature, its class, object number and
// confidence when known
func featureText(f geoai.Feature) string {

	text := fmt.Sprintf("%s %d", f.ClassName, f.ObjectNum)

	if f.Confidence > 0 {
		text = fmt.Sprintf("%s %.2f", text, f.Confidence)
	}

	return text
}

// FeatureBoxes renders the bounding boxes and labels of the features, point
// features are drawn as circles. Labels are drawn last so outlines of other
// features never cover them.
func FeatureBoxes(img *gocv.Mat, features []geoai.Feature, style LabelStyle, lineThickness int) {

	labels := make([]label, 0, len(features))

	for _, f := range features {

		clr := ClassColor(f.ClassID)
		b := f.Bound

		if f.Geometry != nil {
			b = f.Geometry.Bound()
		}

		left, top := int(b.Min[0]), int(b.Min[1])
		right, bottom := int(b.Max[0]+0.5), int(b.Max[1]+0.5)

		if right-left < 1 && bottom-top < 1 {
			gocv.Circle(img, image.Pt(left, top), pointRadius, clr, lineThickness)
			left, top = left-pointRadius, top-pointRadius
		} else {
			gocv.Rectangle(img, image.Rect(left, top, right, bottom), clr, lineThickness)
		}

		labels = append(labels, label{text: featureText(f), clr: clr, anchor: image.Pt(left, top)})
	}

	for _, l := range labels {
		l.draw(img, style)
	}
}
