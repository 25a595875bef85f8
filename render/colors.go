package render

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// paletteSize is the number of distinct class colors before they repeat
const paletteSize = 20

// classColors holds paletteSize hues spread by the golden angle so that
// neighbouring class ids get contrasting colors
var classColors = func() []color.RGBA {

	golden := 180 * (3 - math.Sqrt(5))
	out := make([]color.RGBA, paletteSize)

	for i := range out {
		hue := math.Mod(float64(i)*golden, 360)
		// alternate the value so close hues still differ in brightness
		value := 1.0 - 0.2*float64(i%2)
		r, g, b := colorful.Hsv(hue, 0.8, value).Clamped().RGB255()
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}

	return out
}()

// White is the label text color
var White = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// ClassColor returns the palette color of a class id
func ClassColor(classID int) color.RGBA {

	if classID < 0 {
		classID = -classID
	}

	return classColors[classID%len(classColors)]
}
