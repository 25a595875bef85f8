package geo

import (
	"fmt"
	"math"
	"os"

	"github.com/ifaistartup/go-geoai"
)

// Extent is a georeferenced image footprint.
type Extent struct {
	Affine AffineGeo
	Width  int
	Height int
}

// MergeExtents returns the extent covering every input. It keeps the pixel
// size of the first input and moves its origin to the outer-most minimum X
// and maximum Y, the size is the pixel position of the far corner.
func MergeExtents(extents []Extent) (Extent, error) {

	if len(extents) == 0 {
		return Extent{}, geoai.Errorf(geoai.EmptyInput, "geo.MergeExtents", "no extents to merge")
	}

	main := extents[0].Affine
	minX, maxY := math.Inf(1), math.Inf(-1)
	maxX, minY := math.Inf(-1), math.Inf(1)

	for _, e := range extents {
		for _, c := range e.Affine.Footprint(e.Width, e.Height)[0] {
			minX = math.Min(minX, c[0])
			maxX = math.Max(maxX, c[0])
			minY = math.Min(minY, c[1])
			maxY = math.Max(maxY, c[1])
		}

		minC := math.Min(e.Affine.C, main.C)
		maxF := math.Max(e.Affine.F, main.F)
		main.C, main.F = minC, maxF
	}

	if _, err := main.Inverse(); err != nil {
		return Extent{}, err
	}

	// far corner in the merged pixel grid, measured from the outer edge
	fx, fy, _ := main.WorldToPixel(maxX, minY)
	if main.E > 0 {
		fx, fy, _ = main.WorldToPixel(maxX, maxY)
	}

	return Extent{
		Affine: main,
		Width:  int(math.Ceil(fx + 0.5)),
		Height: int(math.Ceil(fy + 0.5)),
	}, nil
}

// WritePrj writes the ESRI WKT of crs to a .prj file.
func WritePrj(path, crs string) error {

	text, err := ESRIWKT(crs)

	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("error writing prj: %w", err)
	}

	return nil
}
