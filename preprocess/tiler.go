package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Layout describes how a scaled image is padded and cut into tiles. Tiles
// step by TileSize-2*Overlap on both axes, the first Overlap pixels of the
// padded image are padding on the near side.
type Layout struct {
	// TileSize is the square tile edge in pixels
	TileSize int
	// Overlap is the context margin k trimmed from each side of a tile
	Overlap int
	// Step is TileSize - 2*Overlap
	Step int
	// Width and Height of the scaled image before padding
	Width  int
	Height int
	// PadRight and PadBottom are the far side paddings
	PadRight  int
	PadBottom int
	// Rows and Cols of the tile grid
	Rows int
	Cols int
}

// NewLayout computes the tile grid of a width x height image.
func NewLayout(width, height, tileSize, overlap int) (Layout, error) {

	step := tileSize - 2*overlap

	if tileSize <= 0 || overlap < 0 || step <= 0 {
		return Layout{}, fmt.Errorf("invalid tile size %d with overlap %d", tileSize, overlap)
	}

	if width <= 0 || height <= 0 {
		return Layout{}, fmt.Errorf("invalid image size %dx%d", width, height)
	}

	l := Layout{
		TileSize:  tileSize,
		Overlap:   overlap,
		Step:      step,
		Width:     width,
		Height:    height,
		PadRight:  overlap + farPad(width, step),
		PadBottom: overlap + farPad(height, step),
	}

	l.Cols = (width + farPad(width, step)) / step
	l.Rows = (height + farPad(height, step)) / step

	return l, nil
}

// farPad is the padding needed to make n a multiple of step
func farPad(n, step int) int {
	return (step - n%step) % step
}

// PaddedWidth returns the width of the padded image
func (l Layout) PaddedWidth() int {
	return l.Overlap + l.Width + l.PadRight
}

// PaddedHeight returns the height of the padded image
func (l Layout) PaddedHeight() int {
	return l.Overlap + l.Height + l.PadBottom
}

// Count returns the number of tiles
func (l Layout) Count() int {
	return l.Rows * l.Cols
}

// Offset returns the scaled image coordinate of the first interior pixel of
// tile (row, col).
func (l Layout) Offset(row, col int) image.Point {
	return image.Pt(l.Step*col, l.Step*row)
}

// Interior returns the authoritative rectangle of tile (row, col) in scaled
// image coordinates.
func (l Layout) Interior(row, col int) image.Rectangle {
	o := l.Offset(row, col)
	return image.Rect(o.X, o.Y, o.X+l.Step, o.Y+l.Step)
}

// Tile is one square cut of the padded image
type Tile struct {
	Row int
	Col int
	// X and Y are the tile's top left corner in the padded image
	X int
	Y int
	// mat is a region of the padded image, it shares its memory
	mat gocv.Mat
}

// Mat returns the tile pixels.
func (t *Tile) Mat() gocv.Mat {
	return t.mat
}

// Tiler defines the struct used for scaling, padding and cutting an image
// into overlapping tiles
type Tiler struct {
	resizer *Resizer
	layout  Layout
	// scaled is the resized source image
	scaled gocv.Mat
	// padded is the scaled image with borders added
	padded gocv.Mat
	tiles  []Tile
}

// NewTiler returns a Tiler for a srcWidth x srcHeight image at the given
// scale, tile size and overlap.
func NewTiler(srcWidth, srcHeight, tileSize, overlap int, scale float64) (*Tiler, error) {

	r := NewResizer(srcWidth, srcHeight, tileSize, scale)

	layout, err := NewLayout(r.Width(), r.Height(), tileSize, overlap)

	if err != nil {
		return nil, err
	}

	return &Tiler{
		resizer: r,
		layout:  layout,
		scaled:  gocv.NewMat(),
		padded:  gocv.NewMat(),
	}, nil
}

// Layout returns the tile grid.
func (t *Tiler) Layout() Layout {
	return t.layout
}

// Resizer returns the resizer applied before tiling.
func (t *Tiler) Resizer() *Resizer {
	return t.resizer
}

// Slice scales and pads src and returns its tiles in row-major order.
func (t *Tiler) Slice(src gocv.Mat) ([]Tile, error) {

	if src.Cols() != t.resizer.SrcWidth() || src.Rows() != t.resizer.SrcHeight() {
		return nil, fmt.Errorf("image is %dx%d, tiler expects %dx%d", src.Cols(), src.Rows(),
			t.resizer.SrcWidth(), t.resizer.SrcHeight())
	}

	t.free()

	t.resizer.Resize(src, &t.scaled)

	l := t.layout
	gocv.CopyMakeBorder(t.scaled, &t.padded, l.Overlap, l.PadBottom, l.Overlap, l.PadRight,
		gocv.BorderConstant, color.RGBA{R: 0, G: 0, B: 0, A: 255})

	t.tiles = make([]Tile, 0, l.Count())

	for row := 0; row < l.Rows; row++ {
		for col := 0; col < l.Cols; col++ {
			x, y := l.Step*col, l.Step*row

			t.tiles = append(t.tiles, Tile{
				Row: row,
				Col: col,
				X:   x,
				Y:   y,
				mat: t.padded.Region(image.Rect(x, y, x+l.TileSize, y+l.TileSize)),
			})
		}
	}

	return t.tiles, nil
}

// ToSource maps a coordinate of the scaled image to the source image.
func (t *Tiler) ToSource(x, y float64) (float64, float64) {
	return t.resizer.ToSource(x, y)
}

func (t *Tiler) free() error {

	var errs []error

	for i := range t.tiles {
		errs = append(errs, t.tiles[i].mat.Close())
	}

	t.tiles = nil

	return errors.Join(errs...)
}

// Close releases the tiles and intermediate images from memory
func (t *Tiler) Close() error {
	err := t.free()
	err2 := t.scaled.Close()
	err3 := t.padded.Close()

	return errors.Join(err, err2, err3)
}
