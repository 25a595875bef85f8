package panorama

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
)

// Colorize returns one colour per cloud point. Points outside clusters are
// grey by height, the clusters of each class share a hue and get brighter
// with their rank.
func Colorize(pts []r3.Vector, clusters ClassClusters, classes []string) []colorful.Color {

	colors := make([]colorful.Color, len(pts))

	if len(pts) == 0 {
		return colors
	}

	low, high := math.Inf(1), math.Inf(-1)

	for _, p := range pts {
		low = math.Min(low, p.Z)
		high = math.Max(high, p.Z)
	}

	for i, p := range pts {
		g := 0.5

		if high > low {
			g = (p.Z - low) / (high - low)
		}

		colors[i] = colorful.Color{R: g, G: g, B: g}
	}

	for ci, class := range classes {
		hue := 360 * float64(ci) / float64(len(classes))
		cs := clusters[class]

		for j, c := range cs {
			col := colorful.Hsv(hue, 1, 0.5+0.5*float64(j)/float64(len(cs)))

			for _, id := range c {
				colors[id] = col
			}
		}
	}

	return colors
}

// WritePCD writes an ASCII point cloud with packed rgb colours
func WritePCD(w io.Writer, pts []r3.Vector, colors []colorful.Color) error {

	if len(colors) != len(pts) {
		return fmt.Errorf("%d colours for %d points", len(colors), len(pts))
	}

	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# .PCD v0.7 - Point Cloud Data file format\n")
	fmt.Fprintf(bw, "VERSION 0.7\n")
	fmt.Fprintf(bw, "FIELDS x y z rgb\n")
	fmt.Fprintf(bw, "SIZE 4 4 4 4\n")
	fmt.Fprintf(bw, "TYPE F F F U\n")
	fmt.Fprintf(bw, "COUNT 1 1 1 1\n")
	fmt.Fprintf(bw, "WIDTH %d\n", len(pts))
	fmt.Fprintf(bw, "HEIGHT 1\n")
	fmt.Fprintf(bw, "VIEWPOINT 0 0 0 1 0 0 0\n")
	fmt.Fprintf(bw, "POINTS %d\n", len(pts))
	fmt.Fprintf(bw, "DATA ascii\n")

	for i, p := range pts {
		r, g, b := colors[i].Clamped().RGB255()
		rgb := uint32(r)<<16 | uint32(g)<<8 | uint32(b)

		if _, err := fmt.Fprintf(bw, "%.3f %.3f %.3f %d\n", p.X, p.Y, p.Z, rgb); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// SavePCD writes the coloured cloud to path
func SavePCD(path string, pts []r3.Vector, clusters ClassClusters, classes []string) error {

	f, err := os.Create(path)

	if err != nil {
		return fmt.Errorf("creating point cloud: %w", err)
	}

	if err := WritePCD(f, pts, Colorize(pts, clusters, classes)); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return f.Close()
}
