package panorama

import (
	"github.com/golang/geo/r3"
)

const (
	// visibilityCell is the side in pixels of the depth buffer cells
	visibilityCell = 4
	// depthTolerance is the relative depth behind the nearest point of a
	// cell within which a point still counts as visible
	depthTolerance = 0.1
)

// Projected is a visible cloud point and its pixel on a face
type Projected struct {
	// Index of the point in the cloud
	Index int
	U     int
	V     int
	Depth float64
}

// Visible projects the cloud onto the camera and keeps the points that are
// not hidden behind nearer points of the same depth buffer cell. Points
// farther than maxRange from the camera are ignored when maxRange > 0.
func Visible(cam *Camera, pts []r3.Vector, maxRange float64) []Projected {

	cells := (cam.size + visibilityCell - 1) / visibilityCell
	nearest := make([]float64, cells*cells)
	proj := make([]Projected, 0, len(pts)/4)

	for i, p := range pts {
		if maxRange > 0 && p.Sub(cam.position).Norm() > maxRange {
			continue
		}

		q := cam.ToCamera(p)
		u, v, ok := cam.Project(q)

		if !ok {
			continue
		}

		cell := (v/visibilityCell)*cells + u/visibilityCell

		if nearest[cell] == 0 || q.Z < nearest[cell] {
			nearest[cell] = q.Z
		}

		proj = append(proj, Projected{Index: i, U: u, V: v, Depth: q.Z})
	}

	out := proj[:0]

	for _, p := range proj {
		cell := (p.V/visibilityCell)*cells + p.U/visibilityCell

		if p.Depth <= nearest[cell]*(1+depthTolerance) {
			out = append(out, p)
		}
	}

	return out
}
