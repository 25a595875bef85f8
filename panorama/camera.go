package panorama

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/ifaistartup/go-geoai"
	"gonum.org/v1/gonum/mat"
)

func rotX(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, c, -s, 0,
		0, s, c, 0,
		0, 0, 0, 1,
	})
}

func rotY(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(4, 4, []float64{
		c, 0, s, 0,
		0, 1, 0, 0,
		-s, 0, c, 0,
		0, 0, 0, 1,
	})
}

func rotZ(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(4, 4, []float64{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

func translation(x, y, z float64) *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, x,
		0, 1, 0, y,
		0, 0, 1, z,
		0, 0, 0, 1,
	})
}

// product multiplies the matrices left to right
func product(ms ...*mat.Dense) *mat.Dense {

	out := mat.DenseCopyOf(ms[0])

	for _, m := range ms[1:] {
		var next mat.Dense
		next.Mul(out, m)
		out = &next
	}

	return out
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// CarExtrinsic maps world coordinates to the vehicle frame, x pointing in the
// driving direction and z up
func CarExtrinsic(p Pose) *mat.Dense {
	return product(
		rotX(-radians(p.Roll)),
		rotY(radians(p.Pitch)),
		rotZ(radians(p.Heading-90)),
		translation(-p.Position.X, -p.Position.Y, -p.Position.Z),
	)
}

// installation rotates the vehicle frame into the camera frame of face 0
var installation = product(rotZ(math.Pi/2), rotY(-math.Pi/2))

// CameraExtrinsic maps world coordinates to the camera frame of a face, z
// pointing out of the image
func CameraExtrinsic(p Pose, face Face) *mat.Dense {

	car := CarExtrinsic(p)

	switch face {
	case FaceTop:
		return product(rotX(-math.Pi/2), rotY(math.Pi), installation, car)
	case FaceBottom:
		return product(rotX(math.Pi/2), rotY(math.Pi), installation, car)
	}

	return product(rotY(-float64(face)*math.Pi/2), installation, car)
}

// Camera is a posed pinhole camera of a square cubic face
type Camera struct {
	extrinsic *mat.Dense
	position  r3.Vector
	size      int
}

// NewCamera returns the camera of face for an image of size pixels
func NewCamera(p Pose, face Face, size int) (*Camera, error) {

	ext := CameraExtrinsic(p, face)

	var inv mat.Dense

	if err := inv.Inverse(ext); err != nil {
		return nil, geoai.NewError(geoai.DegenerateTransform, "panorama.NewCamera", err)
	}

	return &Camera{
		extrinsic: ext,
		position:  r3.Vector{X: inv.At(0, 3), Y: inv.At(1, 3), Z: inv.At(2, 3)},
		size:      size,
	}, nil
}

// Position returns the camera centre in world coordinates
func (c *Camera) Position() r3.Vector {
	return c.position
}

// Size returns the side of the face image in pixels
func (c *Camera) Size() int {
	return c.size
}

// ToCamera transforms a world point into the camera frame
func (c *Camera) ToCamera(p r3.Vector) r3.Vector {

	e := c.extrinsic.RawMatrix().Data

	x := e[0]*p.X + e[1]*p.Y + e[2]*p.Z + e[3]
	y := e[4]*p.X + e[5]*p.Y + e[6]*p.Z + e[7]
	z := e[8]*p.X + e[9]*p.Y + e[10]*p.Z + e[11]
	w := e[12]*p.X + e[13]*p.Y + e[14]*p.Z + e[15]

	if w != 0 && w != 1 {
		x, y, z = x/w, y/w, z/w
	}

	return r3.Vector{X: x, Y: y, Z: z}
}

// Project returns the pixel of a camera frame point, the focal length and
// principal point are both half the image size. ok is false behind the
// camera or outside the image.
func (c *Camera) Project(q r3.Vector) (u, v int, ok bool) {

	if q.Z <= 0 {
		return 0, 0, false
	}

	half := float64(c.size) / 2

	// truncated toward zero
	u = int(half*q.X/q.Z + half)
	v = int(half*q.Y/q.Z + half)

	if u < 0 || v < 0 || u >= c.size || v >= c.size {
		return 0, 0, false
	}

	return u, v, true
}
