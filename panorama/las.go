package panorama

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/ifaistartup/go-geoai"
	"github.com/jblindsay/lidario"
)

// ReadLAS reads the coordinates of every point of a LAS file
func ReadLAS(path string) ([]r3.Vector, error) {

	lf, err := lidario.NewLasFile(path, "r")

	if err != nil {
		return nil, geoai.NewError(geoai.BadInput, "panorama.ReadLAS", err)
	}

	defer lf.Close()

	n := int(lf.Header.NumberPoints)
	pts := make([]r3.Vector, 0, n)

	for i := 0; i < n; i++ {
		x, y, z, err := lf.GetXYZ(i)

		if err != nil {
			return nil, geoai.NewError(geoai.BadInput, "panorama.ReadLAS "+path,
				fmt.Errorf("reading point %d of %d: %w", i, n, err))
		}

		pts = append(pts, r3.Vector{X: x, Y: y, Z: z})
	}

	return pts, nil
}

type voxelKey [3]int64

type voxelSum struct {
	sum r3.Vector
	n   float64
}

// VoxelDownsample replaces the points of every cubic voxel of side size by
// their mean. The grid starts at the minimum corner of the cloud and the
// output is ordered by voxel.
func VoxelDownsample(pts []r3.Vector, size float64) []r3.Vector {

	if size <= 0 || len(pts) == 0 {
		return pts
	}

	origin := pts[0]

	for _, p := range pts[1:] {
		origin = r3.Vector{X: math.Min(origin.X, p.X), Y: math.Min(origin.Y, p.Y), Z: math.Min(origin.Z, p.Z)}
	}

	voxels := make(map[voxelKey]*voxelSum)

	for _, p := range pts {
		d := p.Sub(origin).Mul(1 / size)
		k := voxelKey{int64(math.Floor(d.X)), int64(math.Floor(d.Y)), int64(math.Floor(d.Z))}

		v, ok := voxels[k]

		if !ok {
			v = &voxelSum{}
			voxels[k] = v
		}

		v.sum = v.sum.Add(p)
		v.n++
	}

	keys := make([]voxelKey, 0, len(voxels))

	for k := range voxels {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]

		if a[0] != b[0] {
			return a[0] < b[0]
		}

		if a[1] != b[1] {
			return a[1] < b[1]
		}

		return a[2] < b[2]
	})

	out := make([]r3.Vector, len(keys))

	for i, k := range keys {
		v := voxels[k]
		out[i] = v.sum.Mul(1 / v.n)
	}

	return out
}
