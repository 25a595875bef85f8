package export

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/geom"
	"github.com/paulmach/orb"
)

// Coordinates of a digest entry. Points hold a single exterior position and
// no interior rings.
type Coordinates struct {
	Exterior [][2]float64   `json:"exterior"`
	Interior [][][2]float64 `json:"interior"`
}

// DigestEntry describes one feature of a run
type DigestEntry struct {
	ObjectNum   int         `json:"object_num"`
	ClassID     int         `json:"class_id"`
	ClassName   string      `json:"class_name"`
	Coordinates Coordinates `json:"coordinates"`
}

func ringCoords(r orb.Ring) [][2]float64 {

	out := make([][2]float64, len(r))

	for i, p := range r {
		out[i] = [2]float64{p[0], p[1]}
	}

	return out
}

// coordinatesOf returns the digest coordinates of a point or polygon, the
// largest polygon of a multipolygon
func coordinatesOf(g orb.Geometry) (Coordinates, error) {

	c := Coordinates{Interior: [][][2]float64{}}

	switch t := g.(type) {
	case orb.Point:
		c.Exterior = [][2]float64{{t[0], t[1]}}
		return c, nil
	case orb.MultiPolygon:
		p, ok := geom.Largest(t)

		if !ok {
			return c, geoai.Errorf(geoai.InvalidGeometry, "export.Digest", "empty multipolygon")
		}

		g = p
	}

	p, ok := g.(orb.Polygon)

	if !ok || len(p) == 0 {
		return c, geoai.Errorf(geoai.InvalidGeometry, "export.Digest", "unsupported geometry %T", g)
	}

	c.Exterior = ringCoords(p[0])

	for _, hole := range p[1:] {
		c.Interior = append(c.Interior, ringCoords(hole))
	}

	return c, nil
}

// Digest lists every feature in the order given
func Digest(features []geoai.Feature) ([]DigestEntry, error) {

	out := make([]DigestEntry, 0, len(features))

	for _, f := range features {
		c, err := coordinatesOf(f.Geometry)

		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", f.ObjectNum, err)
		}

		out = append(out, DigestEntry{
			ObjectNum:   f.ObjectNum,
			ClassID:     f.ClassID,
			ClassName:   f.ClassName,
			Coordinates: c,
		})
	}

	return out, nil
}

// WriteDigest writes the JSON digest of features to path
func WriteDigest(path string, features []geoai.Feature) error {

	entries, err := Digest(features)

	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")

	if err != nil {
		return fmt.Errorf("error encoding digest: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing digest: %w", err)
	}

	return nil
}

// ReadDigest loads a digest written by WriteDigest
func ReadDigest(path string) ([]DigestEntry, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return nil, geoai.NewError(geoai.BadInput, "export.ReadDigest", err)
	}

	var entries []DigestEntry

	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, geoai.NewError(geoai.BadInput, "export.ReadDigest", err)
	}

	return entries, nil
}
