package panorama

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/ifaistartup/go-geoai"
)

// Pose is the position and attitude of the vehicle when an image was taken
type Pose struct {
	FileName string
	// Position in the projected source CRS, metres
	Position r3.Vector
	// Heading, Pitch and Roll in degrees
	Heading float64
	Pitch   float64
	Roll    float64
	// Lat and Lon in degrees
	Lat float64
	Lon float64
}

// Trajectory maps trajectory file names to poses
type Trajectory map[string]Pose

// trajectory columns
var poseColumns = []string{
	"file_name",
	"projectedX[m]",
	"projectedY[m]",
	"projectedZ[m]",
	"heading[deg]",
	"pitch[deg]",
	"roll[deg]",
	"latitude[deg]",
	"longitude[deg]",
}

// ReadTrajectory reads a tab separated trajectory file
func ReadTrajectory(path string) (Trajectory, error) {

	f, err := os.Open(path)

	if err != nil {
		return nil, geoai.NewError(geoai.BadInput, "panorama.ReadTrajectory", err)
	}

	defer f.Close()

	t, err := parseTrajectory(f)

	if err != nil {
		return nil, geoai.NewError(geoai.BadInput, "panorama.ReadTrajectory "+path, err)
	}

	return t, nil
}

func parseTrajectory(r io.Reader) (Trajectory, error) {

	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()

	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index := make(map[string]int, len(header))

	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}

	cols := make([]int, len(poseColumns))
	last := 0

	for i, name := range poseColumns {
		c, ok := index[name]

		if !ok {
			return nil, fmt.Errorf("missing column %s", name)
		}

		cols[i] = c

		if c > last {
			last = c
		}
	}

	t := make(Trajectory)
	line := 1

	for {
		rec, err := cr.Read()

		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		line++

		if len(rec) <= last {
			return nil, fmt.Errorf("line %d: %d fields", line, len(rec))
		}

		var v [8]float64

		for i, c := range cols[1:] {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(rec[c]), 64)

			if err != nil {
				return nil, fmt.Errorf("line %d, %s: %w", line, poseColumns[i+1], err)
			}
		}

		name := strings.TrimSpace(rec[cols[0]])

		t[name] = Pose{
			FileName: name,
			Position: r3.Vector{X: v[0], Y: v[1], Z: v[2]},
			Heading:  v[3],
			Pitch:    v[4],
			Roll:     v[5],
			Lat:      v[6],
			Lon:      v[7],
		}
	}

	return t, nil
}

// Pose returns the pose of image num of a scene
func (t Trajectory) Pose(scene, num int) (Pose, error) {

	key := TrajectoryKey(scene, num)
	p, ok := t[key]

	if !ok {
		return Pose{}, geoai.Errorf(geoai.BadInput, "panorama.Pose", "no trajectory point %s", key)
	}

	return p, nil
}
