// Package export writes the vector layers, JSON digests, georeference
// sidecars and zip bundles of a run, and reads layers back for comparison.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/change"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

const logTag = "export: "

// attribute fields of the output layers
const (
	FieldName    = "name"
	FieldType    = "type"
	FieldNameOld = "name_old"
	FieldNameNew = "name_new"
)

// TrajectoryType is the type attribute of trajectory lines
const TrajectoryType = "trajectory"

// WriteFeatures writes one shapefile per class of classes holding at least
// one feature and returns their paths. The name attribute is the object
// number and the type attribute the class name.
func WriteFeatures(dir, crs string, classes []string, features []geoai.Feature) ([]string, error) {

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating %s: %w", dir, err)
	}

	byClass := make(map[string][]Record)

	for _, f := range features {
		byClass[f.ClassName] = append(byClass[f.ClassName], Record{
			Geometry: f.Geometry,
			Values:   []string{strconv.Itoa(f.ObjectNum), f.ClassName},
		})
	}

	var paths []string

	for _, class := range classes {
		recs := byClass[class]

		if len(recs) == 0 {
			continue
		}

		path := LayerFile(dir, class)

		if err := WriteShapefile(path, Table{CRS: crs, Fields: []string{FieldName, FieldType}, Records: recs}); err != nil {
			return nil, err
		}

		paths = append(paths, path)
		delete(byClass, class)
	}

	for class, recs := range byClass {
		log.Warn(logTag+"features of an unlisted class not written",
			zap.String("class", class), zap.Int("features", len(recs)))
	}

	log.Info(logTag+"layers written", zap.String("dir", dir), zap.Int("layers", len(paths)))

	return paths, nil
}

// WriteTrajectory writes the scene trajectories, named from 1
func WriteTrajectory(path, crs string, lines []orb.LineString) error {

	recs := make([]Record, len(lines))

	for i, l := range lines {
		recs[i] = Record{Geometry: l, Values: []string{strconv.Itoa(i + 1), TrajectoryType}}
	}

	return WriteShapefile(path, Table{CRS: crs, Fields: []string{FieldName, FieldType}, Records: recs})
}

// WriteChange writes the buckets of a class comparison under
// dir/<status>/<class>.shp, every status gets a layer even when empty
func WriteChange(dir, crs string, res *change.Result) ([]string, error) {

	var paths []string

	for _, s := range change.Statuses {
		sub := filepath.Join(dir, s.String())

		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("error creating %s: %w", sub, err)
		}

		entries := res.Buckets[s]
		recs := make([]Record, len(entries))

		for i, e := range entries {
			recs[i] = Record{
				Geometry: e.Geometry,
				Values:   []string{strconv.Itoa(i), res.Class, e.NameOld, e.NameNew},
			}
		}

		shape := ShapePolygon

		if res.Kind == geoai.PointClass {
			shape = ShapePoint
		}

		path := LayerFile(sub, res.Class)
		t := Table{
			CRS:     crs,
			Shape:   shape,
			Fields:  []string{FieldName, FieldType, FieldNameOld, FieldNameNew},
			Records: recs,
		}

		if err := WriteShapefile(path, t); err != nil {
			return nil, err
		}

		paths = append(paths, path)
	}

	return paths, nil
}

// ReadLayer reads a class layer for comparison, objects are named by the
// name attribute or by their position when it is missing
func ReadLayer(path, class string) (change.Layer, error) {

	t, err := ReadShapefile(path)

	if err != nil {
		return change.Layer{}, err
	}

	l := change.Layer{Class: class, CRS: t.CRS, Objects: make([]change.Object, 0, len(t.Records))}

	for i, r := range t.Records {
		if r.Geometry == nil {
			continue
		}

		name := t.Value(i, FieldName)

		if name == "" {
			name = strconv.Itoa(i)
		}

		l.Objects = append(l.Objects, change.Object{Name: name, Geometry: r.Geometry})
	}

	return l, nil
}
