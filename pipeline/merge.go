package pipeline

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/export"
	"github.com/ifaistartup/go-geoai/geo"
	"github.com/ifaistartup/go-geoai/geom"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// mergeInput is one aerial run to merge
type mergeInput struct {
	tfw    geo.TFW
	layers map[string]string
	// band is the border strip of the run footprint in CRS units
	band orb.MultiPolygon
}

func readMergeInput(dir string, border float64) (mergeInput, error) {

	var in mergeInput

	matches, err := filepath.Glob(filepath.Join(dir, "*"+export.TFWSuffix))

	if err != nil || len(matches) == 0 {
		return in, geoai.Errorf(geoai.MissingGeodata, "pipeline.Merge", "%s has no %s", dir, export.TFWSuffix)
	}

	if in.tfw, err = geo.ReadTFW(matches[0]); err != nil {
		return in, err
	}

	if in.layers, err = layerFiles(dir); err != nil {
		return in, geoai.NewError(geoai.BadInput, "pipeline.Merge", err)
	}

	footprint := orb.MultiPolygon{in.tfw.WorldFile.Footprint(in.tfw.ImageWidth, in.tfw.ImageHeight)}
	in.band = geom.Difference(footprint, geom.Buffer(footprint, -border, geom.JoinMiter))

	return in, nil
}

// mergeClass joins the polygons of one class across runs. Polygons reaching
// into the border strip of a run are dissolved together, the others are
// kept as they are.
func mergeClass(polys []orb.Polygon, bands []orb.MultiPolygon) []orb.Polygon {

	var kept, edge []orb.Polygon

	for _, p := range polys {
		onEdge := false

		for _, b := range bands {
			if geom.Area(geom.Intersection(orb.MultiPolygon{p}, b)) > 0 {
				onEdge = true
				break
			}
		}

		if onEdge {
			edge = append(edge, p)
		} else {
			kept = append(kept, p)
		}
	}

	if len(edge) > 0 {
		kept = append(kept, geom.Union(edge...)...)
	}

	return kept
}

// Merge combines the layers of several aerial runs into one run with a
// merged georeference. Objects split by the border of two runs are joined.
func (r *Runner) Merge(ctx context.Context, runDirs []string, name string) (string, error) {

	if len(runDirs) == 0 {
		return "", geoai.Errorf(geoai.EmptyInput, "pipeline.Merge", "no runs to merge")
	}

	inputs := make([]mergeInput, 0, len(runDirs))
	tfws := make([]geo.TFW, 0, len(runDirs))
	classSet := make(map[string]bool)

	known := r.knownClasses()

	for _, dir := range runDirs {
		in, err := readMergeInput(dir, r.cfg.Run.MergeBorder)

		if err != nil {
			return "", err
		}

		inputs = append(inputs, in)
		tfws = append(tfws, in.tfw)

		for base := range in.layers {
			classSet[classOf(base, known)] = true
		}
	}

	merged, err := export.MergeTFW(tfws)

	if err != nil {
		return "", err
	}

	classes := make([]string, 0, len(classSet))

	for c := range classSet {
		classes = append(classes, c)
	}

	sort.Strings(classes)

	bands := make([]orb.MultiPolygon, len(inputs))

	for i, in := range inputs {
		bands[i] = in.band
	}

	toPixel, err := merged.WorldFile.Inverse()

	if err != nil {
		return "", err
	}

	return r.run(ctx, name, func(t *task) error {

		var (
			features []geoai.Feature
			digest   []geoai.Feature
		)

		for classID, class := range classes {
			if err := ctx.Err(); err != nil {
				return err
			}

			base := export.BaseName(export.LayerFile("", class))

			var (
				polys  []orb.Polygon
				others []orb.Geometry
			)

			for _, in := range inputs {
				path, ok := in.layers[base]

				if !ok {
					continue
				}

				tbl, err := export.ReadShapefile(path)

				if err != nil {
					return err
				}

				for _, rec := range tbl.Records {
					if ps := geom.Polygons(rec.Geometry); len(ps) > 0 {
						polys = append(polys, ps...)
					} else if rec.Geometry != nil {
						others = append(others, rec.Geometry)
					}
				}
			}

			geoms := others

			for _, p := range mergeClass(polys, bands) {
				geoms = append(geoms, p)
			}

			for _, g := range geoms {
				f := geoai.Feature{
					ObjectNum: len(features),
					ClassID:   classID,
					ClassName: class,
					Geometry:  g,
					Bound:     g.Bound(),
				}

				features = append(features, f)

				// the digest of a merged run is in merged image pixels
				f.Geometry = toPixel.Apply(g)
				digest = append(digest, f)
			}

			log.Debug(logTag+"merged class", zap.String("class", class), zap.Int("objects", len(geoms)))
		}

		paths, err := export.WriteFeatures(t.dir, merged.CRS, classes, features)

		if err != nil {
			return err
		}

		for _, p := range paths {
			if err := export.ZipShapefiles(t.path(export.BaseName(p)+".zip"), []string{p}); err != nil {
				return err
			}
		}

		if err := export.WriteDigest(t.path(name+".json"), digest); err != nil {
			return err
		}

		if err := geo.WriteTFW(t.path(name+export.TFWSuffix), merged); err != nil {
			return err
		}

		log.Info(logTag+"merged runs", zap.Int("runs", len(inputs)), zap.Int("classes", len(classes)),
			zap.Int("features", len(features)), zap.Int("width", merged.ImageWidth),
			zap.Int("height", merged.ImageHeight))

		return nil
	})
}
