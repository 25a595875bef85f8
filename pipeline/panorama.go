package pipeline

import (
	"context"
	"path/filepath"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/dispatch"
	"github.com/ifaistartup/go-geoai/export"
	"github.com/ifaistartup/go-geoai/geom"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/ifaistartup/go-geoai/panorama"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// TrajectoryFile is the shapefile name of the vehicle trajectories
const TrajectoryFile = "trajectory.shp"

// PanoramaResult summarizes a 360° run
type PanoramaResult struct {
	Output   string
	CRS      string
	Features []geoai.Feature
}

// FaceDetector returns a detection function running the model sets over
// whole face images. Polygons are normalized by the face size.
func FaceDetector(d *dispatch.Dispatcher, sets []geoai.ModelSet) panorama.DetectFunc {

	return func(ctx context.Context, img panorama.Image) ([]panorama.Detection, error) {

		mat := gocv.IMRead(img.Path, gocv.IMReadColor)

		if mat.Empty() {
			return nil, geoai.Errorf(geoai.BadInput, "pipeline.FaceDetector", "error reading face %s", img.Path)
		}

		defer mat.Close()

		features, err := d.Instances(ctx, mat, sets)

		if err != nil {
			return nil, err
		}

		w, h := float64(mat.Cols()), float64(mat.Rows())
		dets := make([]panorama.Detection, 0, len(features))

		for _, f := range features {
			for _, p := range geom.Polygons(f.Geometry) {
				dets = append(dets, panorama.Detection{
					Class:      f.ClassName,
					Confidence: f.Confidence,
					Polygon:    normalize(p, w, h),
				})
			}
		}

		return dets, nil
	}
}

func normalize(p orb.Polygon, w, h float64) orb.Polygon {

	out := make(orb.Polygon, len(p))

	for i, r := range p {
		out[i] = make(orb.Ring, len(r))

		for j, pt := range r {
			out[i][j] = orb.Point{pt[0] / w, pt[1] / h}
		}
	}

	return out
}

// Panorama fuses the scenes under root and publishes the per class
// shapefiles, trajectories, digest and point cloud visualization
func (r *Runner) Panorama(ctx context.Context, root string) (*PanoramaResult, error) {

	d, sets, err := r.dispatcher()

	if err != nil {
		return nil, err
	}

	return r.panorama(ctx, root, FaceDetector(d, sets))
}

func (r *Runner) panorama(ctx context.Context, root string, detect panorama.DetectFunc) (*PanoramaResult, error) {

	fuser, err := panorama.NewFuser(r.cfg.Panorama, detect)

	if err != nil {
		return nil, err
	}

	var res *panorama.Result

	err = r.withModels(ctx, func() error {
		var err error
		res, err = fuser.Run(ctx, root)
		return err
	})

	if err != nil {
		return nil, err
	}

	name := filepath.Base(filepath.Clean(root))

	out, err := r.run(ctx, name, func(t *task) error {

		if _, err := export.WriteFeatures(t.dir, res.CRS, fuser.Classes(), res.Features); err != nil {
			return err
		}

		if err := export.WriteTrajectory(t.path(TrajectoryFile), res.CRS, res.Trajectories); err != nil {
			return err
		}

		if err := export.WriteDigest(t.path(name+".json"), res.Features); err != nil {
			return err
		}

		if !r.cfg.Run.Visualization || len(res.Cloud) == 0 {
			return nil
		}

		return panorama.SavePCD(t.path(name+".pcd"), res.Cloud, res.Clusters, fuser.Classes())
	})

	if err != nil {
		return nil, err
	}

	log.Info(logTag+"panorama run done", zap.String("root", root), zap.Int("features", len(res.Features)),
		zap.Int("scenes", len(res.Trajectories)))

	return &PanoramaResult{Output: out, CRS: res.CRS, Features: res.Features}, nil
}
