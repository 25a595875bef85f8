// Package pipeline runs the end to end tasks of the service: aerial and
// satellite detection, 360° scene fusion, change detection and the merge of
// aerial runs.
//
// Every task writes into its own scratch directory which is published to
// the output directory on success and deleted on failure or cancellation.
package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/config"
	"github.com/ifaistartup/go-geoai/dispatch"
	"github.com/ifaistartup/go-geoai/export"
	"github.com/ifaistartup/go-geoai/geo"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/ifaistartup/go-geoai/reconcile"
	"github.com/ifaistartup/go-geoai/render"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const logTag = "pipeline: "

// Runner runs tasks with one configuration and backend
type Runner struct {
	cfg     *config.Config
	backend geoai.Backend
	models  []geoai.ModelInfo
}

// New returns a Runner for the configured models
func New(cfg *config.Config, b geoai.Backend) (*Runner, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	models, err := cfg.ModelInfos()

	if err != nil {
		return nil, err
	}

	return &Runner{cfg: cfg, backend: b, models: models}, nil
}

// Models returns the configured models
func (r *Runner) Models() []geoai.ModelInfo {
	return r.models
}

// dispatcher returns a dispatcher with the model sets of the run
func (r *Runner) dispatcher() (*dispatch.Dispatcher, []geoai.ModelSet, error) {

	if len(r.models) == 0 {
		return nil, nil, geoai.Errorf(geoai.BadInput, "pipeline", "no models configured")
	}

	sets := geoai.GroupModelSets(r.models, r.cfg.Tiling.RelativeOverlap)
	d := dispatch.New(r.backend, r.cfg.Stitch, r.cfg.Reconcile.StuffClasses, geoai.CommonClassNames(r.models))

	return d, sets, nil
}

// withModels issues the load requests of the configured models and the
// unload requests once fn returns
func (r *Runner) withModels(ctx context.Context, fn func() error) error {

	geoai.LoadModels(ctx, r.backend, r.models)

	// unload even when ctx is cancelled
	defer geoai.UnloadModels(context.Background(), r.backend, r.models)

	return fn()
}

// AerialResult summarizes an aerial or satellite run
type AerialResult struct {
	Output   string
	CRS      string
	Center   [2]float64
	Features []geoai.Feature
}

// Aerial detects the configured classes on a georeferenced image and
// publishes the per class shapefiles, digest, georeference sidecars and
// visualization of the run
func (r *Runner) Aerial(ctx context.Context, imagePath string) (*AerialResult, error) {

	if _, err := os.Stat(imagePath); err != nil {
		return nil, geoai.NewError(geoai.EmptyInput, "pipeline.Aerial", err)
	}

	gc, err := geo.Load(imagePath)

	if err != nil {
		return nil, err
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)

	if img.Empty() {
		return nil, geoai.Errorf(geoai.BadInput, "pipeline.Aerial", "error reading image %s", imagePath)
	}

	defer img.Close()

	d, sets, err := r.dispatcher()

	if err != nil {
		return nil, err
	}

	var features []geoai.Feature

	err = r.withModels(ctx, func() error {
		var err error
		features, err = d.Run(ctx, img, sets)
		return err
	})

	if err != nil {
		return nil, err
	}

	zone := reconcileZone(r.cfg.Reconcile.BlackZoneClip, img)

	features = reconcile.Reconcile(features, zone, reconcile.Params{
		IoU:   r.cfg.Reconcile.NLSIoU,
		Stuff: r.cfg.Reconcile.StuffClasses,
	})

	name := export.BaseName(imagePath)
	res := &AerialResult{CRS: gc.CRS}

	out, err := r.run(ctx, name, func(t *task) error {

		if r.cfg.Run.Visualization {
			vis := img.Clone()
			render.Draw(&vis, features, render.DefaultAlpha)
			ok := gocv.IMWrite(t.path(name+"_vis.jpg"), vis)
			vis.Close()

			if !ok {
				log.Warn(logTag+"visualization not written", zap.String("image", imagePath))
			}
		}

		res.Features = ToWorld(features, gc.Affine)

		if _, err := export.WriteFeatures(t.dir, gc.CRS, d.Classes(), res.Features); err != nil {
			return err
		}

		// the digest stays in image pixels
		if err := export.WriteDigest(t.path(name+".json"), features); err != nil {
			return err
		}

		_, err := export.WriteGeoref(t.path(name), gc.CRS, geo.Extent{Affine: gc.Affine, Width: gc.Width, Height: gc.Height})

		return err
	})

	if err != nil {
		return nil, err
	}

	res.Output = out

	if c, err := geo.Center(gc); err == nil {
		res.Center = [2]float64{c[0], c[1]}
		log.Info(logTag+"aerial run done", zap.String("image", imagePath), zap.Int("features", len(features)),
			zap.Float64("lon", c[0]), zap.Float64("lat", c[1]))
	} else {
		log.Warn(logTag+"image centre not reprojected", zap.Error(err))
	}

	return res, nil
}

// reconcileZone returns the content zone of img when clipping is enabled,
// nil when disabled or when the image is entirely black
func reconcileZone(enabled bool, img gocv.Mat) orb.Polygon {

	if !enabled {
		return nil
	}

	zone, ok := reconcile.ContentZone(img)

	if !ok {
		return nil
	}

	return zone
}

// ToWorld maps features in image pixels to world coordinates
func ToWorld(features []geoai.Feature, a geo.AffineGeo) []geoai.Feature {

	out := make([]geoai.Feature, len(features))

	for i, f := range features {
		f.Geometry = a.Apply(f.Geometry)
		f.Bound = f.Geometry.Bound()
		out[i] = f
	}

	return out
}

// layerFiles lists the shapefiles of a directory by base name
func layerFiles(dir string) (map[string]string, error) {

	matches, err := filepath.Glob(filepath.Join(dir, "*.shp"))

	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(matches))

	for _, m := range matches {
		out[export.BaseName(m)] = m
	}

	return out, nil
}
