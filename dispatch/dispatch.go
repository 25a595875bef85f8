// Package dispatch runs groups of models over an image tile by tile and
// merges their stitched outputs into features in source image pixels.
//
// Models sharing a tile size and scale factor form a model set and share one
// tiling of the image. Sets are run one after the other, as are the models of
// a set, since the inference server holds a single model in memory at a time.
package dispatch

import (
	"context"
	"errors"

	"gocv.io/x/gocv"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/config"
	"github.com/ifaistartup/go-geoai/geom"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/ifaistartup/go-geoai/postprocess"
	"github.com/ifaistartup/go-geoai/preprocess"
	"github.com/ifaistartup/go-geoai/reconcile"
	"github.com/ifaistartup/go-geoai/stitch"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

const logTag = "dispatch: "

// Dispatcher drives model sets over images through a backend
type Dispatcher struct {
	backend geoai.Backend
	stitch  config.StitchConfig
	stuff   []string
	// classes is the common class list, ClassID indexes it
	classes []string
}

// New returns a Dispatcher for the models of a run. classes is the common
// class list of every model of the run.
func New(b geoai.Backend, sc config.StitchConfig, stuff []string, classes []string) *Dispatcher {
	return &Dispatcher{
		backend: b,
		stitch:  sc,
		stuff:   stuff,
		classes: classes,
	}
}

// Classes returns the common class list
func (d *Dispatcher) Classes() []string {
	return d.classes
}

// tilePieces holds the per class pieces of one model set in source image
// coordinates
type tilePieces struct {
	tiler  *preprocess.Tiler
	scale  float64
	pieces map[string][]stitch.Piece
}

// Run runs every set over img, stitches the pieces of each class and returns
// the features of all sets numbered in order of appearance
func (d *Dispatcher) Run(ctx context.Context, img gocv.Mat, sets []geoai.ModelSet) ([]geoai.Feature, error) {

	var features []geoai.Feature

	for _, set := range sets {
		fs, err := d.RunSet(ctx, img, set)

		if err != nil {
			return nil, err
		}

		for _, f := range fs {
			f.ObjectNum = len(features)
			features = append(features, f)
		}
	}

	return features, nil
}

// RunSet runs the models of one set over img and stitches their pieces
func (d *Dispatcher) RunSet(ctx context.Context, img gocv.Mat, set geoai.ModelSet) ([]geoai.Feature, error) {

	tp, err := d.collect(ctx, img, set)

	if err != nil {
		return nil, err
	}

	defer tp.tiler.Close()

	s := stitch.New(tp.tiler.Layout(), tp.scale)
	r := tp.tiler.Resizer()
	extent := orb.MultiPolygon{rectPolygon(0, 0, float64(r.SrcWidth()), float64(r.SrcHeight()))}

	var features []geoai.Feature

	for classID, class := range d.classes {
		pieces := tp.pieces[class]

		if len(pieces) == 0 {
			continue
		}

		objects := s.Join(pieces, stitch.ParamsFor(d.stitch, class, d.stuff))

		for _, obj := range objects {
			// objects reaching into the padding are cut at the image border
			for _, poly := range geom.Intersection(orb.MultiPolygon{obj.Polygon}, extent) {

				if geom.Area(poly) == 0 {
					continue
				}

				features = append(features, d.feature(tp, classID, class, poly, obj.Confidence, obj.Tiles))
			}
		}
	}

	log.Info(logTag+"model set done", zap.String("set", set.Key),
		zap.Int("models", len(set.Models)), zap.Int("tiles", tp.tiler.Layout().Count()),
		zap.Int("features", len(features)))

	return features, nil
}

// Instances runs the sets over img without stitching. Every prediction
// becomes one feature, which suits images fitting in a single tile such as
// panorama faces.
func (d *Dispatcher) Instances(ctx context.Context, img gocv.Mat, sets []geoai.ModelSet) ([]geoai.Feature, error) {

	var features []geoai.Feature

	for _, set := range sets {
		tp, err := d.collect(ctx, img, set)

		if err != nil {
			return nil, err
		}

		for classID, class := range d.classes {
			for _, pc := range tp.pieces[class] {
				f := d.feature(tp, classID, class, pc.Polygon, pc.Confidence, []geoai.TileID{pc.Tile})
				f.ObjectNum = len(features)
				features = append(features, f)
			}
		}

		tp.tiler.Close()
	}

	return features, nil
}

// feature wraps a polygon in source image coordinates
func (d *Dispatcher) feature(tp *tilePieces, classID int, class string, poly orb.Polygon,
	conf float64, tiles []geoai.TileID) geoai.Feature {

	return geoai.Feature{
		ClassID:     classID,
		ClassName:   class,
		Confidence:  conf,
		Geometry:    poly,
		Bound:       poly.Bound(),
		SourceScale: tp.scale,
		SourceTiles: tiles,
	}
}

// toSource maps a polygon in scaled image coordinates to source pixels, so
// stitching distances are independent of the scale factor
func toSource(t *preprocess.Tiler, poly orb.Polygon) orb.Polygon {

	src := make(orb.Polygon, len(poly))

	for i, ring := range poly {
		src[i] = make(orb.Ring, len(ring))

		for j, pt := range ring {
			x, y := t.ToSource(pt[0], pt[1])
			src[i][j] = orb.Point{x, y}
		}
	}

	return src
}

// collect tiles img for the set and runs each of its models over the tiles
func (d *Dispatcher) collect(ctx context.Context, img gocv.Mat, set geoai.ModelSet) (*tilePieces, error) {

	if img.Empty() {
		return nil, geoai.Errorf(geoai.BadInput, "dispatch.RunSet", "empty image")
	}

	tiler, err := preprocess.NewTiler(img.Cols(), img.Rows(), set.TileSize, set.Overlap, set.ScaleFactor)

	if err != nil {
		return nil, geoai.NewError(geoai.BadInput, "dispatch.RunSet", err)
	}

	tiles, err := tiler.Slice(img)

	if err != nil {
		tiler.Close()
		return nil, geoai.NewError(geoai.BadInput, "dispatch.RunSet", err)
	}

	tp := &tilePieces{
		tiler:  tiler,
		scale:  tiler.Resizer().ScaleFactor(),
		pieces: make(map[string][]stitch.Piece),
	}

	// black tiles carry nothing to detect
	active := make([]preprocess.Tile, 0, len(tiles))

	for _, t := range tiles {
		if reconcile.Empty(t.Mat()) {
			log.Debug(logTag+"skipping empty tile", zap.Int("row", t.Row), zap.Int("col", t.Col))
			continue
		}
		active = append(active, t)
	}

	log.Debug(logTag+"tiled image", zap.String("set", set.Key), zap.Int("tiles", len(tiles)),
		zap.Int("active", len(active)), zap.Float64("scale", tp.scale))

	for _, m := range set.Models {
		a, err := postprocess.NewAdapter(m, set.Overlap)

		if err != nil {
			tiler.Close()
			return nil, err
		}

		if err := d.runModel(ctx, a, active, set, tp); err != nil {
			tiler.Close()
			return nil, err
		}
	}

	return tp, nil
}

// runModel infers the tiles in batches of the model's batch size
func (d *Dispatcher) runModel(ctx context.Context, a postprocess.Adapter, tiles []preprocess.Tile,
	set geoai.ModelSet, tp *tilePieces) error {

	m := a.Model()
	batch := geoai.NewBatch(a.InputName(), m.Batch(), set.TileSize, set.TileSize)
	pending := make([]preprocess.Tile, 0, m.Batch())

	for _, t := range tiles {
		// preemptible between tiles
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := batch.Add(t.Mat()); err != nil {
			return geoai.NewError(geoai.BadInput, "dispatch.runModel", err)
		}

		pending = append(pending, t)

		if !batch.Full() {
			continue
		}

		if err := d.flush(ctx, a, batch, pending, set, tp); err != nil {
			return err
		}

		pending = pending[:0]
	}

	if len(pending) > 0 {
		return d.flush(ctx, a, batch, pending, set, tp)
	}

	return nil
}

// flush sends the batch to the backend and decodes the output of every tile
func (d *Dispatcher) flush(ctx context.Context, a postprocess.Adapter, batch *geoai.Batch,
	pending []preprocess.Tile, set geoai.ModelSet, tp *tilePieces) error {

	defer batch.Clear()

	m := a.Model()
	op := "dispatch.infer " + m.Name

	outputs, err := d.backend.Infer(ctx, m.Name, []geoai.Tensor{batch.Tensor()}, a.OutputNames())

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}

		if geoai.KindOf(err) == geoai.KindUnknown {
			return geoai.NewError(geoai.InferenceUnavailable, op, err)
		}

		return err
	}

	k := float64(set.Overlap)

	for i, t := range pending {
		per := make([]geoai.Tensor, len(outputs))

		for j, out := range outputs {
			per[j], err = tileOutput(i, len(pending), out)

			if err != nil {
				return geoai.NewError(geoai.InferenceUnavailable, op, err)
			}
		}

		preds, err := a.Decode(per)

		if err != nil {
			return geoai.NewError(geoai.InferenceUnavailable, op, err)
		}

		tile := geoai.TileID{Row: t.Row, Col: t.Col}

		for _, p := range preds {
			if geoai.ClassIndex(d.classes, p.ClassName) < 0 {
				continue
			}

			// tile pixels to scaled image pixels, the padding is k on the near sides
			p = p.Translate(float64(t.X)-k, float64(t.Y)-k)

			tp.pieces[p.ClassName] = append(tp.pieces[p.ClassName], stitch.Piece{
				Tile:       tile,
				Polygon:    toSource(tp.tiler, p.Polygon),
				Confidence: float64(p.Probability),
			})
		}
	}

	log.Debug(logTag+"batch decoded", zap.String("model", m.Name), zap.Int("tiles", len(pending)))

	return nil
}

// tileOutput returns the part of a batched output for image idx of n. A
// single image output without a batch dimension gets one.
func tileOutput(idx, n int, out geoai.Tensor) (geoai.Tensor, error) {

	if n == 1 && (out.Rank() == 0 || out.Shape[0] != 1) {
		return out.WithBatchDim(), nil
	}

	return geoai.GetOutputF32(idx, out)
}

func rectPolygon(x1, y1, x2, y2 float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}, {x1, y1}}}
}
