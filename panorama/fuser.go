package panorama

import (
	"context"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/config"
	"github.com/ifaistartup/go-geoai/geo"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// DetectFunc returns the detections of one face image
type DetectFunc func(ctx context.Context, img Image) ([]Detection, error)

// Result of a fusion run over every scene of a directory
type Result struct {
	// CRS of the features and trajectories
	CRS      string
	Features []geoai.Feature
	// Trajectories holds one line per scene
	Trajectories []orb.LineString
	// Cloud is the downsampled cloud of every scene in the source CRS and
	// Clusters index into it
	Cloud    []r3.Vector
	Clusters ClassClusters
}

// Fuser localizes panorama detections in the scene point clouds
type Fuser struct {
	params  Params
	matcher *NameMatcher
	srcCRS  string
	dstCRS  string
	voxel   float64
	detect  DetectFunc
}

// NewFuser returns a fuser configured by cfg, detect is called once per
// face image
func NewFuser(cfg config.PanoramaConfig, detect DetectFunc) (*Fuser, error) {

	m, err := NewNameMatcher(cfg.ImagePattern)

	if err != nil {
		return nil, err
	}

	out := cfg.OutputEPSG

	if out == 0 {
		out = 4326
	}

	return &Fuser{
		params: Params{
			Classes:           cfg.Classes,
			FaceSize:          cfg.FaceSize,
			Range:             cfg.HPRRadius,
			ImageEps:          cfg.ImageDBSCANEps,
			Eps:               cfg.DBSCANEps,
			MinSamples:        cfg.MinSamples,
			UpperFaceBuilding: cfg.UpperFaceBuilding,
			BuildingVoxel:     cfg.BuildingVoxel,
		},
		matcher: m,
		srcCRS:  cfg.SourceCRS,
		dstCRS:  geo.EPSG(out),
		voxel:   cfg.VoxelDownsample,
		detect:  detect,
	}, nil
}

// Classes returns the fused classes in output order
func (f *Fuser) Classes() []string {
	return f.params.Classes
}

// sceneResult holds the fusion of one scene in the source CRS, or the
// camera placed points of a scene without cloud in EPSG:4326
type sceneResult struct {
	cloud    []r3.Vector
	clusters ClassClusters
	line     orb.LineString
	placed   []geoai.Feature
}

// Run fuses every scene under root
func (f *Fuser) Run(ctx context.Context, root string) (*Result, error) {

	scenes, err := Discover(root, f.matcher)

	if err != nil {
		return nil, err
	}

	res := &Result{CRS: f.dstCRS, Clusters: make(ClassClusters)}

	var (
		placed     []geoai.Feature
		geographic []bool
	)

	for _, sc := range scenes {
		sr, err := f.runScene(ctx, sc)

		if err != nil {
			return nil, err
		}

		offset := len(res.Cloud)
		res.Cloud = append(res.Cloud, sr.cloud...)

		for class, cs := range sr.clusters {
			for _, c := range cs {
				shifted := make([]int, len(c))

				for i, id := range c {
					shifted[i] = id + offset
				}

				res.Clusters[class] = append(res.Clusters[class], shifted)
			}
		}

		res.Trajectories = append(res.Trajectories, sr.line)
		geographic = append(geographic, sc.LAS == "")
		placed = append(placed, sr.placed...)
	}

	if err := f.features(res, placed, geographic); err != nil {
		return nil, err
	}

	log.Info(logTag+"fusion done", zap.Int("scenes", len(scenes)),
		zap.Int("points", len(res.Cloud)), zap.Int("features", len(res.Features)))

	return res, nil
}

func (f *Fuser) runScene(ctx context.Context, sc Scene) (sceneResult, error) {

	var sr sceneResult

	traj, err := ReadTrajectory(sc.Trajectory)

	if err != nil {
		return sr, err
	}

	if sc.LAS != "" {
		raw, err := ReadLAS(sc.LAS)

		if err != nil {
			return sr, err
		}

		sr.cloud = VoxelDownsample(raw, f.voxel)

		log.Debug(logTag+"point cloud loaded", zap.String("file", sc.LAS),
			zap.Int("points", len(raw)), zap.Int("downsampled", len(sr.cloud)))
	}

	images := append([]Image(nil), sc.Images...)
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })

	povs := make(map[int]Pose)

	var targets []Target

	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return sr, err
		}

		pose, err := traj.Pose(sc.Num, img.Num)

		if err != nil {
			return sr, err
		}

		povs[img.Num] = pose

		dets, err := f.detect(ctx, img)

		if err != nil {
			return sr, err
		}

		if sc.LAS == "" {
			sr.placed = append(sr.placed, f.place(pose, img.Face, dets)...)
			continue
		}

		cam, err := NewCamera(pose, img.Face, f.params.FaceSize)

		if err != nil {
			return sr, err
		}

		targets = append(targets, ImageTargets(sr.cloud, cam, img.Face, dets, f.params)...)
	}

	if sc.LAS != "" {
		sr.clusters = ClusterScene(sr.cloud, targets, f.params)
	}

	sr.line = trajectoryLine(povs, sc.LAS == "")

	return sr, nil
}

// place turns the detections of a scene without cloud into points at the
// camera position
func (f *Fuser) place(pose Pose, face Face, dets []Detection) []geoai.Feature {

	var out []geoai.Feature

	for _, d := range dets {
		class := f.params.relabel(d.Class, face)

		if !f.params.wants(class) {
			continue
		}

		pt := orb.Point{pose.Lon, pose.Lat}

		out = append(out, geoai.Feature{
			ClassName:  class,
			Confidence: d.Confidence,
			Geometry:   pt,
			Bound:      pt.Bound(),
		})
	}

	return out
}

// trajectoryLine joins the camera positions of a scene in image order, a
// single position is doubled. Positions are longitude and latitude when
// geographic is set.
func trajectoryLine(povs map[int]Pose, geographic bool) orb.LineString {

	nums := make([]int, 0, len(povs))

	for n := range povs {
		nums = append(nums, n)
	}

	sort.Ints(nums)

	line := make(orb.LineString, 0, len(nums)+1)

	for _, n := range nums {
		p := povs[n]

		if geographic {
			line = append(line, orb.Point{p.Lon, p.Lat})
		} else {
			line = append(line, orb.Point{p.Position.X, p.Position.Y})
		}
	}

	if len(line) == 1 {
		line = append(line, line[0])
	}

	return line
}

// features builds the numbered output features of the clusters and of the
// camera placed points, in class order, and reprojects them with the
// trajectories. geographic flags the trajectories in EPSG:4326.
func (f *Fuser) features(res *Result, placed []geoai.Feature, geographic []bool) error {

	src, err := geo.NewTransformer(f.srcCRS, f.dstCRS)

	if err != nil {
		return err
	}

	defer src.Close()

	wgs, err := geo.NewTransformer(geo.EPSG4326, f.dstCRS)

	if err != nil {
		return err
	}

	defer wgs.Close()

	num := 0

	for classID, class := range f.params.Classes {
		for _, c := range res.Clusters[class] {
			var geoms []orb.Geometry

			if class == ClassBuilding {
				for _, poly := range ClusterFootprints(res.Cloud, c, f.params.BuildingVoxel) {
					geoms = append(geoms, poly)
				}
			} else {
				p := ClusterPoint(res.Cloud, c)
				geoms = append(geoms, orb.Point{p.X, p.Y})
			}

			for _, g := range geoms {
				g, err := transformGeometry(src, g)

				if err != nil {
					return err
				}

				res.Features = append(res.Features, geoai.Feature{
					ObjectNum: num,
					ClassID:   classID,
					ClassName: class,
					Geometry:  g,
					Bound:     g.Bound(),
				})
				num++
			}
		}

		for _, p := range placed {
			if p.ClassName != class {
				continue
			}

			g, err := transformGeometry(wgs, p.Geometry)

			if err != nil {
				return err
			}

			p.ObjectNum = num
			p.ClassID = classID
			p.Geometry = g
			p.Bound = g.Bound()
			res.Features = append(res.Features, p)
			num++
		}
	}

	for i, line := range res.Trajectories {
		t := src

		if geographic[i] {
			t = wgs
		}

		g, err := transformGeometry(t, line)

		if err != nil {
			return err
		}

		res.Trajectories[i] = g.(orb.LineString)
	}

	return nil
}

// transformGeometry converts the vertices of points, lines and polygons
func transformGeometry(t *geo.Transformer, g orb.Geometry) (orb.Geometry, error) {

	switch g := g.(type) {
	case orb.Point:
		pts, err := t.Points([]orb.Point{g})

		if err != nil {
			return nil, err
		}

		return pts[0], nil

	case orb.LineString:
		pts, err := t.Points(g)

		if err != nil {
			return nil, err
		}

		return orb.LineString(pts), nil

	case orb.Polygon:
		out := make(orb.Polygon, len(g))

		for i, r := range g {
			pts, err := t.Points(r)

			if err != nil {
				return nil, err
			}

			out[i] = orb.Ring(pts)
		}

		return out, nil
	}

	return nil, geoai.Errorf(geoai.CRSConversion, "panorama.transformGeometry", "unsupported geometry %s", g.GeoJSONType())
}
