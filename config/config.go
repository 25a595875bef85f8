// Package config loads the TOML configuration of a run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ifaistartup/go-geoai"
)

// Duration is a time.Duration read from strings such as "60s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))

	if err != nil {
		return err
	}

	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all user-facing configuration.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Backend   BackendConfig   `toml:"backend"`
	Tiling    TilingConfig    `toml:"tiling"`
	Stitch    StitchConfig    `toml:"stitch"`
	Reconcile ReconcileConfig `toml:"reconcile"`
	Panorama  PanoramaConfig  `toml:"panorama"`
	Change    ChangeConfig    `toml:"change"`
	Run       RunConfig       `toml:"run"`
	Models    []ModelConfig   `toml:"models"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type BackendConfig struct {
	URLs             []string `toml:"urls"`
	InferenceTimeout Duration `toml:"inference_timeout"`
	// RPS limits requests per second per endpoint, 0 disables limiting
	RPS        float64 `toml:"rps"`
	JSONTensor bool    `toml:"json_tensors"`
}

type TilingConfig struct {
	RelativeOverlap float64 `toml:"relative_overlap"`
}

type StitchConfig struct {
	EdgeVicinity     float64 `toml:"edge_vicinity"`
	Vicinity         float64 `toml:"vicinity"`
	RoadEdgeVicinity float64 `toml:"road_edge_vicinity"`
	RoadVicinity     float64 `toml:"road_vicinity"`
	OpenRadius       float64 `toml:"open_radius"`
	RoadBuffer       float64 `toml:"road_buffer"`
	PieceShrink      float64 `toml:"piece_shrink"`
}

type ReconcileConfig struct {
	NLSIoU        float64  `toml:"nls_iou"`
	StuffClasses  []string `toml:"stuff_classes"`
	BlackZoneClip bool     `toml:"black_zone_clip"`
}

type PanoramaConfig struct {
	ImagePattern      string         `toml:"image_pattern"`
	FaceSize          int            `toml:"face_size"`
	HPRRadius         float64        `toml:"hpr_radius"`
	DBSCANEps         float64        `toml:"dbscan_eps"`
	ImageDBSCANEps    float64        `toml:"image_dbscan_eps"`
	MinSamples        map[string]int `toml:"min_samples"`
	VoxelDownsample   float64        `toml:"voxel_downsample"`
	BuildingVoxel     float64        `toml:"building_voxel"`
	UpperFaceBuilding bool           `toml:"upper_face_building"`
	Classes           []string       `toml:"classes"`
	SourceCRS         string         `toml:"source_crs"`
	OutputEPSG        int            `toml:"output_epsg"`
}

type ChangeConfig struct {
	// PointVicinity is in metres for both projected and geographic layers
	PointVicinity float64 `toml:"point_vicinity"`
	AreaRatio     float64 `toml:"area_ratio"`
	OpenRadius    float64 `toml:"open_radius"`
}

type RunConfig struct {
	ScratchDir    string  `toml:"scratch_dir"`
	OutputDir     string  `toml:"output_dir"`
	Visualization bool    `toml:"visualization"`
	Zip           bool    `toml:"zip"`
	MergeBorder   float64 `toml:"merge_border"`
}

// ModelConfig describes one model of the [[models]] array.
type ModelConfig struct {
	Name           string   `toml:"name"`
	Type           string   `toml:"type"`
	ClassNames     []string `toml:"class_names"`
	ClassNamesFile string   `toml:"class_names_file"`
	UsedClassNames []string `toml:"used_class_names"`
	TileSize       int      `toml:"tile_size"`
	ScaleFactor    float64  `toml:"scale_factor"`
	BatchSize      int      `toml:"batch_size"`
}

// DefaultPanoramaClasses are the classes localized in the point cloud.
var DefaultPanoramaClasses = []string{"Lights pole", "palm_tree", "signboard", "building", "trees_solo", "traffic_sign"}

// DefaultSourceCRS is the transverse mercator CRS of the vehicle trajectory.
const DefaultSourceCRS = `PROJCS["unknown",GEOGCS["unknown",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],` +
	`PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],` +
	`PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",57],PARAMETER["scale_factor",0.9996],` +
	`PARAMETER["false_easting",500000],PARAMETER["false_northing",0],UNIT["metre",1]]`

// Defaults returns a Config populated with built-in default values.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Backend: BackendConfig{
			URLs:             []string{"http://localhost:8000"},
			InferenceTimeout: Duration{geoai.DefaultInferenceTimeout},
		},
		Tiling: TilingConfig{RelativeOverlap: 0.1},
		Stitch: StitchConfig{
			EdgeVicinity:     40,
			Vicinity:         30,
			RoadEdgeVicinity: 60,
			RoadVicinity:     100,
			OpenRadius:       5,
			RoadBuffer:       8,
			PieceShrink:      3,
		},
		Reconcile: ReconcileConfig{
			NLSIoU:        0.4,
			StuffClasses:  append([]string(nil), geoai.DefaultStuffClasses...),
			BlackZoneClip: true,
		},
		Panorama: PanoramaConfig{
			ImagePattern:   `pano_(\d+)_(\d+)_(\d+)\.jpg`,
			FaceSize:       1280,
			HPRRadius:      3000,
			DBSCANEps:      0.9,
			ImageDBSCANEps: 1,
			MinSamples: map[string]int{
				"palm_tree":   7,
				"trees_solo":  15,
				"Lights pole": 6,
				"signboard":   2,
				"building":    75,
			},
			VoxelDownsample:   0.5,
			BuildingVoxel:     0.5,
			UpperFaceBuilding: true,
			Classes:           append([]string(nil), DefaultPanoramaClasses...),
			SourceCRS:         DefaultSourceCRS,
			OutputEPSG:        4326,
		},
		Change: ChangeConfig{
			PointVicinity: 10,
			AreaRatio:     1e-4,
			OpenRadius:    5,
		},
		Run: RunConfig{
			ScratchDir:    os.TempDir(),
			OutputDir:     "results",
			Visualization: true,
			Zip:           true,
			MergeBorder:   10,
		},
	}
}

// Load reads a TOML config file. If the file does not exist, built-in
// defaults are returned without error. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, geoai.NewError(geoai.BadInput, "config.Load", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, geoai.NewError(geoai.BadInput, "config.Load", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, geoai.NewError(geoai.BadInput, "config.Load", err)
	}

	return cfg, nil
}

// envPrefix is prepended to every recognised option name
const envPrefix = "GEOAI_"

type lookupFunc func(string) (string, bool)

// applyEnv overrides options from GEOAI_* environment variables.
func (c *Config) applyEnv(lookup lookupFunc) error {

	floats := map[string]*float64{
		"EDGE_VICINITY_DEFAULT": &c.Stitch.EdgeVicinity,
		"VICINITY_DEFAULT":      &c.Stitch.Vicinity,
		"EDGE_VICINITY_ROAD":    &c.Stitch.RoadEdgeVicinity,
		"VICINITY_ROAD":         &c.Stitch.RoadVicinity,
		"OPEN_RADIUS":           &c.Stitch.OpenRadius,
		"NLS_IOU":               &c.Reconcile.NLSIoU,
		"AREA_RATIO":            &c.Change.AreaRatio,
		"POINT_VICINITY":        &c.Change.PointVicinity,
		"DBSCAN_EPS":            &c.Panorama.DBSCANEps,
		"VOXEL_DOWNSAMPLE":      &c.Panorama.VoxelDownsample,
		"RELATIVE_OVERLAP":      &c.Tiling.RelativeOverlap,
		"BACKEND_RPS":           &c.Backend.RPS,
	}

	for name, dst := range floats {
		if v, ok := lookup(envPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
			}

			*dst = f
		}
	}

	if v, ok := lookup(envPrefix + "INFERENCE_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))

		if err != nil {
			return fmt.Errorf("invalid %sINFERENCE_TIMEOUT: %w", envPrefix, err)
		}

		c.Backend.InferenceTimeout = Duration{d}
	}

	lists := map[string]*[]string{
		"STUFF_CLASSES": &c.Reconcile.StuffClasses,
		"BACKEND_URLS":  &c.Backend.URLs,
	}

	for name, dst := range lists {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = splitList(v)
		}
	}

	if v, ok := lookup(envPrefix + "LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	if v, ok := lookup(envPrefix + "SCRATCH_DIR"); ok {
		c.Run.ScratchDir = v
	}

	return nil
}

func splitList(v string) []string {

	var out []string

	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	return out
}

// ModelInfos converts the configured models, reading class name files
// relative to the working directory.
func (c *Config) ModelInfos() ([]geoai.ModelInfo, error) {

	infos := make([]geoai.ModelInfo, 0, len(c.Models))

	for _, m := range c.Models {
		mt, err := geoai.ParseModelType(m.Type)

		if err != nil {
			return nil, geoai.NewError(geoai.BadInput, "config.ModelInfos", err)
		}

		names := m.ClassNames

		if len(names) == 0 && m.ClassNamesFile != "" {
			if names, err = geoai.LoadClassNames(m.ClassNamesFile); err != nil {
				return nil, err
			}
		}

		info := geoai.ModelInfo{
			Name:           m.Name,
			Type:           mt,
			ClassNames:     names,
			UsedClassNames: m.UsedClassNames,
			TileSize:       m.TileSize,
			ScaleFactor:    m.ScaleFactor,
			BatchSize:      m.BatchSize,
		}

		if err := info.Validate(); err != nil {
			return nil, err
		}

		infos = append(infos, info)
	}

	return infos, nil
}

// Validate checks option ranges.
func (c *Config) Validate() error {

	if c.Change.PointVicinity <= 0 {
		return geoai.Errorf(geoai.BadInput, "config.Validate", "point_vicinity must be positive, got %v", c.Change.PointVicinity)
	}

	if c.Tiling.RelativeOverlap < 0 || c.Tiling.RelativeOverlap >= 0.5 {
		return geoai.Errorf(geoai.BadInput, "config.Validate", "relative_overlap %v out of range [0, 0.5)", c.Tiling.RelativeOverlap)
	}

	if c.Reconcile.NLSIoU <= 0 || c.Reconcile.NLSIoU > 1 {
		return geoai.Errorf(geoai.BadInput, "config.Validate", "nls_iou %v out of range (0, 1]", c.Reconcile.NLSIoU)
	}

	if len(c.Backend.URLs) == 0 {
		return geoai.Errorf(geoai.BadInput, "config.Validate", "no backend urls")
	}

	return nil
}
