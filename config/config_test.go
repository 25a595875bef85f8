package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ifaistartup/go-geoai"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))

	if err != nil {
		t.Fatalf("Test failed, unexpected error: %v", err)
	}

	if cfg.Backend.InferenceTimeout.Duration != 60*time.Second {
		t.Errorf("Test failed for timeout, got %v", cfg.Backend.InferenceTimeout)
	}

	if cfg.Stitch.EdgeVicinity != 40 || cfg.Stitch.RoadVicinity != 100 || cfg.Stitch.PieceShrink != 3 {
		t.Errorf("Test failed for stitch defaults, got %+v", cfg.Stitch)
	}

	if cfg.Panorama.MinSamples["building"] != 75 {
		t.Errorf("Test failed for building min samples, got %d", cfg.Panorama.MinSamples["building"])
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Test failed, defaults do not validate: %v", err)
	}
}

func TestLoadFileAndModels(t *testing.T) {

	dir := t.TempDir()
	names := filepath.Join(dir, "classes.txt")

	if err := os.WriteFile(names, []byte("building\n\ntrees\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "geoai.toml")
	body := `
[backend]
urls = ["http://a:8000", "http://b:8000"]
inference_timeout = "15s"

[reconcile]
nls_iou = 0.5

[[models]]
name = "buildings"
type = "yolov8"
class_names_file = "` + filepath.ToSlash(names) + `"
tile_size = 1280
scale_factor = 0.5

[[models]]
name = "roads"
type = "deeplabv3"
class_names = ["roads", "tracks"]
tile_size = 1024
scale_factor = 1
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)

	if err != nil {
		t.Fatalf("Test failed, unexpected error: %v", err)
	}

	if len(cfg.Backend.URLs) != 2 || cfg.Backend.InferenceTimeout.Duration != 15*time.Second {
		t.Errorf("Test failed for backend section, got %+v", cfg.Backend)
	}

	if cfg.Reconcile.NLSIoU != 0.5 {
		t.Errorf("Test failed for nls_iou, got %v", cfg.Reconcile.NLSIoU)
	}

	// untouched sections keep their defaults
	if cfg.Change.AreaRatio != 1e-4 {
		t.Errorf("Test failed for area_ratio default, got %v", cfg.Change.AreaRatio)
	}

	infos, err := cfg.ModelInfos()

	if err != nil {
		t.Fatalf("Test failed, unexpected error: %v", err)
	}

	if len(infos) != 2 {
		t.Fatalf("Test failed, expected 2 models, got %d", len(infos))
	}

	if infos[0].Type != geoai.ModelSegInstance || len(infos[0].ClassNames) != 2 || infos[0].ClassNames[1] != "trees" {
		t.Errorf("Test failed for first model, got %+v", infos[0])
	}

	if infos[1].Type != geoai.ModelSegSemantic {
		t.Errorf("Test failed for second model type, got %v", infos[1].Type)
	}
}

func TestEnvOverrides(t *testing.T) {

	env := map[string]string{
		"GEOAI_INFERENCE_TIMEOUT":  "45s",
		"GEOAI_NLS_IOU":            "0.3",
		"GEOAI_EDGE_VICINITY_ROAD": "70",
		"GEOAI_STUFF_CLASSES":      "roads, tracks ,water",
		"GEOAI_BACKEND_URLS":       "http://x:1",
		"GEOAI_LOG_LEVEL":          "debug",
	}

	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Defaults()

	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatalf("Test failed, unexpected error: %v", err)
	}

	if cfg.Backend.InferenceTimeout.Duration != 45*time.Second {
		t.Errorf("Test failed for timeout override, got %v", cfg.Backend.InferenceTimeout)
	}

	if cfg.Reconcile.NLSIoU != 0.3 || cfg.Stitch.RoadEdgeVicinity != 70 {
		t.Errorf("Test failed for float overrides, got %v %v", cfg.Reconcile.NLSIoU, cfg.Stitch.RoadEdgeVicinity)
	}

	if len(cfg.Reconcile.StuffClasses) != 3 || cfg.Reconcile.StuffClasses[2] != "water" {
		t.Errorf("Test failed for stuff classes, got %v", cfg.Reconcile.StuffClasses)
	}

	if cfg.Backend.URLs[0] != "http://x:1" || cfg.Log.Level != "debug" {
		t.Errorf("Test failed for string overrides, got %v %s", cfg.Backend.URLs, cfg.Log.Level)
	}

	bad := func(k string) (string, bool) {
		if k == "GEOAI_NLS_IOU" {
			return "high", true
		}
		return "", false
	}

	if err := Defaults().applyEnv(bad); err == nil {
		t.Errorf("Test failed, expected error for malformed float")
	}
}

func TestValidate(t *testing.T) {

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap", func(c *Config) { c.Tiling.RelativeOverlap = 0.5 }},
		{"iou", func(c *Config) { c.Reconcile.NLSIoU = 0 }},
		{"vicinity", func(c *Config) { c.Change.PointVicinity = -1 }},
		{"urls", func(c *Config) { c.Backend.URLs = nil }},
	}

	for _, tc := range cases {
		cfg := Defaults()
		tc.mutate(cfg)

		if err := cfg.Validate(); geoai.KindOf(err) != geoai.BadInput {
			t.Errorf("Test failed for %s, expected BAD_INPUT, got %v", tc.name, err)
		}
	}
}
