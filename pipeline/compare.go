package pipeline

import (
	"context"
	"sort"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/change"
	"github.com/ifaistartup/go-geoai/export"
	"github.com/ifaistartup/go-geoai/log"
	"go.uber.org/zap"
)

// CompareResult summarizes a change detection run
type CompareResult struct {
	Output  string
	Results []*change.Result
}

// changeParams converts the change options
func (r *Runner) changeParams() change.Params {
	return change.Params{
		PointVicinity: r.cfg.Change.PointVicinity,
		AreaRatio:     r.cfg.Change.AreaRatio,
		OpenRadius:    r.cfg.Change.OpenRadius,
	}
}

// knownClasses lists the class names the runner can emit
func (r *Runner) knownClasses() []string {

	names := append([]string(nil), r.cfg.Panorama.Classes...)

	for _, m := range r.models {
		names = append(names, m.EffectiveClassNames()...)
	}

	return names
}

// classOf returns the class a layer file holds, file names replace the
// spaces of class names
func classOf(base string, known []string) string {

	for _, c := range known {
		if export.BaseName(export.LayerFile("", c)) == base {
			return c
		}
	}

	return base
}

// Compare runs change detection between the layers of two runs. Every
// class with a layer in either directory is compared, or only classes when
// given. A class missing from one side compares against an empty layer.
func (r *Runner) Compare(ctx context.Context, oldDir, newDir string, classes []string, name string) (*CompareResult, error) {

	oldFiles, err := layerFiles(oldDir)

	if err != nil {
		return nil, geoai.NewError(geoai.BadInput, "pipeline.Compare", err)
	}

	newFiles, err := layerFiles(newDir)

	if err != nil {
		return nil, geoai.NewError(geoai.BadInput, "pipeline.Compare", err)
	}

	if len(classes) == 0 {
		known := r.knownClasses()
		seen := make(map[string]bool)

		for _, files := range []map[string]string{oldFiles, newFiles} {
			for base := range files {
				if c := classOf(base, known); !seen[c] && base != export.BaseName(TrajectoryFile) {
					seen[c] = true
					classes = append(classes, c)
				}
			}
		}

		sort.Strings(classes)
	}

	if len(classes) == 0 {
		return nil, geoai.Errorf(geoai.EmptyInput, "pipeline.Compare", "no layers in %s or %s", oldDir, newDir)
	}

	res := &CompareResult{}
	p := r.changeParams()

	out, err := r.run(ctx, name, func(t *task) error {

		var err error

		for _, class := range classes {
			if err := ctx.Err(); err != nil {
				return err
			}

			base := export.BaseName(export.LayerFile("", class))
			oldPath, okOld := oldFiles[base]
			newPath, okNew := newFiles[base]

			if !okOld && !okNew {
				log.Warn(logTag+"class has no layer to compare", zap.String("class", class))
				continue
			}

			old, new := change.Layer{Class: class}, change.Layer{Class: class}

			if okOld {
				if old, err = export.ReadLayer(oldPath, class); err != nil {
					return err
				}
			}

			if okNew {
				if new, err = export.ReadLayer(newPath, class); err != nil {
					return err
				}
			}

			// an absent layer takes the CRS of the other side
			if !okOld {
				old.CRS = new.CRS
			}

			if !okNew {
				new.CRS = old.CRS
			}

			cr, err := change.Compare(old, new, p)

			if err != nil {
				return err
			}

			if _, err := export.WriteChange(t.dir, old.CRS, cr); err != nil {
				return err
			}

			res.Results = append(res.Results, cr)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	res.Output = out

	return res, nil
}
