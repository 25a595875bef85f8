package export

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ifaistartup/go-geoai/geo"
	"github.com/ifaistartup/go-geoai/log"
	"go.uber.org/zap"
)

// TFWSuffix is appended to the base name of the JSON georeference summary
const TFWSuffix = "_tfw.json"

// Georef names the georeference sidecars of an output image
type Georef struct {
	WorldFile string
	Prj       string
	TFW       string
}

// GeorefPaths returns the sidecar paths of base, a path without extension
func GeorefPaths(base string) Georef {
	return Georef{
		WorldFile: base + ".jgw",
		Prj:       base + ".prj",
		TFW:       base + TFWSuffix,
	}
}

// WriteGeoref writes the world file, .prj and _tfw.json of an image with
// the extent and CRS given
func WriteGeoref(base, crs string, e geo.Extent) (Georef, error) {

	paths := GeorefPaths(base)

	if err := geo.WriteWorldFile(paths.WorldFile, e.Affine); err != nil {
		return paths, err
	}

	if err := geo.WritePrj(paths.Prj, crs); err != nil {
		return paths, err
	}

	tfw := geo.TFW{
		ImageWidth:  e.Width,
		ImageHeight: e.Height,
		CRS:         crs,
		WorldFile:   e.Affine,
	}

	if err := geo.WriteTFW(paths.TFW, tfw); err != nil {
		return paths, err
	}

	return paths, nil
}

// MergeTFW combines the georeference summaries of several runs into one
// covering all of them, the CRS is taken from the first
func MergeTFW(tfws []geo.TFW) (geo.TFW, error) {

	extents := make([]geo.Extent, len(tfws))

	for i, t := range tfws {
		extents[i] = geo.Extent{Affine: t.WorldFile, Width: t.ImageWidth, Height: t.ImageHeight}
	}

	e, err := geo.MergeExtents(extents)

	if err != nil {
		return geo.TFW{}, err
	}

	return geo.TFW{
		ImageWidth:  e.Width,
		ImageHeight: e.Height,
		CRS:         tfws[0].CRS,
		WorldFile:   e.Affine,
	}, nil
}

func addFile(zw *zip.Writer, path, name string) error {

	f, err := os.Open(path)

	if err != nil {
		return err
	}

	defer f.Close()

	info, err := f.Stat()

	if err != nil {
		return err
	}

	hdr, err := zip.FileInfoHeader(info)

	if err != nil {
		return err
	}

	hdr.Name = filepath.ToSlash(name)
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)

	if err != nil {
		return err
	}

	_, err = io.Copy(w, f)

	return err
}

// writeZip writes files, keyed by their name inside the archive, to dst
func writeZip(dst string, files map[string]string) error {

	out, err := os.Create(dst)

	if err != nil {
		return fmt.Errorf("error creating %s: %w", dst, err)
	}

	names := make([]string, 0, len(files))

	for name := range files {
		names = append(names, name)
	}

	sort.Strings(names)

	zw := zip.NewWriter(out)

	for _, name := range names {
		if err := addFile(zw, files[name], name); err != nil {
			zw.Close()
			out.Close()
			return fmt.Errorf("error adding %s to %s: %w", name, dst, err)
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("error closing %s: %w", dst, err)
	}

	return out.Close()
}

// ZipDir archives every regular file under dir, with paths relative to dir
func ZipDir(dir, dst string) error {

	files := make(map[string]string)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.Mode().IsRegular() || path == dst {
			return nil
		}

		rel, err := filepath.Rel(dir, path)

		if err != nil {
			return err
		}

		files[rel] = path

		return nil
	})

	if err != nil {
		return fmt.Errorf("error listing %s: %w", dir, err)
	}

	if err := writeZip(dst, files); err != nil {
		return err
	}

	log.Info(logTag+"zipped directory", zap.String("dir", dir), zap.String("zip", dst),
		zap.Int("files", len(files)))

	return nil
}

// ZipShapefiles archives shapefiles with their companion files, flat
func ZipShapefiles(dst string, shps []string) error {

	files := make(map[string]string)

	for _, shp := range shps {
		for _, p := range ShapefileParts(shp) {
			files[filepath.Base(p)] = p
		}
	}

	return writeZip(dst, files)
}

// ReadZipNames lists the entries of a zip archive
func ReadZipNames(path string) ([]string, error) {

	zr, err := zip.OpenReader(path)

	if err != nil {
		return nil, err
	}

	defer zr.Close()

	names := make([]string, len(zr.File))

	for i, f := range zr.File {
		names[i] = f.Name
	}

	sort.Strings(names)

	return names, nil
}

// BaseName returns the file name of path without its extension
func BaseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
