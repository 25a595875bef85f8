package geo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ifaistartup/go-geoai"
)

// world file extensions by image extension
var worldFileExts = map[string]string{
	".jpg":  ".jgw",
	".jpeg": ".jgw",
	".tif":  ".tfw",
	".tiff": ".tfw",
	".png":  ".pgw",
}

// WorldFilePath returns the sidecar world file path of an image.
func WorldFilePath(image string) string {

	ext := filepath.Ext(image)
	wf, ok := worldFileExts[strings.ToLower(ext)]

	if !ok {
		wf = ".wld"
	}

	return strings.TrimSuffix(image, ext) + wf
}

// ReadWorldFile parses a six line world file in the order A, D, B, E, C, F.
func ReadWorldFile(path string) (AffineGeo, error) {

	f, err := os.Open(path)

	if err != nil {
		if os.IsNotExist(err) {
			return AffineGeo{}, geoai.NewError(geoai.MissingGeodata, "geo.ReadWorldFile", err)
		}
		return AffineGeo{}, geoai.NewError(geoai.BadInput, "geo.ReadWorldFile", err)
	}

	defer f.Close()

	var vals []float64
	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		v, err := strconv.ParseFloat(line, 64)

		if err != nil {
			return AffineGeo{}, geoai.NewError(geoai.BadInput, "geo.ReadWorldFile",
				fmt.Errorf("line %d of %s: %w", len(vals)+1, path, err))
		}

		vals = append(vals, v)
	}

	if err := scanner.Err(); err != nil {
		return AffineGeo{}, geoai.NewError(geoai.BadInput, "geo.ReadWorldFile", err)
	}

	if len(vals) != 6 {
		return AffineGeo{}, geoai.Errorf(geoai.BadInput, "geo.ReadWorldFile",
			"%s has %d values, expected 6", path, len(vals))
	}

	return AffineGeo{A: vals[0], D: vals[1], B: vals[2], E: vals[3], C: vals[4], F: vals[5]}, nil
}

// WriteWorldFile writes a in the six line order A, D, B, E, C, F.
func WriteWorldFile(path string, a AffineGeo) error {

	var sb strings.Builder

	for _, v := range []float64{a.A, a.D, a.B, a.E, a.C, a.F} {
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		sb.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("error writing world file: %w", err)
	}

	return nil
}
