package geo

import (
	"encoding/xml"
	"os"
	"strings"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/lukeroth/gdal"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// GeoContext is the georeference of a source image for one run.
type GeoContext struct {
	Affine AffineGeo
	// CRS is an "EPSG:<code>" identifier or WKT
	CRS    string
	Width  int
	Height int
}

// PixelToWorld maps an image pixel to world coordinates.
func (g GeoContext) PixelToWorld(x, y float64) (float64, float64) {
	return g.Affine.PixelToWorld(x, y)
}

// WorldToPixel maps world coordinates to an image pixel.
func (g GeoContext) WorldToPixel(x, y float64) (float64, float64, error) {
	return g.Affine.WorldToPixel(x, y)
}

// Load reads the georeference of an image. The raster's embedded
// geotransform is preferred, otherwise the sidecar world file and the
// .aux.xml SRS are used.
func Load(path string) (GeoContext, error) {

	ds, err := gdal.Open(path, gdal.ReadOnly)

	if err != nil {
		log.Error(logTag+"open raster failed", zap.String("path", path), zap.Error(err))
		return GeoContext{}, geoai.NewError(geoai.BadInput, "geo.Load", err)
	}

	defer ds.Close()

	ctx := GeoContext{
		Width:  ds.RasterXSize(),
		Height: ds.RasterYSize(),
	}

	gt := ds.GeoTransform()
	ctx.CRS = ds.Projection()

	if gt != [6]float64{0, 1, 0, 0, 0, 1} && gt != [6]float64{} {
		ctx.Affine = FromGDAL(gt)
	} else {
		affine, err := ReadWorldFile(WorldFilePath(path))

		if err != nil {
			return GeoContext{}, geoai.Errorf(geoai.MissingGeodata, "geo.Load", "%s has no geotransform and no world file", path)
		}

		ctx.Affine = affine
	}

	if ctx.CRS == "" {
		if srs, err := ReadAuxSRS(path + ".aux.xml"); err == nil {
			ctx.CRS = srs
		}
	}

	if ctx.CRS == "" {
		return GeoContext{}, geoai.Errorf(geoai.MissingGeodata, "geo.Load", "%s has no CRS", path)
	}

	if _, err := ctx.Affine.Inverse(); err != nil {
		return GeoContext{}, err
	}

	log.Info(logTag+"loaded geo context", zap.String("path", path), zap.Int("width", ctx.Width),
		zap.Int("height", ctx.Height), zap.Float64("A", ctx.Affine.A), zap.Float64("E", ctx.Affine.E))

	return ctx, nil
}

type pamDataset struct {
	SRS string `xml:"SRS"`
}

// ReadAuxSRS returns the WKT held by the <SRS> element of a PAM .aux.xml.
func ReadAuxSRS(path string) (string, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		if os.IsNotExist(err) {
			return "", geoai.NewError(geoai.MissingGeodata, "geo.ReadAuxSRS", err)
		}
		return "", geoai.NewError(geoai.BadInput, "geo.ReadAuxSRS", err)
	}

	var pam pamDataset

	if err := xml.Unmarshal(data, &pam); err != nil {
		return "", geoai.NewError(geoai.BadInput, "geo.ReadAuxSRS", err)
	}

	return strings.TrimSpace(pam.SRS), nil
}

// Center returns the image centre as longitude/latitude.
func Center(ctx GeoContext) (orb.Point, error) {

	x, y := ctx.PixelToWorld(float64(ctx.Width)/2, float64(ctx.Height)/2)

	g, err := Reproject(orb.Point{x, y}, ctx.CRS, EPSG4326)

	if err != nil {
		return orb.Point{}, err
	}

	return g.(orb.Point), nil
}
