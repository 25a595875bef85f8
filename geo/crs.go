package geo

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/lukeroth/gdal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"go.uber.org/zap"
)

const logTag = "geo: "

// EPSG4326 is the CRS of longitude/latitude outputs.
const EPSG4326 = "EPSG:4326"

var (
	refLock sync.Mutex
	refs    = map[string]gdal.SpatialReference{}
)

// EPSG formats an EPSG code as a CRS identifier.
func EPSG(code int) string {
	return "EPSG:" + strconv.Itoa(code)
}

// SpatialRef returns the shared spatial reference of a CRS identifier for
// use with GDAL layers. It must not be destroyed.
func SpatialRef(crs string) (gdal.SpatialReference, error) {
	return spatialRef(crs)
}

// spatialRef returns a cached spatial reference for a CRS identifier, which
// is either "EPSG:<code>" or WKT. References are shared and never destroyed.
func spatialRef(crs string) (gdal.SpatialReference, error) {

	refLock.Lock()
	defer refLock.Unlock()

	if ref, ok := refs[crs]; ok {
		return ref, nil
	}

	crs = strings.TrimSpace(crs)
	ref := gdal.CreateSpatialReference("")

	var err error

	if code, ok := parseEPSG(crs); ok {
		err = ref.FromEPSG(code)
	} else if crs != "" {
		err = ref.FromWKT(crs)
	} else {
		err = fmt.Errorf("empty crs")
	}

	if err != nil {
		log.Error(logTag+"create spatial reference failed", zap.String("crs", abbreviate(crs)), zap.Error(err))
		ref.Destroy()
		return gdal.SpatialReference{}, geoai.NewError(geoai.CRSConversion, "geo.spatialRef", err)
	}

	// data is always longitude/easting first regardless of the CRS axis order
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	refs[crs] = ref

	return ref, nil
}

func parseEPSG(crs string) (int, bool) {

	upper := strings.ToUpper(crs)

	if !strings.HasPrefix(upper, "EPSG:") {
		return 0, false
	}

	code, err := strconv.Atoi(strings.TrimSpace(crs[5:]))
	return code, err == nil
}

func abbreviate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}

// IsGeographic reports whether crs uses angular (degree) coordinates.
func IsGeographic(crs string) (bool, error) {

	ref, err := spatialRef(crs)

	if err != nil {
		return false, err
	}

	return ref.IsGeographic(), nil
}

// SameCRS reports whether both identifiers resolve to the same CRS.
func SameCRS(a, b string) (bool, error) {

	if a == b {
		return true, nil
	}

	ra, err := spatialRef(a)

	if err != nil {
		return false, err
	}

	rb, err := spatialRef(b)

	if err != nil {
		return false, err
	}

	return ra.IsSame(rb), nil
}

// EPSGCode returns the authority code of crs if one can be identified.
func EPSGCode(crs string) (int, bool) {

	if code, ok := parseEPSG(crs); ok {
		return code, true
	}

	ref, err := spatialRef(crs)

	if err != nil {
		return 0, false
	}

	raw, ok := ref.AttrValue("AUTHORITY", 1)

	if !ok {
		return 0, false
	}

	code, err := strconv.Atoi(raw)
	return code, err == nil
}

// ESRIWKT returns crs in the ESRI flavoured WKT used by .prj files.
func ESRIWKT(crs string) (string, error) {

	ref, err := spatialRef(crs)

	if err != nil {
		return "", err
	}

	wktText, err := ref.ToWKT()

	if err != nil {
		return "", geoai.NewError(geoai.CRSConversion, "geo.ESRIWKT", err)
	}

	// morph a private copy, the cached reference stays in OGC form
	esri := gdal.CreateSpatialReference(wktText)
	defer esri.Destroy()

	if err := esri.MorphToESRI(); err != nil {
		return "", geoai.NewError(geoai.CRSConversion, "geo.ESRIWKT", err)
	}

	out, err := esri.ToWKT()

	if err != nil {
		return "", geoai.NewError(geoai.CRSConversion, "geo.ESRIWKT", err)
	}

	return out, nil
}

// Reproject converts a geometry between two CRSs.
func Reproject(g orb.Geometry, src, dst string) (orb.Geometry, error) {

	if src == dst {
		return g, nil
	}

	srcRef, err := spatialRef(src)

	if err != nil {
		return nil, err
	}

	dstRef, err := spatialRef(dst)

	if err != nil {
		return nil, err
	}

	geom, err := gdal.CreateFromWKT(wkt.MarshalString(g), srcRef)

	if err != nil {
		return nil, geoai.NewError(geoai.CRSConversion, "geo.Reproject", err)
	}

	defer geom.Destroy()

	if err := geom.TransformTo(dstRef); err != nil {
		return nil, geoai.NewError(geoai.CRSConversion, "geo.Reproject", err)
	}

	out, err := geom.ToWKT()

	if err != nil {
		return nil, geoai.NewError(geoai.CRSConversion, "geo.Reproject", err)
	}

	res, err := wkt.Unmarshal(out)

	if err != nil {
		return nil, geoai.NewError(geoai.CRSConversion, "geo.Reproject", err)
	}

	return res, nil
}

// Transformer converts batches of coordinates between two CRSs.
type Transformer struct {
	ct       gdal.CoordinateTransform
	identity bool
}

// NewTransformer creates a coordinate transformer from src to dst. It must
// be closed after use.
func NewTransformer(src, dst string) (*Transformer, error) {

	if src == dst {
		return &Transformer{identity: true}, nil
	}

	srcRef, err := spatialRef(src)

	if err != nil {
		return nil, err
	}

	dstRef, err := spatialRef(dst)

	if err != nil {
		return nil, err
	}

	return &Transformer{ct: gdal.CreateCoordinateTransform(srcRef, dstRef)}, nil
}

// Transform converts xs, ys and zs in place.
func (t *Transformer) Transform(xs, ys, zs []float64) error {

	if t.identity || len(xs) == 0 {
		return nil
	}

	if len(ys) != len(xs) || (zs != nil && len(zs) != len(xs)) {
		return geoai.Errorf(geoai.CRSConversion, "geo.Transform", "coordinate slices differ in length")
	}

	if zs == nil {
		zs = make([]float64, len(xs))
	}

	if !t.ct.Transform(len(xs), xs, ys, zs) {
		return geoai.Errorf(geoai.CRSConversion, "geo.Transform", "transform of %d points refused", len(xs))
	}

	return nil
}

// Points converts a slice of 2D points.
func (t *Transformer) Points(pts []orb.Point) ([]orb.Point, error) {

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))

	for i, p := range pts {
		xs[i], ys[i] = p[0], p[1]
	}

	if err := t.Transform(xs, ys, nil); err != nil {
		return nil, err
	}

	out := make([]orb.Point, len(pts))

	for i := range pts {
		out[i] = orb.Point{xs[i], ys[i]}
	}

	return out, nil
}

// Close releases the underlying transform.
func (t *Transformer) Close() {
	if !t.identity {
		t.ct.Destroy()
	}
}
