package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ifaistartup/go-geoai"
	"github.com/ifaistartup/go-geoai/geo"
	"github.com/ifaistartup/go-geoai/log"
	"github.com/lukeroth/gdal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const (
	shpDriverName = "ESRI Shapefile"
	shpEncoding   = "UTF-8"
	// fieldWidth of string attributes
	fieldWidth = 64
)

// companion files of a shapefile
var shpExts = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

func init() {
	// attributes are decoded from the .cpg code page here rather than by GDAL
	gdal.CPLSetConfigOption("SHAPE_ENCODING", "")
}

// Record is one shapefile feature, Values follow the table fields
type Record struct {
	Geometry orb.Geometry
	Values   []string
}

// ShapeType is the geometry type of a shapefile
type ShapeType int

const (
	// ShapeAuto takes the type of the first record, polygon when empty
	ShapeAuto ShapeType = iota
	ShapePoint
	ShapeLine
	ShapePolygon
)

func (s ShapeType) gdal() gdal.GeometryType {
	switch s {
	case ShapePoint:
		return gdal.GT_Point
	case ShapeLine:
		return gdal.GT_LineString
	}
	return gdal.GT_Polygon
}

// shapeOf returns the shape type holding g
func shapeOf(g orb.Geometry) ShapeType {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return ShapePoint
	case orb.LineString, orb.MultiLineString:
		return ShapeLine
	}
	return ShapePolygon
}

// Table is the content of a shapefile
type Table struct {
	CRS     string
	Shape   ShapeType
	Fields  []string
	Records []Record
}

// Value returns the value of field in record i, empty if the field is
// missing
func (t *Table) Value(i int, field string) string {

	for j, f := range t.Fields {
		if f == field && j < len(t.Records[i].Values) {
			return t.Records[i].Values[j]
		}
	}

	return ""
}

// LayerFile returns the shapefile path of a class in dir
func LayerFile(dir, class string) string {
	return filepath.Join(dir, strings.ReplaceAll(class, " ", "_")+".shp")
}

// ShapefileParts lists the existing companion files of a shapefile
func ShapefileParts(path string) []string {

	base := strings.TrimSuffix(path, filepath.Ext(path))

	var out []string

	for _, ext := range shpExts {
		if _, err := os.Stat(base + ext); err == nil {
			out = append(out, base+ext)
		}
	}

	return out
}

// WriteShapefile writes a table of string fields, replacing any shapefile
// at path. Records without geometry are skipped.
func WriteShapefile(path string, t Table) error {

	for _, p := range ShapefileParts(path) {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("error removing %s: %w", p, err)
		}
	}

	ref, err := geo.SpatialRef(t.CRS)

	if err != nil {
		return err
	}

	driver := gdal.OGRDriverByName(shpDriverName)
	ds, ok := driver.Create(path, nil)

	if !ok {
		return fmt.Errorf("error creating shapefile %s", path)
	}

	// flushes the files
	defer ds.Destroy()

	shape := t.Shape

	if shape == ShapeAuto {
		shape = ShapePolygon

		for _, r := range t.Records {
			if r.Geometry != nil {
				shape = shapeOf(r.Geometry)
				break
			}
		}
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	layer := ds.CreateLayer(name, ref, shape.gdal(), []string{"ENCODING=" + shpEncoding})

	for _, f := range t.Fields {
		fd := gdal.CreateFieldDefinition(f, gdal.FT_String)
		fd.SetWidth(fieldWidth)
		err := layer.CreateField(fd, false)
		fd.Destroy()

		if err != nil {
			return fmt.Errorf("error creating field %s: %w", f, err)
		}
	}

	def := layer.Definition()
	written := 0

	for i, r := range t.Records {
		if r.Geometry == nil {
			continue
		}

		g, err := gdal.CreateFromWKT(wkt.MarshalString(r.Geometry), ref)

		if err != nil {
			return geoai.NewError(geoai.InvalidGeometry, "export.WriteShapefile", err)
		}

		feature := def.Create()

		for j, v := range r.Values {
			if j < len(t.Fields) {
				feature.SetFieldString(j, v)
			}
		}

		if err := feature.SetGeometryDirectly(g); err != nil {
			feature.Destroy()
			return fmt.Errorf("error setting geometry of record %d: %w", i, err)
		}

		err = layer.Create(feature)
		feature.Destroy()

		if err != nil {
			return fmt.Errorf("error writing record %d: %w", i, err)
		}

		written++
	}

	log.Debug(logTag+"shapefile written", zap.String("file", path), zap.Int("records", written))

	return nil
}

// ReadShapefile reads every record of the first layer of a shapefile.
// String attributes are decoded with the code page of the .cpg sidecar,
// GBK when there is none.
func ReadShapefile(path string) (*Table, error) {

	if _, err := os.Stat(path); err != nil {
		return nil, geoai.NewError(geoai.BadInput, "export.ReadShapefile", err)
	}

	dec := decoderFor(path)

	driver := gdal.OGRDriverByName(shpDriverName)
	ds, ok := driver.Open(path, 0)

	if !ok {
		return nil, geoai.Errorf(geoai.BadInput, "export.ReadShapefile", "error opening %s", path)
	}

	defer ds.Destroy()

	layer := ds.LayerByIndex(0)
	def := layer.Definition()

	t := &Table{CRS: crsOf(layer.SpatialReference())}

	for i := 0; i < def.FieldCount(); i++ {
		t.Fields = append(t.Fields, def.FieldDefinition(i).Name())
	}

	for {
		feature := layer.NextFeature()

		if feature == nil {
			break
		}

		r, err := readRecord(feature, len(t.Fields), dec)
		feature.Destroy()

		if err != nil {
			return nil, geoai.NewError(geoai.BadInput, "export.ReadShapefile "+path, err)
		}

		t.Records = append(t.Records, r)
	}

	return t, nil
}

func readRecord(feature *gdal.Feature, fields int, dec *encoding.Decoder) (Record, error) {

	var r Record

	for j := 0; j < fields; j++ {
		v := feature.FieldAsString(j)

		if dec != nil {
			d, err := dec.String(v)

			if err != nil {
				return r, fmt.Errorf("decoding attribute: %w", err)
			}

			v = d
		}

		r.Values = append(r.Values, v)
	}

	g := feature.Geometry()

	if g.IsEmpty() {
		return r, nil
	}

	text, err := g.ToWKT()

	if err != nil {
		return r, err
	}

	if r.Geometry, err = wkt.Unmarshal(text); err != nil {
		return r, fmt.Errorf("parsing geometry: %w", err)
	}

	return r, nil
}

// decoderFor returns the attribute decoder of a shapefile, nil for UTF-8
func decoderFor(path string) *encoding.Decoder {

	cpg := ""

	if data, err := os.ReadFile(strings.TrimSuffix(path, filepath.Ext(path)) + ".cpg"); err == nil {
		cpg = strings.TrimSpace(string(data))
	}

	switch strings.ToUpper(cpg) {
	case "UTF-8", "UTF8", "65001":
		return nil
	case "":
		return simplifiedchinese.GBK.NewDecoder()
	}

	enc, err := htmlindex.Get(cpg)

	if err != nil {
		log.Warn(logTag+"unknown code page, decoding as GBK", zap.String("cpg", cpg))
		return simplifiedchinese.GBK.NewDecoder()
	}

	return enc.NewDecoder()
}

// crsOf returns "EPSG:<code>" when the layer CRS has an EPSG code and its
// WKT otherwise
func crsOf(ref gdal.SpatialReference) string {

	text, err := ref.ToWKT()

	if err != nil || text == "" {
		return ""
	}

	if code, ok := geo.EPSGCode(text); ok {
		return geo.EPSG(code)
	}

	if ref.AutoIdentifyEPSG() == nil {
		if code, err := strconv.Atoi(ref.AuthorityCode("")); err == nil {
			return geo.EPSG(code)
		}
	}

	return text
}
