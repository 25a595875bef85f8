package geo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ifaistartup/go-geoai"
)

// TFW is the JSON summary of an aggregate output's georeference.
type TFW struct {
	ImageWidth  int       `json:"image_width"`
	ImageHeight int       `json:"image_height"`
	CRS         string    `json:"CRS"`
	WorldFile   AffineGeo `json:"worldfile"`
}

// WriteTFW writes t as indented JSON.
func WriteTFW(path string, t TFW) error {

	data, err := json.MarshalIndent(t, "", "  ")

	if err != nil {
		return fmt.Errorf("error encoding tfw json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing tfw json: %w", err)
	}

	return nil
}

// ReadTFW loads a JSON georeference summary.
func ReadTFW(path string) (TFW, error) {

	var t TFW

	data, err := os.ReadFile(path)

	if err != nil {
		if os.IsNotExist(err) {
			return t, geoai.NewError(geoai.MissingGeodata, "geo.ReadTFW", err)
		}
		return t, geoai.NewError(geoai.BadInput, "geo.ReadTFW", err)
	}

	if err := json.Unmarshal(data, &t); err != nil {
		return t, geoai.NewError(geoai.BadInput, "geo.ReadTFW", err)
	}

	return t, nil
}
