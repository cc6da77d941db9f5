package geo

import (
	"fmt"
	"os"

	"github.com/peterstace/simplefeatures/geom"
)

// WriteFeatureCollection stores fc as GeoJSON at path.
func WriteFeatureCollection(path string, fc geom.GeoJSONFeatureCollection) error {
	var err error
	var output []byte
	if fc == nil {
		fc = geom.GeoJSONFeatureCollection{}
	}
	if output, err = fc.MarshalJSON(); err != nil {
		return err
	}
	return os.WriteFile(path, output, 0644)
}

// ReadFeatureCollection loads a GeoJSON file. Files holding a single
// Feature or a bare geometry are lifted into a collection.
func ReadFeatureCollection(path string) (geom.GeoJSONFeatureCollection, error) {
	var err error
	var input []byte
	if input, err = os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	var fc geom.GeoJSONFeatureCollection
	if fc, err = parseGeoJSON(input); err != nil {
		return nil, fmt.Errorf("%w: file %s exists but its content is invalid", err, path)
	}
	return fc, nil
}
