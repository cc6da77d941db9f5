package geo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"
)

// strings shorter than this are tried as file paths first
const maxPathLen = 250

// ParseFeatureCollection accepts a FeatureCollection, a Feature, a bare
// geometry, GeoJSON text or bytes, a decoded JSON object, or a path to a
// GeoJSON file, and returns it as a FeatureCollection.
func ParseFeatureCollection(input any) (geom.GeoJSONFeatureCollection, error) {
	switch v := input.(type) {
	case geom.GeoJSONFeatureCollection:
		return v, nil
	case *geom.GeoJSONFeatureCollection:
		if v == nil {
			return nil, ErrEmptyAOI
		}
		return *v, nil
	case geom.GeoJSONFeature:
		return geom.GeoJSONFeatureCollection{v}, nil
	case geom.Geometry:
		return geom.GeoJSONFeatureCollection{{Geometry: v}}, nil
	case geom.Polygon:
		return geom.GeoJSONFeatureCollection{{Geometry: v.AsGeometry()}}, nil
	case geom.MultiPolygon:
		return geom.GeoJSONFeatureCollection{{Geometry: v.AsGeometry()}}, nil
	case []byte:
		return parseGeoJSON(v)
	case json.RawMessage:
		return parseGeoJSON(v)
	case string:
		if len(v) < maxPathLen {
			if st, err := os.Stat(v); err == nil && st.Mode().IsRegular() {
				return ReadFeatureCollection(v)
			}
		}
		return parseGeoJSON([]byte(v))
	case map[string]any:
		var err error
		var b []byte
		if b, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		return parseGeoJSON(b)
	case nil:
		return nil, ErrEmptyAOI
	default:
		return nil, fmt.Errorf("%w: unsupported input %T", ErrParse, input)
	}
}

func parseGeoJSON(b []byte) (geom.GeoJSONFeatureCollection, error) {
	var err error
	var head struct {
		Type string `json:"type"`
	}
	if err = json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	switch head.Type {
	case "FeatureCollection":
		var fc geom.GeoJSONFeatureCollection
		if err = fc.UnmarshalJSON(b); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		return fc, nil
	case "Feature":
		var f geom.GeoJSONFeature
		if err = f.UnmarshalJSON(b); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		return geom.GeoJSONFeatureCollection{f}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type member", ErrParse)
	default:
		var g geom.Geometry
		if g, err = geom.UnmarshalGeoJSON(b); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		return geom.GeoJSONFeatureCollection{{Geometry: g}}, nil
	}
}

// Normalize reduces any accepted AOI input to exactly one polygon.
func Normalize(input any) (geom.Polygon, error) {
	var err error
	var fc geom.GeoJSONFeatureCollection
	if fc, err = ParseFeatureCollection(input); err != nil {
		return geom.Polygon{}, err
	}
	return SinglePolygon(fc)
}

// SinglePolygon extracts the only polygon of fc. A MultiPolygon holding a
// single member is accepted.
func SinglePolygon(fc geom.GeoJSONFeatureCollection) (geom.Polygon, error) {
	switch len(fc) {
	case 0:
		return geom.Polygon{}, ErrEmptyAOI
	case 1:
	default:
		return geom.Polygon{}, fmt.Errorf("%w: got %d", ErrMultipleGeometries, len(fc))
	}
	g := fc[0].Geometry
	switch g.Type() {
	case geom.TypePolygon:
		return g.MustAsPolygon(), nil
	case geom.TypeMultiPolygon:
		mp := g.MustAsMultiPolygon()
		if mp.NumPolygons() == 1 {
			return mp.PolygonN(0), nil
		}
		return geom.Polygon{}, fmt.Errorf("%w: multipolygon with %d members", ErrMultipleGeometries, mp.NumPolygons())
	default:
		return geom.Polygon{}, fmt.Errorf("%w: got %s", ErrNotPolygon, g.Type())
	}
}

// Polygons flattens fc into its polygons, expanding multipolygon members.
func Polygons(fc geom.GeoJSONFeatureCollection) ([]geom.Polygon, error) {
	if len(fc) == 0 {
		return nil, ErrEmptyAOI
	}
	var polys []geom.Polygon
	for i, f := range fc {
		switch f.Geometry.Type() {
		case geom.TypePolygon, geom.TypeMultiPolygon:
			parts := PolygonParts(f.Geometry)
			if len(parts) == 0 {
				logrus.Warnf("aoi feature %d is empty, skipped", i)
			}
			polys = append(polys, parts...)
		default:
			return nil, fmt.Errorf("%w: feature %d is %s", ErrNotPolygon, i, f.Geometry.Type())
		}
	}
	if len(polys) == 0 {
		return nil, ErrEmptyAOI
	}
	return polys, nil
}
