// Package geo turns an area of interest into task polygons: AOI parsing,
// metric grid splitting with small cell merging, and polygonization of
// linework clipped to the AOI.
package geo

import (
	"errors"
	"fmt"

	"github.com/mmcloughlin/geohash"
	"github.com/peterstace/simplefeatures/geom"
)

// Tolerance is the minimum shared boundary length, in degrees, for two
// cells to count as neighbours.
const Tolerance = 1e-9

const geohashPrecision = 8

var (
	ErrValidation         = errors.New("validation failed")
	ErrParse              = fmt.Errorf("%w: unreadable geojson", ErrValidation)
	ErrEmptyAOI           = fmt.Errorf("%w: aoi has no features", ErrValidation)
	ErrMultipleGeometries = fmt.Errorf("%w: aoi has more than one geometry", ErrValidation)
	ErrNotPolygon         = fmt.Errorf("%w: aoi is not a polygon", ErrValidation)
)

// PolygonParts returns the polygonal members of g. Lines, points and
// empty parts are dropped.
func PolygonParts(g geom.Geometry) []geom.Polygon {
	var parts []geom.Polygon
	switch g.Type() {
	case geom.TypePolygon:
		if p := g.MustAsPolygon(); !p.IsEmpty() {
			parts = append(parts, p)
		}
	case geom.TypeMultiPolygon:
		mp := g.MustAsMultiPolygon()
		for i := 0; i < mp.NumPolygons(); i++ {
			if p := mp.PolygonN(i); !p.IsEmpty() {
				parts = append(parts, p)
			}
		}
	case geom.TypeGeometryCollection:
		gc := g.MustAsGeometryCollection()
		for i := 0; i < gc.NumGeometries(); i++ {
			parts = append(parts, PolygonParts(gc.GeometryN(i))...)
		}
	}
	return parts
}

// TaskFeature wraps a task geometry with its area and a centroid geohash.
func TaskFeature(g geom.Geometry) geom.GeoJSONFeature {
	props := map[string]interface{}{
		"area": g.Area(),
	}
	if c, ok := g.Centroid().XY(); ok {
		props["geohash"] = geohash.EncodeWithPrecision(c.Y, c.X, geohashPrecision)
	}
	return geom.GeoJSONFeature{Geometry: g, Properties: props}
}
