package geo

import (
	"fmt"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"
)

// Linework returns the lines a geometry contributes to a planar
// arrangement: linestrings as they are and polygon rings as closed lines.
// Collections contribute the linework of their members. Anything else
// contributes nothing.
func Linework(g geom.Geometry) []geom.LineString {
	var lines []geom.LineString
	switch g.Type() {
	case geom.TypeLineString:
		lines = append(lines, g.MustAsLineString())
	case geom.TypeMultiLineString:
		mls := g.MustAsMultiLineString()
		for i := 0; i < mls.NumLineStrings(); i++ {
			lines = append(lines, mls.LineStringN(i))
		}
	case geom.TypeGeometryCollection:
		gc := g.MustAsGeometryCollection()
		for i := 0; i < gc.NumGeometries(); i++ {
			lines = append(lines, Linework(gc.GeometryN(i))...)
		}
	case geom.TypePolygon, geom.TypeMultiPolygon:
		for _, p := range PolygonParts(g) {
			lines = append(lines, p.ExteriorRing())
			for i := 0; i < p.NumInteriorRings(); i++ {
				lines = append(lines, p.InteriorRingN(i))
			}
		}
	}
	return lines
}

// SplitByFeatures polygonizes the lines and polygon rings of features and
// clips every resulting face to the AOI. Features of other geometry types
// are skipped.
func SplitByFeatures(aoi geom.Polygon, features geom.GeoJSONFeatureCollection) (geom.GeoJSONFeatureCollection, error) {
	var lines []geom.LineString
	for i, f := range features {
		ls := Linework(f.Geometry)
		if len(ls) == 0 {
			logrus.Debugf("feature %d is %s, skipped", i, f.Geometry.Type())
			continue
		}
		lines = append(lines, ls...)
	}

	var err error
	var g geom.Geometry
	var faces []geom.Polygon
	if faces, err = Polygonize(lines); err != nil {
		return nil, err
	}
	fc := geom.GeoJSONFeatureCollection{}
	for _, face := range faces {
		if g, err = geom.Intersection(face.AsGeometry(), aoi.AsGeometry()); err != nil {
			return nil, fmt.Errorf("clip face to aoi: %w", err)
		}
		for _, p := range PolygonParts(g) {
			fc = append(fc, TaskFeature(p.AsGeometry()))
		}
	}
	logrus.Debugf("feature split of %d features produced %d polygons", len(features), len(fc))
	return fc, nil
}
