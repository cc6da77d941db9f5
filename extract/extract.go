// Package extract fetches OpenStreetMap features for an AOI.
package extract

import (
	"context"
	"errors"

	"github.com/peterstace/simplefeatures/geom"
)

var ErrExtraction = errors.New("feature extraction failed")

type Category string

const (
	Buildings Category = "buildings"
	Lines     Category = "lines"
	// All is buildings and lines together.
	All Category = "all"
)

// Extractor returns the features of one category intersecting the AOI.
// Feature properties carry the OSM tags under "tags" and the element id
// under "osm_id".
type Extractor interface {
	Extract(ctx context.Context, aoi geom.Polygon, category Category) (geom.GeoJSONFeatureCollection, error)
}

// Func adapts a function to Extractor.
type Func func(ctx context.Context, aoi geom.Polygon, category Category) (geom.GeoJSONFeatureCollection, error)

func (f Func) Extract(ctx context.Context, aoi geom.Polygon, category Category) (geom.GeoJSONFeatureCollection, error) {
	return f(ctx, aoi, category)
}
