package geo

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const squareJSON = `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`

func TestNormalizeInputs(t *testing.T) {
	raw, err := os.ReadFile("testdata/aoi.geojson")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	var fc geom.GeoJSONFeatureCollection
	require.NoError(t, fc.UnmarshalJSON(raw))

	inputs := map[string]any{
		"path":    "testdata/aoi.geojson",
		"text":    string(raw),
		"bytes":   raw,
		"object":  decoded,
		"fc":      fc,
		"feature": fc[0],
		"geom":    fc[0].Geometry,
	}
	for name, in := range inputs {
		p, err := Normalize(in)
		require.NoError(t, err, name)
		assert.InDelta(t, 0.008*0.007, p.AsGeometry().Area(), 1e-12, name)
	}
}

func TestNormalizeBareGeometryAndFeature(t *testing.T) {
	p, err := Normalize(squareJSON)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.AsGeometry().Area())

	p, err = Normalize(`{"type":"Feature","properties":null,"geometry":` + squareJSON + `}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.AsGeometry().Area())

	p, err = Normalize(`{"type":"MultiPolygon","coordinates":[[[[0,0],[2,0],[2,2],[0,2],[0,0]]]]}`)
	require.NoError(t, err)
	assert.Equal(t, 4.0, p.AsGeometry().Area())
}

func TestNormalizeErrors(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  error
	}{
		{"empty collection", `{"type":"FeatureCollection","features":[]}`, ErrEmptyAOI},
		{"many features", "testdata/aoi_multi.geojson", ErrMultipleGeometries},
		{"multipolygon", `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]],[[[5,5],[6,5],[6,6],[5,5]]]]}`, ErrMultipleGeometries},
		{"line", `{"type":"LineString","coordinates":[[0,0],[1,1]]}`, ErrNotPolygon},
		{"garbage", "not geojson at all", ErrParse},
		{"no type", `{"coordinates":[]}`, ErrParse},
		{"unsupported", 42, ErrParse},
	}
	for _, c := range cases {
		_, err := Normalize(c.input)
		assert.True(t, errors.Is(err, c.want), "%s: %v", c.name, err)
		assert.True(t, errors.Is(err, ErrValidation), c.name)
	}
}

func TestNormalizeInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.geojson")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))
	_, err := Normalize(path)
	assert.True(t, errors.Is(err, ErrParse))
	assert.Contains(t, err.Error(), "content is invalid")
}

func TestPolygonsFlattensCollection(t *testing.T) {
	fc, err := ParseFeatureCollection("testdata/aoi_multi.geojson")
	require.NoError(t, err)
	polys, err := Polygons(fc)
	require.NoError(t, err)
	assert.Len(t, polys, 4)

	_, err = Polygons(geom.GeoJSONFeatureCollection{})
	assert.True(t, errors.Is(err, ErrEmptyAOI))
}

func TestFeatureCollectionRoundTrip(t *testing.T) {
	aoi, err := Normalize("testdata/aoi.geojson")
	require.NoError(t, err)
	fc, err := SplitBySquare(aoi, 100, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tasks.geojson")
	require.NoError(t, WriteFeatureCollection(path, fc))
	back, err := ReadFeatureCollection(path)
	require.NoError(t, err)
	require.Len(t, back, len(fc))
	for i := range fc {
		assert.True(t, geom.ExactEquals(fc[i].Geometry, back[i].Geometry), "feature %d", i)
		assert.Equal(t, fc[i].Properties["geohash"], back[i].Properties["geohash"])
	}
}

func TestSplitByFeaturesFixture(t *testing.T) {
	aoi, err := Normalize("testdata/aoi.geojson")
	require.NoError(t, err)
	roads, err := ParseFeatureCollection("testdata/roads.geojson")
	require.NoError(t, err)
	fc, err := SplitByFeatures(aoi, roads)
	require.NoError(t, err)
	require.Len(t, fc, 4)
	var total float64
	for _, f := range fc {
		total += f.Geometry.Area()
	}
	assert.InEpsilon(t, aoi.AsGeometry().Area(), total, 1e-9)
}
