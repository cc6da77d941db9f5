package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAOI() geom.Polygon {
	coords := []float64{85.30, 27.71, 85.31, 27.71, 85.31, 27.72, 85.30, 27.72, 85.30, 27.71}
	return geom.NewPolygon([]geom.LineString{geom.NewLineString(geom.NewSequence(coords, geom.DimXY))})
}

const overpassBody = `{
  "elements": [
    {"type": "way", "id": 11, "tags": {"building": "yes"},
     "geometry": [{"lat": 27.711, "lon": 85.301}, {"lat": 27.711, "lon": 85.302}, {"lat": 27.712, "lon": 85.302}, {"lat": 27.711, "lon": 85.301}]},
    {"type": "way", "id": 12, "tags": {"highway": "residential"},
     "geometry": [{"lat": 27.710, "lon": 85.300}, {"lat": 27.720, "lon": 85.310}]},
    {"type": "node", "id": 13, "lat": 27.715, "lon": 85.305, "tags": {"amenity": "cafe"}},
    {"type": "relation", "id": 14}
  ]
}`

func TestOverpassExtract(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query = r.PostForm.Get("data")
		w.Write([]byte(overpassBody))
	}))
	defer srv.Close()

	o := NewOverpass(srv.URL, WithTimeout(5*time.Second))
	fc, err := o.Extract(context.Background(), testAOI(), All)
	require.NoError(t, err)
	require.Len(t, fc, 3)

	assert.Contains(t, query, `way["building"](27.710000,85.300000,27.720000,85.310000);`)
	assert.Contains(t, query, `way["aeroway"]`)
	assert.Contains(t, query, "[timeout:5]")

	assert.Equal(t, geom.TypePolygon, fc[0].Geometry.Type())
	assert.Equal(t, geom.TypeLineString, fc[1].Geometry.Type())
	assert.Equal(t, geom.TypePoint, fc[2].Geometry.Type())
	assert.Equal(t, map[string]interface{}{"building": "yes"}, fc[0].Properties["tags"])
	assert.Equal(t, int64(11), fc[0].Properties["osm_id"])
}

func TestOverpassExtractFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOverpass(srv.URL).Extract(context.Background(), testAOI(), Buildings)
	assert.True(t, errors.Is(err, ErrExtraction))
	assert.Contains(t, err.Error(), "rate limited")

	_, err = NewOverpass(srv.URL).Extract(context.Background(), testAOI(), Category("trees"))
	assert.True(t, errors.Is(err, ErrExtraction))
}

func TestParseFilters(t *testing.T) {
	f := DefaultFilters()
	lines, ok := f.Lookup(Lines)
	require.True(t, ok)
	assert.Equal(t, []string{"highway", "waterway", "railway", "aeroway"}, lines.Where)

	all, ok := f.Lookup(All)
	require.True(t, ok)
	assert.Equal(t, []string{"ways_poly", "ways_line"}, all.From)
	assert.Len(t, all.Where, 5)

	_, err := ParseFilters([]byte("trees:\n  from: [forests]\n  where: [natural]\n"))
	assert.Error(t, err)
	_, err = ParseFilters([]byte("trees:\n  from: [nodes]\n"))
	assert.Error(t, err)
}

type countingExtractor struct {
	calls int
	err   error
}

func (c *countingExtractor) Extract(ctx context.Context, aoi geom.Polygon, category Category) (geom.GeoJSONFeatureCollection, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return geom.GeoJSONFeatureCollection{{Geometry: aoi.AsGeometry(), Properties: map[string]interface{}{"n": float64(c.calls)}}}, nil
}

func TestCacheMemoizes(t *testing.T) {
	next := &countingExtractor{}
	c := NewCache(next)
	for i := 0; i < 3; i++ {
		_, err := c.Extract(context.Background(), testAOI(), Buildings)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, next.calls)

	_, err := c.Extract(context.Background(), testAOI(), Lines)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	c.Delete(testAOI(), Lines)
	_, err = c.Extract(context.Background(), testAOI(), Lines)
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
}

func TestCacheExpiryAndStale(t *testing.T) {
	now := time.Now()
	next := &countingExtractor{}
	c := NewCache(next, WithTTL(time.Minute), WithStale())
	c.now = func() time.Time { return now }

	_, err := c.Extract(context.Background(), testAOI(), Buildings)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fc, err := c.Extract(context.Background(), testAOI(), Buildings)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, float64(2), fc[0].Properties["n"])

	now = now.Add(2 * time.Minute)
	next.err = ErrExtraction
	fc, err = c.Extract(context.Background(), testAOI(), Buildings)
	require.NoError(t, err)
	assert.Equal(t, float64(2), fc[0].Properties["n"])

	strict := NewCache(next)
	_, err = strict.Extract(context.Background(), testAOI(), Buildings)
	assert.True(t, errors.Is(err, ErrExtraction))
}

type memTier struct {
	sync.Mutex
	m map[string][]byte
}

func (t *memTier) Load(ctx context.Context, key string) ([]byte, bool, error) {
	t.Lock()
	defer t.Unlock()
	b, ok := t.m[key]
	return b, ok, nil
}

func (t *memTier) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	t.Lock()
	defer t.Unlock()
	t.m[key] = value
	return nil
}

func TestCacheSharesThroughTier(t *testing.T) {
	tier := &memTier{m: map[string][]byte{}}
	next := &countingExtractor{}
	_, err := NewCache(next, WithTier(tier)).Extract(context.Background(), testAOI(), Buildings)
	require.NoError(t, err)
	assert.Contains(t, tier.m, Key(testAOI(), Buildings))

	fc, err := NewCache(next, WithTier(tier)).Extract(context.Background(), testAOI(), Buildings)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	require.Len(t, fc, 1)
	assert.Equal(t, float64(1), fc[0].Properties["n"])
}
