package splitter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/peterstace/simplefeatures/geom"
	"github.com/zhchang/tasksplit/geo"
)

const multiAOI = "../geo/testdata/aoi_multi.geojson"

type countingStrategy struct {
	running, peak int32
	fail          int
	calls         int32
}

func (c *countingStrategy) Name() string {
	return "counting"
}

func (c *countingStrategy) Split(ctx context.Context, aoi geom.Polygon) (geom.GeoJSONFeatureCollection, error) {
	n := atomic.AddInt32(&c.running, 1)
	defer atomic.AddInt32(&c.running, -1)
	for {
		p := atomic.LoadInt32(&c.peak)
		if n <= p || atomic.CompareAndSwapInt32(&c.peak, p, n) {
			break
		}
	}
	call := int(atomic.AddInt32(&c.calls, 1))
	if call == c.fail {
		return nil, fmt.Errorf("boom")
	}
	return geom.GeoJSONFeatureCollection{{Geometry: aoi.AsGeometry()}}, nil
}

func TestSplitSinglePolygonDelegates(t *testing.T) {
	aoi, err := geo.Normalize("../geo/testdata/aoi.geojson")
	assert.Equal(t, nil, err)
	direct, err := geo.SplitBySquare(aoi, 100, nil)
	assert.Equal(t, nil, err)

	via, err := New().Split(context.Background(), "../geo/testdata/aoi.geojson", Square{Meters: 100})
	assert.Equal(t, nil, err)
	assert.Equal(t, len(direct), len(via))
	for i := range direct {
		assert.T(t, geom.ExactEquals(direct[i].Geometry, via[i].Geometry))
	}
}

func TestSplitMultiPolygonConcatenates(t *testing.T) {
	fc, err := geo.ParseFeatureCollection(multiAOI)
	assert.Equal(t, nil, err)
	polys, err := geo.Polygons(fc)
	assert.Equal(t, nil, err)

	var want int
	for _, p := range polys {
		tasks, err := geo.SplitBySquare(p, 50, nil)
		assert.Equal(t, nil, err)
		want += len(tasks)
	}

	out := filepath.Join(t.TempDir(), "tasks.geojson")
	got, err := New(WithConcurrency(2), WithOutfile(out)).Split(context.Background(), multiAOI, Square{Meters: 50})
	assert.Equal(t, nil, err)
	assert.Equal(t, want, len(got))

	for i := range polys {
		_, err := os.Stat(partPath(out, i))
		assert.Equal(t, nil, err)
	}
	back, err := geo.ReadFeatureCollection(out)
	assert.Equal(t, nil, err)
	assert.Equal(t, want, len(back))
}

func TestSplitBoundsConcurrency(t *testing.T) {
	s := &countingStrategy{}
	got, err := New(WithConcurrency(2)).Split(context.Background(), multiAOI, s)
	assert.Equal(t, nil, err)
	assert.Equal(t, 4, len(got))
	assert.T(t, atomic.LoadInt32(&s.peak) <= 2)
}

func TestSplitReportsSubAOIFailure(t *testing.T) {
	_, err := New().Split(context.Background(), multiAOI, &countingStrategy{fail: 3})
	assert.NotEqual(t, nil, err)
}

func TestSplitRejectsNonPolygonAOI(t *testing.T) {
	_, err := New().Split(context.Background(), `{"type":"LineString","coordinates":[[0,0],[1,1]]}`, Square{Meters: 10})
	assert.T(t, errors.Is(err, geo.ErrNotPolygon))

	_, err = New().Split(context.Background(), `{"type":"FeatureCollection","features":[]}`, Square{Meters: 10})
	assert.T(t, errors.Is(err, geo.ErrEmptyAOI))
}

func TestSplitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(WithConcurrency(1)).Split(ctx, multiAOI, &countingStrategy{})
	assert.T(t, errors.Is(err, context.Canceled))
}

// cancellingStrategy cancels the context while splitting its last sub-AOI.
type cancellingStrategy struct {
	countingStrategy
	last   int32
	cancel context.CancelFunc
}

func (c *cancellingStrategy) Split(ctx context.Context, aoi geom.Polygon) (geom.GeoJSONFeatureCollection, error) {
	fc, err := c.countingStrategy.Split(ctx, aoi)
	if atomic.LoadInt32(&c.calls) == c.last {
		c.cancel()
	}
	return fc, err
}

func TestSplitKeepsResultsFinishedBeforeCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	strategy := &cancellingStrategy{last: 4, cancel: cancel}
	got, err := New(WithConcurrency(1)).Split(ctx, multiAOI, strategy)
	assert.Equal(t, nil, err)
	assert.Equal(t, 4, len(got))
	assert.NotEqual(t, nil, ctx.Err())
}

func TestDensityWithoutDatabase(t *testing.T) {
	_, err := New().Split(context.Background(), "../geo/testdata/aoi.geojson", Density{})
	assert.T(t, errors.Is(err, geo.ErrValidation))
}

func TestPartPath(t *testing.T) {
	assert.Equal(t, "out/fmtm_2.geojson", partPath("out/fmtm.geojson", 2))
	assert.Equal(t, "tasks_0", partPath("tasks", 0))
}
