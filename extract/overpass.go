package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"
)

const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// Overpass extracts features from an Overpass API endpoint.
type Overpass struct {
	url     string
	client  *http.Client
	filters Filters
	timeout time.Duration
}

type OverpassOption func(*Overpass)

func WithHTTPClient(c *http.Client) OverpassOption {
	return func(o *Overpass) {
		o.client = c
	}
}

func WithFilters(f Filters) OverpassOption {
	return func(o *Overpass) {
		o.filters = f
	}
}

// WithTimeout bounds both the HTTP round trip and the server side query.
func WithTimeout(d time.Duration) OverpassOption {
	return func(o *Overpass) {
		o.timeout = d
	}
}

func NewOverpass(endpoint string, options ...OverpassOption) *Overpass {
	o := &Overpass{url: endpoint, timeout: 60 * time.Second}
	for _, option := range options {
		option(o)
	}
	if o.url == "" {
		o.url = DefaultOverpassURL
	}
	if o.filters == nil {
		o.filters = DefaultFilters()
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: o.timeout}
	}
	return o
}

// Query renders the Overpass QL for category within the AOI bounding box.
func (o *Overpass) Query(aoi geom.Polygon, category Category) (string, error) {
	filter, ok := o.filters.Lookup(category)
	if !ok {
		return "", fmt.Errorf("%w: no filter for category %s", ErrExtraction, category)
	}
	bb := aoi.Envelope()
	_min, ok1 := bb.Min().XY()
	_max, ok2 := bb.Max().XY()
	if !ok1 || !ok2 {
		return "", fmt.Errorf("%w: empty aoi", ErrExtraction)
	}
	bbox := fmt.Sprintf("%f,%f,%f,%f", _min.Y, _min.X, _max.Y, _max.X)
	return fmt.Sprintf("[out:json][timeout:%d];\n(\n%s);\nout tags geom;\n",
		int(o.timeout.Seconds()), filter.statements(bbox)), nil
}

func (o *Overpass) Extract(ctx context.Context, aoi geom.Polygon, category Category) (geom.GeoJSONFeatureCollection, error) {
	var err error
	var query string
	if query, err = o.Query(aoi, category); err != nil {
		return nil, err
	}
	var req *http.Request
	form := url.Values{"data": {query}}
	if req, err = http.NewRequestWithContext(ctx, http.MethodPost, o.url, strings.NewReader(form.Encode())); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var resp *http.Response
	start := time.Now()
	if resp, err = o.client.Do(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: overpass returned %s: %s", ErrExtraction, resp.Status, strings.TrimSpace(string(body)))
	}
	var result overpassResult
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode overpass response: %w", ErrExtraction, err)
	}
	fc := result.features()
	logrus.Infof("extracted %d %s features in %s", len(fc), category, time.Since(start).Round(time.Millisecond))
	return fc, nil
}

type overpassResult struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Tags     map[string]string `json:"tags"`
	Geometry []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"geometry"`
}

func (e overpassElement) closed() bool {
	n := len(e.Geometry)
	return n >= 4 && e.Geometry[0] == e.Geometry[n-1]
}

func (e overpassElement) area() bool {
	_, building := e.Tags["building"]
	return building || e.Tags["area"] == "yes"
}

func (e overpassElement) geometry() (geom.Geometry, bool) {
	switch e.Type {
	case "node":
		return geom.XY{X: e.Lon, Y: e.Lat}.AsPoint().AsGeometry(), true
	case "way":
		if len(e.Geometry) < 2 {
			return geom.Geometry{}, false
		}
		coords := make([]float64, 0, 2*len(e.Geometry))
		for _, p := range e.Geometry {
			coords = append(coords, p.Lon, p.Lat)
		}
		ls := geom.NewLineString(geom.NewSequence(coords, geom.DimXY))
		if e.closed() && e.area() {
			return geom.NewPolygon([]geom.LineString{ls}).AsGeometry(), true
		}
		return ls.AsGeometry(), true
	}
	return geom.Geometry{}, false
}

func (r overpassResult) features() geom.GeoJSONFeatureCollection {
	fc := geom.GeoJSONFeatureCollection{}
	for _, e := range r.Elements {
		g, ok := e.geometry()
		if !ok {
			continue
		}
		tags := make(map[string]interface{}, len(e.Tags))
		for k, v := range e.Tags {
			tags[k] = v
		}
		fc = append(fc, geom.GeoJSONFeature{
			ID:       fmt.Sprintf("%s/%d", e.Type, e.ID),
			Geometry: g,
			Properties: map[string]interface{}{
				"osm_id": e.ID,
				"tags":   tags,
			},
		})
	}
	return fc
}
