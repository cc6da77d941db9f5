package density

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/peterstace/simplefeatures/geom"
)

//go:embed sql/default.sql
var defaultQuery string

// Balancer turns a staged AOI into task polygons holding roughly
// targetCount buildings each.
type Balancer interface {
	Partition(ctx context.Context, stage *Stage, targetCount int) (geom.GeoJSONFeatureCollection, error)
}

// SQLBalancer runs a query returning one GeoJSON FeatureCollection. The
// query may reference the staging relations as {{.AOI}}, {{.Polygons}},
// {{.Lines}} and {{.LinesView}}, and the target count as @num_buildings.
// An empty Query runs the built in algorithm.
type SQLBalancer struct {
	Query string
}

// DefaultQuery returns the built in balancing query.
func DefaultQuery() string {
	return defaultQuery
}

// Render expands the staging relation placeholders of the query.
func (b SQLBalancer) Render(tables Tables) (string, error) {
	q := b.Query
	if q == "" {
		q = defaultQuery
	}
	t, err := template.New("balancer").Option("missingkey=error").Parse(q)
	if err != nil {
		return "", fmt.Errorf("parse balancer query: %w", err)
	}
	var buf bytes.Buffer
	if err = t.Execute(&buf, tables); err != nil {
		return "", fmt.Errorf("render balancer query: %w", err)
	}
	return buf.String(), nil
}

func (b SQLBalancer) Partition(ctx context.Context, stage *Stage, targetCount int) (geom.GeoJSONFeatureCollection, error) {
	var err error
	var query string
	if query, err = b.Render(stage.Tables()); err != nil {
		return nil, err
	}
	var raw []byte
	if raw, err = stage.Session().QueryJSON(ctx, query, map[string]any{"num_buildings": targetCount}); err != nil {
		return nil, err
	}
	return decodeTasks(raw)
}

// decodeTasks reads a balancer result, which must be a FeatureCollection
// of polygons. A null result or a null feature list means no tasks.
func decodeTasks(raw []byte) (geom.GeoJSONFeatureCollection, error) {
	var err error
	var head struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return geom.GeoJSONFeatureCollection{}, nil
	}
	if err = json.Unmarshal(trimmed, &head); err != nil {
		return nil, fmt.Errorf("unreadable balancer result: %w", err)
	}
	if head.Type != "FeatureCollection" {
		return nil, fmt.Errorf("balancer returned %q, want FeatureCollection", head.Type)
	}
	if len(head.Features) == 0 {
		return geom.GeoJSONFeatureCollection{}, nil
	}
	var fc geom.GeoJSONFeatureCollection
	if err = fc.UnmarshalJSON(trimmed); err != nil {
		return nil, fmt.Errorf("unreadable balancer result: %w", err)
	}
	for i, f := range fc {
		switch f.Geometry.Type() {
		case geom.TypePolygon, geom.TypeMultiPolygon:
		default:
			return nil, fmt.Errorf("balancer task %d is %s", i, f.Geometry.Type())
		}
	}
	return fc, nil
}
