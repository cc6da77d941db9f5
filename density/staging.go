package density

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"
)

var _uniq int64
var _uniqOnce sync.Once

// stageName returns a prefix no other staging run of this process or of
// a concurrent process will use.
func stageName(base string) string {
	_uniqOnce.Do(func() {
		_uniq = time.Now().UnixNano()
	})
	return fmt.Sprintf("%s_%d_%d", base, os.Getpid(), atomic.AddInt64(&_uniq, 1))
}

// Tables names the staging relations of one run, already quoted for use
// in SQL text.
type Tables struct {
	AOI       string
	Polygons  string
	Lines     string
	LinesView string
}

// Stage owns the staging relations of a single density split.
type Stage struct {
	session Session
	names   Tables
	tables  Tables
}

func newStage(session Session, base string) *Stage {
	prefix := stageName(base)
	names := Tables{
		AOI:       prefix + "_aoi",
		Polygons:  prefix + "_poly",
		Lines:     prefix + "_line",
		LinesView: prefix + "_lines_view",
	}
	quote := func(s string) string { return pgx.Identifier{s}.Sanitize() }
	return &Stage{
		session: session,
		names:   names,
		tables: Tables{
			AOI:       quote(names.AOI),
			Polygons:  quote(names.Polygons),
			Lines:     quote(names.Lines),
			LinesView: quote(names.LinesView),
		},
	}
}

func (s *Stage) Tables() Tables {
	return s.tables
}

func (s *Stage) Session() Session {
	return s.session
}

// create replaces any relations left under the staging names.
func (s *Stage) create(ctx context.Context) error {
	if err := s.drop(ctx); err != nil {
		return err
	}
	t := s.tables
	stmts := []string{
		fmt.Sprintf(`CREATE UNLOGGED TABLE %s (id SERIAL PRIMARY KEY, osm_id TEXT, geom GEOMETRY(GEOMETRY, 4326), tags JSONB)`, t.AOI),
		fmt.Sprintf(`CREATE UNLOGGED TABLE %s (id SERIAL PRIMARY KEY, osm_id TEXT, geom GEOMETRY(GEOMETRY, 4326), tags JSONB)`, t.Polygons),
		fmt.Sprintf(`CREATE UNLOGGED TABLE %s (id SERIAL PRIMARY KEY, osm_id TEXT, geom GEOMETRY(GEOMETRY, 4326), tags JSONB)`, t.Lines),
		fmt.Sprintf(`CREATE INDEX ON %s USING GIST (geom)`, t.Polygons),
		fmt.Sprintf(`CREATE INDEX ON %s USING GIST (geom)`, t.Lines),
	}
	for _, stmt := range stmts {
		if err := s.session.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stage) loadAOI(ctx context.Context, aoi geom.Polygon) error {
	return s.session.Insert(ctx, s.names.AOI, []Row{{Geometry: aoi.AsGeometry()}})
}

// loadFeatures routes features to the polygon and line tables. With
// classify unset every feature goes to the polygon table.
func (s *Stage) loadFeatures(ctx context.Context, fc geom.GeoJSONFeatureCollection, classify bool) (polys, lines int, err error) {
	var polyRows, lineRows []Row
	for _, f := range fc {
		row := Row{OsmID: osmID(f), Geometry: f.Geometry}
		if !classify {
			polyRows = append(polyRows, row)
			continue
		}
		row.Tags = Tags(f.Properties)
		switch Classify(row.Tags) {
		case Building:
			polyRows = append(polyRows, row)
		case Barrier:
			lineRows = append(lineRows, row)
		}
	}
	if len(polyRows) > 0 {
		if err = s.session.Insert(ctx, s.names.Polygons, polyRows); err != nil {
			return 0, 0, err
		}
	}
	if len(lineRows) > 0 {
		if err = s.session.Insert(ctx, s.names.Lines, lineRows); err != nil {
			return 0, 0, err
		}
	}
	return len(polyRows), len(lineRows), nil
}

// loadLines stages only the barrier lines of fc.
func (s *Stage) loadLines(ctx context.Context, fc geom.GeoJSONFeatureCollection) (int, error) {
	var rows []Row
	for _, f := range fc {
		tags := Tags(f.Properties)
		if Classify(tags) == Barrier {
			rows = append(rows, Row{OsmID: osmID(f), Geometry: f.Geometry, Tags: tags})
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return len(rows), s.session.Insert(ctx, s.names.Lines, rows)
}

func (s *Stage) createLinesView(ctx context.Context) error {
	t := s.tables
	stmts := []string{
		fmt.Sprintf(`CREATE MATERIALIZED VIEW %s AS
SELECT l.tags, l.geom FROM %s l, (SELECT geom FROM %s LIMIT 1) a
WHERE ST_Intersects(a.geom, l.geom)`, t.LinesView, t.Lines, t.AOI),
		fmt.Sprintf(`CREATE INDEX ON %s USING GIST (geom)`, t.LinesView),
	}
	for _, stmt := range stmts {
		if err := s.session.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// drop removes every staging relation, tolerating ones never created.
func (s *Stage) drop(ctx context.Context) error {
	t := s.tables
	stmts := []string{
		fmt.Sprintf(`DROP MATERIALIZED VIEW IF EXISTS %s`, t.LinesView),
		fmt.Sprintf(`DROP TABLE IF EXISTS %s, %s, %s`, t.AOI, t.Polygons, t.Lines),
	}
	var first error
	for _, stmt := range stmts {
		if err := s.session.Exec(ctx, stmt); err != nil {
			logrus.Errorf("drop staging %s: %s", s.names.AOI, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func osmID(f geom.GeoJSONFeature) any {
	if v, ok := f.Properties["osm_id"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return nil
}
