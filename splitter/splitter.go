// Package splitter dispatches an AOI to a splitting strategy. An AOI made
// of several polygons is split one polygon at a time and the tasks are
// concatenated in input order.
package splitter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"
	"github.com/zhchang/tasksplit/density"
	"github.com/zhchang/tasksplit/geo"
)

// Strategy splits a single polygon into tasks.
type Strategy interface {
	Name() string
	Split(ctx context.Context, aoi geom.Polygon) (geom.GeoJSONFeatureCollection, error)
}

// Square splits into squares of Meters. A non-empty Extract keeps only
// the squares containing one of its features.
type Square struct {
	Meters  float64
	Extract geom.GeoJSONFeatureCollection
}

func (Square) Name() string {
	return "square"
}

func (s Square) Split(ctx context.Context, aoi geom.Polygon) (geom.GeoJSONFeatureCollection, error) {
	return geo.SplitBySquare(aoi, s.Meters, s.Extract)
}

// Features splits along the lines and polygon rings of Features.
type Features struct {
	Features geom.GeoJSONFeatureCollection
}

func (Features) Name() string {
	return "features"
}

func (f Features) Split(ctx context.Context, aoi geom.Polygon) (geom.GeoJSONFeatureCollection, error) {
	return geo.SplitByFeatures(aoi, f.Features)
}

// Density splits into tasks of about Request.TargetCount buildings.
type Density struct {
	Orchestrator *density.Orchestrator
	Request      density.Request
}

func (Density) Name() string {
	return "density"
}

func (d Density) Split(ctx context.Context, aoi geom.Polygon) (geom.GeoJSONFeatureCollection, error) {
	if d.Orchestrator == nil {
		return nil, fmt.Errorf("%w: density split needs a database", geo.ErrValidation)
	}
	return d.Orchestrator.Split(ctx, aoi, d.Request)
}

type Splitter struct {
	concurrency int
	outfile     string
}

type Option func(*Splitter)

// WithConcurrency bounds how many sub-AOIs are split at once. Zero splits
// all of them at once.
func WithConcurrency(n int) Option {
	return func(s *Splitter) {
		s.concurrency = n
	}
}

// WithOutfile writes the tasks to path. For a multi polygon AOI the tasks
// of sub-AOI i are also written to <stem>_<i><ext>.
func WithOutfile(path string) Option {
	return func(s *Splitter) {
		s.outfile = path
	}
}

func New(options ...Option) *Splitter {
	s := &Splitter{}
	for _, option := range options {
		option(s)
	}
	return s
}

// Split normalizes aoi and runs strategy over each of its polygons.
func (s *Splitter) Split(ctx context.Context, aoi any, strategy Strategy) (geom.GeoJSONFeatureCollection, error) {
	var err error
	var fc geom.GeoJSONFeatureCollection
	if fc, err = geo.ParseFeatureCollection(aoi); err != nil {
		return nil, err
	}
	var polys []geom.Polygon
	if polys, err = geo.Polygons(fc); err != nil {
		return nil, err
	}

	start := time.Now()
	var tasks geom.GeoJSONFeatureCollection
	if len(polys) == 1 {
		if tasks, err = strategy.Split(ctx, polys[0]); err != nil {
			return nil, err
		}
	} else if tasks, err = s.splitEach(ctx, polys, strategy); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = geom.GeoJSONFeatureCollection{}
	}
	logrus.Infof("%s split of %d aoi polygons produced %d tasks in %s",
		strategy.Name(), len(polys), len(tasks), time.Since(start).Round(time.Millisecond))

	if s.outfile != "" {
		if err = geo.WriteFeatureCollection(s.outfile, tasks); err != nil {
			return nil, fmt.Errorf("write %s: %w", s.outfile, err)
		}
	}
	return tasks, nil
}

func (s *Splitter) splitEach(ctx context.Context, polys []geom.Polygon, strategy Strategy) (geom.GeoJSONFeatureCollection, error) {
	results, errs, err := newFan(ctx, s.concurrency).out(polys, strategy).in()
	if err != nil {
		return nil, err
	}
	tasks := geom.GeoJSONFeatureCollection{}
	for i := range results {
		if errs[i] != nil {
			return nil, fmt.Errorf("aoi polygon %d: %w", i, errs[i])
		}
		if s.outfile != "" {
			path := partPath(s.outfile, i)
			if err = geo.WriteFeatureCollection(path, results[i]); err != nil {
				return nil, fmt.Errorf("write %s: %w", path, err)
			}
		}
		tasks = append(tasks, results[i]...)
	}
	return tasks, nil
}

func partPath(outfile string, i int) string {
	ext := filepath.Ext(outfile)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(outfile, ext), i, ext)
}
