package density

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"
	"github.com/zhchang/tasksplit/extract"
	"github.com/zhchang/tasksplit/geo"
)

const defaultStagePrefix = "tasksplit"

// Request describes one density split.
//
// Features are classified by their tags into buildings and barrier lines.
// When Features is nil they are fetched from the Orchestrator extractor.
// Polygons, when set, are staged as buildings verbatim and only barrier
// lines are extracted.
type Request struct {
	TargetCount int
	Features    geom.GeoJSONFeatureCollection
	Polygons    geom.GeoJSONFeatureCollection
	Balancer    Balancer
}

// Orchestrator stages the data of a density split, runs the balancer and
// always tears the staging down again.
type Orchestrator struct {
	store     Store
	extractor extract.Extractor
	balancer  Balancer
	prefix    string
}

type Option func(*Orchestrator)

func WithExtractor(e extract.Extractor) Option {
	return func(o *Orchestrator) {
		o.extractor = e
	}
}

// WithBalancer replaces the default SQLBalancer.
func WithBalancer(b Balancer) Option {
	return func(o *Orchestrator) {
		o.balancer = b
	}
}

// WithStagePrefix sets the base name of the staging relations.
func WithStagePrefix(prefix string) Option {
	return func(o *Orchestrator) {
		o.prefix = prefix
	}
}

func New(store Store, options ...Option) *Orchestrator {
	o := &Orchestrator{store: store, balancer: SQLBalancer{}, prefix: defaultStagePrefix}
	for _, option := range options {
		option(o)
	}
	return o
}

func (o *Orchestrator) validate(req Request) error {
	switch {
	case req.TargetCount < 0:
		return fmt.Errorf("%w: target building count must not be negative, got %d", geo.ErrValidation, req.TargetCount)
	case req.TargetCount == 0 && req.Balancer == nil:
		return fmt.Errorf("%w: target building count must be positive without a custom balancer", geo.ErrValidation)
	}
	if req.Features == nil && o.extractor == nil {
		return fmt.Errorf("%w: no features given and no extractor configured", geo.ErrValidation)
	}
	if o.store == nil {
		return fmt.Errorf("%w: no database configured", geo.ErrValidation)
	}
	return nil
}

func (o *Orchestrator) features(ctx context.Context, aoi geom.Polygon, req Request) (geom.GeoJSONFeatureCollection, error) {
	if req.Features != nil {
		return req.Features, nil
	}
	category := extract.All
	if req.Polygons != nil {
		category = extract.Lines
	}
	fc, err := o.extractor.Extract(ctx, aoi, category)
	if err != nil {
		if errors.Is(err, extract.ErrExtraction) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", extract.ErrExtraction, err)
	}
	return fc, nil
}

// Split partitions the AOI into tasks of about req.TargetCount buildings.
func (o *Orchestrator) Split(ctx context.Context, aoi geom.Polygon, req Request) (fc geom.GeoJSONFeatureCollection, err error) {
	if err = o.validate(req); err != nil {
		return nil, err
	}
	var features geom.GeoJSONFeatureCollection
	if features, err = o.features(ctx, aoi, req); err != nil {
		return nil, err
	}

	var session Session
	if session, err = o.store.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: acquire session: %w", ErrSplitExecution, err)
	}
	defer session.Release()

	start := time.Now()
	stage := newStage(session, o.prefix)
	defer func() {
		if derr := stage.drop(context.WithoutCancel(ctx)); derr != nil && err == nil {
			fc, err = nil, fmt.Errorf("%w: drop staging: %w", ErrSplitExecution, derr)
		}
	}()
	if err = o.load(ctx, stage, aoi, features, req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSplitExecution, err)
	}

	balancer := req.Balancer
	if balancer == nil {
		balancer = o.balancer
	}
	if fc, err = balancer.Partition(ctx, stage, req.TargetCount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSplitExecution, err)
	}
	logrus.Infof("density split into %d tasks of ~%d buildings in %s", len(fc), req.TargetCount, time.Since(start).Round(time.Millisecond))
	return fc, nil
}

func (o *Orchestrator) load(ctx context.Context, stage *Stage, aoi geom.Polygon, features geom.GeoJSONFeatureCollection, req Request) error {
	var err error
	if err = stage.create(ctx); err != nil {
		return fmt.Errorf("create staging: %w", err)
	}
	if err = stage.loadAOI(ctx, aoi); err != nil {
		return fmt.Errorf("load aoi: %w", err)
	}
	var polys, lines int
	if req.Polygons != nil {
		if polys, _, err = stage.loadFeatures(ctx, req.Polygons, false); err != nil {
			return fmt.Errorf("load polygons: %w", err)
		}
		if lines, err = stage.loadLines(ctx, features); err != nil {
			return fmt.Errorf("load lines: %w", err)
		}
	} else if polys, lines, err = stage.loadFeatures(ctx, features, true); err != nil {
		return fmt.Errorf("load features: %w", err)
	}
	logrus.Debugf("staged %d buildings and %d lines", polys, lines)
	if err = stage.createLinesView(ctx); err != nil {
		return fmt.Errorf("create lines view: %w", err)
	}
	return nil
}
