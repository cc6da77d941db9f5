package splitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/peterstace/simplefeatures/geom"
)

type job struct {
	index int
	aoi   geom.Polygon
}

// fan runs one strategy per sub-AOI on at most concurrency goroutines
// (zero means one per sub-AOI). Results and errors are indexed like aois.
type fan struct {
	wg          sync.WaitGroup
	ctx         context.Context
	concurrency int
	jobs        chan job
	results     []geom.GeoJSONFeatureCollection
	errors      []error
	done        []bool
}

func newFan(ctx context.Context, concurrency int) *fan {
	return &fan{ctx: ctx, concurrency: concurrency, jobs: make(chan job)}
}

func (f *fan) out(aois []geom.Polygon, strategy Strategy) *fan {
	f.results = make([]geom.GeoJSONFeatureCollection, len(aois))
	f.errors = make([]error, len(aois))
	f.done = make([]bool, len(aois))
	workers := f.concurrency
	if workers <= 0 || workers > len(aois) {
		workers = len(aois)
	}
	for i := 0; i < workers; i++ {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			for {
				select {
				case j, ok := <-f.jobs:
					if !ok || f.ctx.Err() != nil {
						return
					}
					f.results[j.index], f.errors[j.index] = strategy.Split(f.ctx, j.aoi)
					f.done[j.index] = true
				case <-f.ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		defer close(f.jobs)
		for i, aoi := range aois {
			select {
			case f.jobs <- job{i, aoi}:
			case <-f.ctx.Done():
				return
			}
		}
	}()
	return f
}

// in waits for the workers. Sub-AOIs never split because the context
// ended are reported through the returned error; a context ending after
// every sub-AOI was split is not an error.
func (f *fan) in() ([]geom.GeoJSONFeatureCollection, []error, error) {
	f.wg.Wait()
	for i, done := range f.done {
		if !done {
			return nil, nil, fmt.Errorf("aoi polygon %d not split: %w", i, context.Cause(f.ctx))
		}
	}
	return f.results, f.errors, nil
}
