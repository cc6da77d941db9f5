// Package density splits an AOI into tasks holding a similar number of
// buildings. Buildings and barrier lines are staged in PostGIS and a
// Balancer turns the staged data into task polygons.
package density

import (
	"context"
	"errors"

	"github.com/peterstace/simplefeatures/geom"
)

var ErrSplitExecution = errors.New("split execution failed")

// Row is one feature staged for the balancer. Tags is nil for caller
// supplied polygons.
type Row struct {
	OsmID    any
	Geometry geom.Geometry
	Tags     map[string]any
}

// Store hands out database sessions.
type Store interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is a single connection. Staging tables created through a
// session are visible to every query issued on it.
type Session interface {
	Exec(ctx context.Context, sql string, args ...any) error
	// Insert writes rows into the unquoted table name.
	Insert(ctx context.Context, table string, rows []Row) error
	// QueryJSON runs a query returning a single JSON value. Named
	// arguments are referenced as @name.
	QueryJSON(ctx context.Context, sql string, args map[string]any) ([]byte, error)
	Release()
}
