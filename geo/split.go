package geo

import (
	"fmt"
	"math"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/sirupsen/logrus"
)

// SmallCellRatio is the fraction of a full grid cell below which a clipped
// cell is folded into a neighbour.
const SmallCellRatio = 0.35

// Cell is a clipped grid cell. ID orders cells for tie breaking and stays
// with a cell when smaller cells are merged into it.
type Cell struct {
	ID       int
	Geometry geom.Geometry
	Area     float64
}

// SplitBySquare lays a lattice of meters sized squares over the AOI
// bounding box, clips every square to the AOI and merges slivers into
// their neighbours. When extract is non-empty only the cells containing
// at least one extract geometry are kept.
func SplitBySquare(aoi geom.Polygon, meters float64, extract geom.GeoJSONFeatureCollection) (geom.GeoJSONFeatureCollection, error) {
	if math.IsNaN(meters) || math.IsInf(meters, 0) || meters <= 0 {
		return nil, fmt.Errorf("%w: square size must be positive, got %v", ErrValidation, meters)
	}
	bb := aoi.Envelope()
	if bb.IsEmpty() {
		return nil, ErrEmptyAOI
	}
	var _min, _max geom.XY
	var full bool
	if _min, full = bb.Min().XY(); !full {
		return nil, ErrEmptyAOI
	}
	if _max, full = bb.Max().XY(); !full {
		return nil, ErrEmptyAOI
	}
	dLat, dLon := MetersToDegrees(meters, (_min.Y+_max.Y)/2)

	var err error
	var cells []Cell
	if cells, err = gridCells(aoi, _min, _max, dLon, dLat); err != nil {
		return nil, err
	}
	cells = MergeSmallCells(cells, SmallCellRatio*dLat*dLon)
	if len(extract) > 0 {
		merged := len(cells)
		if cells, err = cellsHolding(cells, extract); err != nil {
			return nil, err
		}
		if len(cells) == 0 {
			logrus.Warnf("none of %d cells holds an extract feature", merged)
		}
	}

	fc := geom.GeoJSONFeatureCollection{}
	for _, c := range cells {
		fc = append(fc, TaskFeature(c.Geometry))
	}
	logrus.Debugf("square split of %vm produced %d cells", meters, len(fc))
	return fc, nil
}

// cellsHolding keeps the cells that contain at least one of the extract
// geometries.
func cellsHolding(cells []Cell, extract geom.GeoJSONFeatureCollection) ([]Cell, error) {
	var kept []Cell
	for _, c := range cells {
		env := c.Geometry.Envelope()
		for _, f := range extract {
			if f.Geometry.IsEmpty() || !env.Intersects(f.Geometry.Envelope()) {
				continue
			}
			within, err := geom.Within(f.Geometry, c.Geometry)
			if err != nil {
				return nil, fmt.Errorf("extract feature in cell %d: %w", c.ID, err)
			}
			if within {
				kept = append(kept, c)
				break
			}
		}
	}
	return kept, nil
}

func lattice(from, to, step float64) []float64 {
	n := int(math.Ceil((to - from) / step))
	if n < 1 {
		n = 1
	}
	// every line is derived from its index so neighbouring cells share
	// bit-identical edges
	lines := make([]float64, n+1)
	for i := range lines {
		lines[i] = from + float64(i)*step
	}
	return lines
}

func rectangle(x0, y0, x1, y1 float64) geom.Polygon {
	coords := []float64{x0, y0, x1, y0, x1, y1, x0, y1, x0, y0}
	return geom.NewPolygon([]geom.LineString{geom.NewLineString(geom.NewSequence(coords, geom.DimXY))})
}

func gridCells(aoi geom.Polygon, _min, _max geom.XY, dx, dy float64) ([]Cell, error) {
	xs := lattice(_min.X, _max.X, dx)
	ys := lattice(_min.Y, _max.Y, dy)
	var err error
	var g geom.Geometry
	var cells []Cell
	for i := 0; i+1 < len(xs); i++ {
		for j := 0; j+1 < len(ys); j++ {
			rect := rectangle(xs[i], ys[j], xs[i+1], ys[j+1])
			if g, err = geom.Intersection(aoi.AsGeometry(), rect.AsGeometry()); err != nil {
				return nil, fmt.Errorf("clip cell %d,%d: %w", i, j, err)
			}
			// a concave AOI can cut one square into several pieces
			for _, p := range PolygonParts(g) {
				pg := p.AsGeometry()
				area := pg.Area()
				if area <= 0 {
					continue
				}
				cells = append(cells, Cell{ID: len(cells), Geometry: pg, Area: area})
			}
		}
	}
	return cells, nil
}

// MergeSmallCells folds every cell whose area is below threshold into the
// neighbour sharing the longest boundary with it, repeating until no
// small cell has a neighbour. Cells must be ordered by ID. Near ties on
// boundary length go to the neighbour with the lowest ID.
func MergeSmallCells(cells []Cell, threshold float64) []Cell {
	live := make([]Cell, len(cells))
	copy(live, cells)
	for {
		merged := false
		for i := 0; i < len(live); i++ {
			if live[i].Area >= threshold {
				continue
			}
			j := bestNeighbour(live, i)
			if j < 0 {
				continue
			}
			u, err := geom.Union(live[j].Geometry, live[i].Geometry)
			if err != nil {
				logrus.Warnf("merge cell %d into %d: %v", live[i].ID, live[j].ID, err)
				continue
			}
			live[j].Geometry = u
			live[j].Area = u.Area()
			live = append(live[:i], live[i+1:]...)
			i--
			merged = true
		}
		if !merged {
			return live
		}
	}
}

func bestNeighbour(cells []Cell, i int) int {
	best, bestLen := -1, Tolerance
	env := cells[i].Geometry.Envelope()
	for j := range cells {
		if j == i || !env.Intersects(cells[j].Geometry.Envelope()) {
			continue
		}
		if l := sharedBoundary(cells[i].Geometry, cells[j].Geometry); l > bestLen+Tolerance || (best < 0 && l > bestLen) {
			best, bestLen = j, l
		}
	}
	return best
}

func sharedBoundary(a, b geom.Geometry) float64 {
	g, err := geom.Intersection(a.Boundary(), b.Boundary())
	if err != nil {
		return 0
	}
	return g.Length()
}
