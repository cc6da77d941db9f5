package geo

import (
	"fmt"
	"math"
	"sort"

	"github.com/peterstace/simplefeatures/geom"
)

type segment struct {
	a, b geom.XY
}

func cross(a, b geom.XY) float64 {
	return a.X*b.Y - a.Y*b.X
}

func segmentsOf(ls geom.LineString) []segment {
	seq := ls.Coordinates()
	var segs []segment
	for i := 1; i < seq.Length(); i++ {
		a, b := seq.GetXY(i-1), seq.GetXY(i)
		if a != b {
			segs = append(segs, segment{a, b})
		}
	}
	return segs
}

// noded unions the lines so that every crossing becomes a shared vertex
// with one exact coordinate.
func noded(lines []geom.LineString) ([]segment, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	var err error
	var g geom.Geometry
	if g, err = geom.UnaryUnion(geom.NewMultiLineString(lines).AsGeometry()); err != nil {
		return nil, fmt.Errorf("node linework: %w", err)
	}
	var segs []segment
	for _, ls := range Linework(g) {
		segs = append(segs, segmentsOf(ls)...)
	}
	return segs, nil
}

type halfEdge struct {
	from, to int
	angle    float64
	removed  bool
	face     int
}

// planarGraph stores each undirected edge as the pair of half edges 2k
// and 2k+1.
type planarGraph struct {
	verts []geom.XY
	index map[geom.XY]int
	edges []halfEdge
	out   [][]int
	seen  map[[2]int]bool
}

func newPlanarGraph() *planarGraph {
	return &planarGraph{index: map[geom.XY]int{}, seen: map[[2]int]bool{}}
}

func (g *planarGraph) vertex(p geom.XY) int {
	if i, ok := g.index[p]; ok {
		return i
	}
	g.index[p] = len(g.verts)
	g.verts = append(g.verts, p)
	g.out = append(g.out, nil)
	return len(g.verts) - 1
}

func (g *planarGraph) addEdge(a, b geom.XY) {
	u, v := g.vertex(a), g.vertex(b)
	if u == v {
		return
	}
	key := [2]int{min(u, v), max(u, v)}
	if g.seen[key] {
		return
	}
	g.seen[key] = true
	d := b.Sub(a)
	g.out[u] = append(g.out[u], len(g.edges))
	g.edges = append(g.edges, halfEdge{from: u, to: v, angle: math.Atan2(d.Y, d.X)})
	g.out[v] = append(g.out[v], len(g.edges))
	g.edges = append(g.edges, halfEdge{from: v, to: u, angle: math.Atan2(-d.Y, -d.X)})
}

func twin(e int) int {
	return e ^ 1
}

func (g *planarGraph) remove(e int) {
	g.edges[e].removed = true
	g.edges[twin(e)].removed = true
}

func (g *planarGraph) degree(v int) int {
	n := 0
	for _, e := range g.out[v] {
		if !g.edges[e].removed {
			n++
		}
	}
	return n
}

// prune strips dangling edges until every vertex has degree zero or at
// least two.
func (g *planarGraph) prune() {
	var queue []int
	for v := range g.verts {
		if g.degree(v) == 1 {
			queue = append(queue, v)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, e := range g.out[v] {
			if g.edges[e].removed {
				continue
			}
			g.remove(e)
			if w := g.edges[e].to; g.degree(w) == 1 {
				queue = append(queue, w)
			}
		}
	}
}

// sortEdges drops removed half edges and orders the rest counter
// clockwise around their origin.
func (g *planarGraph) sortEdges() {
	for v, list := range g.out {
		live := list[:0]
		for _, e := range list {
			if !g.edges[e].removed {
				live = append(live, e)
			}
		}
		sort.Slice(live, func(i, j int) bool {
			return g.edges[live[i]].angle < g.edges[live[j]].angle
		})
		g.out[v] = live
	}
}

// next returns the half edge following e around the face on its left.
func (g *planarGraph) next(e int) int {
	list := g.out[g.edges[e].to]
	back := twin(e)
	for k, f := range list {
		if f == back {
			return list[(k-1+len(list))%len(list)]
		}
	}
	return -1
}

// faces traces every face of the graph, removing cut edges until each
// edge separates two different faces.
func (g *planarGraph) faces() [][]int {
	for {
		g.prune()
		g.sortEdges()
		var faces [][]int
		for e := range g.edges {
			g.edges[e].face = -1
		}
		for e := range g.edges {
			if g.edges[e].removed || g.edges[e].face >= 0 {
				continue
			}
			id := len(faces)
			var ring []int
			for f := e; f >= 0 && g.edges[f].face < 0; f = g.next(f) {
				g.edges[f].face = id
				ring = append(ring, f)
			}
			faces = append(faces, ring)
		}
		cut := false
		for e := 0; e < len(g.edges); e += 2 {
			if !g.edges[e].removed && g.edges[e].face == g.edges[e+1].face {
				g.remove(e)
				cut = true
			}
		}
		if !cut {
			return faces
		}
	}
}

// components labels the vertices of each connected part of the graph.
func (g *planarGraph) components() []int {
	comp := make([]int, len(g.verts))
	for i := range comp {
		comp[i] = -1
	}
	n := 0
	for v := range g.verts {
		if comp[v] >= 0 {
			continue
		}
		stack := []int{v}
		comp[v] = n
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, e := range g.out[u] {
				if w := g.edges[e].to; comp[w] < 0 {
					comp[w] = n
					stack = append(stack, w)
				}
			}
		}
		n++
	}
	return comp
}

type ring struct {
	coords    []float64
	pts       []geom.XY
	area      float64
	component int
}

func (g *planarGraph) ring(face []int, comp []int) ring {
	r := ring{component: comp[g.edges[face[0]].from]}
	for _, e := range face {
		p := g.verts[g.edges[e].from]
		r.pts = append(r.pts, p)
		r.coords = append(r.coords, p.X, p.Y)
	}
	first := r.pts[0]
	r.coords = append(r.coords, first.X, first.Y)
	for i := range r.pts {
		a, b := r.pts[i], r.pts[(i+1)%len(r.pts)]
		r.area += cross(a, b)
	}
	r.area /= 2
	return r
}

func (r ring) lineString() geom.LineString {
	return geom.NewLineString(geom.NewSequence(r.coords, geom.DimXY))
}

func (r ring) contains(p geom.XY) bool {
	in := false
	for i, j := 0, len(r.pts)-1; i < len(r.pts); j, i = i, i+1 {
		a, b := r.pts[i], r.pts[j]
		if (a.Y > p.Y) != (b.Y > p.Y) && p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
	}
	return in
}

// Polygonize returns the bounded faces of the planar arrangement formed
// by lines. Dangling and cut edges do not bound any face. A connected
// part of the arrangement lying inside a face becomes a hole of it.
func Polygonize(lines []geom.LineString) ([]geom.Polygon, error) {
	segs, err := noded(lines)
	if err != nil {
		return nil, err
	}
	g := newPlanarGraph()
	for _, s := range segs {
		g.addEdge(s.a, s.b)
	}
	faces := g.faces()
	comp := g.components()

	var shells, holes []ring
	for _, f := range faces {
		if len(f) < 3 {
			continue
		}
		r := g.ring(f, comp)
		switch {
		case r.area > 0:
			shells = append(shells, r)
		case r.area < 0:
			holes = append(holes, r)
		}
	}
	inner := make([][]geom.LineString, len(shells))
	for _, h := range holes {
		owner := -1
		for i, s := range shells {
			if s.component == h.component || !s.contains(h.pts[0]) {
				continue
			}
			if owner < 0 || s.area < shells[owner].area {
				owner = i
			}
		}
		if owner >= 0 {
			inner[owner] = append(inner[owner], h.lineString())
		}
	}
	polys := make([]geom.Polygon, 0, len(shells))
	for i, s := range shells {
		rings := append([]geom.LineString{s.lineString()}, inner[i]...)
		polys = append(polys, geom.NewPolygon(rings))
	}
	return polys, nil
}
