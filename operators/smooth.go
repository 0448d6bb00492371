package operators

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/shape"
)

const maxFixPasses = 3

// relaxation factors tried in turn when moving a vertex toward its target
var relaxation = [...]float64{1, 0.5, 0.25}

// trySmooth moves vertex v toward the average of its neighbours, projected
// onto its model entity. The move is kept at the first relaxation factor
// whose cavity quality reaches threshold(old cavity quality).
func (e *Engine) trySmooth(v int, up [][]int, layer []bool, threshold func(float64) float64) bool {
	m := e.Mesh
	if layer[v] || m.Classification[v].Dim == 0 {
		return false
	}
	cav := liveCavity(m, up[v])
	if len(cav) == 0 || !allSimplices(m, cav) {
		return false
	}
	var (
		sum  r3.Vec
		n    int
		seen = map[int]bool{v: true}
	)
	for _, el := range cav {
		for _, u := range m.Elements[el] {
			if !seen[u] {
				seen[u] = true
				sum = r3.Add(sum, m.Vertices[u])
				n++
			}
		}
	}
	target := e.projectTo(v, r3.Scale(1/float64(n), sum))
	return e.tryMove(v, cav, target, threshold)
}

// tryMove relocates vertex v along the segment to target, keeping the
// first relaxed position that is acceptable
func (e *Engine) tryMove(v int, cav []int, target r3.Vec, threshold func(float64) float64) bool {
	m := e.Mesh
	old := m.Vertices[v]
	oldWorst := e.worst(cav)
	for _, alpha := range relaxation {
		m.Vertices[v] = e.projectTo(v, r3.Add(old, r3.Scale(alpha, r3.Sub(target, old))))
		if w := e.worst(cav); w > e.Config.ValidQuality && w >= threshold(oldWorst) {
			return true
		}
	}
	m.Vertices[v] = old
	return false
}

// FixElementShapes works on the simplices below GoodQuality, worst first.
// A bad element is improved by smoothing its vertices or, failing that, by
// collapsing one of its edges. Every accepted change strictly
// raises the worst quality of the region it touches.
func (e *Engine) FixElementShapes() (fixed int, err error) {
	if err = e.checkLinear(); err != nil {
		return
	}
	start := time.Now()
	for pass := 0; pass < maxFixPasses; pass++ {
		n := e.fixPass()
		fixed += n
		if n == 0 {
			break
		}
	}
	stats := shape.QualityStats(e.Mesh, e.Field, e.Config.GoodQuality)
	e.logger().Info("fixed shapes", "operations", fixed, "still bad", stats.Below,
		"worst", stats.Worst, "seconds", time.Since(start).Seconds())
	return
}

type scored struct {
	el int
	q  float64
}

func (e *Engine) fixPass() (fixed int) {
	var (
		m       = e.Mesh
		up      = m.VertexUpward()
		layer   = layerVertices(m)
		touched = make([]bool, len(m.Vertices))
		bad     []scored
	)
	for _, el := range shape.LiveElements(m) {
		if !m.IsSimplex(el) {
			continue
		}
		if q := shape.ElementQuality(m, e.Field, el); q < e.Config.GoodQuality {
			bad = append(bad, scored{el, q})
		}
	}
	sort.SliceStable(bad, func(i, j int) bool { return bad[i].q < bad[j].q })

outer:
	for _, b := range bad {
		if !m.IsAlive(b.el) {
			continue
		}
		verts := append([]int(nil), m.Elements[b.el]...)
		for _, v := range verts {
			if touched[v] {
				continue outer
			}
		}
		var smoothed bool
		for _, v := range verts {
			if e.trySmooth(v, up, layer, improveThreshold) {
				smoothed = true
			}
		}
		if smoothed {
			fixed++
			continue
		}
		for _, ed := range e.shortestEdges(verts) {
			for _, dir := range [2][2]int{{ed[0], ed[1]}, {ed[1], ed[0]}} {
				if cavVerts, ok := e.collapse(dir[0], dir[1], up, layer, improveThreshold); ok {
					for _, v := range cavVerts {
						touched[v] = true
					}
					fixed++
					continue outer
				}
			}
		}
	}
	m.Compact()
	return
}

// shortestEdges returns the edges among verts, shortest metric length first
func (e *Engine) shortestEdges(verts []int) (edges [][2]int) {
	for i := 0; i < len(verts); i++ {
		for j := i + 1; j < len(verts); j++ {
			edges = append(edges, [2]int{verts[i], verts[j]})
		}
	}
	lengths := make([]float64, len(edges))
	for i, ed := range edges {
		lengths[i] = e.edgeLength(ed[0], ed[1])
	}
	idx := make([]int, len(edges))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return lengths[idx[i]] < lengths[idx[j]] })
	out := make([][2]int, len(edges))
	for i, k := range idx {
		out[i] = edges[k]
	}
	return out
}

// ImproveQualities makes up to SmoothPasses passes of vertex smoothing over
// the whole mesh, keeping only moves that raise the worst quality around
// the vertex.
func (e *Engine) ImproveQualities() (moved int, err error) {
	if err = e.checkLinear(); err != nil {
		return
	}
	m := e.Mesh
	for pass := 0; pass < e.Config.SmoothPasses; pass++ {
		var (
			up    = m.VertexUpward()
			layer = layerVertices(m)
			n     int
		)
		for v := range m.Vertices {
			if len(up[v]) > 0 && e.trySmooth(v, up, layer, improveThreshold) {
				n++
			}
		}
		moved += n
		if n == 0 {
			break
		}
	}
	e.logger().Info("improved qualities", "moves", moved,
		"worst", shape.WorstQuality(m, e.Field, shape.LiveElements(m)))
	return
}
