package operators

import (
	"math"
	"sort"
	"time"

	"github.com/notargets/meshadapt/mesh"
)

type metricEdge struct {
	key    mesh.EdgeKey
	length float64
}

// edgesBy returns the edges whose metric length passes keep, sorted
// shortest first or longest first
func (e *Engine) edgesBy(keep func(l float64) bool, longestFirst bool) []metricEdge {
	var out []metricEdge
	for _, ek := range e.Mesh.Edges() {
		ev := ek.Vertices()
		if l := e.edgeLength(ev[0], ev[1]); keep(l) {
			out = append(out, metricEdge{key: ek, length: l})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if longestFirst {
			return out[i].length > out[j].length
		}
		return out[i].length < out[j].length
	})
	return out
}

// Coarsen collapses edges shorter than MinEdgeLength. Each pass collapses
// an independent set of edges, so no cavity is visited twice before the
// mesh is compacted. Passes repeat until one collapses nothing.
func (e *Engine) Coarsen() (collapsed int, err error) {
	if err = e.checkLinear(); err != nil {
		return
	}
	start := time.Now()
	for {
		n := e.coarsenPass()
		collapsed += n
		if n == 0 {
			break
		}
	}
	e.logger().Info("coarsened", "edges", collapsed, "seconds", time.Since(start).Seconds())
	return
}

func (e *Engine) coarsenPass() (collapsed int) {
	var (
		m       = e.Mesh
		short   = e.edgesBy(func(l float64) bool { return l < e.Config.MinEdgeLength }, false)
		up      = m.VertexUpward()
		layer   = layerVertices(m)
		touched = make([]bool, len(m.Vertices))
	)
	for _, me := range short {
		ev := me.key.Vertices()
		a, b := ev[0], ev[1]
		if touched[a] || touched[b] {
			continue
		}
		for _, dir := range [2][2]int{{a, b}, {b, a}} {
			if cavVerts, ok := e.collapse(dir[0], dir[1], up, layer, e.coarsenThreshold); ok {
				for _, v := range cavVerts {
					touched[v] = true
				}
				collapsed++
				break
			}
		}
	}
	m.Compact()
	return
}

// coarsenThreshold accepts a collapse that keeps the cavity at least as
// good as it was, or at least GoodQuality
func (e *Engine) coarsenThreshold(oldWorst float64) float64 {
	return math.Min(oldWorst, e.Config.GoodQuality)
}

// improveThreshold accepts only a strict improvement
func improveThreshold(oldWorst float64) float64 {
	return math.Nextafter(oldWorst, math.Inf(1))
}

// collapse merges vertex a onto vertex b when the result passes the
// checks below, and returns every vertex of the cavity of a on success.
// The elements holding both a and b are removed; a is left unreferenced.
func (e *Engine) collapse(a, b int, up [][]int, layer []bool, threshold func(float64) float64) (cavVerts []int, ok bool) {
	m := e.Mesh
	if layer[a] || (!e.relaxed && !e.Config.CoarsenLayer && layer[b]) {
		return nil, false
	}
	if e.Model != nil && !e.Model.InClosure(m.Classification[a], m.Classification[b]) {
		return nil, false
	}
	cav := liveCavity(m, up[a])
	if len(cav) == 0 || !allSimplices(m, cav) {
		return nil, false
	}
	var removed, kept []int
	for _, el := range cav {
		if contains(m.Elements[el], b) {
			removed = append(removed, el)
		} else {
			kept = append(kept, el)
		}
	}
	if len(removed) == 0 || len(kept) == 0 {
		return nil, false
	}
	if e.wouldDuplicate(a, b, kept, up) {
		return nil, false
	}
	oldWorst := e.worst(cav)
	for _, el := range kept {
		for _, v := range m.Elements[el] {
			if v != a && v != b && e.edgeLength(v, b) > e.Config.MaxEdgeLength {
				return nil, false
			}
		}
	}

	for _, el := range kept {
		replaceVertex(m.Elements[el], a, b)
	}
	newWorst := e.worst(kept)
	if newWorst <= e.Config.ValidQuality || newWorst < threshold(oldWorst) {
		for _, el := range kept {
			replaceVertex(m.Elements[el], b, a)
		}
		return nil, false
	}
	seen := make(map[int]bool)
	for _, el := range cav {
		for _, v := range m.Elements[el] {
			if !seen[v] {
				seen[v] = true
				cavVerts = append(cavVerts, v)
			}
		}
	}
	cavVerts = append(cavVerts, a)
	for _, el := range removed {
		m.RemoveElement(el)
	}
	return cavVerts, true
}

// wouldDuplicate reports whether moving a onto b turns an element of kept
// into a copy of a live element already using b
func (e *Engine) wouldDuplicate(a, b int, kept []int, up [][]int) bool {
	m := e.Mesh
	existing := make(map[string]bool)
	for _, el := range liveCavity(m, up[b]) {
		existing[sortedKey(m.Elements[el], -1, -1)] = true
	}
	for _, el := range kept {
		if existing[sortedKey(m.Elements[el], a, b)] {
			return true
		}
	}
	return false
}

// sortedKey is the vertex set of verts with from replaced by to
func sortedKey(verts []int, from, to int) string {
	s := make([]int, len(verts))
	for i, v := range verts {
		if v == from {
			v = to
		}
		s[i] = v
	}
	sort.Ints(s)
	key := make([]byte, 0, 8*len(s))
	for _, v := range s {
		for k := 0; k < 8; k++ {
			key = append(key, byte(v>>(8*k)))
		}
	}
	return string(key)
}

func replaceVertex(verts []int, from, to int) {
	for i, v := range verts {
		if v == from {
			verts[i] = to
		}
	}
}

// CoarsenLayer would coarsen prism stacks as a unit. Layer stack coarsening
// is not implemented; the call only reports that it was requested.
func (e *Engine) CoarsenLayer() (int, error) {
	if err := e.checkLinear(); err != nil {
		return 0, err
	}
	e.logger().Warn("layer coarsening requested but not available; layer left as is")
	return 0, nil
}
