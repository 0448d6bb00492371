package operators

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/mesh"
)

// Refine splits edges longer than MaxEdgeLength at their midpoints, longest
// first. Edges of layer elements are never split. Each pass splits an
// independent set of edges and passes repeat until one splits nothing or
// maxRefinePasses is reached.
func (e *Engine) Refine() (split int, err error) {
	if err = e.checkLinear(); err != nil {
		return
	}
	start := time.Now()
	for pass := 0; pass < maxRefinePasses; pass++ {
		n := e.refinePass()
		split += n
		if n == 0 {
			break
		}
	}
	e.logger().Info("refined", "edges", split, "seconds", time.Since(start).Seconds())
	return
}

// maxRefinePasses bounds Refine; the outer adaptation loop picks up any
// edges still too long
const maxRefinePasses = 10

func (e *Engine) refinePass() (split int) {
	var (
		m       = e.Mesh
		long    = e.edgesBy(func(l float64) bool { return l > e.Config.MaxEdgeLength }, true)
		up      = m.VertexUpward()
		layer   = layerVertices(m)
		touched = make([]bool, len(m.Vertices))
	)
	for _, me := range long {
		ev := me.key.Vertices()
		a, b := ev[0], ev[1]
		if touched[a] || touched[b] {
			continue
		}
		if !e.relaxed && !e.Config.RefineLayer && (layer[a] || layer[b]) {
			continue
		}
		cav := e.edgeCavity(a, b, up)
		if len(cav) == 0 || !allSimplices(m, cav) {
			continue
		}
		for _, el := range cav {
			for _, v := range m.Elements[el] {
				touched[v] = true
			}
		}
		e.splitEdge(a, b, cav)
		split++
	}
	m.Compact()
	return
}

// edgeCavity returns the live elements holding both a and b
func (e *Engine) edgeCavity(a, b int, up [][]int) (cav []int) {
	for _, el := range liveCavity(e.Mesh, up[a]) {
		if contains(e.Mesh.Elements[el], b) {
			cav = append(cav, el)
		}
	}
	return
}

// splitEdge puts a new vertex at the middle of ab, on the lowest dimension
// model entity bounding both ends, and replaces every element of cav by the
// two halves on either side of it. Orientation is inherited. It returns
// the new vertex and the new elements.
func (e *Engine) splitEdge(a, b int, cav []int) (mid int, added []int) {
	m := e.Mesh
	x := r3.Scale(0.5, r3.Add(m.Vertices[a], m.Vertices[b]))
	c := mesh.Classification{Dim: m.Dim}
	switch {
	case e.Model != nil:
		c = e.Model.Common(m.Classification[a], m.Classification[b])
		if c.Dim < m.Dim {
			x = e.Model.Project(c, x)
		}
	case m.Classification[a] == m.Classification[b]:
		c = m.Classification[a]
	}
	mid = m.AddVertex(x, c)
	for _, el := range cav {
		verts := m.Elements[el]
		t, part := m.Type(el), m.EToP[el]
		for _, end := range [2]int{a, b} {
			half := append([]int(nil), verts...)
			replaceVertex(half, end, mid)
			added = append(added, m.AddElement(t, half, part))
		}
		m.RemoveElement(el)
	}
	return
}

// RunUniformRefinement splits every edge of the mesh once, whatever its
// length, and returns the number of edges split. Edges of layer elements
// are left alone.
func (e *Engine) RunUniformRefinement() (split int, err error) {
	if err = e.checkLinear(); err != nil {
		return
	}
	var (
		m     = e.Mesh
		all   = e.edgesBy(func(float64) bool { return true }, true)
		layer = layerVertices(m)
		up    = m.VertexUpward()
	)
	for _, me := range all {
		ev := me.key.Vertices()
		a, b := ev[0], ev[1]
		if !e.relaxed && !e.Config.RefineLayer && (layer[a] || layer[b]) {
			continue
		}
		cav := e.edgeCavity(a, b, up)
		if len(cav) == 0 || !allSimplices(m, cav) {
			continue
		}
		_, added := e.splitEdge(a, b, cav)
		up = append(up, nil)
		for _, el := range added {
			for _, v := range m.Elements[el] {
				up[v] = append(up[v], el)
			}
		}
		split++
	}
	m.Compact()
	e.logger().Info("uniform refinement", "edges", split)
	return
}
