package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// kuhnTets splits a hex (bottom 0-3, top 4-7, counter-clockwise from above)
// into six positively oriented tets around the 0-6 diagonal. Neighbouring
// hexes split this way share matching face diagonals.
var kuhnTets = [6][4]int{
	{0, 1, 2, 6},
	{0, 2, 3, 6},
	{0, 3, 7, 6},
	{0, 7, 4, 6},
	{0, 4, 5, 6},
	{0, 5, 1, 6},
}

// UnitBox is the [0,1]^3 box
var UnitBox = r3.Box{Min: r3.Vec{}, Max: r3.Vec{X: 1, Y: 1, Z: 1}}

// NewBoxTetMesh meshes box with n^3 hex cells, each split into six tets, and
// classifies the vertices against the returned box model.
func NewBoxTetMesh(n int, box r3.Box) (*Mesh, *BoxModel) {
	levels := uniformLevels(box.Min.Z, box.Max.Z, n)
	return newLayeredBox(n, box, levels, 0)
}

// NewLayeredBoxMesh meshes box like NewBoxTetMesh but starts with a stack of
// prism layers of the given thickness on the zmin face. Each layer cell is
// split into two prisms whose caps match the tets above.
func NewLayeredBoxMesh(n, layers int, thickness float64, box r3.Box) (*Mesh, *BoxModel) {
	var levels []float64
	for k := 0; k <= layers; k++ {
		levels = append(levels, box.Min.Z+float64(k)*thickness)
	}
	top := levels[len(levels)-1]
	levels = append(levels, uniformLevels(top, box.Max.Z, n)[1:]...)
	return newLayeredBox(n, box, levels, layers)
}

func uniformLevels(lo, hi float64, n int) []float64 {
	levels := make([]float64, n+1)
	for k := 0; k <= n; k++ {
		levels[k] = lo + (hi-lo)*float64(k)/float64(n)
	}
	levels[n] = hi
	return levels
}

func newLayeredBox(n int, box r3.Box, zLevels []float64, prismLayers int) (*Mesh, *BoxModel) {
	var (
		m     = NewMesh(3)
		model = NewBoxModel(box, 3)
		xs    = uniformLevels(box.Min.X, box.Max.X, n)
		ys    = uniformLevels(box.Min.Y, box.Max.Y, n)
		nz    = len(zLevels) - 1
	)
	index := func(i, j, k int) int { return i + (n+1)*(j+(n+1)*k) }
	for k := 0; k <= nz; k++ {
		for j := 0; j <= n; j++ {
			for i := 0; i <= n; i++ {
				x := r3.Vec{X: xs[i], Y: ys[j], Z: zLevels[k]}
				m.AddVertex(x, model.Classify(x))
			}
		}
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				hex := [8]int{
					index(i, j, k), index(i+1, j, k), index(i+1, j+1, k), index(i, j+1, k),
					index(i, j, k+1), index(i+1, j, k+1), index(i+1, j+1, k+1), index(i, j+1, k+1),
				}
				if k < prismLayers {
					m.AddElement(Prism, []int{hex[0], hex[1], hex[2], hex[4], hex[5], hex[6]}, 0)
					m.AddElement(Prism, []int{hex[0], hex[2], hex[3], hex[4], hex[6], hex[7]}, 0)
					continue
				}
				for _, tet := range kuhnTets {
					m.AddElement(Tet, []int{hex[tet[0]], hex[tet[1]], hex[tet[2]], hex[tet[3]]}, 0)
				}
			}
		}
	}
	return m, model
}

// NewSquareMesh meshes the z=0 rectangle of box with n^2 cells, either as
// quads or as two counter-clockwise triangles per cell.
func NewSquareMesh(n int, box r3.Box, quads bool) (*Mesh, *BoxModel) {
	var (
		m     = NewMesh(2)
		model = NewBoxModel(r3.Box{Min: r3.Vec{X: box.Min.X, Y: box.Min.Y},
			Max: r3.Vec{X: box.Max.X, Y: box.Max.Y}}, 2)
		xs = uniformLevels(box.Min.X, box.Max.X, n)
		ys = uniformLevels(box.Min.Y, box.Max.Y, n)
	)
	index := func(i, j int) int { return i + (n+1)*j }
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			x := r3.Vec{X: xs[i], Y: ys[j]}
			m.AddVertex(x, model.Classify(x))
		}
	}
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			c := [4]int{index(i, j), index(i+1, j), index(i+1, j+1), index(i, j+1)}
			if quads {
				m.AddElement(Quad, c[:], 0)
				continue
			}
			m.AddElement(Triangle, []int{c[0], c[1], c[2]}, 0)
			m.AddElement(Triangle, []int{c[0], c[2], c[3]}, 0)
		}
	}
	return m, model
}

// NewSingleElementMesh builds a one element mesh from corner coordinates.
// Vertices are classified against the bounding box of the element.
func NewSingleElementMesh(t ElementType, pts []r3.Vec) (*Mesh, *BoxModel) {
	m := NewMesh(t.Dimension())
	verts := make([]int, len(pts))
	for i, x := range pts {
		verts[i] = m.AddVertex(x, Classification{})
	}
	m.AddElement(t, verts, 0)
	model := NewBoxModel(m.BoundingBox(), m.Dim)
	m.Classify(model)
	return m, model
}

// MakeQuadratic adds a mid-edge node on every edge of the mesh
func (m *Mesh) MakeQuadratic(model Model) {
	m.MidEdgeNodes = make(map[EdgeKey]int)
	for _, ek := range m.Edges() {
		ev := ek.Vertices()
		x := r3.Scale(0.5, r3.Add(m.Vertices[ev[0]], m.Vertices[ev[1]]))
		c := Classification{Dim: m.Dim}
		if model != nil {
			c = model.Common(m.Classification[ev[0]], m.Classification[ev[1]])
		}
		m.MidEdgeNodes[ek] = m.AddVertex(x, c)
	}
}
