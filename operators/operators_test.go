package operators

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/logging"
	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/shape"
	"github.com/notargets/meshadapt/sizefield"
)

func totalMeasure(m *mesh.Mesh) (sum float64) {
	for _, el := range shape.LiveElements(m) {
		sum += mesh.Measure(m.Type(el), m.Points(el))
	}
	return
}

func countType(m *mesh.Mesh, t mesh.ElementType) (n int) {
	for _, el := range shape.LiveElements(m) {
		if m.Type(el) == t {
			n++
		}
	}
	return
}

func countVertices(m *mesh.Mesh, keep func(v int) bool) (n int) {
	up := m.VertexUpward()
	for v := range m.Vertices {
		if len(up[v]) > 0 && keep(v) {
			n++
		}
	}
	return
}

func newEngine(m *mesh.Mesh, model mesh.Model, h float64) *Engine {
	return NewEngine(m, model, sizefield.Uniform{H: h}, logging.NewNop())
}

func TestCoarsen(t *testing.T) {
	m, model := mesh.NewSquareMesh(4, mesh.UnitBox, false)
	before := m.Count(2)
	e := newEngine(m, model, 2)
	n, err := e.Coarsen()
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Less(t, m.Count(2), before)
	assert.InDelta(t, 1, totalMeasure(m), 1.e-12)
	assert.True(t, shape.AreSimplicesValid(m, shape.LiveElements(m)))
	corners := countVertices(m, func(v int) bool { return m.Classification[v].Dim == 0 })
	assert.Equal(t, 4, corners, "model vertices are never collapsed")
	for v, x := range m.Vertices {
		assert.Equal(t, model.Project(m.Classification[v], x), x, "boundary vertices stay on their entity")
	}
}

func TestCollapseRules(t *testing.T) {
	m, model := mesh.NewSquareMesh(2, mesh.UnitBox, false)
	e := newEngine(m, model, 2)
	var (
		up     = m.VertexUpward()
		layer  = layerVertices(m)
		accept = func(float64) float64 { return 0 }
	)
	// vertex 0 is the corner (0,0), 1 is (0.5,0) on the bottom edge, 4 the centre
	_, ok := e.collapse(0, 1, up, layer, accept)
	assert.False(t, ok, "a corner cannot move onto an edge")
	_, ok = e.collapse(1, 4, up, layer, accept)
	assert.False(t, ok, "an edge vertex cannot move into the interior")
	cavVerts, ok := e.collapse(4, 1, up, layer, accept)
	require.True(t, ok)
	assert.Contains(t, cavVerts, 4)
	assert.Equal(t, 6, m.Count(2))
	m.Compact()
	assert.InDelta(t, 1, totalMeasure(m), 1.e-12)
}

func TestCoarsenKeepsLayer(t *testing.T) {
	for _, relaxed := range []bool{false, true} {
		m, model := mesh.NewLayeredBoxMesh(2, 1, 0.1, mesh.UnitBox)
		inLayer := func(v int) bool { return m.Vertices[v].Z <= 0.1+1.e-12 }
		layerBefore := countVertices(m, inLayer)
		e := newEngine(m, model, 4)
		if relaxed {
			e.AllowSplitCollapseOutsideLayer()
		}
		assert.Equal(t, relaxed, e.Relaxed())
		_, err := e.Coarsen()
		require.NoError(t, err)
		assert.Equal(t, 8, countType(m, mesh.Prism))
		assert.Equal(t, layerBefore, countVertices(m, inLayer))
		assert.InDelta(t, 1, totalMeasure(m), 1.e-12)
	}
}

func TestRefine(t *testing.T) {
	m, model := mesh.NewSquareMesh(1, mesh.UnitBox, false)
	e := newEngine(m, model, 0.6)
	n, err := e.Refine()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 8, m.Count(2))
	lMax, _ := sizefield.MaximumEdgeLength(e.Field, m)
	assert.LessOrEqual(t, lMax, e.Config.MaxEdgeLength)
	assert.InDelta(t, 1, totalMeasure(m), 1.e-12)
	assert.True(t, shape.AreSimplicesValid(m, shape.LiveElements(m)))
	for v, x := range m.Vertices {
		assert.Equal(t, model.Classify(x), m.Classification[v])
	}
}

func TestRefineFreezesLayer(t *testing.T) {
	var splits [3]int
	for i, mode := range []string{"frozen", "refine layer", "relaxed"} {
		m, model := mesh.NewLayeredBoxMesh(2, 1, 0.1, mesh.UnitBox)
		inLayer := func(v int) bool { return m.Vertices[v].Z <= 0.1+1.e-12 }
		layerBefore := countVertices(m, inLayer)
		e := newEngine(m, model, 0.2)
		switch mode {
		case "refine layer":
			e.Config.RefineLayer = true
		case "relaxed":
			e.AllowSplitCollapseOutsideLayer()
		}
		n, err := e.Refine()
		require.NoError(t, err)
		splits[i] = n
		assert.Equal(t, 8, countType(m, mesh.Prism))
		assert.Equal(t, layerBefore, countVertices(m, inLayer))
		assert.InDelta(t, 1, totalMeasure(m), 1.e-9)
	}
	assert.Less(t, splits[0], splits[1])
	assert.Equal(t, splits[1], splits[2])
}

func TestRunUniformRefinement(t *testing.T) {
	m, model := mesh.NewSquareMesh(1, mesh.UnitBox, false)
	e := newEngine(m, model, 1)
	n, err := e.RunUniformRefinement()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 8, m.Count(2))
	assert.InDelta(t, 1, totalMeasure(m), 1.e-12)

	m, model = mesh.NewBoxTetMesh(1, mesh.UnitBox)
	e = newEngine(m, model, 1)
	_, err = e.RunUniformRefinement()
	require.NoError(t, err)
	assert.Greater(t, m.Count(3), 6)
	assert.True(t, shape.AreSimplicesValid(m, shape.LiveElements(m)))
	assert.InDelta(t, 1, totalMeasure(m), 1.e-12)
}

func TestSnap(t *testing.T) {
	m, model := mesh.NewSquareMesh(2, mesh.UnitBox, false)
	// pull the bottom edge midpoint inside the domain
	m.Vertices[1] = r3.Vec{X: 0.5, Y: 0.05}
	e := newEngine(m, model, 1)
	n, err := e.Snap()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, r3.Vec{X: 0.5}, m.Vertices[1])

	n, err = e.Snap()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func squareWithThinTriangles() (*mesh.Mesh, *mesh.BoxModel) {
	m, model := mesh.NewSquareMesh(2, mesh.UnitBox, false)
	// the centre vertex slides almost onto the right edge
	m.Vertices[4] = r3.Vec{X: 0.98, Y: 0.5}
	return m, model
}

func TestFixElementShapes(t *testing.T) {
	m, model := squareWithThinTriangles()
	e := newEngine(m, model, 0.5)
	before := shape.WorstQuality(m, e.Field, shape.LiveElements(m))
	require.Less(t, before, e.Config.GoodQuality)
	n, err := e.FixElementShapes()
	require.NoError(t, err)
	assert.Positive(t, n)
	after := shape.WorstQuality(m, e.Field, shape.LiveElements(m))
	assert.Greater(t, after, before)
	assert.GreaterOrEqual(t, after, e.Config.GoodQuality)
	assert.InDelta(t, 1, totalMeasure(m), 1.e-12)
}

func TestImproveQualities(t *testing.T) {
	m, model := mesh.NewSquareMesh(2, mesh.UnitBox, false)
	m.Vertices[4] = r3.Vec{X: 0.6, Y: 0.55}
	e := newEngine(m, model, 0.5)
	before := shape.WorstQuality(m, e.Field, shape.LiveElements(m))
	n, err := e.ImproveQualities()
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Greater(t, shape.WorstQuality(m, e.Field, shape.LiveElements(m)), before)
}

func TestQuadraticMeshRejected(t *testing.T) {
	m, model := mesh.NewBoxTetMesh(1, mesh.UnitBox)
	m.MakeQuadratic(model)
	e := newEngine(m, model, 1)
	ops := map[string]func() (int, error){
		"coarsen": e.Coarsen,
		"refine":  e.Refine,
		"snap":    e.Snap,
		"fix":     e.FixElementShapes,
		"improve": e.ImproveQualities,
		"cleanup": e.CleanupLayer,
		"tets":    e.Tetrahedronize,
		"layer":   e.CoarsenLayer,
		"uniform": e.RunUniformRefinement,
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			_, err := op()
			assert.True(t, errors.Is(err, ErrQuadraticMesh))
		})
	}
}

func TestCleanupLayer(t *testing.T) {
	m := mesh.NewMesh(3)
	for _, x := range []r3.Vec{{}, {X: 1}, {X: 1, Y: 1, Z: 0.6}, {Y: 1}, {X: 0.5, Y: 0.5, Z: 0.2}} {
		m.AddVertex(x, mesh.Classification{Dim: 3})
	}
	m.AddElement(mesh.Pyramid, []int{0, 1, 2, 3, 4}, 0)
	ok, _ := shape.IsPyramidSafe(m, 0)
	require.False(t, ok)

	e := NewEngine(m, nil, sizefield.Uniform{H: 1}, nil)
	n, err := e.CleanupLayer()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ok, _ = shape.IsPyramidSafe(m, 0)
	assert.True(t, ok)
	assert.Equal(t, r3.Vec{Y: 1}, m.Vertices[3], "only the apex moves")
}

// boundaryArea sums the faces used by exactly one element. Hanging or
// mismatched faces would add to it.
func boundaryArea(m *mesh.Mesh) (area float64) {
	type tri [3]int
	count := make(map[tri]int)
	faces := make(map[tri][]int)
	for _, el := range shape.LiveElements(m) {
		for _, f := range mesh.GetElementFaces(m.Type(el), m.Elements[el]) {
			k := tri{f[0], f[1], f[2]}
			for i := 0; i < 3; i++ {
				for j := i + 1; j < 3; j++ {
					if k[j] < k[i] {
						k[i], k[j] = k[j], k[i]
					}
				}
			}
			count[k]++
			faces[k] = f
		}
	}
	for k, n := range count {
		if n == 1 {
			f := faces[k]
			area += mesh.TriangleArea(m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]])
		}
	}
	return
}

func TestTetrahedronizeLayeredBox(t *testing.T) {
	m, model := mesh.NewLayeredBoxMesh(2, 2, 0.05, mesh.UnitBox)
	prisms := countType(m, mesh.Prism)
	tets := countType(m, mesh.Tet)
	require.Equal(t, 16, prisms)
	e := newEngine(m, model, 1)
	n, err := e.Tetrahedronize()
	require.NoError(t, err)
	assert.Equal(t, prisms, n)
	assert.Zero(t, countType(m, mesh.Prism))
	assert.Equal(t, tets+3*prisms, countType(m, mesh.Tet))
	assert.True(t, shape.AreSimplicesValid(m, shape.LiveElements(m)))
	assert.InDelta(t, 1, totalMeasure(m), 1.e-12)
	assert.InDelta(t, 6, boundaryArea(m), 1.e-12, "the split is conformal")
}

func twistedPrism(degrees float64) []r3.Vec {
	a := degrees * math.Pi / 180
	c := r3.Vec{X: 1. / 3, Y: 1. / 3}
	pts := []r3.Vec{{}, {X: 1}, {Y: 1}}
	for _, p := range pts[:3] {
		d := r3.Sub(p, c)
		pts = append(pts, r3.Vec{
			X: c.X + d.X*math.Cos(a) - d.Y*math.Sin(a),
			Y: c.Y + d.X*math.Sin(a) + d.Y*math.Cos(a),
			Z: 1,
		})
	}
	return pts
}

func TestTetrahedronizeUnsafePrism(t *testing.T) {
	m, model := mesh.NewSingleElementMesh(mesh.Prism, twistedPrism(60))
	require.False(t, shape.IsLayerElementSafe(m, 0))
	e := newEngine(m, model, 1)
	n, err := e.Tetrahedronize()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, countType(m, mesh.Tet))
	assert.True(t, shape.AreSimplicesValid(m, shape.LiveElements(m)))

	inverted := []r3.Vec{{}, {X: 1}, {Y: 1}, {Z: -1}, {X: 1, Z: -1}, {Y: 1, Z: -1}}
	m, model = mesh.NewSingleElementMesh(mesh.Prism, inverted)
	e = newEngine(m, model, 1)
	_, err = e.Tetrahedronize()
	var splitErr *SplitError
	require.True(t, errors.As(err, &splitErr))
	assert.Equal(t, mesh.Prism, splitErr.Type)
	assert.Zero(t, splitErr.Good)
	assert.Equal(t, mesh.Prism, m.Type(0), "a failed split leaves the mesh alone")
}

func TestTetrahedronizeQuads(t *testing.T) {
	m, model := mesh.NewSquareMesh(2, mesh.UnitBox, true)
	e := newEngine(m, model, 1)
	n, err := e.Tetrahedronize()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 8, countType(m, mesh.Triangle))
	assert.InDelta(t, 1, totalMeasure(m), 1.e-12)
}
