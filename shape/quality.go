// Package shape measures element quality in metric space and decides
// whether boundary layer elements can be split into simplices.
package shape

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/sizefield"
)

// Normalizations giving the equilateral simplex a quality of one
const (
	tetQualityScale = 15552.
	triQualityScale = 48.
)

var tetEdges = [6][2]int{{0, 1}, {1, 2}, {0, 2}, {0, 3}, {1, 3}, {2, 3}}

// hexTets splits a hex around its 0-6 diagonal
var hexTets = [6][4]int{
	{0, 1, 2, 6}, {0, 2, 3, 6}, {0, 3, 7, 6},
	{0, 7, 4, 6}, {0, 4, 5, 6}, {0, 5, 1, 6},
}

// LinearTetQuality is the signed mean ratio cubed,
// sign(V)·15552·V²/(Σl²)³. It is 1 for the regular tet, near zero for
// slivers and negative when inverted.
func LinearTetQuality(x [4]r3.Vec) float64 {
	v := mesh.Orient3D(x[0], x[1], x[2], x[3]) / 6
	var s float64
	for _, ed := range tetEdges {
		s += r3.Norm2(r3.Sub(x[ed[1]], x[ed[0]]))
	}
	if s == 0 {
		return 0
	}
	q := tetQualityScale * v * v / (s * s * s)
	if v < 0 {
		return -q
	}
	return q
}

// TriangleQuality is 48·A²/(Σl²)², 1 for the equilateral triangle. In a 2D
// mesh the area is signed by the orientation in the xy plane.
func TriangleQuality(x [3]r3.Vec, dim int) float64 {
	var a float64
	if dim == 2 {
		a = mesh.Orient2D(x[0], x[1], x[2]) / 2
	} else {
		a = mesh.TriangleArea(x[0], x[1], x[2])
	}
	s := r3.Norm2(r3.Sub(x[1], x[0])) + r3.Norm2(r3.Sub(x[2], x[1])) + r3.Norm2(r3.Sub(x[0], x[2]))
	if s == 0 {
		return 0
	}
	q := triQualityScale * a * a / (s * s)
	if a < 0 {
		return -q
	}
	return q
}

// QuadraticTetQuality rates a 10 node tet: corners first, then mid-edge
// nodes in the order 01, 12, 02, 03, 13, 23. The Jacobian determinant is
// sampled at every node and the centroid; a valid element scores the corner
// quality times minJ/maxJ, an invalid one scores minJ/maxJ (<= 0).
func QuadraticTetQuality(x [10]r3.Vec) float64 {
	samples := make([]float64, 0, 11)
	var bary [4]float64
	for i := 0; i < 4; i++ {
		bary = [4]float64{}
		bary[i] = 1
		samples = append(samples, quadraticTetJacobian(x, bary))
	}
	for _, ed := range tetEdges {
		bary = [4]float64{}
		bary[ed[0]], bary[ed[1]] = 0.5, 0.5
		samples = append(samples, quadraticTetJacobian(x, bary))
	}
	samples = append(samples, quadraticTetJacobian(x, [4]float64{0.25, 0.25, 0.25, 0.25}))

	minJ, maxJ := floats.Min(samples), floats.Max(samples)
	switch {
	case maxJ <= 0:
		return -1
	case minJ <= 0:
		return minJ / maxJ
	}
	return minJ / maxJ * LinearTetQuality([4]r3.Vec{x[0], x[1], x[2], x[3]})
}

// quadraticTetJacobian evaluates det(dx/dξ) of the 10 node tet at the given
// barycentric coordinates, with ξ_k raising L_k and lowering L_0
func quadraticTetJacobian(x [10]r3.Vec, L [4]float64) float64 {
	var cols [3]r3.Vec
	add := func(node int, grad [4]float64) {
		for k := 1; k <= 3; k++ {
			cols[k-1] = r3.Add(cols[k-1], r3.Scale(grad[k]-grad[0], x[node]))
		}
	}
	for i := 0; i < 4; i++ {
		var g [4]float64
		g[i] = 4*L[i] - 1
		add(i, g)
	}
	for n, ed := range tetEdges {
		var g [4]float64
		g[ed[0]] = 4 * L[ed[1]]
		g[ed[1]] = 4 * L[ed[0]]
		add(4+n, g)
	}
	return r3.Dot(cols[0], r3.Cross(cols[1], cols[2]))
}

func minTetQuality(pts []r3.Vec, tets [][4]int) float64 {
	q := math.Inf(1)
	for _, t := range tets {
		q = math.Min(q, LinearTetQuality([4]r3.Vec{pts[t[0]], pts[t[1]], pts[t[2]], pts[t[3]]}))
	}
	return q
}

// ElementQuality measures element e in the metric space of the size field
// at its centroid. Non-simplices score the worst tet (or triangle) of their
// default split.
func ElementQuality(m *mesh.Mesh, f sizefield.SizeField, e int) float64 {
	t := m.Type(e)
	if t == mesh.Tet && m.IsQuadratic() {
		var x [10]r3.Vec
		corners := m.Points(e)
		copy(x[:4], corners)
		verts := m.Elements[e]
		for n, ed := range tetEdges {
			mid, ok := m.MidEdgeNodes[mesh.NewEdgeKey([2]int{verts[ed[0]], verts[ed[1]]})]
			if !ok {
				// straight sided
				x[4+n] = r3.Scale(0.5, r3.Add(corners[ed[0]], corners[ed[1]]))
				continue
			}
			x[4+n] = m.Vertices[mid]
		}
		mx := sizefield.MetricPoints(f, x[:])
		copy(x[:], mx)
		return QuadraticTetQuality(x)
	}

	pts := sizefield.MetricPoints(f, m.Points(e))
	switch t {
	case mesh.Line:
		return 1
	case mesh.Triangle:
		return TriangleQuality([3]r3.Vec{pts[0], pts[1], pts[2]}, m.Dim)
	case mesh.Quad:
		q := math.Inf(1)
		for i := 0; i < 4; i++ {
			q = math.Min(q, TriangleQuality([3]r3.Vec{pts[i], pts[(i+1)%4], pts[(i+2)%4]}, m.Dim))
		}
		return q
	case mesh.Tet:
		return LinearTetQuality([4]r3.Vec{pts[0], pts[1], pts[2], pts[3]})
	case mesh.Prism:
		return minTetQuality(pts, PrismTets(DefaultPrismCode(m.Elements[e])))
	case mesh.Pyramid:
		return minTetQuality(pts, PyramidTets(0))
	case mesh.Hex:
		return minTetQuality(pts, hexTets[:])
	}
	return 0
}

// WorstQuality returns the minimum quality over elems, visiting each once.
// An empty set has quality 1.
func WorstQuality(m *mesh.Mesh, f sizefield.SizeField, elems []int) float64 {
	worst := 1.
	for _, e := range elems {
		worst = math.Min(worst, ElementQuality(m, f, e))
	}
	return worst
}

// HasWorseQuality reports whether any element of elems has quality strictly
// below threshold, stopping at the first one found
func HasWorseQuality(m *mesh.Mesh, f sizefield.SizeField, elems []int, threshold float64) bool {
	for _, e := range elems {
		if ElementQuality(m, f, e) < threshold {
			return true
		}
	}
	return false
}

// LiveElements lists every live element slot of the mesh
func LiveElements(m *mesh.Mesh) []int {
	elems := make([]int, 0, len(m.Elements))
	for e, verts := range m.Elements {
		if verts != nil {
			elems = append(elems, e)
		}
	}
	return elems
}

// AreTetsValid reports whether every tet has strictly positive volume
func AreTetsValid(tets [][4]r3.Vec) bool {
	for _, x := range tets {
		if mesh.Orient3D(x[0], x[1], x[2], x[3]) <= 0 {
			return false
		}
	}
	return true
}

// AreSimplicesValid checks the orientation of the simplices among elems;
// other element types are skipped
func AreSimplicesValid(m *mesh.Mesh, elems []int) bool {
	for _, e := range elems {
		pts := m.Points(e)
		switch m.Type(e) {
		case mesh.Tet:
			if !AreTetsValid([][4]r3.Vec{{pts[0], pts[1], pts[2], pts[3]}}) {
				return false
			}
		case mesh.Triangle:
			if m.Dim == 2 && mesh.Orient2D(pts[0], pts[1], pts[2]) <= 0 {
				return false
			}
		}
	}
	return true
}

// Stats summarizes the element qualities of a mesh
type Stats struct {
	Worst, Best, Mean float64
	Count             int
	Below             int // elements under the bound passed to QualityStats
}

// QualityStats measures every live element
func QualityStats(m *mesh.Mesh, f sizefield.SizeField, bound float64) (s Stats) {
	elems := LiveElements(m)
	if len(elems) == 0 {
		s.Worst = 1
		return
	}
	q := make([]float64, len(elems))
	for i, e := range elems {
		q[i] = ElementQuality(m, f, e)
		if q[i] < bound {
			s.Below++
		}
	}
	s.Count = len(q)
	s.Worst, s.Best = floats.Min(q), floats.Max(q)
	s.Mean = stat.Mean(q, nil)
	return
}

// Qualities returns the quality of every element slot, zero for removed ones
func Qualities(m *mesh.Mesh, f sizefield.SizeField) []float64 {
	q := make([]float64, len(m.Elements))
	for e, verts := range m.Elements {
		if verts != nil {
			q[e] = ElementQuality(m, f, e)
		}
	}
	return q
}
