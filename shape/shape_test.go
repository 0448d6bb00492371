package shape

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/sizefield"
)

var (
	regularTet = [4]r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 0.5, Y: math.Sqrt(3) / 2, Z: 0},
		{X: 0.5, Y: math.Sqrt(3) / 6, Z: math.Sqrt(2.0 / 3.0)},
	}
	kuhnTet = [4]r3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {X: 1, Y: 1, Z: 1}}
	unitPrism = []r3.Vec{
		{}, {X: 1}, {Y: 1},
		{Z: 1}, {X: 1, Z: 1}, {Y: 1, Z: 1},
	}
)

func twistedPrism(degrees float64) []r3.Vec {
	a := degrees * math.Pi / 180
	c := r3.Vec{X: 1. / 3, Y: 1. / 3}
	pts := append([]r3.Vec(nil), unitPrism[:3]...)
	for _, p := range unitPrism[:3] {
		d := r3.Sub(p, c)
		pts = append(pts, r3.Vec{
			X: c.X + d.X*math.Cos(a) - d.Y*math.Sin(a),
			Y: c.Y + d.X*math.Sin(a) + d.Y*math.Cos(a),
			Z: 1,
		})
	}
	return pts
}

func TestLinearTetQuality(t *testing.T) {
	assert.InDelta(t, 1, LinearTetQuality(regularTet), 1.e-12)
	assert.InDelta(t, 0.432, LinearTetQuality(kuhnTet), 1.e-12)

	inverted := kuhnTet
	inverted[0], inverted[1] = inverted[1], inverted[0]
	assert.InDelta(t, -0.432, LinearTetQuality(inverted), 1.e-12)

	assert.True(t, AreTetsValid([][4]r3.Vec{regularTet, kuhnTet}))
	assert.False(t, AreTetsValid([][4]r3.Vec{regularTet, inverted}))

	flat := [4]r3.Vec{{}, {X: 1}, {Y: 1}, {X: 1, Y: 1}}
	assert.Equal(t, 0., LinearTetQuality(flat))
	assert.Equal(t, 0., LinearTetQuality([4]r3.Vec{}))

	// scale invariant
	var big [4]r3.Vec
	for i, p := range regularTet {
		big[i] = r3.Scale(7, p)
	}
	assert.InDelta(t, 1, LinearTetQuality(big), 1.e-12)
}

func TestTriangleQuality(t *testing.T) {
	eq := [3]r3.Vec{{}, {X: 1}, {X: 0.5, Y: math.Sqrt(3) / 2}}
	assert.InDelta(t, 1, TriangleQuality(eq, 2), 1.e-12)
	right := [3]r3.Vec{{}, {X: 1}, {Y: 1}}
	assert.InDelta(t, 0.75, TriangleQuality(right, 2), 1.e-12)
	flipped := [3]r3.Vec{{}, {Y: 1}, {X: 1}}
	assert.InDelta(t, -0.75, TriangleQuality(flipped, 2), 1.e-12)
	assert.InDelta(t, 0.75, TriangleQuality(flipped, 3), 1.e-12, "surface triangles are unsigned")
}

func straightTet10(x [4]r3.Vec) (out [10]r3.Vec) {
	copy(out[:4], x[:])
	for n, ed := range tetEdges {
		out[4+n] = r3.Scale(0.5, r3.Add(x[ed[0]], x[ed[1]]))
	}
	return
}

func TestQuadraticTetQuality(t *testing.T) {
	x := straightTet10(kuhnTet)
	assert.InDelta(t, LinearTetQuality(kuhnTet), QuadraticTetQuality(x), 1.e-12)

	curved := x
	curved[4] = r3.Add(curved[4], r3.Vec{Y: -0.05, Z: 0.05})
	q := QuadraticTetQuality(curved)
	assert.Greater(t, q, 0.)
	assert.Less(t, q, LinearTetQuality(kuhnTet))

	// the 01 mid node pulled close to vertex 0 folds the element there
	folded := x
	folded[4] = r3.Add(kuhnTet[0], r3.Scale(0.1, r3.Sub(kuhnTet[1], kuhnTet[0])))
	assert.Less(t, QuadraticTetQuality(folded), 0.)
	assert.Less(t, quadraticTetJacobian(folded, [4]float64{1, 0, 0, 0}), 0.)
}

func TestElementQuality(t *testing.T) {
	m, _ := mesh.NewBoxTetMesh(2, mesh.UnitBox)
	f := sizefield.Uniform{H: 0.5}
	for _, e := range LiveElements(m) {
		assert.InDelta(t, 0.432, ElementQuality(m, f, e), 1.e-12)
	}
	assert.InDelta(t, 0.432, WorstQuality(m, f, LiveElements(m)), 1.e-12)
	assert.Equal(t, 1., WorstQuality(m, f, nil))
	assert.True(t, HasWorseQuality(m, f, LiveElements(m), 0.5))
	assert.False(t, HasWorseQuality(m, f, LiveElements(m), 0.4))

	s := QualityStats(m, f, 0.5)
	assert.Equal(t, m.Count(3), s.Count)
	assert.Equal(t, s.Count, s.Below)
	assert.InDelta(t, 0.432, s.Mean, 1.e-12)
	assert.InDelta(t, 0.432, s.Best, 1.e-12)
	assert.True(t, AreSimplicesValid(m, LiveElements(m)))

	// quadratic straight-sided elements rate like linear ones
	m.MakeQuadratic(nil)
	assert.InDelta(t, 0.432, ElementQuality(m, f, 0), 1.e-12)
	q := Qualities(m, f)
	assert.Len(t, q, m.NumElements())
}

func TestElementQualityMixed(t *testing.T) {
	f := sizefield.Uniform{H: 1}
	prism, _ := mesh.NewSingleElementMesh(mesh.Prism, unitPrism)
	qp := ElementQuality(prism, f, 0)
	assert.Greater(t, qp, 0.)
	assert.Less(t, qp, 1.)

	cube, _ := mesh.NewSingleElementMesh(mesh.Hex, []r3.Vec{
		{}, {X: 1}, {X: 1, Y: 1}, {Y: 1},
		{Z: 1}, {X: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {Y: 1, Z: 1},
	})
	assert.InDelta(t, 0.432, ElementQuality(cube, f, 0), 1.e-12)

	square, _ := mesh.NewSingleElementMesh(mesh.Quad, []r3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}})
	assert.InDelta(t, 0.75, ElementQuality(square, f, 0), 1.e-12)
}

func TestAnisotropicQuality(t *testing.T) {
	// a tet stretched 10x along x is regular in a metric that shrinks x
	var stretched [4]r3.Vec
	for i, p := range regularTet {
		stretched[i] = r3.Vec{X: 10 * p.X, Y: p.Y, Z: p.Z}
	}
	m, _ := mesh.NewSingleElementMesh(mesh.Tet, stretched[:])
	assert.Less(t, ElementQuality(m, sizefield.Uniform{H: 1}, 0), 0.1)
	f, err := sizefield.NewAnisotropicFromSizes([3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}, [3]float64{10, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1, ElementQuality(m, f, 0), 1.e-9)
}

func TestAnisotropicQualityKeepsOrientation(t *testing.T) {
	xyz := [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}
	tet, _ := mesh.NewSingleElementMesh(mesh.Tet, kuhnTet[:])
	tri, _ := mesh.NewSingleElementMesh(mesh.Triangle, []r3.Vec{{}, {X: 1}, {Y: 1}})
	for _, sizes := range [][3]float64{{1, 1, 10}, {2, 3, 5}, {5, 3, 2}, {10, 1, 1}, {0.3, 0.3, 1}} {
		f, err := sizefield.NewAnisotropicFromSizes(xyz, sizes)
		require.NoError(t, err)
		require.Greater(t, f.Transform(r3.Vec{}).Det(), 0., "sizes %v", sizes)

		var scaled [4]r3.Vec
		for i, p := range kuhnTet {
			scaled[i] = r3.Vec{X: p.X / sizes[0], Y: p.Y / sizes[1], Z: p.Z / sizes[2]}
		}
		q := ElementQuality(tet, f, 0)
		assert.Greater(t, q, 0., "sizes %v", sizes)
		assert.InDelta(t, LinearTetQuality(scaled), q, 1.e-9, "sizes %v", sizes)

		// sizes along z leave the plane alone
		in2D := TriangleQuality([3]r3.Vec{{}, {X: 1 / sizes[0]}, {Y: 1 / sizes[1]}}, 2)
		assert.InDelta(t, in2D, ElementQuality(tri, f, 0), 1.e-9, "sizes %v", sizes)
	}
}

func TestPrismTables(t *testing.T) {
	assert.Nil(t, PrismTets(0))
	assert.Nil(t, PrismTets(7))
	assert.Nil(t, PrismTets(8))
	for c := DiagonalCode(1); c < 7; c++ {
		tets := PrismTets(c)
		require.Len(t, tets, 3)
		var vol float64
		for _, tet := range tets {
			vol += mesh.Orient3D(unitPrism[tet[0]], unitPrism[tet[1]], unitPrism[tet[2]], unitPrism[tet[3]]) / 6
		}
		assert.InDelta(t, 0.5, vol, 1.e-14, "code %d", c)

		// every chosen face diagonal is an edge of the split
		for i := 0; i < 3; i++ {
			d := PrismFaceDiagonal(c, i)
			found := false
			for _, tet := range tets {
				has := func(v int) bool { return tet[0] == v || tet[1] == v || tet[2] == v || tet[3] == v }
				if has(d[0]) && has(d[1]) {
					found = true
				}
			}
			assert.True(t, found, "code %d face %d", c, i)
		}
	}
}

func TestDefaultPrismCode(t *testing.T) {
	assert.Equal(t, DiagonalCode(4), DefaultPrismCode([]int{0, 1, 2, 3, 4, 5}))
	for _, verts := range [][]int{
		{5, 4, 3, 2, 1, 0}, {3, 0, 4, 1, 5, 2}, {10, 2, 7, 8, 0, 9},
	} {
		code := DefaultPrismCode(verts)
		assert.NotEqual(t, DiagonalCode(0), code)
		assert.NotEqual(t, DiagonalCode(7), code)
		// the lowest id of every quad is on the chosen diagonal
		for i := 0; i < 3; i++ {
			q := PrismFaceQuad(i)
			d := PrismFaceDiagonal(code, i)
			low := verts[q[0]]
			for _, k := range q {
				low = min(low, verts[k])
			}
			assert.True(t, verts[d[0]] == low || verts[d[1]] == low)
		}
	}
}

func TestIsPrismSafe(t *testing.T) {
	m, _ := mesh.NewSingleElementMesh(mesh.Prism, unitPrism)
	ok, good := IsPrismSafe(m, 0)
	assert.True(t, ok)
	assert.Equal(t, uint8(0b1111110), good)

	m, _ = mesh.NewSingleElementMesh(mesh.Prism, twistedPrism(60))
	ok, good = IsPrismSafe(m, 0)
	assert.False(t, ok, "default code 4 inverts under the twist")
	assert.Equal(t, uint8(0b1101100), good)
	assert.False(t, IsLayerElementSafe(m, 0))
	assert.Equal(t, []int{0}, UnsafeLayerElements(m))

	inverted := append([]r3.Vec(nil), unitPrism...)
	for i := 3; i < 6; i++ {
		inverted[i].Z = -1
	}
	m, _ = mesh.NewSingleElementMesh(mesh.Prism, inverted)
	ok, good = IsPrismSafe(m, 0)
	assert.False(t, ok)
	assert.Zero(t, good)
}

func TestIsPyramidSafe(t *testing.T) {
	base := []r3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}
	m, _ := mesh.NewSingleElementMesh(mesh.Pyramid, append(base, r3.Vec{X: 0.5, Y: 0.5, Z: 1}))
	ok, r := IsPyramidSafe(m, 0)
	assert.True(t, ok)
	assert.Equal(t, Diagonal02, r)

	// lifting a base corner above a low apex leaves only the 1-3 split
	warped := append([]r3.Vec(nil), base...)
	warped[2].Z = 0.6
	m, _ = mesh.NewSingleElementMesh(mesh.Pyramid, append(warped, r3.Vec{X: 0.5, Y: 0.5, Z: 0.2}))
	ok, r = IsPyramidSafe(m, 0)
	assert.False(t, ok)
	assert.Equal(t, Diagonal13, r)

	m, _ = mesh.NewSingleElementMesh(mesh.Pyramid, append(base, r3.Vec{X: 0.5, Y: 0.5, Z: -1}))
	ok, r = IsPyramidSafe(m, 0)
	assert.False(t, ok)
	assert.Equal(t, NoRotation, r)
	assert.Nil(t, PyramidTets(r))
}

func TestQuadRotation(t *testing.T) {
	assert.Equal(t, Diagonal02, QuadRotation([]r3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {Y: 1}}))
	// a dart with the reflex corner at 3 only splits through it
	assert.Equal(t, Diagonal13, QuadRotation([]r3.Vec{{}, {X: 1}, {X: 1, Y: 1}, {X: 0.7, Y: 0.3}}))
	assert.Equal(t, NoRotation, QuadRotation([]r3.Vec{{}, {Y: 1}, {X: 1, Y: 1}, {X: 1}}))
	assert.Len(t, QuadTriangles(Diagonal13), 2)
}
