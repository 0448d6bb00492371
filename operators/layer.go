package operators

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/shape"
)

// SplitError reports a layer element with no valid split that agrees with
// the splits already chosen for its neighbours
type SplitError struct {
	Element  int
	Type     mesh.ElementType
	Good     uint8          // valid prism codes, bit c for code c
	Rotation shape.Rotation // valid base rotation of a pyramid or quad
}

func (err *SplitError) Error() string {
	switch err.Type {
	case mesh.Prism:
		return fmt.Sprintf("prism %d has no conformal split (valid codes %06b)", err.Element, err.Good>>1)
	default:
		return fmt.Sprintf("%s %d has no conformal split (rotation %d)", err.Type, err.Element, err.Rotation)
	}
}

// CleanupLayer moves the apex of every unsafe pyramid over the centroid of
// its base. A move is kept when the pyramid becomes safe and every element
// around the apex can still be split validly.
func (e *Engine) CleanupLayer() (moved int, err error) {
	if err = e.checkLinear(); err != nil {
		return
	}
	var (
		m     = e.Mesh
		start = time.Now()
		up    = m.VertexUpward()
	)
	for _, el := range shape.UnsafeLayerElements(m) {
		if m.Type(el) != mesh.Pyramid {
			continue
		}
		apex := m.Elements[el][4]
		if m.Classification[apex].Dim < m.Dim {
			continue
		}
		if e.relocateApex(el, apex, liveCavity(m, up[apex])) {
			moved++
		}
	}
	e.logger().Info("cleaned up layer", "apexes moved", moved,
		"unsafe left", len(shape.UnsafeLayerElements(m)), "seconds", time.Since(start).Seconds())
	return
}

func (e *Engine) relocateApex(el, apex int, cav []int) bool {
	var (
		m         = e.Mesh
		pts       = m.Points(el)
		base      r3.Vec
		perimeter float64
	)
	for i := 0; i < 4; i++ {
		base = r3.Add(base, pts[i])
		perimeter += r3.Norm(r3.Sub(pts[(i+1)%4], pts[i]))
	}
	base = r3.Scale(0.25, base)
	n := r3.Unit(r3.Cross(r3.Sub(pts[2], pts[0]), r3.Sub(pts[3], pts[1])))
	h := r3.Dot(r3.Sub(pts[4], base), n)
	// at least half the mean base edge
	if minH := perimeter / 8; h < minH {
		h = minH
	}
	target := r3.Add(base, r3.Scale(h, n))

	old := m.Vertices[apex]
	for _, alpha := range relaxation {
		m.Vertices[apex] = r3.Add(old, r3.Scale(alpha, r3.Sub(target, old)))
		if ok, _ := shape.IsPyramidSafe(m, el); ok && e.splittable(cav) {
			return true
		}
	}
	m.Vertices[apex] = old
	return false
}

// splittable reports whether every element of elems is valid or has a
// valid split into simplices
func (e *Engine) splittable(elems []int) bool {
	m := e.Mesh
	for _, el := range elems {
		switch m.Type(el) {
		case mesh.Prism:
			if shape.GoodPrismCodes(m.Points(el)) == 0 {
				return false
			}
		case mesh.Pyramid:
			if shape.PyramidRotation(m.Points(el)) == shape.NoRotation {
				return false
			}
		case mesh.Tet, mesh.Triangle:
			if shape.ElementQuality(m, e.Field, el) <= e.Config.ValidQuality {
				return false
			}
		}
	}
	return true
}

// quadKey identifies a quad face by its sorted vertices
type quadKey [4]int

func newQuadKey(verts []int, q [4]int) (k quadKey) {
	for i, l := range q {
		k[i] = verts[l]
	}
	sort.Ints(k[:])
	return
}

type plannedSplit struct {
	el    int
	t     mesh.ElementType
	parts [][]int
}

// Tetrahedronize replaces every prism and pyramid by tets and, in 2D, every
// quad by triangles. Unsafe elements choose their splits first; each later
// element takes a split agreeing with the diagonals already chosen on the
// quad faces it shares. Nothing is changed unless every element can be
// split. Hexes are left alone.
func (e *Engine) Tetrahedronize() (converted int, err error) {
	if err = e.checkLinear(); err != nil {
		return
	}
	var (
		m     = e.Mesh
		start = time.Now()
		locks = make(map[quadKey]mesh.EdgeKey)
		order []int
		plans []plannedSplit
	)
	unsafe := shape.UnsafeLayerElements(m)
	first := make(map[int]bool, len(unsafe))
	for _, el := range unsafe {
		first[el] = true
	}
	order = append(order, unsafe...)
	for _, el := range shape.LiveElements(m) {
		if !first[el] {
			order = append(order, el)
		}
	}
	var hexes int
	for _, el := range order {
		var plan plannedSplit
		switch m.Type(el) {
		case mesh.Prism:
			plan, err = e.planPrism(el, locks)
		case mesh.Pyramid:
			plan, err = e.planPyramid(el, locks)
		case mesh.Quad:
			plan, err = e.planQuad(el)
		case mesh.Hex:
			hexes++
			continue
		default:
			continue
		}
		if err != nil {
			return 0, err
		}
		plans = append(plans, plan)
	}
	for _, p := range plans {
		part := m.EToP[p.el]
		for _, verts := range p.parts {
			m.AddElement(p.t, verts, part)
		}
		m.RemoveElement(p.el)
	}
	m.Compact()
	if hexes > 0 {
		e.logger().Warn("hexes are not converted", "count", hexes)
	}
	converted = len(plans)
	e.logger().Info("tetrahedronized", "elements", converted, "seconds", time.Since(start).Seconds())
	return
}

// agrees reports whether diag matches the diagonal locked on face k, if any
func agrees(locks map[quadKey]mesh.EdgeKey, k quadKey, diag mesh.EdgeKey) bool {
	d, ok := locks[k]
	return !ok || d == diag
}

func (e *Engine) planPrism(el int, locks map[quadKey]mesh.EdgeKey) (plannedSplit, error) {
	var (
		m     = e.Mesh
		verts = m.Elements[el]
		good  = shape.GoodPrismCodes(m.Points(el))
		def   = shape.DefaultPrismCode(verts)
		codes = []shape.DiagonalCode{def}
	)
	for c := shape.DiagonalCode(1); c < shape.NumPrismCodes-1; c++ {
		if c != def {
			codes = append(codes, c)
		}
	}
	for _, code := range codes {
		if good&(1<<code) == 0 {
			continue
		}
		var (
			keys  [3]quadKey
			diags [3]mesh.EdgeKey
			ok    = true
		)
		for i := 0; i < 3; i++ {
			keys[i] = newQuadKey(verts, shape.PrismFaceQuad(i))
			d := shape.PrismFaceDiagonal(code, i)
			diags[i] = mesh.NewEdgeKey([2]int{verts[d[0]], verts[d[1]]})
			ok = ok && agrees(locks, keys[i], diags[i])
		}
		if !ok {
			continue
		}
		for i := range keys {
			locks[keys[i]] = diags[i]
		}
		return plannedSplit{el: el, t: mesh.Tet, parts: localToGlobal(verts, shape.PrismTets(code))}, nil
	}
	return plannedSplit{}, &SplitError{Element: el, Type: mesh.Prism, Good: good, Rotation: shape.NoRotation}
}

func (e *Engine) planPyramid(el int, locks map[quadKey]mesh.EdgeKey) (plannedSplit, error) {
	var (
		m     = e.Mesh
		verts = m.Elements[el]
		pts   = m.Points(el)
		key   = newQuadKey(verts, [4]int{0, 1, 2, 3})
		rots  = []shape.Rotation{shape.Diagonal02, shape.Diagonal13}
	)
	// prefer the diagonal through the lowest vertex id, as prisms do
	low := 0
	for i := 1; i < 4; i++ {
		if verts[i] < verts[low] {
			low = i
		}
	}
	if low%2 == 1 {
		rots[0], rots[1] = rots[1], rots[0]
	}
	valid := shape.PyramidRotation(pts)
	for _, r := range rots {
		tets := shape.PyramidTets(r)
		diag := mesh.NewEdgeKey([2]int{verts[int(r)], verts[int(r)+2]})
		if !agrees(locks, key, diag) || !tetsPositive(pts, tets) {
			continue
		}
		locks[key] = diag
		return plannedSplit{el: el, t: mesh.Tet, parts: localToGlobal(verts, tets)}, nil
	}
	return plannedSplit{}, &SplitError{Element: el, Type: mesh.Pyramid, Rotation: valid}
}

func (e *Engine) planQuad(el int) (plannedSplit, error) {
	var (
		m     = e.Mesh
		verts = m.Elements[el]
		r     = shape.QuadRotation(m.Points(el))
	)
	if r == shape.NoRotation {
		return plannedSplit{}, &SplitError{Element: el, Type: mesh.Quad, Rotation: r}
	}
	var parts [][]int
	for _, t := range shape.QuadTriangles(r) {
		parts = append(parts, []int{verts[t[0]], verts[t[1]], verts[t[2]]})
	}
	return plannedSplit{el: el, t: mesh.Triangle, parts: parts}, nil
}

func tetsPositive(pts []r3.Vec, tets [][4]int) bool {
	for _, t := range tets {
		if mesh.Orient3D(pts[t[0]], pts[t[1]], pts[t[2]], pts[t[3]]) <= 0 {
			return false
		}
	}
	return len(tets) > 0
}

func localToGlobal(verts []int, tets [][4]int) [][]int {
	out := make([][]int, len(tets))
	for i, t := range tets {
		out[i] = []int{verts[t[0]], verts[t[1]], verts[t[2]], verts[t[3]]}
	}
	return out
}
