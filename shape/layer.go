package shape

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/mesh"
)

// A prism has bottom triangle 0,1,2 and top 3,4,5 with vertex i+3 above i.
// Quad face i runs along bottom edge i -> (i+1)%3. Bit i of a DiagonalCode
// picks the diagonal that splits face i:
//
//	0: (i, (i+1)%3+3)
//	1: ((i+1)%3, i+3)
//
// Codes 0 and 7 make the diagonals cyclic and admit no tetrahedronization.
type DiagonalCode uint8

const NumPrismCodes = 8

var prismTets = [NumPrismCodes][][4]int{
	1: {{0, 1, 2, 3}, {3, 1, 2, 5}, {3, 1, 5, 4}},
	2: {{1, 2, 0, 4}, {4, 2, 0, 3}, {4, 2, 3, 5}},
	3: {{0, 1, 2, 3}, {3, 1, 2, 4}, {3, 2, 5, 4}},
	4: {{0, 3, 4, 5}, {0, 1, 2, 5}, {0, 1, 5, 4}},
	5: {{1, 4, 5, 3}, {1, 2, 0, 5}, {1, 0, 3, 5}},
	6: {{0, 3, 4, 5}, {0, 1, 2, 4}, {0, 2, 5, 4}},
}

// PrismTets returns the three tets of a prism split by code, in local vertex
// numbering, or nil for the cyclic codes
func PrismTets(code DiagonalCode) [][4]int {
	if code >= NumPrismCodes {
		return nil
	}
	return prismTets[code]
}

// PrismFaceDiagonal returns the local vertices of the diagonal code picks on
// quad face i
func PrismFaceDiagonal(code DiagonalCode, i int) [2]int {
	j := (i + 1) % 3
	if code&(1<<i) == 0 {
		return [2]int{i, j + 3}
	}
	return [2]int{j, i + 3}
}

// PrismFaceQuad returns the local vertices of quad face i
func PrismFaceQuad(i int) [4]int {
	j := (i + 1) % 3
	return [4]int{i, j, j + 3, i + 3}
}

// DefaultPrismCode splits every quad face along the diagonal through its
// lowest global vertex id. Neighbours sharing the face agree on it, and the
// result is never cyclic.
func DefaultPrismCode(verts []int) (code DiagonalCode) {
	for i := 0; i < 3; i++ {
		q := PrismFaceQuad(i)
		low := 0
		for k := 1; k < 4; k++ {
			if verts[q[k]] < verts[q[low]] {
				low = k
			}
		}
		// quad positions 0 and 2 lie on the bit 0 diagonal
		if low == 1 || low == 3 {
			code |= 1 << i
		}
	}
	return
}

func tetsValid(pts []r3.Vec, tets [][4]int) bool {
	if len(tets) == 0 {
		return false
	}
	for _, t := range tets {
		if mesh.Orient3D(pts[t[0]], pts[t[1]], pts[t[2]], pts[t[3]]) <= 0 {
			return false
		}
	}
	return true
}

// GoodPrismCodes returns a bitmask with bit c set when code c splits the
// prism with corner points pts into positive volume tets
func GoodPrismCodes(pts []r3.Vec) (good uint8) {
	for c := DiagonalCode(1); c < NumPrismCodes-1; c++ {
		if tetsValid(pts, prismTets[c]) {
			good |= 1 << c
		}
	}
	return
}

// IsPrismSafe reports whether the default split of prism e is valid, along
// with the mask of all codes that are. A mask of zero means no split works.
func IsPrismSafe(m *mesh.Mesh, e int) (ok bool, good uint8) {
	good = GoodPrismCodes(m.Points(e))
	code := DefaultPrismCode(m.Elements[e])
	return good&(1<<code) != 0, good
}

// Rotation picks the diagonal that splits the base of a pyramid or a quad
type Rotation int

const (
	NoRotation Rotation = -1
	Diagonal02 Rotation = 0
	Diagonal13 Rotation = 1
)

var pyramidTets = [2][][4]int{
	{{0, 1, 2, 4}, {0, 2, 3, 4}},
	{{1, 2, 3, 4}, {1, 3, 0, 4}},
}

// PyramidTets returns the two tets of a pyramid split along the base
// diagonal selected by r
func PyramidTets(r Rotation) [][4]int {
	if r != Diagonal02 && r != Diagonal13 {
		return nil
	}
	return pyramidTets[r]
}

// PyramidRotation returns the first base diagonal giving two positive tets,
// or NoRotation
func PyramidRotation(pts []r3.Vec) Rotation {
	for _, r := range []Rotation{Diagonal02, Diagonal13} {
		if tetsValid(pts, pyramidTets[r]) {
			return r
		}
	}
	return NoRotation
}

// IsPyramidSafe reports whether pyramid e splits validly without rotation,
// and which rotation does the job
func IsPyramidSafe(m *mesh.Mesh, e int) (ok bool, r Rotation) {
	r = PyramidRotation(m.Points(e))
	return r == Diagonal02, r
}

var quadTris = [2][2][3]int{
	{{0, 1, 2}, {0, 2, 3}},
	{{1, 2, 3}, {1, 3, 0}},
}

// QuadTriangles returns the two triangles of a quad split along r
func QuadTriangles(r Rotation) [][3]int {
	if r != Diagonal02 && r != Diagonal13 {
		return nil
	}
	return quadTris[r][:]
}

// QuadRotation is PyramidRotation for a planar quad
func QuadRotation(pts []r3.Vec) Rotation {
	for _, r := range []Rotation{Diagonal02, Diagonal13} {
		valid := true
		for _, t := range quadTris[r] {
			if mesh.Orient2D(pts[t[0]], pts[t[1]], pts[t[2]]) <= 0 {
				valid = false
			}
		}
		if valid {
			return r
		}
	}
	return NoRotation
}

// IsLayerElementSafe applies the prism or pyramid check by element type.
// Other types are always safe.
func IsLayerElementSafe(m *mesh.Mesh, e int) bool {
	switch m.Type(e) {
	case mesh.Prism:
		ok, _ := IsPrismSafe(m, e)
		return ok
	case mesh.Pyramid:
		ok, _ := IsPyramidSafe(m, e)
		return ok
	}
	return true
}

// UnsafeLayerElements lists the prisms and pyramids whose default split is
// invalid
func UnsafeLayerElements(m *mesh.Mesh) (unsafe []int) {
	for _, e := range LiveElements(m) {
		if !IsLayerElementSafe(m, e) {
			unsafe = append(unsafe, e)
		}
	}
	return
}
