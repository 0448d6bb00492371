package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Orient3D is six times the signed volume of tet abcd, positive when d lies
// on the side of abc given by the right hand rule.
func Orient3D(a, b, c, d r3.Vec) float64 {
	return r3.Dot(r3.Sub(b, a), r3.Cross(r3.Sub(c, a), r3.Sub(d, a)))
}

// Orient2D is twice the signed area of triangle abc in the xy plane
func Orient2D(a, b, c r3.Vec) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (c.X-a.X)*(b.Y-a.Y)
}

// TriangleArea is the unsigned area of a triangle in space
func TriangleArea(a, b, c r3.Vec) float64 {
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
}

// Ideal measures of unit-edge simplices, indexed by dimension
var IdealMeasure = [4]float64{1, 1, math.Sqrt(3) / 4, 1 / (6 * math.Sqrt2)}

// measureTets split the 3D element types into tets for volume measurement
var measureTets = map[ElementType][][4]int{
	Tet:     {{0, 1, 2, 3}},
	Prism:   {{0, 3, 4, 5}, {0, 1, 2, 5}, {0, 1, 5, 4}},
	Pyramid: {{0, 1, 2, 4}, {0, 2, 3, 4}},
	Hex:     kuhnTets[:],
}

// Measure returns the unsigned length, area or volume of an element with
// corner points pts. In a 2D mesh areas are taken in the xy plane.
func Measure(t ElementType, pts []r3.Vec) float64 {
	switch t {
	case Line:
		return r3.Norm(r3.Sub(pts[1], pts[0]))
	case Triangle:
		return TriangleArea(pts[0], pts[1], pts[2])
	case Quad:
		return TriangleArea(pts[0], pts[1], pts[2]) + TriangleArea(pts[0], pts[2], pts[3])
	}
	var vol float64
	for _, tet := range measureTets[t] {
		vol += Orient3D(pts[tet[0]], pts[tet[1]], pts[tet[2]], pts[tet[3]]) / 6
	}
	return math.Abs(vol)
}
