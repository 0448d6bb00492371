package sizefield

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/mesh"
)

// Length is the metric length of segment ab, averaging the transforms at
// both ends
func Length(f SizeField, a, b r3.Vec) float64 {
	d := r3.Sub(b, a)
	return 0.5 * (r3.Norm(f.Transform(a).Apply(d)) + r3.Norm(f.Transform(b).Apply(d)))
}

// EdgeLength is the metric length of a mesh edge
func EdgeLength(f SizeField, m *mesh.Mesh, ek mesh.EdgeKey) float64 {
	ev := ek.Vertices()
	return Length(f, m.Vertices[ev[0]], m.Vertices[ev[1]])
}

// MetricPoints maps points into metric space about their centroid, using the
// transform at the centroid
func MetricPoints(f SizeField, pts []r3.Vec) []r3.Vec {
	var c r3.Vec
	for _, p := range pts {
		c = r3.Add(c, p)
	}
	c = r3.Scale(1/float64(len(pts)), c)
	t := f.Transform(c)
	out := make([]r3.Vec, len(pts))
	for i, p := range pts {
		out[i] = t.Apply(r3.Sub(p, c))
	}
	return out
}

// Weight is the metric measure of element e divided by the measure of the
// ideal unit simplex of the same dimension: roughly the number of ideal
// elements that fit inside it.
func Weight(f SizeField, m *mesh.Mesh, e int) float64 {
	t := m.Type(e)
	return mesh.Measure(t, MetricPoints(f, m.Points(e))) / mesh.IdealMeasure[t.Dimension()]
}

// FaceWeight is Weight for a triangular or quadrilateral face given by its
// vertices
func FaceWeight(f SizeField, m *mesh.Mesh, face []int) float64 {
	pts := make([]r3.Vec, len(face))
	for i, v := range face {
		pts[i] = m.Vertices[v]
	}
	t := mesh.Triangle
	if len(face) == 4 {
		t = mesh.Quad
	}
	return mesh.Measure(t, MetricPoints(f, pts)) / mesh.IdealMeasure[2]
}

// MaximumEdgeLength returns the longest metric edge of the mesh
func MaximumEdgeLength(f SizeField, m *mesh.Mesh) (lMax float64, longest mesh.EdgeKey) {
	for _, ek := range m.Edges() {
		if l := EdgeLength(f, m, ek); l > lMax {
			lMax, longest = l, ek
		}
	}
	return
}

// MinimumEdgeLength returns the shortest metric edge of the mesh
func MinimumEdgeLength(f SizeField, m *mesh.Mesh) (lMin float64, shortest mesh.EdgeKey) {
	lMin = math.Inf(1)
	for _, ek := range m.Edges() {
		if l := EdgeLength(f, m, ek); l < lMin {
			lMin, shortest = l, ek
		}
	}
	return
}

// LengthStats summarizes metric edge lengths
type LengthStats struct {
	Min, Max, Mean float64
	Count          int
	Short, Long    int // edges outside [shortBound, longBound]
}

// EdgeLengthStats measures every edge of the mesh
func EdgeLengthStats(f SizeField, m *mesh.Mesh, shortBound, longBound float64) (s LengthStats) {
	edges := m.Edges()
	if len(edges) == 0 {
		return
	}
	lengths := make([]float64, len(edges))
	for i, ek := range edges {
		lengths[i] = EdgeLength(f, m, ek)
		if lengths[i] < shortBound {
			s.Short++
		}
		if lengths[i] > longBound {
			s.Long++
		}
	}
	s.Count = len(lengths)
	s.Min, s.Max = floats.Min(lengths), floats.Max(lengths)
	s.Mean = floats.Sum(lengths) / float64(len(lengths))
	return
}
