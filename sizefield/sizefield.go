// Package sizefield describes the target element size and shape as a field
// of linear maps from physical space to metric space, where the ideal edge
// has length one.
package sizefield

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform maps a physical displacement into metric space. For a metric
// tensor M = Q Λ Qᵀ the transform is the symmetric root Q Λ^½ Qᵀ, so
// |Tv|² = vᵀMv, Det > 0 and a metric decoupled from z keeps 2-D points in
// the xy plane.
type Transform [3][3]float64

// Identity is the transform of a unit size field
func Identity() Transform {
	return Scaled(1)
}

// Scaled is the isotropic transform for target size h
func Scaled(h float64) Transform {
	return Transform{{1 / h, 0, 0}, {0, 1 / h, 0}, {0, 0, 1 / h}}
}

// Apply maps v into metric space
func (t Transform) Apply(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: t[0][0]*v.X + t[0][1]*v.Y + t[0][2]*v.Z,
		Y: t[1][0]*v.X + t[1][1]*v.Y + t[1][2]*v.Z,
		Z: t[2][0]*v.X + t[2][1]*v.Y + t[2][2]*v.Z,
	}
}

// Det is the volume scaling of the transform
func (t Transform) Det() float64 {
	return t[0][0]*(t[1][1]*t[2][2]-t[1][2]*t[2][1]) -
		t[0][1]*(t[1][0]*t[2][2]-t[1][2]*t[2][0]) +
		t[0][2]*(t[1][0]*t[2][1]-t[1][1]*t[2][0])
}

// SizeField returns the physical to metric transform at a point
type SizeField interface {
	Transform(x r3.Vec) Transform
}

// Func adapts a plain function to a SizeField
type Func func(x r3.Vec) Transform

func (f Func) Transform(x r3.Vec) Transform { return f(x) }

// Uniform asks for isotropic elements of edge length H everywhere
type Uniform struct {
	H float64
}

func (u Uniform) Transform(r3.Vec) Transform { return Scaled(u.H) }

// Graded is isotropic with a size that varies linearly from H0 on the plane
// through Origin normal to Axis to H1 at distance Length along Axis, and is
// constant beyond.
type Graded struct {
	Origin, Axis   r3.Vec
	H0, H1, Length float64
}

func (g Graded) Transform(x r3.Vec) Transform {
	s := r3.Dot(r3.Sub(x, g.Origin), r3.Unit(g.Axis)) / g.Length
	s = math.Max(0, math.Min(1, s))
	return Scaled(g.H0 + s*(g.H1-g.H0))
}

// Anisotropic is a constant metric
type Anisotropic struct {
	t Transform
}

// NewAnisotropic builds the field from a symmetric positive definite 3x3
// metric tensor
func NewAnisotropic(metric mat.Symmetric) (*Anisotropic, error) {
	if metric.SymmetricDim() != 3 {
		return nil, fmt.Errorf("metric must be 3x3, got %d", metric.SymmetricDim())
	}
	t, err := metricTransform(metric)
	if err != nil {
		return nil, err
	}
	return &Anisotropic{t: t}, nil
}

// NewAnisotropicFromSizes builds the metric Σ dᵢdᵢᵀ/hᵢ² from three principal
// directions and the target sizes along them
func NewAnisotropicFromSizes(dirs [3]r3.Vec, sizes [3]float64) (*Anisotropic, error) {
	metric := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		if sizes[i] <= 0 {
			return nil, fmt.Errorf("size %d must be positive, got %g", i, sizes[i])
		}
		if r3.Norm(dirs[i]) == 0 {
			return nil, fmt.Errorf("direction %d is zero", i)
		}
		d := r3.Unit(dirs[i])
		v := mat.NewVecDense(3, []float64{d.X, d.Y, d.Z})
		metric.SymRankOne(metric, 1/(sizes[i]*sizes[i]), v)
	}
	return NewAnisotropic(metric)
}

func (a *Anisotropic) Transform(r3.Vec) Transform { return a.t }

func metricTransform(metric mat.Symmetric) (t Transform, err error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(metric, true); !ok {
		return t, fmt.Errorf("metric eigen decomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	for k, lambda := range values {
		if lambda <= 0 {
			return t, fmt.Errorf("metric is not positive definite, eigenvalue %d = %g", k, lambda)
		}
		s := math.Sqrt(lambda)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				t[i][j] += s * vectors.At(i, k) * vectors.At(j, k)
			}
		}
	}
	return t, nil
}

// BoundaryLayer is anisotropic near the plane through Origin normal to
// Normal: the normal size grows from H0 by Growth per unit distance up to
// H, while the tangential size is H everywhere.
type BoundaryLayer struct {
	Origin, Normal r3.Vec
	H0, H, Growth  float64
}

// The transform is I/H + (1/hn - 1/H) n nᵀ, symmetric like the
// anisotropic root.
func (b BoundaryLayer) Transform(x r3.Vec) Transform {
	n := r3.Unit(b.Normal)
	d := math.Abs(r3.Dot(r3.Sub(x, b.Origin), n))
	hn := math.Min(b.H, b.H0+b.Growth*d)
	t := Scaled(b.H)
	nv := [3]float64{n.X, n.Y, n.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[i][j] += (1/hn - 1/b.H) * nv[i] * nv[j]
		}
	}
	return t
}
