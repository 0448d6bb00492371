package mesh

import (
	"math"
	"math/bits"

	"gonum.org/v1/gonum/spatial/r3"
)

// Classification names the geometric model entity a vertex lies on. Dim is
// the model entity dimension; Tag identifies it within the model.
type Classification struct {
	Dim int
	Tag int
}

// Model is the geometric model query layer used to keep boundary vertices on
// the geometry while the mesh is modified.
type Model interface {
	// Classify returns the model entity containing x.
	Classify(x r3.Vec) Classification
	// Project moves x onto model entity c.
	Project(c Classification, x r3.Vec) r3.Vec
	// InClosure reports whether model entity inner lies in the closure of
	// outer, i.e. a vertex on outer may be merged onto a vertex on inner.
	InClosure(outer, inner Classification) bool
	// Common returns the lowest dimension entity whose closure contains both.
	Common(a, b Classification) Classification
}

// Box face bits of a BoxModel classification tag
const (
	XMin = 1 << iota
	XMax
	YMin
	YMax
	ZMin
	ZMax
)

// BoxModel is an axis aligned box (a rectangle when Dim is 2). A model
// entity is identified by the set of box planes it lies on.
type BoxModel struct {
	Box r3.Box
	Dim int
	Tol float64
}

// NewBoxModel returns a box model with a tolerance relative to its size
func NewBoxModel(box r3.Box, dim int) *BoxModel {
	size := r3.Norm(r3.Sub(box.Max, box.Min))
	return &BoxModel{Box: box, Dim: dim, Tol: 1.e-9 * size}
}

func (b *BoxModel) Classify(x r3.Vec) Classification {
	var tag int
	near := func(a, c float64) bool { return math.Abs(a-c) <= b.Tol }
	if near(x.X, b.Box.Min.X) {
		tag |= XMin
	} else if near(x.X, b.Box.Max.X) {
		tag |= XMax
	}
	if near(x.Y, b.Box.Min.Y) {
		tag |= YMin
	} else if near(x.Y, b.Box.Max.Y) {
		tag |= YMax
	}
	if b.Dim == 3 {
		if near(x.Z, b.Box.Min.Z) {
			tag |= ZMin
		} else if near(x.Z, b.Box.Max.Z) {
			tag |= ZMax
		}
	}
	return b.entity(tag)
}

func (b *BoxModel) entity(tag int) Classification {
	return Classification{Dim: b.Dim - bits.OnesCount(uint(tag)), Tag: tag}
}

func (b *BoxModel) Project(c Classification, x r3.Vec) r3.Vec {
	if c.Tag&XMin != 0 {
		x.X = b.Box.Min.X
	}
	if c.Tag&XMax != 0 {
		x.X = b.Box.Max.X
	}
	if c.Tag&YMin != 0 {
		x.Y = b.Box.Min.Y
	}
	if c.Tag&YMax != 0 {
		x.Y = b.Box.Max.Y
	}
	if c.Tag&ZMin != 0 {
		x.Z = b.Box.Min.Z
	}
	if c.Tag&ZMax != 0 {
		x.Z = b.Box.Max.Z
	}
	if b.Dim == 2 {
		x.Z = 0
	}
	return x
}

func (b *BoxModel) InClosure(outer, inner Classification) bool {
	return outer.Tag&inner.Tag == outer.Tag
}

func (b *BoxModel) Common(a, c Classification) Classification {
	return b.entity(a.Tag & c.Tag)
}

// Classify sets the classification of every vertex from the model
func (m *Mesh) Classify(model Model) {
	m.Classification = make([]Classification, len(m.Vertices))
	for i, x := range m.Vertices {
		m.Classification[i] = model.Classify(x)
	}
}

// BoundingBox returns the box containing every vertex
func (m *Mesh) BoundingBox() (box r3.Box) {
	if len(m.Vertices) == 0 {
		return
	}
	box.Min, box.Max = m.Vertices[0], m.Vertices[0]
	for _, x := range m.Vertices[1:] {
		box.Min = r3.Vec{X: math.Min(box.Min.X, x.X), Y: math.Min(box.Min.Y, x.Y), Z: math.Min(box.Min.Z, x.Z)}
		box.Max = r3.Vec{X: math.Max(box.Max.X, x.X), Y: math.Max(box.Max.Y, x.Y), Z: math.Max(box.Max.Z, x.Z)}
	}
	return
}

// PinnedBoundary is the model of an imported mesh with no geometry attached.
// Boundary vertices are classified on dimension 0 entities, so they are
// never moved or merged; only interior vertices are free.
type PinnedBoundary struct {
	Dim int
}

func (p *PinnedBoundary) Classify(r3.Vec) Classification {
	return Classification{Dim: p.Dim}
}

func (p *PinnedBoundary) Project(_ Classification, x r3.Vec) r3.Vec { return x }

func (p *PinnedBoundary) InClosure(outer, _ Classification) bool {
	return outer.Dim == p.Dim
}

// Common is the interior unless both ends are pinned, when the new vertex
// is pinned as well
func (p *PinnedBoundary) Common(a, c Classification) Classification {
	if a.Dim == p.Dim || c.Dim == p.Dim {
		return Classification{Dim: p.Dim}
	}
	return Classification{Dim: 0, Tag: -1}
}
