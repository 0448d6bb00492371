// Package operators holds the local mesh modifications adaptation is built
// from: edge collapse, edge split, boundary snapping, vertex smoothing and
// the conversion of boundary layer elements to simplices.
package operators

import (
	"errors"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/logging"
	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/shape"
	"github.com/notargets/meshadapt/sizefield"
)

// ErrQuadraticMesh is returned by every operator run on a mesh with
// mid-edge nodes
var ErrQuadraticMesh = errors.New("operators need a linear mesh")

// Config bounds the operators. Lengths are measured in metric space.
type Config struct {
	MinEdgeLength float64 // collapse edges shorter than this
	MaxEdgeLength float64 // split edges longer than this
	GoodQuality   float64 // elements below this are reshaped
	ValidQuality  float64 // no operator leaves an element at or below this
	SmoothPasses  int     // passes made by ImproveQualities

	// RefineLayer and CoarsenLayer lift the loop-time freeze on vertices of
	// layer elements for Refine and Coarsen. Layer elements are never split
	// or collapsed themselves.
	RefineLayer  bool
	CoarsenLayer bool
}

// DefaultConfig returns the bounds used when nothing else is configured
func DefaultConfig() Config {
	return Config{
		MinEdgeLength: 0.5,
		MaxEdgeLength: 1.5,
		GoodQuality:   0.027,
		ValidQuality:  1.e-10,
		SmoothPasses:  2,
	}
}

// Engine modifies one mesh toward a size field. The mesh is compacted
// after every pass, so element and vertex ids do not survive a call.
type Engine struct {
	Mesh   *mesh.Mesh
	Model  mesh.Model
	Field  sizefield.SizeField
	Config Config
	Logger *slog.Logger

	// relaxed lets splits and collapses reach vertices of layer elements;
	// edges and vertices the layer elements own stay frozen
	relaxed bool
}

// NewEngine returns an engine with DefaultConfig
func NewEngine(m *mesh.Mesh, model mesh.Model, f sizefield.SizeField, logger *slog.Logger) *Engine {
	return &Engine{
		Mesh:   m,
		Model:  model,
		Field:  f,
		Config: DefaultConfig(),
		Logger: logging.OrNop(logger),
	}
}

// AllowSplitCollapseOutsideLayer lifts the loop-time freeze on every vertex
// of a layer element; only the layer elements themselves stay untouched.
func (e *Engine) AllowSplitCollapseOutsideLayer() {
	e.relaxed = true
}

// Relaxed reports whether AllowSplitCollapseOutsideLayer has been called
func (e *Engine) Relaxed() bool { return e.relaxed }

func (e *Engine) logger() *slog.Logger {
	return logging.OrNop(e.Logger)
}

func (e *Engine) checkLinear() error {
	if e.Mesh.IsQuadratic() {
		return ErrQuadraticMesh
	}
	return nil
}

// layerVertices marks the vertices used by non-simplex elements
func layerVertices(m *mesh.Mesh) []bool {
	layer := make([]bool, len(m.Vertices))
	for el, verts := range m.Elements {
		if verts == nil || m.IsSimplex(el) {
			continue
		}
		for _, v := range verts {
			layer[v] = true
		}
	}
	return layer
}

// liveCavity returns the live elements of up
func liveCavity(m *mesh.Mesh, up []int) []int {
	cav := make([]int, 0, len(up))
	for _, el := range up {
		if m.IsAlive(el) {
			cav = append(cav, el)
		}
	}
	return cav
}

func allSimplices(m *mesh.Mesh, elems []int) bool {
	for _, el := range elems {
		if !m.IsSimplex(el) {
			return false
		}
	}
	return true
}

func contains(verts []int, v int) bool {
	for _, x := range verts {
		if x == v {
			return true
		}
	}
	return false
}

// worst is the lowest quality over elems, +Inf when empty
func (e *Engine) worst(elems []int) float64 {
	w := math.Inf(1)
	for _, el := range elems {
		w = math.Min(w, shape.ElementQuality(e.Mesh, e.Field, el))
	}
	return w
}

func (e *Engine) edgeLength(a, b int) float64 {
	return sizefield.Length(e.Field, e.Mesh.Vertices[a], e.Mesh.Vertices[b])
}

// projectTo moves x onto the model entity of vertex v when v is on the
// boundary
func (e *Engine) projectTo(v int, x r3.Vec) r3.Vec {
	c := e.Mesh.Classification[v]
	if e.Model == nil || c.Dim >= e.Mesh.Dimension() {
		return x
	}
	return e.Model.Project(c, x)
}
