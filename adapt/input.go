// Package adapt drives a mesh toward a size field: a bounded loop of
// coarsening, balancing, refinement and snapping, followed by shape repair,
// conversion of the boundary layer to simplices and a final balance.
package adapt

import (
	"fmt"
	"log/slog"

	"github.com/notargets/meshadapt/balance"
	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/sizefield"
)

// Input configures one adaptation run. It is not modified by the run.
type Input struct {
	Mesh   *mesh.Mesh
	Model  mesh.Model
	Field  sizefield.SizeField
	Logger *slog.Logger

	MaximumIterations int
	MaximumImbalance  float64

	PreBalance  balance.Stage
	MidBalance  balance.Stage
	PostBalance balance.Stage

	ShouldCoarsen  bool
	ShouldRefine   bool
	ShouldSnap     bool
	ShouldFixShape bool

	// ShouldRefineLayer and ShouldCoarsenLayer let layer elements take
	// weights away from 1 and let the built-in engine split and collapse
	// edges that reach layer vertices. The engine never splits prism stacks
	// and its CoarsenLayer only warns.
	ShouldRefineLayer     bool
	ShouldCoarsenLayer    bool
	ShouldTurnLayerToTets bool
	ShouldCleanupLayer    bool

	GoodQuality   float64
	ValidQuality  float64
	MinEdgeLength float64
	MaxEdgeLength float64

	// MaxResidualPasses bounds the refine and snap passes made after the
	// loop while edges longer than MaxEdgeLength remain
	MaxResidualPasses int
	SmoothPasses      int
	CoarsenBase       float64
	DiffusionStep     float64

	// DebugDir receives a native mesh dump after each phase of a verbose run
	DebugDir string

	// Operations replaces the mesh modification engine
	Operations Operations
	// NewBalancer replaces the built-in balancers
	NewBalancer func(v balance.Variant) balance.Balancer
}

// DefaultInput returns the configuration of a full adaptation of m toward f
func DefaultInput(m *mesh.Mesh, model mesh.Model, f sizefield.SizeField) *Input {
	return &Input{
		Mesh:              m,
		Model:             model,
		Field:             f,
		MaximumIterations: 3,
		MaximumImbalance:  1.10,
		MidBalance:        balance.Stage{Diffusive: true},
		PostBalance:       balance.Stage{Graph: true},
		ShouldCoarsen:     true,
		ShouldRefine:      true,
		ShouldSnap:        true,
		ShouldFixShape:    true,
		GoodQuality:       0.027,
		ValidQuality:      1.e-10,
		MinEdgeLength:     0.5,
		MaxEdgeLength:     1.5,
		MaxResidualPasses: 5,
		SmoothPasses:      2,
		CoarsenBase:       balance.DefaultCoarsenBase,
		DiffusionStep:     balance.DefaultDiffusionStep,
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ValidateInput rejects configurations the run cannot honour
func ValidateInput(in *Input) error {
	switch {
	case in == nil:
		return invalid("no input")
	case in.Mesh == nil:
		return invalid("no mesh")
	case in.Field == nil:
		return invalid("no size field")
	case in.Mesh.Dimension() != 2 && in.Mesh.Dimension() != 3:
		return invalid("mesh dimension %d", in.Mesh.Dimension())
	case in.MaximumIterations < 0:
		return invalid("maximum iterations %d", in.MaximumIterations)
	case in.MaximumImbalance < 1:
		return invalid("maximum imbalance %g is below 1", in.MaximumImbalance)
	case in.ValidQuality < 0 || in.GoodQuality <= in.ValidQuality || in.GoodQuality > 1:
		return invalid("qualities need 0 <= valid (%g) < good (%g) <= 1", in.ValidQuality, in.GoodQuality)
	case in.MinEdgeLength <= 0 || in.MaxEdgeLength <= in.MinEdgeLength:
		return invalid("edge lengths need 0 < min (%g) < max (%g)", in.MinEdgeLength, in.MaxEdgeLength)
	case 2*in.MinEdgeLength > in.MaxEdgeLength:
		// a split edge would be collapsed again
		return invalid("min edge length %g is above half the max %g", in.MinEdgeLength, in.MaxEdgeLength)
	case in.MaxResidualPasses < 0:
		return invalid("residual passes %d", in.MaxResidualPasses)
	case in.CoarsenBase != 0 && in.CoarsenBase <= 1:
		// zero selects the default base
		return invalid("coarsen base %g must exceed 1", in.CoarsenBase)
	case in.DiffusionStep < 0 || in.DiffusionStep > 1:
		return invalid("diffusion step %g", in.DiffusionStep)
	case in.Operations == nil && in.Mesh.IsQuadratic():
		return invalid("quadratic meshes need their own operations")
	}
	return nil
}
