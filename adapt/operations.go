package adapt

import (
	"github.com/notargets/meshadapt/operators"
)

// Operations are the mesh modifications a run is made of. Each returns the
// number of changes it made. *operators.Engine is the built-in
// implementation.
type Operations interface {
	Coarsen() (int, error)
	CoarsenLayer() (int, error)
	Refine() (int, error)
	Snap() (int, error)
	FixElementShapes() (int, error)
	ImproveQualities() (int, error)
	CleanupLayer() (int, error)
	Tetrahedronize() (int, error)
	AllowSplitCollapseOutsideLayer()
}

var _ Operations = (*operators.Engine)(nil)

// NewEngine returns the built-in operations configured from in
func NewEngine(in *Input) *operators.Engine {
	e := operators.NewEngine(in.Mesh, in.Model, in.Field, in.Logger)
	e.Config = operators.Config{
		MinEdgeLength: in.MinEdgeLength,
		MaxEdgeLength: in.MaxEdgeLength,
		GoodQuality:   in.GoodQuality,
		ValidQuality:  in.ValidQuality,
		SmoothPasses:  in.SmoothPasses,
		RefineLayer:   in.ShouldRefineLayer,
		CoarsenLayer:  in.ShouldCoarsenLayer,
	}
	return e
}

// uniformRefiner splits every edge on each refine, whatever its length
type uniformRefiner struct {
	*operators.Engine
}

func (u uniformRefiner) Refine() (int, error) { return u.RunUniformRefinement() }
