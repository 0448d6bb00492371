package adapt

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/logging"
	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/operators"
	"github.com/notargets/meshadapt/shape"
	"github.com/notargets/meshadapt/sizefield"
)

// IterationStats is the state of the mesh at the end of one loop iteration
type IterationStats struct {
	Iteration    int
	Elements     int
	Vertices     int
	WorstQuality float64
}

// Report summarizes a run
type Report struct {
	Iterations     []IterationStats
	ResidualPasses int
	InitialWorst   float64
	FinalWorst     float64
	Final          shape.Stats
	Elapsed        time.Duration
}

// Adapt runs the adaptation described by in on in.Mesh
func Adapt(in *Input) error {
	_, err := Run(in, false)
	return err
}

// AdaptVerbose is Adapt with the diagnostic extras: emptiness checks, shape
// fixing inside the loop, debug dumps, the residual long-edge loop and a
// final smoothing.
func AdaptVerbose(in *Input, verbose bool) error {
	_, err := Run(in, verbose)
	return err
}

// Run adapts in.Mesh and reports what happened. Structural and geometric
// failures end the run with an error satisfying IsFatal.
func Run(in *Input, verbose bool) (*Report, error) {
	start := time.Now()
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	s := NewSession(in)
	if err := s.run(verbose); err != nil {
		return s.Report, err
	}
	s.Report.Elapsed = time.Since(start)
	s.Logger.Info("mesh adapted", "seconds", s.Report.Elapsed.Seconds())
	s.Mesh().LogStatistics(s.Logger)
	return s.Report, nil
}

func (s *Session) run(verbose bool) (err error) {
	var (
		in = s.In
		m  = s.Mesh()
	)
	s.Report.InitialWorst = s.worstQuality()
	s.Logger.Info("adapting mesh", "dimension", m.Dimension(), "elements", m.Count(m.Dimension()),
		"iterations", in.MaximumIterations, "verbose", verbose)

	if err = s.runner().PreBalance(in.PreBalance); err != nil {
		return
	}
	if verbose {
		if err = CheckEmpty(m, "pre balance"); err != nil {
			return
		}
	}
	for i := 0; i < in.MaximumIterations; i++ {
		s.Logger.Info("iteration", "iteration", i)
		if err = s.coarsen(); err != nil {
			return
		}
		if verbose && in.ShouldCoarsen {
			s.dump(i, "after_coarsen")
		}
		if err = s.coarsenLayer(); err != nil {
			return
		}
		if err = s.runner().MidBalance(in.MidBalance); err != nil {
			return
		}
		if verbose {
			if err = CheckEmpty(m, "mid balance"); err != nil {
				return
			}
		}
		if err = s.refine(); err != nil {
			return
		}
		if verbose && in.ShouldRefine {
			s.dump(i, "after_refine")
		}
		if err = s.snap(); err != nil {
			return
		}
		if verbose && in.ShouldSnap {
			s.dump(i, "after_snap")
		}
		if verbose {
			if err = s.fixElementShapes(); err != nil {
				return
			}
			if in.ShouldFixShape {
				s.dump(i, "after_fix")
			}
		}
		s.record(i)
	}

	s.Ops.AllowSplitCollapseOutsideLayer()
	if err = s.fixElementShapes(); err != nil {
		return
	}
	if verbose {
		s.dump(in.MaximumIterations, "after_final_fix")
		if s.Report.ResidualPasses, err = s.eliminateLongEdges(); err != nil {
			return
		}
		s.dump(in.MaximumIterations, "after_residual_refine")
		PrintQuality(m, in.Field, in.GoodQuality, s.Logger)
		if _, err = s.Ops.ImproveQualities(); err != nil {
			return fmt.Errorf("improving qualities: %w", err)
		}
		s.dump(in.MaximumIterations, "after_improve")
	}
	if err = s.cleanupLayer(); err != nil {
		return
	}
	if err = s.tetrahedronize(); err != nil {
		return
	}
	s.Report.Final = PrintQuality(m, in.Field, in.GoodQuality, s.Logger)
	s.Report.FinalWorst = s.Report.Final.Worst
	if err = s.runner().PostBalance(in.PostBalance); err != nil {
		return
	}
	if verbose {
		err = CheckEmpty(m, "post balance")
	}
	return
}

func (s *Session) coarsen() error {
	if !s.In.ShouldCoarsen {
		return nil
	}
	s.CoarsensLeft = max(0, s.CoarsensLeft-1)
	if _, err := s.Ops.Coarsen(); err != nil {
		return fmt.Errorf("coarsening: %w", err)
	}
	return nil
}

func (s *Session) coarsenLayer() error {
	if !s.In.ShouldCoarsenLayer {
		return nil
	}
	if _, err := s.Ops.CoarsenLayer(); err != nil {
		return fmt.Errorf("coarsening layer: %w", err)
	}
	return nil
}

func (s *Session) refine() error {
	if !s.In.ShouldRefine {
		return nil
	}
	s.RefinesLeft = max(0, s.RefinesLeft-1)
	if _, err := s.Ops.Refine(); err != nil {
		return fmt.Errorf("refining: %w", err)
	}
	return nil
}

func (s *Session) snap() error {
	if !s.In.ShouldSnap {
		return nil
	}
	if _, err := s.Ops.Snap(); err != nil {
		return fmt.Errorf("snapping: %w", err)
	}
	return nil
}

func (s *Session) fixElementShapes() error {
	if !s.In.ShouldFixShape {
		return nil
	}
	if _, err := s.Ops.FixElementShapes(); err != nil {
		return fmt.Errorf("fixing shapes: %w", err)
	}
	return nil
}

func (s *Session) cleanupLayer() error {
	if !s.In.ShouldCleanupLayer {
		return nil
	}
	if _, err := s.Ops.CleanupLayer(); err != nil {
		return fmt.Errorf("cleaning up layer: %w", err)
	}
	return nil
}

func (s *Session) tetrahedronize() error {
	if !s.In.ShouldTurnLayerToTets {
		return nil
	}
	_, err := s.Ops.Tetrahedronize()
	var se *operators.SplitError
	if errors.As(err, &se) {
		return &GeometricError{Element: se.Element, Type: se.Type, Good: se.Good, Rotation: se.Rotation, Err: err}
	}
	if err != nil {
		return fmt.Errorf("tetrahedronizing: %w", err)
	}
	return nil
}

// eliminateLongEdges refines and snaps while edges longer than
// MaxEdgeLength remain, at most MaxResidualPasses times
func (s *Session) eliminateLongEdges() (passes int, err error) {
	var (
		in      = s.In
		lMax, _ = sizefield.MaximumEdgeLength(in.Field, s.Mesh())
	)
	s.Logger.Info("maximum metric edge length", "length", lMax)
	for lMax > in.MaxEdgeLength {
		if passes == in.MaxResidualPasses {
			s.Logger.Warn("long edges remain", "passes", passes, "length", lMax)
			return
		}
		if err = s.refine(); err != nil {
			return
		}
		if err = s.snap(); err != nil {
			return
		}
		passes++
		lMax, _ = sizefield.MaximumEdgeLength(in.Field, s.Mesh())
		s.Logger.Info("maximum metric edge length", "pass", passes, "length", lMax)
	}
	return
}

// dump writes the mesh and its element qualities to DebugDir
func (s *Session) dump(iteration int, name string) {
	if s.In.DebugDir == "" {
		return
	}
	var box *r3.Box
	if bm, ok := s.In.Model.(*mesh.BoxModel); ok {
		box = &bm.Box
	}
	m := s.Mesh()
	file := filepath.Join(s.In.DebugDir, fmt.Sprintf("%s_%d.mesh", name, iteration))
	if err := os.MkdirAll(s.In.DebugDir, 0o755); err != nil {
		s.Logger.Warn("cannot create debug directory", "dir", s.In.DebugDir, "err", err)
		return
	}
	if err := mesh.WriteNativeFile(file, m, box, shape.Qualities(m, s.In.Field)); err != nil {
		s.Logger.Warn("debug dump failed", "file", file, "err", err)
		return
	}
	s.Logger.Debug("wrote debug mesh", "file", file)
}

// CheckEmpty fails when m has no elements or no vertices left
func CheckEmpty(m *mesh.Mesh, stage string) error {
	elems, verts := m.Count(m.Dimension()), m.Count(0)
	if elems == 0 || verts == 0 {
		return &StructuralError{Stage: stage, Elements: elems, Vertices: verts}
	}
	return nil
}

// PrintQuality logs the quality statistics of m and returns them
func PrintQuality(m *mesh.Mesh, f sizefield.SizeField, good float64, logger *slog.Logger) shape.Stats {
	st := shape.QualityStats(m, f, good)
	logging.OrNop(logger).Info("element quality", "worst", st.Worst, "mean", st.Mean,
		"best", st.Best, "below good", st.Below, "elements", st.Count)
	return st
}

// RunUniformRefinement splits every edge of m n times and does nothing
// else
func RunUniformRefinement(m *mesh.Mesh, model mesh.Model, n int, logger *slog.Logger) error {
	in := DefaultInput(m, model, sizefield.Uniform{H: 1})
	in.Logger = logger
	in.MaximumIterations = n
	in.ShouldCoarsen = false
	in.ShouldSnap = false
	in.ShouldFixShape = false
	in.MidBalance = in.PreBalance
	in.PostBalance = in.PreBalance
	in.Operations = uniformRefiner{NewEngine(in)}
	return Adapt(in)
}
