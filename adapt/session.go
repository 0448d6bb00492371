package adapt

import (
	"log/slog"

	"github.com/notargets/meshadapt/balance"
	"github.com/notargets/meshadapt/logging"
	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/shape"
)

// Session is the state of one run: the input, the operations working on
// its mesh and the counters the element weights depend on.
type Session struct {
	In     *Input
	Ops    Operations
	Logger *slog.Logger

	// RefinesLeft and CoarsensLeft start at MaximumIterations and drop by
	// one each time the phase runs
	RefinesLeft  int
	CoarsensLeft int

	Report *Report
}

// NewSession prepares a run of in, which must be valid
func NewSession(in *Input) *Session {
	s := &Session{
		In:           in,
		Ops:          in.Operations,
		Logger:       logging.OrNop(in.Logger),
		RefinesLeft:  in.MaximumIterations,
		CoarsensLeft: in.MaximumIterations,
		Report:       &Report{},
	}
	if s.Ops == nil {
		s.Ops = NewEngine(in)
	}
	return s
}

// Mesh is the mesh being adapted
func (s *Session) Mesh() *mesh.Mesh { return s.In.Mesh }

func (s *Session) calculator() *balance.Calculator {
	in := s.In
	return &balance.Calculator{
		Mesh:  in.Mesh,
		Field: in.Field,
		Params: balance.Params{
			RefinesLeft:           s.RefinesLeft,
			CoarsensLeft:          s.CoarsensLeft,
			ShouldRefineLayer:     in.ShouldRefineLayer,
			ShouldCoarsenLayer:    in.ShouldCoarsenLayer,
			ShouldTurnLayerToTets: in.ShouldTurnLayerToTets,
			CoarsenBase:           in.CoarsenBase,
		},
	}
}

// runner is rebuilt for every stage so the weights see the current counters
func (s *Session) runner() *balance.Runner {
	return &balance.Runner{
		Calc:          s.calculator(),
		MaxImbalance:  s.In.MaximumImbalance,
		DiffusionStep: s.In.DiffusionStep,
		Logger:        s.Logger,
		NewBalancer:   s.In.NewBalancer,
	}
}

func (s *Session) worstQuality() float64 {
	m := s.Mesh()
	return shape.WorstQuality(m, s.In.Field, shape.LiveElements(m))
}

func (s *Session) record(iteration int) {
	m := s.Mesh()
	st := IterationStats{
		Iteration:    iteration,
		Elements:     m.Count(m.Dimension()),
		Vertices:     m.Count(0),
		WorstQuality: s.worstQuality(),
	}
	s.Report.Iterations = append(s.Report.Iterations, st)
	s.Logger.Info("iteration done", "iteration", iteration, "elements", st.Elements,
		"vertices", st.Vertices, "worst", st.WorstQuality)
}
