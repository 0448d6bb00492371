package adapt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/balance"
	"github.com/notargets/meshadapt/logging"
	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/shape"
	"github.com/notargets/meshadapt/sizefield"
)

// fakeOps counts calls and changes nothing unless told to
type fakeOps struct {
	calls    map[string]int
	relaxed  bool
	coarsen  func() (int, error)
	tetError error
}

func newFakeOps() *fakeOps { return &fakeOps{calls: make(map[string]int)} }

func (f *fakeOps) Coarsen() (int, error) {
	f.calls["coarsen"]++
	if f.coarsen != nil {
		return f.coarsen()
	}
	return 0, nil
}
func (f *fakeOps) CoarsenLayer() (int, error)     { f.calls["coarsenLayer"]++; return 0, nil }
func (f *fakeOps) Refine() (int, error)           { f.calls["refine"]++; return 0, nil }
func (f *fakeOps) Snap() (int, error)             { f.calls["snap"]++; return 0, nil }
func (f *fakeOps) FixElementShapes() (int, error) { f.calls["fix"]++; return 0, nil }
func (f *fakeOps) ImproveQualities() (int, error) { f.calls["improve"]++; return 0, nil }
func (f *fakeOps) CleanupLayer() (int, error)     { f.calls["cleanup"]++; return 0, nil }
func (f *fakeOps) Tetrahedronize() (int, error)   { f.calls["tets"]++; return 0, f.tetError }
func (f *fakeOps) AllowSplitCollapseOutsideLayer() {
	f.relaxed = true
}

// fakeBalancer records the variants run and moves nothing
type fakeBalancer struct {
	ran *[]balance.Variant
	v   balance.Variant
}

func (b fakeBalancer) Balance(*mesh.Tag, float64) error {
	*b.ran = append(*b.ran, b.v)
	return nil
}

func recordingBalancers(ran *[]balance.Variant) func(balance.Variant) balance.Balancer {
	return func(v balance.Variant) balance.Balancer { return fakeBalancer{ran: ran, v: v} }
}

// slivered cube: an interior vertex pulled down next to the zmin face
func sliveredCube() (*mesh.Mesh, *mesh.BoxModel) {
	m, model := mesh.NewBoxTetMesh(3, mesh.UnitBox)
	v := 1 + 4*(1+4*1)
	m.Vertices[v] = r3.Vec{X: 1. / 3, Y: 1. / 3, Z: 0.02}
	return m, model
}

func TestCoarsenCubeToDoubleSize(t *testing.T) {
	m, model := sliveredCube()
	in := DefaultInput(m, model, sizefield.Uniform{H: 2})
	in.Logger = logging.NewNop()
	require.True(t, shape.AreSimplicesValid(m, shape.LiveElements(m)))
	before := m.Count(3)

	report, err := Run(in, false)
	require.NoError(t, err)
	require.Len(t, report.Iterations, 3)
	assert.Less(t, report.InitialWorst, in.GoodQuality)

	last := before
	for _, it := range report.Iterations {
		assert.LessOrEqual(t, it.Elements, last, "iteration %d", it.Iteration)
		last = it.Elements
	}
	assert.Less(t, m.Count(3), before)
	assert.GreaterOrEqual(t, report.FinalWorst, report.InitialWorst)
	assert.True(t, shape.AreSimplicesValid(m, shape.LiveElements(m)))

	var volume float64
	for _, e := range shape.LiveElements(m) {
		volume += mesh.Measure(m.Type(e), m.Points(e))
	}
	assert.InDelta(t, 1, volume, 1.e-9)
}

func TestResidualLoopIsBounded(t *testing.T) {
	m, model := mesh.NewBoxTetMesh(1, mesh.UnitBox)
	in := DefaultInput(m, model, sizefield.Uniform{H: 1.e-3})
	in.MaximumIterations = 0
	ops := newFakeOps()
	in.Operations = ops

	report, err := Run(in, true)
	require.NoError(t, err)
	assert.Equal(t, 5, report.ResidualPasses)
	assert.Equal(t, 5, ops.calls["refine"])
	assert.Equal(t, 5, ops.calls["snap"])
	assert.Equal(t, 1, ops.calls["improve"])
	assert.True(t, ops.relaxed)

	// without verbose there is no residual loop
	ops = newFakeOps()
	in.Operations = ops
	report, err = Run(in, false)
	require.NoError(t, err)
	assert.Zero(t, report.ResidualPasses)
	assert.Zero(t, ops.calls["refine"])
}

func TestPhaseFlags(t *testing.T) {
	m, model := mesh.NewBoxTetMesh(1, mesh.UnitBox)
	in := DefaultInput(m, model, sizefield.Uniform{H: 1})
	in.MaximumIterations = 2
	in.ShouldCoarsen = false
	in.ShouldTurnLayerToTets = true
	in.ShouldCleanupLayer = true
	ops := newFakeOps()
	in.Operations = ops

	require.NoError(t, Adapt(in))
	assert.Zero(t, ops.calls["coarsen"])
	assert.Zero(t, ops.calls["coarsenLayer"])
	assert.Equal(t, 2, ops.calls["refine"])
	assert.Equal(t, 2, ops.calls["snap"])
	assert.Equal(t, 1, ops.calls["fix"], "shapes are fixed once after the loop")
	assert.Equal(t, 1, ops.calls["cleanup"])
	assert.Equal(t, 1, ops.calls["tets"])

	ops = newFakeOps()
	in.Operations = ops
	require.NoError(t, AdaptVerbose(in, true))
	assert.Equal(t, 3, ops.calls["fix"], "and inside the loop when verbose")
}

func TestCountersFloorAtZero(t *testing.T) {
	m, model := mesh.NewBoxTetMesh(1, mesh.UnitBox)
	in := DefaultInput(m, model, sizefield.Uniform{H: 1.e-3})
	in.MaximumIterations = 2
	ops := newFakeOps()
	in.Operations = ops

	s := NewSession(in)
	assert.Equal(t, 2, s.RefinesLeft)
	assert.Equal(t, 2, s.CoarsensLeft)
	require.NoError(t, s.run(true))
	assert.Equal(t, 7, ops.calls["refine"], "two in the loop and five residual")
	assert.Zero(t, s.RefinesLeft)
	assert.Zero(t, s.CoarsensLeft)

	p := s.calculator().Params
	assert.Zero(t, p.RefinesLeft)
	assert.Zero(t, p.CoarsensLeft)
	assert.Equal(t, in.CoarsenBase, p.CoarsenBase)
}

func TestSinglePartitionSkipsBalancing(t *testing.T) {
	m, model := mesh.NewBoxTetMesh(2, mesh.UnitBox)
	in := DefaultInput(m, model, sizefield.Uniform{H: 1})
	in.PreBalance = balance.Stage{Graph: true, RIB: true, Diffusive: true}
	var ran []balance.Variant
	in.NewBalancer = recordingBalancers(&ran)
	in.Operations = newFakeOps()
	before := m.Clone()

	require.NoError(t, Adapt(in))
	assert.Empty(t, ran)
	assert.Equal(t, before.Elements, m.Elements)
	assert.Equal(t, before.EToP, m.EToP)
	assert.Empty(t, m.Tags(), "weight tags are destroyed")
}

func TestBalanceStagesRun(t *testing.T) {
	m, model := mesh.NewBoxTetMesh(2, mesh.UnitBox)
	m.PartitionByIndex(4)
	in := DefaultInput(m, model, sizefield.Uniform{H: 1})
	in.MaximumIterations = 2
	in.PreBalance = balance.Stage{RIB: true}
	var ran []balance.Variant
	in.NewBalancer = recordingBalancers(&ran)
	in.Operations = newFakeOps()

	require.NoError(t, Adapt(in))
	assert.Equal(t, []balance.Variant{
		balance.RIBVariant, balance.DiffusiveVariant, balance.DiffusiveVariant, balance.GraphVariant,
	}, ran)
	assert.Empty(t, m.Tags())
}

func TestBuiltInBalancersKeepImbalance(t *testing.T) {
	m, model := mesh.NewBoxTetMesh(3, mesh.UnitBox)
	m.PartitionByIndex(3)
	for e := range m.EToP {
		m.EToP[e] = 0
	}
	m.EToP[len(m.EToP)-1] = 1
	m.EToP[len(m.EToP)-2] = 2
	in := DefaultInput(m, model, sizefield.Uniform{H: 1})
	in.MaximumIterations = 1
	in.PreBalance = balance.Stage{Graph: true}
	in.Operations = newFakeOps()

	require.NoError(t, Adapt(in))
	loads := m.PartitionLoads(func(int) float64 { return 1 })
	assert.LessOrEqual(t, mesh.Imbalance(loads), in.MaximumImbalance+1.e-9)
}

func TestEmptyMeshIsFatal(t *testing.T) {
	err := CheckEmpty(mesh.NewMesh(3), "test")
	var se *StructuralError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "test", se.Stage)
	assert.Zero(t, se.Elements)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrEmptyMesh)

	m, model := mesh.NewBoxTetMesh(1, mesh.UnitBox)
	require.NoError(t, CheckEmpty(m, "test"))

	emptying := func(m *mesh.Mesh) *fakeOps {
		ops := newFakeOps()
		ops.coarsen = func() (int, error) {
			for e := range m.Elements {
				m.RemoveElement(e)
			}
			return len(m.Elements), nil
		}
		return ops
	}
	in := DefaultInput(m, model, sizefield.Uniform{H: 1})
	in.Operations = emptying(m)
	require.NoError(t, Adapt(in), "only verbose runs check")

	m, model = mesh.NewBoxTetMesh(1, mesh.UnitBox)
	in = DefaultInput(m, model, sizefield.Uniform{H: 1})
	ops := emptying(m)
	in.Operations = ops
	err = AdaptVerbose(in, true)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "mid balance", se.Stage)
	assert.Equal(t, 1, ops.calls["coarsen"])
	assert.Zero(t, ops.calls["refine"], "the run stops before refining")
}

func TestUnsplittableLayerIsFatal(t *testing.T) {
	inverted := []r3.Vec{{}, {X: 1}, {Y: 1}, {Z: -1}, {X: 1, Z: -1}, {Y: 1, Z: -1}}
	m, model := mesh.NewSingleElementMesh(mesh.Prism, inverted)
	in := DefaultInput(m, model, sizefield.Uniform{H: 1})
	in.MaximumIterations = 1
	in.ShouldCoarsen = false
	in.ShouldRefine = false
	in.ShouldSnap = false
	in.ShouldFixShape = false
	in.ShouldTurnLayerToTets = true

	err := Adapt(in)
	var ge *GeometricError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, mesh.Prism, ge.Type)
	assert.Equal(t, 0, ge.Element)
	assert.Zero(t, ge.Good)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrUnsafeLayerElement)
	assert.Equal(t, mesh.Prism, m.Type(0), "the mesh is left as it was")

	ops := newFakeOps()
	ops.tetError = errors.New("boom")
	in.Operations = ops
	err = Adapt(in)
	require.Error(t, err)
	assert.False(t, IsFatal(err))
}

func TestValidateInput(t *testing.T) {
	m, model := mesh.NewBoxTetMesh(1, mesh.UnitBox)
	quadratic, qmodel := mesh.NewBoxTetMesh(1, mesh.UnitBox)
	quadratic.MakeQuadratic(qmodel)
	tests := []struct {
		name   string
		modify func(in *Input)
	}{
		{"no mesh", func(in *Input) { in.Mesh = nil }},
		{"no field", func(in *Input) { in.Field = nil }},
		{"1D mesh", func(in *Input) { in.Mesh = mesh.NewMesh(1) }},
		{"negative iterations", func(in *Input) { in.MaximumIterations = -1 }},
		{"imbalance below one", func(in *Input) { in.MaximumImbalance = 0.9 }},
		{"good below valid", func(in *Input) { in.GoodQuality = 1.e-12 }},
		{"good above one", func(in *Input) { in.GoodQuality = 2 }},
		{"min above max", func(in *Input) { in.MinEdgeLength = 2 }},
		{"min above half max", func(in *Input) { in.MinEdgeLength = 1 }},
		{"negative residual passes", func(in *Input) { in.MaxResidualPasses = -1 }},
		{"coarsen base", func(in *Input) { in.CoarsenBase = 0.5 }},
		{"diffusion step", func(in *Input) { in.DiffusionStep = 1.5 }},
		{"quadratic mesh", func(in *Input) { in.Mesh = quadratic }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := DefaultInput(m, model, sizefield.Uniform{H: 1})
			tt.modify(in)
			assert.ErrorIs(t, ValidateInput(in), ErrInvalidInput)
			_, err := Run(in, false)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.ErrorIs(t, ValidateInput(nil), ErrInvalidInput)
	assert.NoError(t, ValidateInput(DefaultInput(m, model, sizefield.Uniform{H: 1})))
}

func TestRunUniformRefinement(t *testing.T) {
	m, model := mesh.NewSquareMesh(1, mesh.UnitBox, false)
	require.NoError(t, RunUniformRefinement(m, model, 2, logging.NewNop()))
	assert.Equal(t, 32, m.Count(2))
	assert.True(t, shape.AreSimplicesValid(m, shape.LiveElements(m)))
}

func TestDebugDumps(t *testing.T) {
	m, model := mesh.NewBoxTetMesh(2, mesh.UnitBox)
	in := DefaultInput(m, model, sizefield.Uniform{H: 1})
	in.MaximumIterations = 1
	in.DebugDir = filepath.Join(t.TempDir(), "debug")

	require.NoError(t, AdaptVerbose(in, true))
	for _, name := range []string{
		"after_coarsen_0", "after_refine_0", "after_snap_0", "after_fix_0",
		"after_final_fix_1", "after_residual_refine_1", "after_improve_1",
	} {
		file := filepath.Join(in.DebugDir, name+".mesh")
		_, err := os.Stat(file)
		require.NoError(t, err, name)
	}
	dumped, _, err := mesh.ReadNativeFile(filepath.Join(in.DebugDir, "after_improve_1.mesh"))
	require.NoError(t, err)
	assert.Equal(t, m.Count(3), dumped.Count(3))
}

func TestPinnedBoundaryStaysPut(t *testing.T) {
	m, _ := mesh.NewSquareMesh(4, mesh.UnitBox, false)
	pinned := &mesh.PinnedBoundary{Dim: 2}
	var boundary []r3.Vec
	for v, c := range m.Classification {
		if c.Dim < 2 {
			m.Classification[v] = mesh.Classification{Dim: 0, Tag: 1}
			boundary = append(boundary, m.Vertices[v])
		}
	}
	before := m.Count(2)
	in := DefaultInput(m, pinned, sizefield.Uniform{H: 1})
	require.NoError(t, Adapt(in))

	assert.Less(t, m.Count(2), before)
	used := make(map[r3.Vec]bool)
	for _, e := range shape.LiveElements(m) {
		for _, x := range m.Points(e) {
			used[x] = true
		}
	}
	for _, x := range boundary {
		assert.True(t, used[x], "boundary vertex %v", x)
	}
	var area float64
	for _, e := range shape.LiveElements(m) {
		area += mesh.Measure(m.Type(e), m.Points(e))
	}
	assert.InDelta(t, 1, area, 1.e-12)
}

func TestAnisotropicRunKeepsPositiveQuality(t *testing.T) {
	m, model := mesh.NewBoxTetMesh(3, mesh.UnitBox)
	f, err := sizefield.NewAnisotropicFromSizes([3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}, [3]float64{0.3, 0.3, 1})
	require.NoError(t, err)
	in := DefaultInput(m, model, f)
	in.Logger = logging.NewNop()

	report, err := Run(in, false)
	require.NoError(t, err)
	assert.Greater(t, report.InitialWorst, 0.)
	assert.Greater(t, report.FinalWorst, 0.)
	assert.True(t, shape.AreSimplicesValid(m, shape.LiveElements(m)))
}

func TestNewEngineCarriesLayerFlags(t *testing.T) {
	m, model := mesh.NewLayeredBoxMesh(2, 1, 0.1, mesh.UnitBox)
	in := DefaultInput(m, model, sizefield.Uniform{H: 0.2})
	e := NewEngine(in)
	assert.False(t, e.Config.RefineLayer)
	assert.False(t, e.Config.CoarsenLayer)

	in.ShouldRefineLayer, in.ShouldCoarsenLayer = true, true
	e = NewEngine(in)
	assert.True(t, e.Config.RefineLayer)
	assert.True(t, e.Config.CoarsenLayer)
	assert.Equal(t, in.MaxEdgeLength, e.Config.MaxEdgeLength)
}
