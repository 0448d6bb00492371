package InputParameters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/adapt"
	"github.com/notargets/meshadapt/balance"
	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/sizefield"
)

func TestParse(t *testing.T) {
	fileInput := []byte(`
Title: Layered box
Mesh:
  Dimension: 3
  N: 2
  Layers: 2
  Thickness: 0.05
  Partitions: 4
  Min: [0, 0, 0]
  Max: [1, 1, 1]
Size:
  Type: graded
  H0: 0.1
  H1: 0.5
  Length: 1
  Axis: [0, 0, 1]
MaxIterations: 5
PreBalance: [graph]
PostBalance: [rib, diffusive]
LayerToTets: true
Snap: false
`)
	ap := NewAdaptParameters()
	require.NoError(t, ap.Parse(fileInput))
	ap.Print()
	assert.Equal(t, "Layered box", ap.Title)
	assert.Equal(t, 5, ap.MaxIterations)
	assert.Equal(t, 2, ap.Mesh.Layers)
	assert.True(t, ap.LayerToTets)
	assert.False(t, ap.Snap)
	assert.True(t, ap.Coarsen, "defaults survive")
	assert.Equal(t, 1.10, ap.MaxImbalance)
	assert.Equal(t, []string{"diffusive"}, ap.MidBalance)

	m, model, err := ap.LoadMesh()
	require.NoError(t, err)
	assert.Equal(t, 4, m.NumPartitions)
	in, err := ap.Input(m, model)
	require.NoError(t, err)
	assert.Equal(t, balance.Stage{Graph: true}, in.PreBalance)
	assert.Equal(t, balance.Stage{RIB: true, Diffusive: true}, in.PostBalance)
	assert.True(t, in.ShouldTurnLayerToTets)
	assert.False(t, in.ShouldSnap)
	assert.Equal(t, 5, in.MaximumIterations)
	f, ok := in.Field.(sizefield.Graded)
	require.True(t, ok)
	assert.Equal(t, r3.Vec{Z: 1}, f.Axis)
}

func TestDefaultsMatchInput(t *testing.T) {
	ap := NewAdaptParameters()
	m, model, err := ap.LoadMesh()
	require.NoError(t, err)
	assert.Equal(t, 6*64, m.Count(3))
	in, err := ap.Input(m, model)
	require.NoError(t, err)
	def := adapt.DefaultInput(m, model, sizefield.Uniform{H: 0.25})
	assert.Equal(t, def, in)
}

func TestRejects(t *testing.T) {
	tests := map[string]string{
		"balancer":   "PreBalance: [metis]",
		"size field": "Size: {Type: spline}",
		"uniform h":  "Size: {Type: uniform, H: 0}",
		"graded":     "Size: {Type: graded, H0: 0.1}",
		"no axis":    "Size: {Type: graded, H0: 0.1, H1: 0.5, Length: 1}",
		"no normal":  "Size: {Type: boundaryLayer, H0: 0.01, H: 0.5, Growth: 1}",
		"no dirs":    "Size: {Type: anisotropic, Sizes: [0.1, 0.2, 0.4]}",
		"validation": "MaxImbalance: 0.5",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			ap := NewAdaptParameters()
			require.NoError(t, ap.Parse([]byte(doc)))
			m, model, err := ap.LoadMesh()
			require.NoError(t, err)
			_, err = ap.Input(m, model)
			assert.Error(t, err)
		})
	}

	ap := NewAdaptParameters()
	ap.Mesh.Dimension = 1
	_, _, err := ap.LoadMesh()
	assert.Error(t, err)
	ap.Mesh.File = "does-not-exist.mesh"
	_, _, err = ap.LoadMesh()
	assert.Error(t, err)
}

func TestAnisotropicSize(t *testing.T) {
	ap := NewAdaptParameters()
	require.NoError(t, ap.Parse([]byte(`
Size:
  Type: anisotropic
  Sizes: [0.1, 0.2, 0.4]
  Directions: [[1, 0, 0], [0, 1, 0], [0, 0, 1]]
`)))
	f, err := ap.SizeField()
	require.NoError(t, err)
	tr := f.Transform(r3.Vec{})
	assert.InDelta(t, 1/(0.1*0.2*0.4), tr.Det()*sign(tr.Det()), 1.e-9)

	ap.Mesh.Dimension, ap.Mesh.Quads = 2, true
	m, _, err := ap.LoadMesh()
	require.NoError(t, err)
	assert.Equal(t, mesh.Quad, m.Type(0))
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

func TestLoadSU2(t *testing.T) {
	file := filepath.Join(t.TempDir(), "square.su2")
	doc := `NDIME= 2
NELEM= 2
5 0 1 2 0
5 0 2 3 1
NPOIN= 4
0 0
1 0
1 1
0 1
NMARK= 1
MARKER_TAG= outer
MARKER_ELEMS= 4
3 0 1
3 1 2
3 2 3
3 3 0
`
	require.NoError(t, os.WriteFile(file, []byte(doc), 0o644))
	ap := NewAdaptParameters()
	ap.Mesh.File = file
	m, model, err := ap.LoadMesh()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count(2))
	_, ok := model.(*mesh.PinnedBoundary)
	assert.True(t, ok)
	assert.Nil(t, ModelBox(model))
	_, err = ap.Input(m, model)
	require.NoError(t, err)
}
