package InputParameters

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ghodss/yaml"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshadapt/adapt"
	"github.com/notargets/meshadapt/balance"
	"github.com/notargets/meshadapt/mesh"
	"github.com/notargets/meshadapt/sizefield"
)

// AdaptParameters obtained from the YAML input file. Fields left out of the
// file keep the values of NewAdaptParameters.
type AdaptParameters struct {
	Title         string         `json:"Title"`
	Mesh          MeshParameters `json:"Mesh"`
	Size          SizeParameters `json:"Size"`
	MaxIterations int            `json:"MaxIterations"`
	MaxImbalance  float64        `json:"MaxImbalance"`
	// Balance stages name the balancers to run: graph, rib, diffusive
	PreBalance   []string `json:"PreBalance"`
	MidBalance   []string `json:"MidBalance"`
	PostBalance  []string `json:"PostBalance"`
	Coarsen      bool     `json:"Coarsen"`
	Refine       bool     `json:"Refine"`
	Snap         bool     `json:"Snap"`
	FixShape     bool     `json:"FixShape"`
	RefineLayer  bool     `json:"RefineLayer"`
	CoarsenLayer bool     `json:"CoarsenLayer"`
	LayerToTets  bool     `json:"LayerToTets"`
	CleanupLayer bool     `json:"CleanupLayer"`
	GoodQuality  float64  `json:"GoodQuality"`
	ValidQuality float64  `json:"ValidQuality"`
	MinEdge      float64  `json:"MinEdgeLength"`
	MaxEdge      float64  `json:"MaxEdgeLength"`
	Residual     int      `json:"ResidualPasses"`
	Smooth       int      `json:"SmoothPasses"`
	CoarsenBase  float64  `json:"CoarsenBase"`
	Diffusion    float64  `json:"DiffusionStep"`
	DebugDir     string   `json:"DebugDir"`
}

// MeshParameters name a native mesh file or describe a generated box
type MeshParameters struct {
	File       string     `json:"File"`
	Dimension  int        `json:"Dimension"`
	N          int        `json:"N"`
	Layers     int        `json:"Layers"`
	Thickness  float64    `json:"Thickness"`
	Quads      bool       `json:"Quads"`
	Partitions int        `json:"Partitions"`
	Min        [3]float64 `json:"Min"`
	Max        [3]float64 `json:"Max"`
}

// SizeParameters select a size field: uniform, graded, boundaryLayer or
// anisotropic
type SizeParameters struct {
	Type       string        `json:"Type"`
	H          float64       `json:"H"`
	H0         float64       `json:"H0"`
	H1         float64       `json:"H1"`
	Length     float64       `json:"Length"`
	Growth     float64       `json:"Growth"`
	Origin     [3]float64    `json:"Origin"`
	Axis       [3]float64    `json:"Axis"`
	Sizes      [3]float64    `json:"Sizes"`
	Directions [3][3]float64 `json:"Directions"`
}

// NewAdaptParameters returns the parameters of a default run on a 4^3 unit
// cube toward a uniform size of 0.25
func NewAdaptParameters() *AdaptParameters {
	in := adapt.DefaultInput(nil, nil, nil)
	return &AdaptParameters{
		Mesh: MeshParameters{
			Dimension: 3, N: 4, Partitions: 1,
			Max: [3]float64{1, 1, 1},
		},
		Size:          SizeParameters{Type: "uniform", H: 0.25},
		MaxIterations: in.MaximumIterations,
		MaxImbalance:  in.MaximumImbalance,
		PreBalance:    stageNames(in.PreBalance),
		MidBalance:    stageNames(in.MidBalance),
		PostBalance:   stageNames(in.PostBalance),
		Coarsen:       in.ShouldCoarsen,
		Refine:        in.ShouldRefine,
		Snap:          in.ShouldSnap,
		FixShape:      in.ShouldFixShape,
		GoodQuality:   in.GoodQuality,
		ValidQuality:  in.ValidQuality,
		MinEdge:       in.MinEdgeLength,
		MaxEdge:       in.MaxEdgeLength,
		Residual:      in.MaxResidualPasses,
		Smooth:        in.SmoothPasses,
		CoarsenBase:   in.CoarsenBase,
		Diffusion:     in.DiffusionStep,
	}
}

func (ap *AdaptParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ap)
}

func (ap *AdaptParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ap.Title)
	if ap.Mesh.File != "" {
		fmt.Printf("[%s]\t\t= Mesh File\n", ap.Mesh.File)
	} else {
		fmt.Printf("[%dD, N=%d, %d layers]\t= Box Mesh\n", ap.Mesh.Dimension, ap.Mesh.N, ap.Mesh.Layers)
	}
	fmt.Printf("[%s]\t\t= Size Field\n", ap.Size.Type)
	fmt.Printf("[%d]\t\t\t\t= Max Iterations\n", ap.MaxIterations)
	fmt.Printf("%8.5f\t\t= Max Imbalance\n", ap.MaxImbalance)
	fmt.Printf("%8.5f\t\t= Good Quality\n", ap.GoodQuality)
	fmt.Printf("%8.5f\t\t= Edge Length Min\n", ap.MinEdge)
	fmt.Printf("%8.5f\t\t= Edge Length Max\n", ap.MaxEdge)
	stages := map[string][]string{
		"pre": ap.PreBalance, "mid": ap.MidBalance, "post": ap.PostBalance,
	}
	keys := make([]string, 0, len(stages))
	for k := range stages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("Balance[%s] = %v\n", key, stages[key])
	}
}

func stageNames(s balance.Stage) (names []string) {
	for _, v := range s.Variants() {
		names = append(names, v.String())
	}
	return
}

// ParseStage turns balancer names into a stage
func ParseStage(names []string) (s balance.Stage, err error) {
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "graph":
			s.Graph = true
		case "rib":
			s.RIB = true
		case "diffusive":
			s.Diffusive = true
		default:
			return s, fmt.Errorf("unknown balancer %q", name)
		}
	}
	return
}

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// LoadMesh reads the mesh file, native or SU2 by extension, or builds the
// box mesh. The model is nil for a native file with no model box.
func (ap *AdaptParameters) LoadMesh() (m *mesh.Mesh, model mesh.Model, err error) {
	mp := ap.Mesh
	switch {
	case strings.EqualFold(filepath.Ext(mp.File), ".su2"):
		var pinned *mesh.PinnedBoundary
		if m, pinned, err = mesh.ReadSU2File(mp.File); err != nil {
			return nil, nil, fmt.Errorf("reading mesh: %w", err)
		}
		model = pinned
	case mp.File != "":
		var box *mesh.BoxModel
		if m, box, err = mesh.ReadNativeFile(mp.File); err != nil {
			return nil, nil, fmt.Errorf("reading mesh: %w", err)
		}
		if box != nil {
			model = box
		}
	default:
		box := r3.Box{Min: vec(mp.Min), Max: vec(mp.Max)}
		switch {
		case mp.N < 1:
			return nil, nil, fmt.Errorf("box mesh needs N >= 1, got %d", mp.N)
		case mp.Dimension == 2:
			m, model = mesh.NewSquareMesh(mp.N, box, mp.Quads)
		case mp.Dimension == 3 && mp.Layers > 0:
			m, model = mesh.NewLayeredBoxMesh(mp.N, mp.Layers, mp.Thickness, box)
		case mp.Dimension == 3:
			m, model = mesh.NewBoxTetMesh(mp.N, box)
		default:
			return nil, nil, fmt.Errorf("box mesh dimension %d", mp.Dimension)
		}
	}
	if mp.Partitions > 1 {
		m.PartitionByIndex(mp.Partitions)
	}
	return
}

// ModelBox is the box of a box model, nil for any other model
func ModelBox(model mesh.Model) *r3.Box {
	if bm, ok := model.(*mesh.BoxModel); ok {
		return &bm.Box
	}
	return nil
}

// SizeField builds the configured size field
func (ap *AdaptParameters) SizeField() (sizefield.SizeField, error) {
	sp := ap.Size
	switch strings.ToLower(sp.Type) {
	case "", "uniform":
		if sp.H <= 0 {
			return nil, fmt.Errorf("uniform size needs H > 0, got %g", sp.H)
		}
		return sizefield.Uniform{H: sp.H}, nil
	case "graded":
		if sp.H0 <= 0 || sp.H1 <= 0 || sp.Length <= 0 {
			return nil, fmt.Errorf("graded size needs positive H0, H1 and Length")
		}
		if r3.Norm(vec(sp.Axis)) == 0 {
			return nil, fmt.Errorf("graded size needs a nonzero Axis")
		}
		return sizefield.Graded{Origin: vec(sp.Origin), Axis: vec(sp.Axis), H0: sp.H0, H1: sp.H1, Length: sp.Length}, nil
	case "boundarylayer":
		if sp.H0 <= 0 || sp.H <= 0 || sp.Growth < 0 {
			return nil, fmt.Errorf("boundary layer size needs positive H0 and H")
		}
		if r3.Norm(vec(sp.Axis)) == 0 {
			return nil, fmt.Errorf("boundary layer size needs a nonzero Axis normal")
		}
		return sizefield.BoundaryLayer{Origin: vec(sp.Origin), Normal: vec(sp.Axis), H0: sp.H0, H: sp.H, Growth: sp.Growth}, nil
	case "anisotropic":
		var dirs [3]r3.Vec
		for i, d := range sp.Directions {
			dirs[i] = vec(d)
		}
		return sizefield.NewAnisotropicFromSizes(dirs, sp.Sizes)
	}
	return nil, fmt.Errorf("unknown size field %q", sp.Type)
}

// Input builds the run configuration for m. A nil model leaves every vertex
// free to move.
func (ap *AdaptParameters) Input(m *mesh.Mesh, model mesh.Model) (in *adapt.Input, err error) {
	f, err := ap.SizeField()
	if err != nil {
		return nil, err
	}
	in = adapt.DefaultInput(m, model, f)
	if in.PreBalance, err = ParseStage(ap.PreBalance); err != nil {
		return nil, err
	}
	if in.MidBalance, err = ParseStage(ap.MidBalance); err != nil {
		return nil, err
	}
	if in.PostBalance, err = ParseStage(ap.PostBalance); err != nil {
		return nil, err
	}
	in.MaximumIterations = ap.MaxIterations
	in.MaximumImbalance = ap.MaxImbalance
	in.ShouldCoarsen = ap.Coarsen
	in.ShouldRefine = ap.Refine
	in.ShouldSnap = ap.Snap
	in.ShouldFixShape = ap.FixShape
	in.ShouldRefineLayer = ap.RefineLayer
	in.ShouldCoarsenLayer = ap.CoarsenLayer
	in.ShouldTurnLayerToTets = ap.LayerToTets
	in.ShouldCleanupLayer = ap.CleanupLayer
	in.GoodQuality = ap.GoodQuality
	in.ValidQuality = ap.ValidQuality
	in.MinEdgeLength = ap.MinEdge
	in.MaxEdgeLength = ap.MaxEdge
	in.MaxResidualPasses = ap.Residual
	in.SmoothPasses = ap.Smooth
	in.CoarsenBase = ap.CoarsenBase
	in.DiffusionStep = ap.Diffusion
	in.DebugDir = ap.DebugDir
	return in, adapt.ValidateInput(in)
}
